package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tehama/internal/domain/models"
	domrepo "Tehama/internal/domain/repository"
	"Tehama/internal/service/cache"
	svcmetrics "Tehama/internal/service/metrics"
)

type stubCandles struct {
	candles []models.Candle
	err     error
}

func (s *stubCandles) GetLatestNCandles(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
	return s.candles, s.err
}

func dailyCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	base := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = models.Candle{Bucket: base.AddDate(0, 0, i), Symbol: "AAPL", Close: 100 + float64(i)}
	}
	return out
}

func restServer(t *testing.T, quoteCalls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			if quoteCalls != nil {
				atomic.AddInt32(quoteCalls, 1)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"c": 187.5, "pc": 184.0, "t": time.Now().Unix()})
		case "/stock/profile2":
			json.NewEncoder(w).Encode(map[string]interface{}{"marketCapitalization": 2900000.0, "finnhubIndustry": "Technology"})
		case "/stock/metric":
			json.NewEncoder(w).Encode(map[string]interface{}{"metric": map[string]interface{}{"peTTM": 31.2}})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestProvider(t *testing.T, restURL string, candles domrepo.CandleStore) *Provider {
	t.Helper()
	clock, err := cache.NewMarketClock()
	require.NoError(t, err)
	return NewProvider(
		NewPriceBook(),
		NewFetcher(restURL, "test-key", time.Second),
		candles,
		cache.NewTTLCache(),
		clock,
		svcmetrics.NewPipelineMetrics(),
		nil,
		50_000,
	)
}

func TestSnapshotFullContext(t *testing.T) {
	srv := restServer(t, nil)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, &stubCandles{candles: dailyCandles(60)})
	snap, err := p.Snapshot(context.Background(), "aapl", nil)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", snap.Instrument)
	require.NotNil(t, snap.Quote)
	assert.InDelta(t, 187.5, snap.Quote.Price, 1e-9)
	assert.InDelta(t, 187.5, snap.TargetPrice, 1e-9)

	require.NotNil(t, snap.Fundamentals)
	require.NotNil(t, snap.Fundamentals.PERatio)
	assert.InDelta(t, 31.2, *snap.Fundamentals.PERatio, 1e-9)
	assert.InDelta(t, 2.9e12, snap.Fundamentals.MarketCap, 1e3)
	assert.Equal(t, "Technology", snap.Fundamentals.Sector)

	require.NotNil(t, snap.Indicators)
	assert.InDelta(t, 100.0, snap.Indicators.RSI14, 1e-9)

	require.NotNil(t, snap.Portfolio)
	assert.InDelta(t, 50_000.0, snap.Portfolio.TotalValue, 1e-9)
}

func TestSnapshotMissingSectionsStayNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, &stubCandles{err: errors.New("clickhouse down")})
	snap, err := p.Snapshot(context.Background(), "AAPL", nil)
	require.NoError(t, err)

	assert.Nil(t, snap.Quote)
	assert.Nil(t, snap.Fundamentals)
	assert.Nil(t, snap.Indicators)
	assert.Zero(t, snap.TargetPrice)
}

func TestSnapshotQuoteIsCached(t *testing.T) {
	var calls int32
	srv := restServer(t, &calls)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, &stubCandles{})
	_, err := p.Snapshot(context.Background(), "AAPL", nil)
	require.NoError(t, err)
	_, err = p.Snapshot(context.Background(), "AAPL", nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSnapshotPrefersStreamedQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL, &stubCandles{})
	p.book.Update(&models.Quote{Symbol: "AAPL", Price: 190, Timestamp: time.Now().Unix()})

	snap, err := p.Snapshot(context.Background(), "AAPL", nil)
	require.NoError(t, err)
	require.NotNil(t, snap.Quote)
	assert.InDelta(t, 190.0, snap.Quote.Price, 1e-9)
}

func TestSnapshotCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestProvider(t, "http://unused", &stubCandles{})
	_, err := p.Snapshot(ctx, "AAPL", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPriceBookStaleQuotes(t *testing.T) {
	b := NewPriceBook()
	b.Update(&models.Quote{Symbol: "AAPL", Price: 100, Timestamp: time.Now().Add(-10 * time.Minute).Unix()})
	assert.Nil(t, b.Latest("AAPL"))

	b.Update(&models.Quote{Symbol: "AAPL", Price: 101, PrevClose: 99, Timestamp: time.Now().Unix()})
	require.NotNil(t, b.Latest("AAPL"))

	// Streamed trades carry no previous close; the book keeps the old one.
	b.Update(&models.Quote{Symbol: "AAPL", Price: 102, Timestamp: time.Now().Unix()})
	q := b.Latest("AAPL")
	require.NotNil(t, q)
	assert.InDelta(t, 99.0, q.PrevClose, 1e-9)
}
