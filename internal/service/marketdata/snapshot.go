package marketdata

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"Tehama/internal/domain/models"
	domrepo "Tehama/internal/domain/repository"
	domsvc "Tehama/internal/domain/service"
	"Tehama/internal/service/cache"
	"Tehama/internal/service/indicators"
	svcmetrics "Tehama/internal/service/metrics"
	"Tehama/pkg/logger"
)

const (
	fundamentalsTTL = 6 * time.Hour
	candleLookback  = 60
)

// Provider assembles the market context one instrument at a time. Quotes
// come from the streamed price book when fresh, otherwise from a REST
// fetch memoized with a session-aware TTL. Sections that cannot be
// filled stay nil; the analysts downstream treat that as insufficiency,
// so the provider only fails on cancellation.
type Provider struct {
	book    *PriceBook
	fetcher *Fetcher
	candles domrepo.CandleStore
	store   cache.BytesCache
	clock   *cache.MarketClock
	sf      singleflight.Group
	pm      *svcmetrics.PipelineMetrics
	log     *logger.Logger

	defaultPortfolio float64
}

func NewProvider(
	book *PriceBook,
	fetcher *Fetcher,
	candles domrepo.CandleStore,
	store cache.BytesCache,
	clock *cache.MarketClock,
	pm *svcmetrics.PipelineMetrics,
	lgr *logger.Logger,
	defaultPortfolio float64,
) *Provider {
	if defaultPortfolio <= 0 {
		defaultPortfolio = 100_000
	}
	return &Provider{
		book:             book,
		fetcher:          fetcher,
		candles:          candles,
		store:            store,
		clock:            clock,
		pm:               pm,
		log:              lgr,
		defaultPortfolio: defaultPortfolio,
	}
}

func (p *Provider) Snapshot(ctx context.Context, instrument string, portfolio *models.PortfolioContext) (*models.ContextSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	instrument = strings.ToUpper(strings.TrimSpace(instrument))

	snap := &models.ContextSnapshot{
		Instrument: instrument,
		AsOf:       time.Now().UTC(),
		Portfolio:  portfolio,
	}
	if snap.Portfolio == nil {
		snap.Portfolio = &models.PortfolioContext{TotalValue: p.defaultPortfolio}
	}

	snap.Quote = p.quote(ctx, instrument)
	if snap.Quote != nil {
		snap.TargetPrice = snap.Quote.Price
	}
	snap.Fundamentals = p.fundamentals(ctx, instrument)
	snap.Indicators = p.indicators(ctx, instrument)

	return snap, ctx.Err()
}

// quote prefers the streamed book, then the session-TTL cache, then a
// deduplicated REST fetch.
func (p *Provider) quote(ctx context.Context, instrument string) *models.Quote {
	if q := p.book.Latest(instrument); q != nil {
		p.pm.SnapshotCache("quote", "stream")
		return q
	}

	key := "quote:" + instrument
	if q, ok := getCached[models.Quote](p.store, key); ok {
		p.pm.SnapshotCache("quote", "hit")
		return q
	}

	v, err, _ := p.sf.Do(key, func() (interface{}, error) {
		q, err := p.fetcher.Quote(ctx, instrument)
		if err != nil {
			return nil, err
		}
		putCached(p.store, key, q, p.clock.TTL())
		return q, nil
	})
	if err != nil {
		p.pm.SnapshotCache("quote", "miss")
		if p.log != nil {
			p.log.Warn("quote unavailable", logger.String("instrument", instrument), logger.Error(err))
		}
		return nil
	}
	p.pm.SnapshotCache("quote", "fetch")
	return v.(*models.Quote)
}

func (p *Provider) fundamentals(ctx context.Context, instrument string) *models.Fundamentals {
	key := "fund:" + instrument
	if f, ok := getCached[models.Fundamentals](p.store, key); ok {
		p.pm.SnapshotCache("fundamentals", "hit")
		return f
	}

	v, err, _ := p.sf.Do(key, func() (interface{}, error) {
		f, err := p.fetcher.Fundamentals(ctx, instrument)
		if err != nil {
			return nil, err
		}
		putCached(p.store, key, f, fundamentalsTTL)
		return f, nil
	})
	if err != nil {
		p.pm.SnapshotCache("fundamentals", "miss")
		if p.log != nil {
			p.log.Warn("fundamentals unavailable", logger.String("instrument", instrument), logger.Error(err))
		}
		return nil
	}
	p.pm.SnapshotCache("fundamentals", "fetch")
	return v.(*models.Fundamentals)
}

func (p *Provider) indicators(ctx context.Context, instrument string) *models.Indicators {
	if p.candles == nil {
		return nil
	}
	candles, err := p.candles.GetLatestNCandles(ctx, instrument, candleLookback, domrepo.TF1d)
	if err != nil {
		p.pm.SnapshotCache("indicators", "miss")
		if p.log != nil {
			p.log.Warn("candles unavailable", logger.String("instrument", instrument), logger.Error(err))
		}
		return nil
	}
	ind := indicators.Compute(candles)
	if ind == nil {
		p.pm.SnapshotCache("indicators", "miss")
		return nil
	}
	p.pm.SnapshotCache("indicators", "fetch")
	return ind
}

func getCached[T any](store cache.BytesCache, key string) (*T, bool) {
	if store == nil {
		return nil, false
	}
	b, ok, err := store.GetBytes(key)
	if err != nil || !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	return &v, true
}

func putCached[T any](store cache.BytesCache, key string, v *T, ttl time.Duration) {
	if store == nil {
		return
	}
	if b, err := json.Marshal(v); err == nil {
		_ = store.SetBytes(key, b, ttl)
	}
}

var _ domsvc.SnapshotProvider = (*Provider)(nil)
