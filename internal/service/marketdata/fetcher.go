package marketdata

import (
	"context"
	"fmt"
	"time"

	"Tehama/internal/domain/models"
	xhttp "Tehama/pkg/http"
)

// Fetcher pulls quotes and fundamentals over the upstream REST API. It
// is the cold path; the hot path is the streamed PriceBook.
type Fetcher struct {
	baseURL string
	apiKey  string
	client  *xhttp.Client
}

func NewFetcher(baseURL, apiKey string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fetcher{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (f *Fetcher) get(ctx context.Context, path string, params map[string][]string, dest interface{}) error {
	if f.baseURL == "" {
		return fmt.Errorf("market data rest url not configured")
	}
	params["token"] = []string{f.apiKey}
	return f.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         f.baseURL + path,
		QueryParams: params,
	}, dest)
}

type quoteResp struct {
	Current   float64 `json:"c"`
	PrevClose float64 `json:"pc"`
	Timestamp int64   `json:"t"`
}

// Quote fetches the latest quote with previous close for the symbol.
func (f *Fetcher) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var qr quoteResp
	if err := f.get(ctx, "/quote", map[string][]string{"symbol": {symbol}}, &qr); err != nil {
		return nil, fmt.Errorf("fetch quote %s: %w", symbol, err)
	}
	if qr.Current <= 0 {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	ts := qr.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return &models.Quote{
		Symbol:    symbol,
		Price:     qr.Current,
		PrevClose: qr.PrevClose,
		Timestamp: ts,
	}, nil
}

type profileResp struct {
	MarketCapMillions float64 `json:"marketCapitalization"`
	Industry          string  `json:"finnhubIndustry"`
}

type metricResp struct {
	Metric struct {
		PETTTM *float64 `json:"peTTM"`
	} `json:"metric"`
}

// Fundamentals fetches valuation data. The profile carries market cap in
// millions and the industry, which doubles as our sector bucket; the
// metric endpoint carries trailing P/E, absent for unprofitable names.
func (f *Fetcher) Fundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	var pr profileResp
	if err := f.get(ctx, "/stock/profile2", map[string][]string{"symbol": {symbol}}, &pr); err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", symbol, err)
	}

	fund := &models.Fundamentals{
		MarketCap: pr.MarketCapMillions * 1_000_000,
		Sector:    pr.Industry,
		Industry:  pr.Industry,
	}

	var mr metricResp
	if err := f.get(ctx, "/stock/metric", map[string][]string{"symbol": {symbol}, "metric": {"all"}}, &mr); err == nil {
		fund.PERatio = mr.Metric.PETTTM
	}
	return fund, nil
}
