package analyst

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tehama/internal/domain/models"
)

func pe(v float64) *float64 { return &v }

func analyze(t *testing.T, a interface {
	Analyze(context.Context, *models.ContextSnapshot) (*models.Vote, error)
}, snap *models.ContextSnapshot) *models.Vote {
	t.Helper()
	v, err := a.Analyze(context.Background(), snap)
	require.NoError(t, err)
	require.NotNil(t, v)
	return v
}

func TestTechnicalRules(t *testing.T) {
	a := NewTechnical(nil)
	cases := []struct {
		name   string
		ind    models.Indicators
		action models.Action
		conf   float64
	}{
		{"overbought", models.Indicators{RSI14: 75, MACD: 1, MACDSignal: 0}, models.ActionSell, 0.65},
		{"oversold", models.Indicators{RSI14: 25, MACD: -1, MACDSignal: 0}, models.ActionBuy, 0.65},
		{"macd bullish", models.Indicators{RSI14: 50, MACD: 0.4, MACDSignal: 0.1}, models.ActionBuy, 0.60},
		{"macd bearish", models.Indicators{RSI14: 50, MACD: -0.4, MACDSignal: 0.1}, models.ActionSell, 0.60},
		{"flat", models.Indicators{RSI14: 50, MACD: 0.2, MACDSignal: 0.2}, models.ActionHold, 0.50},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ind := c.ind
			v := analyze(t, a, &models.ContextSnapshot{Instrument: "APLD", Indicators: &ind})
			assert.Equal(t, c.action, v.Action)
			assert.InDelta(t, c.conf, v.Confidence, 1e-9)
			assert.True(t, v.DataSufficient)
		})
	}
}

func TestTechnicalInsufficientWithoutIndicators(t *testing.T) {
	v := analyze(t, NewTechnical(nil), &models.ContextSnapshot{Instrument: "APLD"})
	assert.Equal(t, models.ActionHold, v.Action)
	assert.False(t, v.DataSufficient)
	assert.LessOrEqual(t, v.Confidence, models.MaxInsufficientConfidence)
}

func TestFundamentalRules(t *testing.T) {
	a := NewFundamental(nil)
	cases := []struct {
		name   string
		fund   models.Fundamentals
		action models.Action
		conf   float64
	}{
		{"unprofitable", models.Fundamentals{PERatio: pe(-3)}, models.ActionSell, 0.60},
		{"cheap", models.Fundamentals{PERatio: pe(11)}, models.ActionBuy, 0.65},
		{"rich", models.Fundamentals{PERatio: pe(72)}, models.ActionSell, 0.65},
		{"fair", models.Fundamentals{PERatio: pe(22)}, models.ActionHold, 0.50},
		{"no pe", models.Fundamentals{MarketCap: 5e9}, models.ActionHold, 0.50},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := c.fund
			v := analyze(t, a, &models.ContextSnapshot{Instrument: "APLD", Fundamentals: &f})
			assert.Equal(t, c.action, v.Action)
			assert.InDelta(t, c.conf, v.Confidence, 1e-9)
		})
	}
}

func TestFundamentalMicroCapNote(t *testing.T) {
	v := analyze(t, NewFundamental(nil), &models.ContextSnapshot{
		Instrument:   "APLD",
		Fundamentals: &models.Fundamentals{PERatio: pe(12), MarketCap: 150_000_000},
	})
	assert.Equal(t, models.ActionBuy, v.Action)
	assert.Contains(t, v.Reasoning, "micro-cap")
}

func TestFundamentalInsufficientWithoutData(t *testing.T) {
	v := analyze(t, NewFundamental(nil), &models.ContextSnapshot{Instrument: "APLD"})
	assert.False(t, v.DataSufficient)
	assert.Equal(t, models.ActionHold, v.Action)
}

func TestSentimentMomentumProxy(t *testing.T) {
	a := NewSentiment(nil)
	cases := []struct {
		name      string
		price     float64
		prevClose float64
		action    models.Action
		conf      float64
	}{
		{"surge", 106, 100, models.ActionBuy, 0.70},
		// +3% scores 60, below the 65 buy cutoff: mild drift stays HOLD.
		{"drift up", 103, 100, models.ActionHold, 0.50},
		{"crash", 94, 100, models.ActionSell, 0.70},
		{"drift down", 97, 100, models.ActionSell, 0.60},
		{"flat", 100.5, 100, models.ActionHold, 0.50},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v := analyze(t, a, &models.ContextSnapshot{
				Instrument: "APLD",
				Quote:      &models.Quote{Symbol: "APLD", Price: c.price, PrevClose: c.prevClose},
			})
			assert.Equal(t, c.action, v.Action)
			assert.InDelta(t, c.conf, v.Confidence, 1e-9)
		})
	}
}

func TestSentimentInsufficientWithoutQuote(t *testing.T) {
	v := analyze(t, NewSentiment(nil), &models.ContextSnapshot{Instrument: "APLD"})
	assert.False(t, v.DataSufficient)

	// A quote without a previous close is just as useless.
	v = analyze(t, NewSentiment(nil), &models.ContextSnapshot{
		Instrument: "APLD",
		Quote:      &models.Quote{Symbol: "APLD", Price: 10},
	})
	assert.False(t, v.DataSufficient)
}

func positions(n int, sector string, each float64) []models.Position {
	out := make([]models.Position, n)
	for i := range out {
		out[i] = models.Position{Symbol: "P", MarketValue: each, Sector: sector}
	}
	return out
}

func TestExposureDiversificationTiers(t *testing.T) {
	a := NewExposure(nil)

	v := analyze(t, a, &models.ContextSnapshot{
		Instrument: "APLD",
		Portfolio:  &models.PortfolioContext{TotalValue: 100_000, Positions: positions(12, "", 5_000)},
	})
	assert.Equal(t, models.ActionBuy, v.Action)
	assert.InDelta(t, 0.60, v.Confidence, 1e-9)

	v = analyze(t, a, &models.ContextSnapshot{
		Instrument: "APLD",
		Portfolio:  &models.PortfolioContext{TotalValue: 100_000, Positions: positions(6, "", 5_000)},
	})
	assert.Equal(t, models.ActionHold, v.Action)
	assert.InDelta(t, 0.55, v.Confidence, 1e-9)

	v = analyze(t, a, &models.ContextSnapshot{
		Instrument: "APLD",
		Portfolio:  &models.PortfolioContext{TotalValue: 100_000, Positions: positions(2, "", 5_000)},
	})
	assert.Equal(t, models.ActionSell, v.Action)
	assert.InDelta(t, 0.65, v.Confidence, 1e-9)
}

func TestExposureSectorConcentrationOverrides(t *testing.T) {
	// Twelve positions would be low risk, but half the book in one sector
	// forces the defensive stance.
	v := analyze(t, NewExposure(nil), &models.ContextSnapshot{
		Instrument:   "APLD",
		Fundamentals: &models.Fundamentals{Sector: "Technology"},
		Portfolio: &models.PortfolioContext{
			TotalValue: 120_000,
			Positions:  positions(12, "Technology", 5_000),
		},
	})
	assert.Equal(t, models.ActionSell, v.Action)
}

func TestExposureInsufficientWithoutPortfolio(t *testing.T) {
	v := analyze(t, NewExposure(nil), &models.ContextSnapshot{Instrument: "APLD"})
	assert.False(t, v.DataSufficient)
}

func TestAnalyzeHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, a := range []interface {
		Analyze(context.Context, *models.ContextSnapshot) (*models.Vote, error)
	}{NewTechnical(nil), NewFundamental(nil), NewSentiment(nil), NewExposure(nil)} {
		_, err := a.Analyze(ctx, &models.ContextSnapshot{Instrument: "APLD"})
		assert.ErrorIs(t, err, context.Canceled)
	}
}
