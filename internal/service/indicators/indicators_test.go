package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tehama/internal/domain/models"
)

func candles(closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = models.Candle{Bucket: base.AddDate(0, 0, i), Symbol: "X", Close: c}
	}
	return out
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestRSIExtremes(t *testing.T) {
	assert.InDelta(t, 100.0, RSI(ramp(20, 10, 1), 14), 1e-9)
	assert.InDelta(t, 0.0, RSI(ramp(20, 100, -1), 14), 1e-9)
}

func TestRSIMixedSeries(t *testing.T) {
	// Alternating equal up and down moves balance to 50.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 101
		}
	}
	assert.InDelta(t, 50.0, RSI(closes, 14), 1e-9)
}

func TestRSIShortSeriesIsNeutral(t *testing.T) {
	assert.InDelta(t, 50.0, RSI(ramp(10, 10, 1), 14), 1e-9)
}

func TestEMAConstantSeries(t *testing.T) {
	out := EMA(ramp(20, 5, 0), 10)
	require.NotEmpty(t, out)
	for _, v := range out {
		assert.InDelta(t, 5.0, v, 1e-9)
	}
}

func TestMACDTrendSign(t *testing.T) {
	// On a steady ramp the MACD and its signal line converge to the same
	// constant, so the comparison needs a float tolerance.
	up, upSig := MACD(ramp(60, 10, 0.5), 12, 26, 9)
	assert.Greater(t, up, 0.0)
	assert.GreaterOrEqual(t, up, upSig-1e-9)

	down, downSig := MACD(ramp(60, 100, -0.5), 12, 26, 9)
	assert.Less(t, down, 0.0)
	assert.LessOrEqual(t, down, downSig+1e-9)
}

func TestComputeRequiresEnoughBars(t *testing.T) {
	assert.Nil(t, Compute(candles(ramp(MinBars-1, 10, 1)...)))

	got := Compute(candles(ramp(60, 10, 1)...))
	require.NotNil(t, got)
	assert.InDelta(t, 100.0, got.RSI14, 1e-9)
	assert.GreaterOrEqual(t, got.MACD, got.MACDSignal-1e-9)
}

func TestComputeSkipsZeroCloses(t *testing.T) {
	cs := candles(ramp(40, 10, 1)...)
	cs[5].Close = 0
	assert.NotNil(t, Compute(cs))
}
