package indicators

import (
	"Tehama/internal/domain/models"
)

const (
	rsiPeriod    = 14
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
	// MinBars is the shortest close series that yields a meaningful MACD
	// signal line.
	MinBars = macdSlow + macdSignal
)

// Compute derives the technical indicators from candles in ascending
// bucket order. Returns nil when the series is too short; the technical
// analyst then votes insufficient.
func Compute(candles []models.Candle) *models.Indicators {
	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		if c.Close > 0 {
			closes = append(closes, c.Close)
		}
	}
	if len(closes) < MinBars {
		return nil
	}
	macd, signal := MACD(closes, macdFast, macdSlow, macdSignal)
	return &models.Indicators{
		RSI14:      RSI(closes, rsiPeriod),
		MACD:       macd,
		MACDSignal: signal,
	}
}

// RSI computes the relative strength index over the last period deltas
// using simple gain/loss averages. A series with no losses reads 100.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}
	var gains, losses float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// EMA returns the exponential moving average series for the given period.
// The first period values seed with a simple average.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	var seed float64
	for _, v := range values[:period] {
		seed += v
	}
	seed /= float64(period)
	out = append(out, seed)
	k := 2.0 / (float64(period) + 1)
	prev := seed
	for _, v := range values[period:] {
		prev = v*k + prev*(1-k)
		out = append(out, prev)
	}
	return out
}

// MACD returns the latest MACD line (fast EMA minus slow EMA) and its
// signal line (EMA of the MACD series).
func MACD(closes []float64, fast, slow, signal int) (float64, float64) {
	if len(closes) < slow+signal {
		return 0, 0
	}
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	// Align: slowEMA starts (slow-fast) entries later than fastEMA.
	offset := slow - fast
	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}
	sig := EMA(line, signal)
	if len(sig) == 0 {
		return line[len(line)-1], 0
	}
	return line[len(line)-1], sig[len(sig)-1]
}
