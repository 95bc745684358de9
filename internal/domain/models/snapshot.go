package models

import "time"

// Quote is the latest observed price for an instrument.
type Quote struct {
	Symbol    string
	Price     float64
	PrevClose float64
	Volume    float64
	Timestamp int64 // unix seconds
}

// DailyChangePct returns the day-over-day move in percent and whether it
// could be computed.
func (q *Quote) DailyChangePct() (float64, bool) {
	if q == nil || q.PrevClose <= 0 || q.Price <= 0 {
		return 0, false
	}
	return (q.Price - q.PrevClose) / q.PrevClose * 100, true
}

// Indicators holds the technical indicators computed from recent candles.
type Indicators struct {
	RSI14      float64
	MACD       float64
	MACDSignal float64
}

// Fundamentals holds valuation data. PERatio is nil when unknown; a
// negative value means the company is unprofitable, which is meaningful.
type Fundamentals struct {
	PERatio   *float64
	MarketCap float64
	Sector    string
	Industry  string
}

// MicroCapThreshold marks the market cap below which a name is treated
// as micro-cap risk.
const MicroCapThreshold = 300_000_000

// Position is one holding inside the portfolio context.
type Position struct {
	Symbol      string
	MarketValue float64
	Sector      string
}

// PortfolioContext is the read-only view of the current portfolio the
// exposure analyst and the committee size against.
type PortfolioContext struct {
	TotalValue float64
	Positions  []Position
}

// SectorExposure returns the fraction of total value held in the sector.
func (p *PortfolioContext) SectorExposure(sector string) float64 {
	if p == nil || p.TotalValue <= 0 || sector == "" {
		return 0
	}
	var v float64
	for _, pos := range p.Positions {
		if pos.Sector == sector {
			v += pos.MarketValue
		}
	}
	return v / p.TotalValue
}

// ContextSnapshot is the immutable market context every analyst and
// proposer reads. Sections an upstream fetch could not fill are nil;
// analysts that depend on them vote insufficient.
type ContextSnapshot struct {
	Instrument   string
	AsOf         time.Time
	TargetPrice  float64 // sizing anchor, defaults to the last quote price
	Quote        *Quote
	Indicators   *Indicators
	Fundamentals *Fundamentals
	Portfolio    *PortfolioContext
}

// Candle represents an OHLCV record used for indicator computation.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
