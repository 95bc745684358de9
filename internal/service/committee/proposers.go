package committee

import (
	"context"
	"fmt"
	"math"
	"strings"

	"Tehama/internal/domain/models"
	domsvc "Tehama/internal/domain/service"
)

// Scalar maps the consensus final confidence to the fraction of a
// proposer's cap actually committed. Implementations must be monotonic
// non-decreasing over [0,1] and stay within [0,1].
type Scalar func(confidence float64) float64

// StepScalar builds a scalar from ascending confidence thresholds: the
// value paired with the highest threshold at or below the confidence wins.
func StepScalar(floor float64, steps ...[2]float64) Scalar {
	return func(conf float64) float64 {
		v := floor
		for _, s := range steps {
			if conf >= s[0] {
				v = s[1]
			}
		}
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
}

// adjustment optionally scales a proposer's committed fraction based on
// the consensus and snapshot. Returns the multiplier and a note.
type adjustment func(c *models.ConsensusResult, snap *models.ContextSnapshot) (float64, string)

// Proposer is one member of the position committee. Each member commits
// at most cap of the portfolio value and anchors its stop a fixed
// fractional offset away from the target price.
type Proposer struct {
	id      string
	cap     float64
	stopPct float64
	scalar  Scalar
	adjust  adjustment
}

type ProposerOption func(*Proposer)

// WithScalar swaps the confidence dampening curve.
func WithScalar(s Scalar) ProposerOption {
	return func(p *Proposer) {
		if s != nil {
			p.scalar = s
		}
	}
}

// WithCap overrides the portfolio fraction cap.
func WithCap(cap float64) ProposerOption {
	return func(p *Proposer) {
		if cap > 0 && cap <= 1 {
			p.cap = cap
		}
	}
}

// WithStopOffset overrides the fractional stop distance from target.
func WithStopOffset(pct float64) ProposerOption {
	return func(p *Proposer) {
		if pct > 0 && pct < 1 {
			p.stopPct = pct
		}
	}
}

func newProposer(id string, cap, stopPct float64, scalar Scalar, adjust adjustment, opts ...ProposerOption) *Proposer {
	p := &Proposer{id: id, cap: cap, stopPct: stopPct, scalar: scalar, adjust: adjust}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewAggressive sizes up to 30% of portfolio value with a wide 25% stop.
// It leans harder into momentum names but never past its cap.
func NewAggressive(opts ...ProposerOption) *Proposer {
	return newProposer("aggressive", 0.30, 0.25,
		StepScalar(15.0/30, [2]float64{0.75, 20.0 / 30}, [2]float64{0.85, 25.0 / 30}),
		momentumBoost, opts...)
}

// NewNeutral sizes up to 20% with a 20% stop.
func NewNeutral(opts ...ProposerOption) *Proposer {
	return newProposer("neutral", 0.20, 0.20,
		StepScalar(12.0/20, [2]float64{0.70, 15.0 / 20}, [2]float64{0.80, 18.0 / 20}),
		nil, opts...)
}

// NewConservative sizes up to 15% with a tight 15% stop and backs off
// when the sector is already crowded in the portfolio.
func NewConservative(opts ...ProposerOption) *Proposer {
	return newProposer("conservative", 0.15, 0.15,
		StepScalar(10.0/15, [2]float64{0.75, 12.0 / 15}, [2]float64{0.85, 1.0}),
		sectorDamp, opts...)
}

func (p *Proposer) ID() string { return p.id }

// Propose computes a whole, non-negative share count never exceeding
// floor(value * cap / price), and the stop level on the correct side of
// the target for the consensus action.
func (p *Proposer) Propose(_ context.Context, c *models.ConsensusResult, snap *models.ContextSnapshot) *models.PositionProposal {
	price := snap.TargetPrice
	var value float64
	if snap.Portfolio != nil {
		value = snap.Portfolio.TotalValue
	}
	prop := &models.PositionProposal{ProposerID: p.id, Cap: p.cap}
	if price <= 0 || value <= 0 {
		prop.Reasoning = fmt.Sprintf("%s: no sizing basis (price %.2f, portfolio %.2f)", p.id, price, value)
		return prop
	}

	frac := p.cap * p.scalar(c.FinalConfidence)
	note := ""
	if p.adjust != nil {
		mult, n := p.adjust(c, snap)
		frac *= mult
		note = n
	}
	if frac > p.cap {
		frac = p.cap
	}
	if frac < 0 {
		frac = 0
	}

	shares := int64(math.Floor(value * frac / price))
	if shares < 0 {
		shares = 0
	}
	if maxShares := int64(math.Floor(value * p.cap / price)); shares > maxShares {
		shares = maxShares
	}

	prop.Shares = shares
	prop.StopLoss = stopPrice(c.Action, price, p.stopPct)
	prop.Reasoning = fmt.Sprintf("%s: %d shares at %.0f%% of cap (conf %.2f)", p.id, shares, frac/p.cap*100, c.FinalConfidence)
	if note != "" {
		prop.Reasoning += "; " + note
	}
	return prop
}

// stopPrice anchors the stop below target for accumulating actions and
// above it for reducing ones.
func stopPrice(action models.Action, target, pct float64) float64 {
	if action.Accumulative() {
		return target * (1 - pct)
	}
	return target * (1 + pct)
}

// momentumBoost leans 20% harder when any analyst called out momentum.
// The cap clamp in Propose keeps it honest.
func momentumBoost(c *models.ConsensusResult, _ *models.ContextSnapshot) (float64, string) {
	for _, v := range c.Votes {
		if strings.Contains(strings.ToLower(v.Reasoning), "momentum") {
			return 1.2, "momentum boost applied"
		}
	}
	return 1.0, ""
}

// sectorDamp backs off 20% when the portfolio already holds more than
// 30% of its value in the instrument's sector.
func sectorDamp(_ *models.ConsensusResult, snap *models.ContextSnapshot) (float64, string) {
	if snap.Fundamentals == nil || snap.Portfolio == nil {
		return 1.0, ""
	}
	if snap.Portfolio.SectorExposure(snap.Fundamentals.Sector) > 0.30 {
		return 0.8, "sector concentration damp applied"
	}
	return 1.0, ""
}

var _ domsvc.PositionProposer = (*Proposer)(nil)
