package committee

import (
	"context"
	"fmt"
	"sort"
	"time"

	"Tehama/internal/domain/models"
	domsvc "Tehama/internal/domain/service"
	"Tehama/pkg/logger"
)

const (
	defaultArbitrationTimeout = 2 * time.Second
	defaultFallbackStop       = 0.10
)

// Mediator settles the committee's three proposals into one sizing. It
// asks the external arbiter first; if the arbiter fails, times out, or
// answers outside the proposed range, the mediator degrades to the median
// proposal instead of failing. Deliberation never aborts a pipeline run.
type Mediator struct {
	arb          domsvc.Arbitrator
	timeout      time.Duration
	fallbackStop float64
	logger       *logger.Logger
}

type MediatorOption func(*Mediator)

// WithArbitrationTimeout bounds how long one arbitration call may take.
func WithArbitrationTimeout(d time.Duration) MediatorOption {
	return func(m *Mediator) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithFallbackStop sets the fractional stop offset used when degraded.
func WithFallbackStop(pct float64) MediatorOption {
	return func(m *Mediator) {
		if pct > 0 && pct < 1 {
			m.fallbackStop = pct
		}
	}
}

func NewMediator(arb domsvc.Arbitrator, lgr *logger.Logger, opts ...MediatorOption) *Mediator {
	m := &Mediator{
		arb:          arb,
		timeout:      defaultArbitrationTimeout,
		fallbackStop: defaultFallbackStop,
		logger:       lgr,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Deliberate requires exactly three proposals; fewer or more is a wiring
// bug, not a market condition, and is the only error this method returns.
func (m *Mediator) Deliberate(ctx context.Context, c *models.ConsensusResult, snap *models.ContextSnapshot, proposals []*models.PositionProposal) (*models.Deliberation, error) {
	if len(proposals) != 3 {
		return nil, fmt.Errorf("deliberation requires exactly 3 proposals, got %d", len(proposals))
	}

	actx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	arb, err := m.arb.Arbitrate(actx, proposals, c)
	if err == nil {
		if err = validateArbitration(arb, proposals); err == nil {
			return &models.Deliberation{
				Shares:    arb.Shares,
				StopLoss:  arb.StopLoss,
				Winner:    arb.Winner,
				Proposals: proposals,
				Summary:   fmt.Sprintf("arbitrated: sided with %s at %d shares", arb.Winner, arb.Shares),
			}, nil
		}
	}

	if m.logger != nil {
		m.logger.Warn("arbitration unavailable, median fallback",
			logger.String("instrument", c.Instrument),
			logger.Error(err),
		)
	}

	shares := medianShares(proposals)
	return &models.Deliberation{
		Shares:    shares,
		StopLoss:  stopPrice(c.Action, snap.TargetPrice, m.fallbackStop),
		Degraded:  true,
		Proposals: proposals,
		Summary:   fmt.Sprintf("arbitration unavailable (%v); median of committee proposals: %d shares", err, shares),
	}, nil
}

// validateArbitration enforces the range invariant: a non-degraded result
// must sit within the committee's proposed share range and side with an
// actual committee member.
func validateArbitration(arb *models.Arbitration, proposals []*models.PositionProposal) error {
	if arb == nil {
		return fmt.Errorf("nil arbitration")
	}
	lo, hi := proposals[0].Shares, proposals[0].Shares
	known := false
	for _, p := range proposals {
		if p.Shares < lo {
			lo = p.Shares
		}
		if p.Shares > hi {
			hi = p.Shares
		}
		if p.ProposerID == arb.Winner {
			known = true
		}
	}
	if arb.Shares < lo || arb.Shares > hi {
		return fmt.Errorf("arbitrated shares %d outside committee range [%d, %d]", arb.Shares, lo, hi)
	}
	if !known {
		return fmt.Errorf("unknown winning proposer %q", arb.Winner)
	}
	if arb.StopLoss <= 0 {
		return fmt.Errorf("non-positive stop loss %.4f", arb.StopLoss)
	}
	return nil
}

func medianShares(proposals []*models.PositionProposal) int64 {
	s := make([]int64, len(proposals))
	for i, p := range proposals {
		s[i] = p.Shares
	}
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	return s[len(s)/2]
}
