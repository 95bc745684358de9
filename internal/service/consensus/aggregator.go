package consensus

import (
	"errors"
	"fmt"
	"strings"

	"Tehama/internal/domain/models"
)

// ErrNoQuorum is returned when there are no votes to aggregate. It is the
// only error the pipeline treats as fatal.
var ErrNoQuorum = errors.New("no quorum: aggregation requires at least one vote")

const (
	defaultHighAgreementRatio = 0.80
	defaultLowAgreementRatio  = 0.40
	defaultHighPenalty        = 0.85
	defaultLowPenalty         = 0.90
)

// Aggregator folds an analyst panel's votes into one consensus. Suspicious
// unanimity (everyone agrees too hard) and fragmentation (nobody agrees)
// both discount the final confidence; a split-but-functional panel does not.
type Aggregator struct {
	highRatio   float64
	lowRatio    float64
	highPenalty float64
	lowPenalty  float64
	priority    []models.Action
}

type Option func(*Aggregator)

// WithThresholds overrides the agreement-ratio band boundaries. Both are
// strict: ratio must exceed high (or undercut low) to trigger a penalty.
func WithThresholds(high, low float64) Option {
	return func(a *Aggregator) {
		if high > 0 && high <= 1 {
			a.highRatio = high
		}
		if low >= 0 && low < 1 {
			a.lowRatio = low
		}
	}
}

// WithPenalties overrides the confidence multipliers applied inside the
// high- and low-agreement bands.
func WithPenalties(high, low float64) Option {
	return func(a *Aggregator) {
		if high > 0 && high <= 1 {
			a.highPenalty = high
		}
		if low > 0 && low <= 1 {
			a.lowPenalty = low
		}
	}
}

// WithTiePriority overrides the fixed action order used when tied actions
// also tie on summed confidence. Unknown entries and duplicates are
// dropped, and any action missing from the given order is appended in
// default order so the tally always considers every action.
func WithTiePriority(order []models.Action) Option {
	return func(a *Aggregator) {
		if len(order) == 0 {
			return
		}
		all := models.Actions()
		merged := make([]models.Action, 0, len(all))
		seen := make(map[models.Action]bool, len(all))
		for _, act := range order {
			if models.IsValidAction(act) && !seen[act] {
				merged = append(merged, act)
				seen[act] = true
			}
		}
		for _, act := range all {
			if !seen[act] {
				merged = append(merged, act)
			}
		}
		a.priority = merged
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		highRatio:   defaultHighAgreementRatio,
		lowRatio:    defaultLowAgreementRatio,
		highPenalty: defaultHighPenalty,
		lowPenalty:  defaultLowPenalty,
		priority:    models.Actions(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate tallies the votes and produces the consensus result.
// Insufficient-data votes count toward both the tally and the mean; their
// capped confidence is how a degraded panel drags the result down.
func (a *Aggregator) Aggregate(instrument string, votes []*models.Vote) (*models.ConsensusResult, error) {
	if len(votes) == 0 {
		return nil, ErrNoQuorum
	}

	tally := make(map[models.Action]int, len(a.priority))
	sumConf := make(map[models.Action]float64, len(a.priority))
	var base float64
	for _, v := range votes {
		tally[v.Action]++
		sumConf[v.Action] += v.Confidence
		base += v.Confidence
	}
	base /= float64(len(votes))

	action := a.majority(tally, sumConf)
	ratio := float64(tally[action]) / float64(len(votes))

	band := models.BandHealthy
	penalty := 1.0
	switch {
	case ratio > a.highRatio:
		band = models.BandHighAgreement
		penalty = a.highPenalty
	case ratio < a.lowRatio:
		band = models.BandLowAgreement
		penalty = a.lowPenalty
	}

	final := base * penalty
	if final > base {
		final = base
	}
	if final > 1 {
		final = 1
	}
	if final < 0 {
		final = 0
	}

	res := &models.ConsensusResult{
		Instrument:      instrument,
		Action:          action,
		AgreementRatio:  ratio,
		BaseConfidence:  base,
		FinalConfidence: final,
		Band:            band,
		Penalty:         penalty,
		Tally:           tally,
		Votes:           votes,
	}
	res.Summary = summarize(res)
	return res, nil
}

// majority walks actions in priority order so that equal counts with equal
// summed confidence resolve to the higher-priority action deterministically.
func (a *Aggregator) majority(tally map[models.Action]int, sumConf map[models.Action]float64) models.Action {
	var best models.Action
	found := false
	for _, act := range a.priority {
		n, ok := tally[act]
		if !ok {
			continue
		}
		if !found {
			best, found = act, true
			continue
		}
		if n > tally[best] || (n == tally[best] && sumConf[act] > sumConf[best]) {
			best = act
		}
	}
	return best
}

func describeAgreement(ratio float64) string {
	switch {
	case ratio >= 0.90:
		return "unanimous"
	case ratio >= 0.70:
		return "strong"
	case ratio >= 0.50:
		return "moderate"
	default:
		return "weak"
	}
}

func summarize(c *models.ConsensusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s consensus with %s agreement: %d/%d analysts (%.0f%%).",
		c.Action, describeAgreement(c.AgreementRatio), c.Tally[c.Action], len(c.Votes), c.AgreementRatio*100)
	fmt.Fprintf(&b, " Base confidence %.0f%%, final %.0f%%.", c.BaseConfidence*100, c.FinalConfidence*100)
	switch c.Band {
	case models.BandHighAgreement:
		b.WriteString(" Warning: unusually high agreement, discounted for possible groupthink.")
	case models.BandLowAgreement:
		b.WriteString(" Warning: fragmented panel, discounted for low agreement.")
	}
	b.WriteString(" Votes:")
	for _, v := range c.Votes {
		fmt.Fprintf(&b, " %s=%s(%.2f)", v.AgentID, v.Action, v.Confidence)
		if !v.DataSufficient {
			b.WriteString("[insufficient]")
		}
	}
	return b.String()
}
