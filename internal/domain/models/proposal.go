package models

// PositionProposal is one committee member's sizing for an actionable
// consensus. Shares is always a whole, non-negative count.
type PositionProposal struct {
	ProposerID string
	Shares     int64
	StopLoss   float64 // absolute price level
	Cap        float64 // fraction of portfolio value this proposer may commit
	Reasoning  string
}

// Arbitration is the outcome returned by the external deliberation service:
// the sizing it settled on and which proposer it sided with.
type Arbitration struct {
	Shares   int64
	StopLoss float64
	Winner   string
}

// Deliberation is the mediator's final decision, either the arbitrated
// outcome or the degraded median fallback.
type Deliberation struct {
	Shares    int64
	StopLoss  float64
	Winner    string // empty when degraded
	Degraded  bool
	Proposals []*PositionProposal
	Summary   string
}
