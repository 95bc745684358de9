package models

// AgreementBand classifies how aligned the analyst panel is.
type AgreementBand string

const (
	BandHighAgreement AgreementBand = "HIGH_AGREEMENT" // suspicious unanimity
	BandHealthy       AgreementBand = "HEALTHY"
	BandLowAgreement  AgreementBand = "LOW_AGREEMENT" // fragmented panel
)

// ConsensusResult is the aggregated outcome of one analyst panel.
type ConsensusResult struct {
	Instrument      string
	Action          Action
	AgreementRatio  float64 // majority votes / total votes
	BaseConfidence  float64 // mean confidence over all votes
	FinalConfidence float64 // base after any band penalty, never above base
	Band            AgreementBand
	Penalty         float64 // multiplier applied to base, 1.0 when none
	Tally           map[Action]int
	Votes           []*Vote
	Summary         string // human-readable meta-analysis
}

// Unanimous reports whether every vote backed the majority action.
func (c *ConsensusResult) Unanimous() bool {
	return len(c.Votes) > 0 && c.Tally[c.Action] == len(c.Votes)
}

// AgentIDs returns the ids of the contributing analysts in vote order.
func (c *ConsensusResult) AgentIDs() []string {
	ids := make([]string, 0, len(c.Votes))
	for _, v := range c.Votes {
		ids = append(ids, v.AgentID)
	}
	return ids
}
