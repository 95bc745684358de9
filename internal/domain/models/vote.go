package models

// MaxInsufficientConfidence caps the confidence an analyst may claim when
// it voted without enough data to actually judge the instrument.
const MaxInsufficientConfidence = 0.30

// Vote is a single analyst's stance on an instrument.
// Note: no transport (json/http) concerns here.
type Vote struct {
	AgentID        string
	Action         Action
	Confidence     float64 // [0,1]
	Reasoning      string
	DataSufficient bool
	Signals        map[string]float64
}

// NewVote builds a well-formed vote: confidence clamped to [0,1] and the
// action normalized to a known value.
func NewVote(agentID string, action Action, confidence float64, reasoning string) *Vote {
	v := &Vote{
		AgentID:        agentID,
		Action:         NormalizeAction(string(action)),
		Confidence:     confidence,
		Reasoning:      reasoning,
		DataSufficient: true,
	}
	v.clamp()
	return v
}

// NewInsufficientVote builds the defensive HOLD an analyst casts when its
// inputs are missing or it ran out of time. Confidence stays low so a
// degraded panel cannot look decisive.
func NewInsufficientVote(agentID, reason string) *Vote {
	return &Vote{
		AgentID:        agentID,
		Action:         ActionHold,
		Confidence:     0.10,
		Reasoning:      reason,
		DataSufficient: false,
	}
}

// MarkInsufficient flags the vote as cast on insufficient data and caps
// its confidence accordingly.
func (v *Vote) MarkInsufficient() {
	v.DataSufficient = false
	v.clamp()
}

func (v *Vote) clamp() {
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	if !v.DataSufficient && v.Confidence > MaxInsufficientConfidence {
		v.Confidence = MaxInsufficientConfidence
	}
}
