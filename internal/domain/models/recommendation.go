package models

import "time"

// RecommendationStatus values. Every freshly produced recommendation is
// pending until a human reviews it.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Recommendation is the final output of the pipeline.
type Recommendation struct {
	ID          string
	Instrument  string
	Action      Action
	Shares      int64   // 0 for HOLD or when deliberation was skipped
	TargetPrice float64
	StopLoss    float64 // 0 when no position was sized
	Confidence  float64 // the consensus final confidence
	Reasoning   string
	Agents      []string // contributing analyst ids
	Status      string
	Degraded    bool   // true when the mediator fell back to the median
	Winner      string // winning proposer id, empty without arbitration
	CreatedAt   time.Time
}
