package usecase

import (
	"time"

	"github.com/google/uuid"

	"Tehama/internal/domain/models"
)

// Assemble folds a consensus and an optional deliberation into the final
// recommendation. A nil deliberation means sizing was skipped (HOLD, or
// the caller did not ask for it) and the position fields stay zero.
func Assemble(c *models.ConsensusResult, d *models.Deliberation, snap *models.ContextSnapshot) *models.Recommendation {
	rec := &models.Recommendation{
		ID:          uuid.NewString(),
		Instrument:  c.Instrument,
		Action:      c.Action,
		TargetPrice: snap.TargetPrice,
		Confidence:  c.FinalConfidence,
		Reasoning:   c.Summary,
		Agents:      c.AgentIDs(),
		Status:      models.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if d != nil {
		rec.Shares = d.Shares
		rec.StopLoss = d.StopLoss
		rec.Winner = d.Winner
		rec.Degraded = d.Degraded
		rec.Reasoning += " Deliberation: " + d.Summary
	}
	return rec
}
