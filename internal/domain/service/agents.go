package service

import (
	"context"

	"Tehama/internal/domain/models"
)

// AnalystAgent scores one instrument from a single analytical lens.
// Implementations read the snapshot only and never talk to each other.
type AnalystAgent interface {
	ID() string
	Analyze(ctx context.Context, snap *models.ContextSnapshot) (*models.Vote, error)
}

// PositionProposer sizes a position for an actionable consensus.
type PositionProposer interface {
	ID() string
	Propose(ctx context.Context, c *models.ConsensusResult, snap *models.ContextSnapshot) *models.PositionProposal
}

// Arbitrator picks the final sizing among committee proposals.
type Arbitrator interface {
	Arbitrate(ctx context.Context, proposals []*models.PositionProposal, c *models.ConsensusResult) (*models.Arbitration, error)
}

// SnapshotProvider assembles the read-only market context for one instrument.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, instrument string, portfolio *models.PortfolioContext) (*models.ContextSnapshot, error)
}
