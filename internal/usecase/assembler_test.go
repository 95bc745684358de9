package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tehama/internal/domain/models"
)

func consensusFixture() *models.ConsensusResult {
	return &models.ConsensusResult{
		Instrument:      "MSFT",
		Action:          models.ActionBuy,
		AgreementRatio:  0.75,
		BaseConfidence:  0.70,
		FinalConfidence: 0.70,
		Band:            models.BandHealthy,
		Summary:         "BUY consensus with strong agreement: 3/4 analysts (75%).",
		Votes: []*models.Vote{
			models.NewVote("technical", models.ActionBuy, 0.8, "trend"),
			models.NewVote("fundamental", models.ActionBuy, 0.7, "value"),
			models.NewVote("sentiment", models.ActionBuy, 0.6, "tone"),
			models.NewVote("exposure", models.ActionHold, 0.55, "full"),
		},
	}
}

func TestAssembleWithoutDeliberation(t *testing.T) {
	c := consensusFixture()
	snap := &models.ContextSnapshot{Instrument: "MSFT", TargetPrice: 420}

	rec := Assemble(c, nil, snap)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "MSFT", rec.Instrument)
	assert.Equal(t, models.ActionBuy, rec.Action)
	assert.Zero(t, rec.Shares)
	assert.Zero(t, rec.StopLoss)
	assert.InDelta(t, 420.0, rec.TargetPrice, 1e-9)
	assert.InDelta(t, 0.70, rec.Confidence, 1e-9)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Equal(t, []string{"technical", "fundamental", "sentiment", "exposure"}, rec.Agents)
	assert.False(t, rec.Degraded)
	assert.WithinDuration(t, time.Now().UTC(), rec.CreatedAt, 5*time.Second)
}

func TestAssembleWithDeliberation(t *testing.T) {
	c := consensusFixture()
	snap := &models.ContextSnapshot{Instrument: "MSFT", TargetPrice: 420}
	d := &models.Deliberation{
		Shares:   42,
		StopLoss: 336,
		Winner:   "conservative",
		Summary:  "arbitrated: sided with conservative at 42 shares",
	}

	rec := Assemble(c, d, snap)

	assert.Equal(t, int64(42), rec.Shares)
	assert.InDelta(t, 336.0, rec.StopLoss, 1e-9)
	assert.Equal(t, "conservative", rec.Winner)
	assert.Contains(t, rec.Reasoning, "Deliberation: arbitrated")
	assert.Contains(t, rec.Reasoning, "BUY consensus")
}

func TestAssembleDegradedDeliberation(t *testing.T) {
	c := consensusFixture()
	d := &models.Deliberation{Shares: 10, StopLoss: 378, Degraded: true, Summary: "arbitration unavailable"}

	rec := Assemble(c, d, &models.ContextSnapshot{TargetPrice: 420})

	assert.True(t, rec.Degraded)
	assert.Empty(t, rec.Winner)
	require.Equal(t, int64(10), rec.Shares)
}

func TestAssembleIDsAreUnique(t *testing.T) {
	c := consensusFixture()
	snap := &models.ContextSnapshot{TargetPrice: 420}
	a := Assemble(c, nil, snap)
	b := Assemble(c, nil, snap)
	assert.NotEqual(t, a.ID, b.ID)
}
