package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tehama/internal/domain/models"
)

func votes(pairs ...interface{}) []*models.Vote {
	out := make([]*models.Vote, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		act := pairs[i].(models.Action)
		conf := pairs[i+1].(float64)
		out = append(out, models.NewVote("agent", act, conf, ""))
	}
	return out
}

func TestAggregateMajorityByConfidenceSum(t *testing.T) {
	// 2x SELL vs 2x HOLD; SELL carries the larger summed confidence.
	agg := NewAggregator()
	res, err := agg.Aggregate("APLD", votes(
		models.ActionSell, 0.60,
		models.ActionHold, 0.30,
		models.ActionHold, 0.25,
		models.ActionSell, 0.85,
	))
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, res.Action)
	assert.InDelta(t, 0.50, res.AgreementRatio, 1e-9)
	assert.InDelta(t, 0.50, res.BaseConfidence, 1e-9)
	assert.InDelta(t, 0.50, res.FinalConfidence, 1e-9)
	assert.Equal(t, models.BandHealthy, res.Band)
	assert.InDelta(t, 1.0, res.Penalty, 1e-9)
}

func TestAggregateUnanimousIsDiscounted(t *testing.T) {
	agg := NewAggregator()
	res, err := agg.Aggregate("APLD", votes(
		models.ActionSell, 0.90,
		models.ActionSell, 0.85,
		models.ActionSell, 0.80,
		models.ActionSell, 0.82,
	))
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, res.Action)
	assert.InDelta(t, 1.0, res.AgreementRatio, 1e-9)
	assert.InDelta(t, 0.8425, res.BaseConfidence, 1e-9)
	assert.InDelta(t, 0.8425*0.85, res.FinalConfidence, 1e-9)
	assert.Equal(t, models.BandHighAgreement, res.Band)
	assert.True(t, res.Unanimous())
}

func TestAggregateSplitPanelStaysHealthy(t *testing.T) {
	agg := NewAggregator()
	res, err := agg.Aggregate("NTLA", votes(
		models.ActionHold, 0.70,
		models.ActionHold, 0.75,
		models.ActionSell, 0.70,
		models.ActionBuy, 0.75,
	))
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, res.Action)
	assert.InDelta(t, 0.50, res.AgreementRatio, 1e-9)
	assert.InDelta(t, 0.725, res.BaseConfidence, 1e-9)
	assert.InDelta(t, 0.725, res.FinalConfidence, 1e-9)
	assert.Equal(t, models.BandHealthy, res.Band)
}

func TestAggregateFragmentedPanelIsDiscounted(t *testing.T) {
	// Four distinct actions; HOLD and ADD tie on count and sum, HOLD wins
	// on priority.
	agg := NewAggregator()
	res, err := agg.Aggregate("UUUU", votes(
		models.ActionBuy, 0.50,
		models.ActionSell, 0.60,
		models.ActionHold, 0.70,
		models.ActionAdd, 0.70,
	))
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, res.Action)
	assert.InDelta(t, 0.25, res.AgreementRatio, 1e-9)
	assert.InDelta(t, 0.625, res.BaseConfidence, 1e-9)
	assert.InDelta(t, 0.5625, res.FinalConfidence, 1e-9)
	assert.Equal(t, models.BandLowAgreement, res.Band)
}

func TestAggregateBandBoundariesAreStrict(t *testing.T) {
	agg := NewAggregator()

	// Exactly 0.80 agreement: no high-agreement penalty.
	res, err := agg.Aggregate("X", votes(
		models.ActionBuy, 0.6, models.ActionBuy, 0.6, models.ActionBuy, 0.6,
		models.ActionBuy, 0.6, models.ActionSell, 0.6,
	))
	require.NoError(t, err)
	assert.InDelta(t, 0.80, res.AgreementRatio, 1e-9)
	assert.Equal(t, models.BandHealthy, res.Band)
	assert.InDelta(t, res.BaseConfidence, res.FinalConfidence, 1e-9)

	// Exactly 0.40 agreement: no low-agreement penalty.
	res, err = agg.Aggregate("X", votes(
		models.ActionBuy, 0.9, models.ActionBuy, 0.9,
		models.ActionSell, 0.5, models.ActionHold, 0.5, models.ActionAdd, 0.5,
	))
	require.NoError(t, err)
	assert.InDelta(t, 0.40, res.AgreementRatio, 1e-9)
	assert.Equal(t, models.BandHealthy, res.Band)
}

func TestAggregateTiePriorityDefault(t *testing.T) {
	// Equal count and equal summed confidence falls through to the fixed
	// priority order. The default SELL > BUY > HOLD > ADD > TRIM ordering
	// is an assumption, not a derived rule; it is configurable.
	agg := NewAggregator()
	res, err := agg.Aggregate("X", votes(
		models.ActionBuy, 0.60,
		models.ActionSell, 0.60,
	))
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, res.Action)

	inverted := NewAggregator(WithTiePriority([]models.Action{
		models.ActionBuy, models.ActionSell, models.ActionHold, models.ActionAdd, models.ActionTrim,
	}))
	res, err = inverted.Aggregate("X", votes(
		models.ActionBuy, 0.60,
		models.ActionSell, 0.60,
	))
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, res.Action)
}

func TestAggregateTiePriorityPartialListStillCountsAllActions(t *testing.T) {
	// A configured order that names only some actions must not drop votes
	// for the unnamed ones from the tally.
	agg := NewAggregator(WithTiePriority([]models.Action{models.ActionSell}))
	res, err := agg.Aggregate("X", votes(
		models.ActionBuy, 0.90,
		models.ActionBuy, 0.90,
		models.ActionBuy, 0.90,
	))
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, res.Action)
	assert.InDelta(t, 1.0, res.AgreementRatio, 1e-9)
	assert.Equal(t, models.BandHighAgreement, res.Band)

	// Duplicates and unknown entries are dropped; ties still resolve by
	// the configured leading order.
	agg = NewAggregator(WithTiePriority([]models.Action{
		models.ActionBuy, models.ActionBuy, models.Action("FROB"),
	}))
	res, err = agg.Aggregate("X", votes(
		models.ActionBuy, 0.60,
		models.ActionSell, 0.60,
	))
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, res.Action)
}

func TestAggregateNoVotesIsNoQuorum(t *testing.T) {
	agg := NewAggregator()
	res, err := agg.Aggregate("X", nil)
	require.Nil(t, res)
	assert.ErrorIs(t, err, ErrNoQuorum)
}

func TestAggregateSingleVote(t *testing.T) {
	// One vote is full agreement with itself: high-agreement band applies.
	agg := NewAggregator()
	res, err := agg.Aggregate("X", votes(models.ActionBuy, 0.90))
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, res.Action)
	assert.Equal(t, models.BandHighAgreement, res.Band)
	assert.InDelta(t, 0.90*0.85, res.FinalConfidence, 1e-9)
}

func TestAggregateInsufficientVotesDragTheMean(t *testing.T) {
	agg := NewAggregator()
	vs := votes(models.ActionBuy, 0.90, models.ActionBuy, 0.90, models.ActionBuy, 0.90)
	vs = append(vs, models.NewInsufficientVote("sentiment", "quote fetch timed out"))
	res, err := agg.Aggregate("X", vs)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, res.Action)
	assert.InDelta(t, (0.90*3+0.10)/4, res.BaseConfidence, 1e-9)
	// 3/4 majority sits in the healthy band.
	assert.Equal(t, models.BandHealthy, res.Band)
}

func TestAggregateFinalNeverExceedsBase(t *testing.T) {
	agg := NewAggregator()
	cases := [][]*models.Vote{
		votes(models.ActionBuy, 1.0, models.ActionBuy, 1.0),
		votes(models.ActionSell, 0.1, models.ActionBuy, 0.2, models.ActionHold, 0.3),
		votes(models.ActionTrim, 0.5),
		votes(models.ActionBuy, 0.4, models.ActionSell, 0.4, models.ActionHold, 0.4, models.ActionAdd, 0.4, models.ActionTrim, 0.4),
	}
	for _, vs := range cases {
		res, err := agg.Aggregate("X", vs)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.FinalConfidence, res.BaseConfidence+1e-12)
		assert.GreaterOrEqual(t, res.FinalConfidence, 0.0)
		assert.LessOrEqual(t, res.FinalConfidence, 1.0)
	}
}

func TestSummaryMentionsDiscount(t *testing.T) {
	agg := NewAggregator()
	res, err := agg.Aggregate("APLD", votes(
		models.ActionSell, 0.90, models.ActionSell, 0.85,
		models.ActionSell, 0.80, models.ActionSell, 0.82,
	))
	require.NoError(t, err)
	assert.Contains(t, res.Summary, "SELL consensus")
	assert.Contains(t, res.Summary, "unanimous")
	assert.Contains(t, res.Summary, "high agreement")
}
