package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tehama/internal/domain/models"
	domsvc "Tehama/internal/domain/service"
	"Tehama/internal/service/committee"
	"Tehama/internal/service/consensus"
	svcmetrics "Tehama/internal/service/metrics"
)

type stubAgent struct {
	id    string
	vote  *models.Vote
	err   error
	delay time.Duration
}

func (s *stubAgent) ID() string { return s.id }

func (s *stubAgent) Analyze(ctx context.Context, _ *models.ContextSnapshot) (*models.Vote, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.vote, s.err
}

type stubArbitrator struct {
	arb *models.Arbitration
	err error
}

func (s *stubArbitrator) Arbitrate(_ context.Context, _ []*models.PositionProposal, _ *models.ConsensusResult) (*models.Arbitration, error) {
	return s.arb, s.err
}

type stubProvider struct {
	snap *models.ContextSnapshot
	err  error
}

func (s *stubProvider) Snapshot(_ context.Context, _ string, _ *models.PortfolioContext) (*models.ContextSnapshot, error) {
	return s.snap, s.err
}

type memStore struct {
	mu   sync.Mutex
	recs []*models.Recommendation
	err  error
}

func (m *memStore) Init(context.Context) error { return nil }

func (m *memStore) Store(_ context.Context, r *models.Recommendation) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) StoreBatch(ctx context.Context, recs []*models.Recommendation) error {
	for _, r := range recs {
		if err := m.Store(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) Query(_ context.Context, instrument string, limit int) ([]*models.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Recommendation
	for i := len(m.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.recs[i].Instrument == instrument {
			out = append(out, m.recs[i])
		}
	}
	return out, nil
}

func (m *memStore) Health(context.Context) error { return nil }
func (m *memStore) Close() error                 { return nil }

type memPublisher struct {
	mu   sync.Mutex
	recs []*models.Recommendation
	err  error
}

func (m *memPublisher) Publish(_ context.Context, r *models.Recommendation) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *memPublisher) PublishBatch(ctx context.Context, recs []*models.Recommendation) error {
	for _, r := range recs {
		if err := m.Publish(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *memPublisher) Close() error { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordVote(string, string)             {}
func (nopMetrics) RecordConsensus(string)                {}
func (nopMetrics) RecordDeliberation(string)             {}
func (nopMetrics) RecordRecommendation(string, string)   {}
func (nopMetrics) RecordError(string)                    {}
func (nopMetrics) RecordLastPrice(string, float64)       {}
func (nopMetrics) RecordLatency(string, float64)         {}

func testSnapshot() *models.ContextSnapshot {
	return &models.ContextSnapshot{
		Instrument:  "AAPL",
		AsOf:        time.Now().UTC(),
		TargetPrice: 100,
		Quote:       &models.Quote{Symbol: "AAPL", Price: 100, PrevClose: 98},
		Portfolio:   &models.PortfolioContext{TotalValue: 100_000},
	}
}

func panel(agents ...domsvc.AnalystAgent) []domsvc.AnalystAgent { return agents }

func voteByAgent(t *testing.T, votes []*models.Vote, id string) *models.Vote {
	t.Helper()
	for _, v := range votes {
		if v.AgentID == id {
			return v
		}
	}
	t.Fatalf("no vote from agent %q", id)
	return nil
}

func buyPanel() []domsvc.AnalystAgent {
	return panel(
		&stubAgent{id: "technical", vote: models.NewVote("technical", models.ActionBuy, 0.80, "trend up")},
		&stubAgent{id: "fundamental", vote: models.NewVote("fundamental", models.ActionBuy, 0.70, "cheap")},
		&stubAgent{id: "sentiment", vote: models.NewVote("sentiment", models.ActionBuy, 0.75, "positive")},
		&stubAgent{id: "exposure", vote: models.NewVote("exposure", models.ActionBuy, 0.60, "room to add")},
	)
}

func newTestRecommender(agents []domsvc.AnalystAgent, arb domsvc.Arbitrator, store *memStore, pub *memPublisher, opts ...RecommenderOption) *Recommender {
	proposers := []domsvc.PositionProposer{
		committee.NewAggressive(),
		committee.NewNeutral(),
		committee.NewConservative(),
	}
	return NewRecommender(
		agents,
		consensus.NewAggregator(),
		proposers,
		committee.NewMediator(arb, nil),
		&stubProvider{snap: testSnapshot()},
		store,
		pub,
		nopMetrics{},
		nil,
		opts...,
	)
}

func TestProduceUnanimousBuyWithDeliberation(t *testing.T) {
	store := &memStore{}
	pub := &memPublisher{}
	arb := &stubArbitrator{arb: &models.Arbitration{Shares: 150, StopLoss: 90, Winner: "neutral"}}
	r := newTestRecommender(buyPanel(), arb, store, pub)

	rec, err := r.Produce(context.Background(), "AAPL", testSnapshot(), true)
	require.NoError(t, err)

	assert.Equal(t, models.ActionBuy, rec.Action)
	assert.Equal(t, int64(150), rec.Shares)
	assert.InDelta(t, 90.0, rec.StopLoss, 1e-9)
	assert.Equal(t, "neutral", rec.Winner)
	assert.False(t, rec.Degraded)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Len(t, rec.Agents, 4)
	// High agreement trims the mean confidence.
	assert.InDelta(t, 0.7125*0.85, rec.Confidence, 1e-9)
	assert.Contains(t, rec.Reasoning, "Deliberation:")

	require.Len(t, store.recs, 1)
	require.Len(t, pub.recs, 1)
}

func TestProduceHoldSkipsDeliberation(t *testing.T) {
	agents := panel(
		&stubAgent{id: "technical", vote: models.NewVote("technical", models.ActionHold, 0.50, "flat")},
		&stubAgent{id: "fundamental", vote: models.NewVote("fundamental", models.ActionHold, 0.50, "fair value")},
		&stubAgent{id: "sentiment", vote: models.NewVote("sentiment", models.ActionHold, 0.50, "quiet")},
		&stubAgent{id: "exposure", vote: models.NewVote("exposure", models.ActionHold, 0.55, "balanced")},
	)
	r := newTestRecommender(agents, &stubArbitrator{err: errors.New("should not be called")}, &memStore{}, &memPublisher{})

	rec, err := r.Produce(context.Background(), "AAPL", testSnapshot(), true)
	require.NoError(t, err)

	assert.Equal(t, models.ActionHold, rec.Action)
	assert.Zero(t, rec.Shares)
	assert.Zero(t, rec.StopLoss)
	assert.Empty(t, rec.Winner)
}

func TestProduceWithoutDeliberationFlag(t *testing.T) {
	r := newTestRecommender(buyPanel(), &stubArbitrator{err: errors.New("should not be called")}, &memStore{}, &memPublisher{})

	rec, err := r.Produce(context.Background(), "AAPL", testSnapshot(), false)
	require.NoError(t, err)

	assert.Equal(t, models.ActionBuy, rec.Action)
	assert.Zero(t, rec.Shares)
}

func TestProduceSlowAgentFallsBackToHold(t *testing.T) {
	agents := panel(
		&stubAgent{id: "technical", vote: models.NewVote("technical", models.ActionBuy, 0.80, "trend up")},
		&stubAgent{id: "fundamental", vote: models.NewVote("fundamental", models.ActionBuy, 0.70, "cheap")},
		&stubAgent{id: "sentiment", vote: models.NewVote("sentiment", models.ActionBuy, 0.75, "positive")},
		&stubAgent{id: "exposure", delay: time.Second, vote: models.NewVote("exposure", models.ActionBuy, 0.60, "room")},
	)
	r := newTestRecommender(agents, &stubArbitrator{arb: &models.Arbitration{Shares: 10, StopLoss: 90, Winner: "neutral"}}, &memStore{}, &memPublisher{}, WithAgentTimeout(20*time.Millisecond))

	rec, err := r.Produce(context.Background(), "AAPL", testSnapshot(), false)
	require.NoError(t, err)

	assert.Equal(t, models.ActionBuy, rec.Action)
	require.Len(t, rec.Agents, 4)
	assert.Contains(t, rec.Reasoning, "[insufficient]")

	v := voteByAgent(t, r.collectVotes(context.Background(), testSnapshot()), "exposure")
	assert.Equal(t, models.ActionHold, v.Action)
	assert.False(t, v.DataSufficient)
	assert.Contains(t, v.Reasoning, "timed out")
}

func TestProduceFailingAgentFallsBackToHold(t *testing.T) {
	agents := panel(
		&stubAgent{id: "technical", vote: models.NewVote("technical", models.ActionSell, 0.80, "overbought")},
		&stubAgent{id: "fundamental", err: errors.New("upstream 500")},
		&stubAgent{id: "sentiment", vote: models.NewVote("sentiment", models.ActionSell, 0.70, "fear")},
		&stubAgent{id: "exposure", vote: models.NewVote("exposure", models.ActionSell, 0.65, "overweight")},
	)
	r := newTestRecommender(agents, &stubArbitrator{}, &memStore{}, &memPublisher{})

	rec, err := r.Produce(context.Background(), "AAPL", testSnapshot(), false)
	require.NoError(t, err)

	assert.Equal(t, models.ActionSell, rec.Action)
	assert.Contains(t, rec.Reasoning, "[insufficient]")

	v := voteByAgent(t, r.collectVotes(context.Background(), testSnapshot()), "fundamental")
	assert.Equal(t, models.ActionHold, v.Action)
	assert.False(t, v.DataSufficient)
	assert.Contains(t, v.Reasoning, "analysis failed")
}

func TestProduceAgentReturningNothingFallsBackToHold(t *testing.T) {
	agents := panel(
		&stubAgent{id: "technical", vote: models.NewVote("technical", models.ActionBuy, 0.80, "trend up")},
		&stubAgent{id: "fundamental"}, // nil vote, nil error
		&stubAgent{id: "sentiment", vote: models.NewVote("sentiment", models.ActionBuy, 0.75, "positive")},
		&stubAgent{id: "exposure", vote: models.NewVote("exposure", models.ActionBuy, 0.60, "room")},
	)
	r := newTestRecommender(agents, &stubArbitrator{}, &memStore{}, &memPublisher{},
		WithPipelineMetrics(svcmetrics.NewPipelineMetrics()))

	rec, err := r.Produce(context.Background(), "AAPL", testSnapshot(), false)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, rec.Action)
	require.Len(t, rec.Agents, 4)

	v := voteByAgent(t, r.collectVotes(context.Background(), testSnapshot()), "fundamental")
	assert.Equal(t, models.ActionHold, v.Action)
	assert.False(t, v.DataSufficient)
	assert.Contains(t, v.Reasoning, "no vote returned")
	assert.LessOrEqual(t, v.Confidence, 0.30)
}

func TestProduceCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRecommender(buyPanel(), &stubArbitrator{}, &memStore{}, &memPublisher{})
	_, err := r.Produce(ctx, "AAPL", testSnapshot(), false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProduceRequiresInstrumentAndSnapshot(t *testing.T) {
	r := newTestRecommender(buyPanel(), &stubArbitrator{}, &memStore{}, &memPublisher{})

	_, err := r.Produce(context.Background(), "", testSnapshot(), false)
	assert.Error(t, err)

	_, err = r.Produce(context.Background(), "AAPL", nil, false)
	assert.Error(t, err)
}

func TestProduceArbiterFailureDegrades(t *testing.T) {
	r := newTestRecommender(buyPanel(), &stubArbitrator{err: errors.New("arbiter down")}, &memStore{}, &memPublisher{})

	rec, err := r.Produce(context.Background(), "AAPL", testSnapshot(), true)
	require.NoError(t, err)

	assert.True(t, rec.Degraded)
	assert.Empty(t, rec.Winner)
	assert.Greater(t, rec.Shares, int64(0))
	assert.Greater(t, rec.StopLoss, 0.0)
}

func TestPersistBackendRouting(t *testing.T) {
	store := &memStore{}
	pub := &memPublisher{}
	r := newTestRecommender(buyPanel(), &stubArbitrator{}, store, pub, WithPersistBackend("clickhouse"))

	_, err := r.Produce(context.Background(), "AAPL", testSnapshot(), false)
	require.NoError(t, err)

	assert.Len(t, store.recs, 1)
	assert.Empty(t, pub.recs)
}

func TestPersistFailureIsNonFatal(t *testing.T) {
	store := &memStore{err: errors.New("clickhouse down")}
	pub := &memPublisher{err: errors.New("kafka down")}
	r := newTestRecommender(buyPanel(), &stubArbitrator{}, store, pub)

	rec, err := r.Produce(context.Background(), "AAPL", testSnapshot(), false)
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestProduceForUsesProvider(t *testing.T) {
	r := newTestRecommender(buyPanel(), &stubArbitrator{}, &memStore{}, &memPublisher{})

	rec, err := r.ProduceFor(context.Background(), "AAPL", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", rec.Instrument)
}

func TestProduceForProviderError(t *testing.T) {
	r := newTestRecommender(buyPanel(), &stubArbitrator{}, &memStore{}, &memPublisher{})
	r.snapshots = &stubProvider{err: errors.New("quote feed cold")}

	_, err := r.ProduceFor(context.Background(), "AAPL", nil, false)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "snapshot"))
}

func TestHistoryClampsLimit(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 5; i++ {
		rec := &models.Recommendation{ID: "r", Instrument: "AAPL", Action: models.ActionHold}
		require.NoError(t, store.Store(context.Background(), rec))
	}
	h := NewHistory(store)

	recs, err := h.Recent(context.Background(), "aapl", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 5)

	recs, err = h.Recent(context.Background(), "AAPL", 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = h.Recent(context.Background(), "  ", 10)
	assert.Error(t, err)
}
