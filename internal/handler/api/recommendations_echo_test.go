package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tehama/internal/domain/models"
	domrepo "Tehama/internal/domain/repository"
	domsvc "Tehama/internal/domain/service"
	"Tehama/internal/service/committee"
	"Tehama/internal/service/consensus"
	"Tehama/internal/usecase"
	"Tehama/pkg/logger"
)

type fixedAgent struct {
	id   string
	vote *models.Vote
}

func (a *fixedAgent) ID() string { return a.id }
func (a *fixedAgent) Analyze(context.Context, *models.ContextSnapshot) (*models.Vote, error) {
	return a.vote, nil
}

type fixedProvider struct{ snap *models.ContextSnapshot }

func (p *fixedProvider) Snapshot(context.Context, string, *models.PortfolioContext) (*models.ContextSnapshot, error) {
	return p.snap, nil
}

type fixedArbitrator struct{}

func (fixedArbitrator) Arbitrate(context.Context, []*models.PositionProposal, *models.ConsensusResult) (*models.Arbitration, error) {
	return nil, context.DeadlineExceeded
}

type memoryStore struct{ recs []*models.Recommendation }

func (m *memoryStore) Init(context.Context) error { return nil }
func (m *memoryStore) Store(_ context.Context, r *models.Recommendation) error {
	m.recs = append(m.recs, r)
	return nil
}
func (m *memoryStore) StoreBatch(_ context.Context, recs []*models.Recommendation) error {
	m.recs = append(m.recs, recs...)
	return nil
}
func (m *memoryStore) Query(_ context.Context, instrument string, limit int) ([]*models.Recommendation, error) {
	var out []*models.Recommendation
	for i := len(m.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.recs[i].Instrument == instrument {
			out = append(out, m.recs[i])
		}
	}
	return out, nil
}
func (m *memoryStore) Health(context.Context) error { return nil }
func (m *memoryStore) Close() error                 { return nil }

type recordingQueue struct {
	msgType string
	payload interface{}
}

func (q *recordingQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.msgType = msgType
	q.payload = payload
	return nil
}

type quietMetrics struct{}

func (quietMetrics) RecordVote(string, string)           {}
func (quietMetrics) RecordConsensus(string)              {}
func (quietMetrics) RecordDeliberation(string)           {}
func (quietMetrics) RecordRecommendation(string, string) {}
func (quietMetrics) RecordError(string)                  {}
func (quietMetrics) RecordLastPrice(string, float64)     {}
func (quietMetrics) RecordLatency(string, float64)       {}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func newHandler(t *testing.T, store domrepo.Storage, q *recordingQueue) *RecommendationsEchoHandler {
	t.Helper()
	analysts := []domsvc.AnalystAgent{
		&fixedAgent{id: "technical", vote: models.NewVote("technical", models.ActionBuy, 0.8, "trend")},
		&fixedAgent{id: "fundamental", vote: models.NewVote("fundamental", models.ActionBuy, 0.7, "value")},
		&fixedAgent{id: "sentiment", vote: models.NewVote("sentiment", models.ActionBuy, 0.75, "tone")},
		&fixedAgent{id: "exposure", vote: models.NewVote("exposure", models.ActionHold, 0.55, "full")},
	}
	snap := &models.ContextSnapshot{
		Instrument:  "AAPL",
		AsOf:        time.Now().UTC(),
		TargetPrice: 100,
		Quote:       &models.Quote{Symbol: "AAPL", Price: 100, PrevClose: 98},
	}
	rec := usecase.NewRecommender(
		analysts,
		consensus.NewAggregator(),
		[]domsvc.PositionProposer{committee.NewAggressive(), committee.NewNeutral(), committee.NewConservative()},
		committee.NewMediator(fixedArbitrator{}, nil),
		&fixedProvider{snap: snap},
		store,
		nil,
		quietMetrics{},
		nil,
		usecase.WithPersistBackend("clickhouse"),
	)
	return NewRecommendationsEchoHandler(testLogger(t), rec, usecase.NewHistory(store), q, analysts, nil)
}

func doJSON(h echo.HandlerFunc, method, target, body string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rr := httptest.NewRecorder()
	c := e.NewContext(req, rr)
	return rr, h(c)
}

func TestProduceEndpoint(t *testing.T) {
	store := &memoryStore{}
	h := newHandler(t, store, &recordingQueue{})

	rr, err := doJSON(h.Produce, http.MethodPost, "/api/v1/recommendations",
		`{"instrument":"AAPL","apply_deliberation":true,"portfolio_value":100000}`)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `"Instrument":"AAPL"`)
	assert.Contains(t, body, `"Action":"BUY"`)
	require.Len(t, store.recs, 1)
}

func TestProduceEndpointValidation(t *testing.T) {
	h := newHandler(t, &memoryStore{}, &recordingQueue{})

	rr, err := doJSON(h.Produce, http.MethodPost, "/api/v1/recommendations", `{"portfolio_value":5}`)
	require.NoError(t, err)
	assert.Contains(t, rr.Body.String(), "ERR_REQUIRED")
}

func TestHistoryEndpoint(t *testing.T) {
	store := &memoryStore{}
	store.recs = append(store.recs, &models.Recommendation{ID: "x", Instrument: "AAPL", Action: models.ActionHold})
	h := newHandler(t, store, &recordingQueue{})

	rr, err := doJSON(h.History, http.MethodGet, "/api/v1/recommendations?instrument=AAPL&limit=10", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"Instrument":"AAPL"`)
}

func TestScanEndpointEnqueues(t *testing.T) {
	q := &recordingQueue{}
	h := newHandler(t, &memoryStore{}, q)

	rr, err := doJSON(h.Scan, http.MethodPost, "/api/v1/scans",
		`{"instruments":["AAPL","MSFT"],"apply_deliberation":true}`)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "scan", q.msgType)
	payload, ok := q.payload.(usecase.ScanPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"AAPL", "MSFT"}, payload.Instruments)
	assert.True(t, payload.ApplyDeliberation)
}

func TestAgentsStatusEndpoint(t *testing.T) {
	h := newHandler(t, &memoryStore{}, &recordingQueue{})

	rr, err := doJSON(h.AgentsStatus, http.MethodGet, "/api/v1/agents/status", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "technical")
	assert.Contains(t, body, "exposure")
	assert.Contains(t, body, `"stream_connected":false`)
}
