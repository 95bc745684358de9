package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Tehama/internal/domain/models"
)

type countingProc struct {
	mu     sync.Mutex
	seen   []*models.Quote
	failWith error
}

func (p *countingProc) Process(_ context.Context, q *models.Quote) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.seen = append(p.seen, q)
	return nil
}

func (p *countingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) RecordVote(string, string)           {}
func (m *countingMetrics) RecordConsensus(string)              {}
func (m *countingMetrics) RecordDeliberation(string)           {}
func (m *countingMetrics) RecordRecommendation(string, string) {}
func (m *countingMetrics) RecordLastPrice(string, float64)     {}
func (m *countingMetrics) RecordLatency(string, float64)       {}
func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func validTestQuote(symbol string) *models.Quote {
	return &models.Quote{Symbol: symbol, Price: 100, Volume: 10, Timestamp: time.Now().Unix()}
}

func TestPipelineForwardsValidQuote(t *testing.T) {
	proc := &countingProc{}
	p := NewQuotePipeline(proc, newCountingMetrics())

	require.NoError(t, p.Process(context.Background(), validTestQuote("AAPL")))
	assert.Equal(t, 1, proc.count())
}

func TestPipelineRejectsInvalidQuotes(t *testing.T) {
	proc := &countingProc{}
	m := newCountingMetrics()
	p := NewQuotePipeline(proc, m)

	cases := []*models.Quote{
		nil,
		{Symbol: "", Price: 1, Timestamp: 1},
		{Symbol: "AAPL", Price: 1, Timestamp: 0},
		{Symbol: "AAPL", Price: -1, Timestamp: 1},
	}
	for _, q := range cases {
		assert.Error(t, p.Process(context.Background(), q))
	}
	assert.Equal(t, 0, proc.count())
	assert.Equal(t, len(cases), m.errorCount("pipeline_validate"))
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	proc := &countingProc{}
	m := newCountingMetrics()
	p := NewQuotePipeline(proc, m, WithMaxRPS(1))

	require.NoError(t, p.Process(context.Background(), validTestQuote("AAPL")))
	// Second update within the same second for the same symbol is dropped.
	require.NoError(t, p.Process(context.Background(), validTestQuote("AAPL")))
	// A different symbol is not affected.
	require.NoError(t, p.Process(context.Background(), validTestQuote("MSFT")))

	assert.Equal(t, 2, proc.count())
	assert.Equal(t, 1, m.errorCount("pipeline_throttle"))
}

func TestPipelineTransformApplied(t *testing.T) {
	proc := &countingProc{}
	p := NewQuotePipeline(proc, newCountingMetrics(), WithTransform(func(q *models.Quote) *models.Quote {
		q.Symbol = "X:" + q.Symbol
		return q
	}))

	require.NoError(t, p.Process(context.Background(), validTestQuote("AAPL")))
	require.Equal(t, 1, proc.count())
	assert.Equal(t, "X:AAPL", proc.seen[0].Symbol)
}

func TestPipelineBuffersOnDownstreamFailure(t *testing.T) {
	proc := &countingProc{failWith: errors.New("book unavailable")}
	m := newCountingMetrics()
	p := NewQuotePipeline(proc, m, WithBufferSize(4))

	err := p.Process(context.Background(), validTestQuote("AAPL"))
	require.Error(t, err)
	assert.Equal(t, 1, m.errorCount("pipeline_process"))

	// Once downstream recovers the flusher delivers the buffered quote.
	proc.mu.Lock()
	proc.failWith = nil
	proc.mu.Unlock()

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return proc.count() == 1 }, time.Second, 10*time.Millisecond)
}
