package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domrepo "Tehama/internal/domain/repository"
)

var (
	registerOnce sync.Once

	votesTotal *prometheus.CounterVec

	consensusTotal *prometheus.CounterVec

	deliberationsTotal *prometheus.CounterVec

	recommendationsTotal *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	lastPrice *prometheus.GaugeVec

	opLatency *prometheus.HistogramVec
)

func register() {
	registerOnce.Do(func() {
		votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tehama_votes_total",
			Help: "Analyst votes by agent and action",
		}, []string{"agent", "action"})

		consensusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tehama_consensus_total",
			Help: "Consensus results by agreement band",
		}, []string{"band"})

		deliberationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tehama_deliberations_total",
			Help: "Deliberation outcomes (arbitrated vs fallback)",
		}, []string{"outcome"})

		recommendationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tehama_recommendations_total",
			Help: "Produced recommendations by action and persistence backend",
		}, []string{"action", "backend"})

		errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tehama_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"})

		lastPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tehama_last_price",
			Help: "Last observed quote price per symbol",
		}, []string{"symbol"})

		opLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tehama_op_latency_seconds",
			Help:    "Operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"})
	})
}

// Recorder implements the domain Metrics interface on top of Prometheus.
type Recorder struct{}

func NewRecorder() *Recorder {
	register()
	return &Recorder{}
}

func (r *Recorder) RecordVote(agent, action string) {
	votesTotal.WithLabelValues(agent, action).Inc()
}

func (r *Recorder) RecordConsensus(band string) {
	consensusTotal.WithLabelValues(band).Inc()
}

func (r *Recorder) RecordDeliberation(outcome string) {
	deliberationsTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordRecommendation(action, backend string) {
	recommendationsTotal.WithLabelValues(action, backend).Inc()
}

func (r *Recorder) RecordError(kind string) {
	errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	opLatency.WithLabelValues(op).Observe(seconds)
}

var _ domrepo.Metrics = (*Recorder)(nil)
