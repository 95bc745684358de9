package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	snapshotCache *prometheus.CounterVec

	agentDuration *prometheus.HistogramVec

	agentFallbacks *prometheus.CounterVec

	arbiterDuration prometheus.Histogram

	scanJobs *prometheus.CounterVec
)

func register() {
	once.Do(func() {
		snapshotCache = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tehama_snapshot_cache_total",
			Help: "Snapshot cache lookups by section and result (hit/miss/fetch)",
		}, []string{"section", "result"})

		agentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tehama_agent_duration_seconds",
			Help:    "Per-analyst wall time",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"agent"})

		agentFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tehama_agent_fallbacks_total",
			Help: "Defensive HOLD votes by agent and cause (timeout/error/no_vote)",
		}, []string{"agent", "cause"})

		arbiterDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tehama_arbiter_duration_seconds",
			Help:    "External arbitration call wall time",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		})

		scanJobs = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tehama_scan_jobs_total",
			Help: "Scan jobs by result",
		}, []string{"result"})
	})
}

// PipelineMetrics records decision-pipeline specific series that the
// generic domain Recorder does not cover.
type PipelineMetrics struct{}

func NewPipelineMetrics() *PipelineMetrics {
	register()
	return &PipelineMetrics{}
}

func (m *PipelineMetrics) SnapshotCache(section, result string) {
	snapshotCache.WithLabelValues(section, result).Inc()
}

func (m *PipelineMetrics) AgentDuration(agent string, d time.Duration) {
	agentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

func (m *PipelineMetrics) AgentFallback(agent, cause string) {
	agentFallbacks.WithLabelValues(agent, cause).Inc()
}

func (m *PipelineMetrics) ArbiterDuration(d time.Duration) {
	arbiterDuration.Observe(d.Seconds())
}

func (m *PipelineMetrics) ScanJob(result string) {
	scanJobs.WithLabelValues(result).Inc()
}
