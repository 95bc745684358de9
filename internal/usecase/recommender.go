package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"Tehama/internal/domain/models"
	domrepo "Tehama/internal/domain/repository"
	domsvc "Tehama/internal/domain/service"
	"Tehama/internal/service/committee"
	"Tehama/internal/service/consensus"
	svcmetrics "Tehama/internal/service/metrics"
	"Tehama/pkg/logger"
)

const defaultAgentTimeout = 2 * time.Second

// Recommender runs the full decision pipeline: fan out the analyst panel,
// fold the votes into a consensus, optionally put sizing through the
// committee and mediator, then assemble and persist the recommendation.
// The pipeline is pure: all state flows through parameters and results.
type Recommender struct {
	analysts  []domsvc.AnalystAgent
	agg       *consensus.Aggregator
	proposers []domsvc.PositionProposer
	mediator  *committee.Mediator
	snapshots domsvc.SnapshotProvider
	store     domrepo.Storage
	pub       domrepo.Publisher
	metrics   domrepo.Metrics
	pm        *svcmetrics.PipelineMetrics
	log       *logger.Logger

	agentTimeout time.Duration
	backend      string
}

type RecommenderOption func(*Recommender)

// WithAgentTimeout bounds each analyst's wall time.
func WithAgentTimeout(d time.Duration) RecommenderOption {
	return func(r *Recommender) {
		if d > 0 {
			r.agentTimeout = d
		}
	}
}

// WithPipelineMetrics adds the per-agent duration and fallback series on
// top of the domain recorder.
func WithPipelineMetrics(pm *svcmetrics.PipelineMetrics) RecommenderOption {
	return func(r *Recommender) { r.pm = pm }
}

// WithPersistBackend selects where produced recommendations go:
// "clickhouse", "kafka", or "both".
func WithPersistBackend(backend string) RecommenderOption {
	return func(r *Recommender) {
		if backend != "" {
			r.backend = backend
		}
	}
}

func NewRecommender(
	analysts []domsvc.AnalystAgent,
	agg *consensus.Aggregator,
	proposers []domsvc.PositionProposer,
	mediator *committee.Mediator,
	snapshots domsvc.SnapshotProvider,
	store domrepo.Storage,
	pub domrepo.Publisher,
	metrics domrepo.Metrics,
	lgr *logger.Logger,
	opts ...RecommenderOption,
) *Recommender {
	r := &Recommender{
		analysts:     analysts,
		agg:          agg,
		proposers:    proposers,
		mediator:     mediator,
		snapshots:    snapshots,
		store:        store,
		pub:          pub,
		metrics:      metrics,
		log:          lgr,
		agentTimeout: defaultAgentTimeout,
		backend:      "both",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProduceFor builds the snapshot for the instrument and runs Produce.
// Snapshot assembly is best effort; missing sections become insufficient
// votes downstream rather than failures here.
func (r *Recommender) ProduceFor(ctx context.Context, instrument string, portfolio *models.PortfolioContext, applyDeliberation bool) (*models.Recommendation, error) {
	snap, err := r.snapshots.Snapshot(ctx, instrument, portfolio)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", instrument, err)
	}
	return r.Produce(ctx, instrument, snap, applyDeliberation)
}

// Produce runs the pipeline over an already-assembled snapshot. The only
// fatal error besides bad arguments and cancellation is no quorum.
func (r *Recommender) Produce(ctx context.Context, instrument string, snap *models.ContextSnapshot, applyDeliberation bool) (*models.Recommendation, error) {
	if instrument == "" {
		return nil, fmt.Errorf("instrument required")
	}
	if snap == nil {
		return nil, fmt.Errorf("context snapshot required")
	}
	start := time.Now()

	votes := r.collectVotes(ctx, snap)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cres, err := r.agg.Aggregate(instrument, votes)
	if err != nil {
		return nil, err
	}
	for _, v := range cres.Votes {
		r.metrics.RecordVote(v.AgentID, string(v.Action))
	}
	r.metrics.RecordConsensus(string(cres.Band))

	var delib *models.Deliberation
	if applyDeliberation && cres.Action.Actionable() {
		proposals := make([]*models.PositionProposal, 0, len(r.proposers))
		for _, p := range r.proposers {
			proposals = append(proposals, p.Propose(ctx, cres, snap))
		}
		delib, err = r.mediator.Deliberate(ctx, cres, snap, proposals)
		if err != nil {
			return nil, fmt.Errorf("deliberate %s: %w", instrument, err)
		}
		outcome := "arbitrated"
		if delib.Degraded {
			outcome = "fallback"
		}
		r.metrics.RecordDeliberation(outcome)
	}

	rec := Assemble(cres, delib, snap)
	r.persist(ctx, rec)
	r.metrics.RecordLatency("produce", time.Since(start).Seconds())

	if r.log != nil {
		r.log.Info("recommendation produced",
			logger.String("instrument", instrument),
			logger.String("action", string(rec.Action)),
			logger.Float64("confidence", rec.Confidence),
			logger.Int64("shares", rec.Shares),
			logger.Bool("degraded", rec.Degraded),
			logger.Duration("duration_ms", time.Since(start)),
		)
	}
	return rec, nil
}

// collectVotes fans the panel out concurrently with a per-agent timeout.
// A slow or failing analyst becomes a defensive HOLD vote; a cancelled
// parent context produces no fabricated votes at all.
func (r *Recommender) collectVotes(ctx context.Context, snap *models.ContextSnapshot) []*models.Vote {
	type item struct {
		agent string
		vote  *models.Vote
		err   error
	}
	ch := make(chan item, len(r.analysts))
	var wg sync.WaitGroup

	for _, a := range r.analysts {
		wg.Add(1)
		go func(a domsvc.AnalystAgent) {
			defer wg.Done()
			actx, cancel := context.WithTimeout(ctx, r.agentTimeout)
			defer cancel()
			start := time.Now()
			v, err := a.Analyze(actx, snap)
			r.metrics.RecordLatency("agent_"+a.ID(), time.Since(start).Seconds())
			if r.pm != nil {
				r.pm.AgentDuration(a.ID(), time.Since(start))
			}
			ch <- item{a.ID(), v, err}
		}(a)
	}
	go func() { wg.Wait(); close(ch) }()

	votes := make([]*models.Vote, 0, len(r.analysts))
	for it := range ch {
		switch {
		case it.err == nil && it.vote != nil:
			votes = append(votes, it.vote)
		case ctx.Err() != nil:
			// Parent cancelled; nothing to salvage.
		case errors.Is(it.err, context.DeadlineExceeded):
			r.metrics.RecordError("agent_timeout")
			r.recordFallback(it.agent, "timeout")
			votes = append(votes, models.NewInsufficientVote(it.agent, "analysis timed out"))
		case it.err == nil:
			// Agent returned neither a vote nor an error.
			r.metrics.RecordError("agent_failure")
			r.recordFallback(it.agent, "no_vote")
			votes = append(votes, models.NewInsufficientVote(it.agent, "no vote returned"))
		default:
			r.metrics.RecordError("agent_failure")
			r.recordFallback(it.agent, "error")
			votes = append(votes, models.NewInsufficientVote(it.agent, "analysis failed: "+it.err.Error()))
		}
	}
	// Deterministic vote order regardless of goroutine scheduling.
	sort.Slice(votes, func(i, j int) bool { return votes[i].AgentID < votes[j].AgentID })
	return votes
}

func (r *Recommender) recordFallback(agent, cause string) {
	if r.pm != nil {
		r.pm.AgentFallback(agent, cause)
	}
}

// persist routes the recommendation to the configured backends. Storage
// failures are recorded and logged, never propagated: the caller already
// has the recommendation in hand.
func (r *Recommender) persist(ctx context.Context, rec *models.Recommendation) {
	if r.store != nil && (r.backend == "clickhouse" || r.backend == "both") {
		if err := r.store.Store(ctx, rec); err != nil {
			r.metrics.RecordError("store")
			if r.log != nil {
				r.log.Error("store recommendation failed", logger.String("id", rec.ID), logger.Error(err))
			}
		} else {
			r.metrics.RecordRecommendation(string(rec.Action), "clickhouse")
		}
	}
	if r.pub != nil && (r.backend == "kafka" || r.backend == "both") {
		if err := r.pub.Publish(ctx, rec); err != nil {
			r.metrics.RecordError("publish")
			if r.log != nil {
				r.log.Error("publish recommendation failed", logger.String("id", rec.ID), logger.Error(err))
			}
		} else {
			r.metrics.RecordRecommendation(string(rec.Action), "kafka")
		}
	}
}
