package usecase

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"Tehama/internal/domain/models"
	svcmetrics "Tehama/internal/service/metrics"
	"Tehama/pkg/logger"
	"Tehama/pkg/queue"
)

const defaultScanConcurrency = 4

// ScanPayload is the queued request to run the pipeline over a batch of
// instruments.
type ScanPayload struct {
	ScanID            string   `json:"scan_id"`
	Instruments       []string `json:"instruments"`
	ApplyDeliberation bool     `json:"apply_deliberation"`
	PortfolioValue    float64  `json:"portfolio_value"`
}

// ScanJob consumes scan requests off the queue and runs the recommender
// over each instrument. Individual instrument failures are logged and
// skipped; the job only fails on a bad payload or cancellation.
type ScanJob struct {
	rec         *Recommender
	pm          *svcmetrics.PipelineMetrics
	log         *logger.Logger
	concurrency int
}

func NewScanJob(rec *Recommender, pm *svcmetrics.PipelineMetrics, lgr *logger.Logger, concurrency int) *ScanJob {
	if concurrency <= 0 {
		concurrency = defaultScanConcurrency
	}
	return &ScanJob{rec: rec, pm: pm, log: lgr, concurrency: concurrency}
}

func (j *ScanJob) Name() string { return "instrument_scan" }

func (j *ScanJob) Type() string { return "scan" }

func (j *ScanJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[ScanPayload](payload)
	if err != nil {
		return fmt.Errorf("parse scan payload: %w", err)
	}
	if len(p.Instruments) == 0 {
		return fmt.Errorf("scan payload has no instruments")
	}

	portfolio := &models.PortfolioContext{TotalValue: p.PortfolioValue}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for _, raw := range p.Instruments {
		instrument := strings.ToUpper(strings.TrimSpace(raw))
		if instrument == "" {
			continue
		}
		g.Go(func() error {
			rec, err := j.rec.ProduceFor(gctx, instrument, portfolio, p.ApplyDeliberation)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				j.pm.ScanJob("failed")
				j.log.Warn("scan instrument failed",
					logger.String("scan_id", p.ScanID),
					logger.String("instrument", instrument),
					logger.Error(err),
				)
				return nil
			}
			j.pm.ScanJob("ok")
			j.log.Debug("scan instrument done",
				logger.String("instrument", instrument),
				logger.String("action", string(rec.Action)),
			)
			return nil
		})
	}
	return g.Wait()
}

var _ queue.Job = (*ScanJob)(nil)
