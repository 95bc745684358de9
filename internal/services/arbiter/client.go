package arbiter

import (
	"context"
	"fmt"
	"time"

	"Tehama/internal/domain/models"
	domsvc "Tehama/internal/domain/service"
	svcmetrics "Tehama/internal/service/metrics"
	"Tehama/pkg/config"
)

// HTTPArbitrator asks the external deliberation service to settle the
// committee's proposals. The mediator owns all fallback behavior; this
// client just reports what the service said, or that it could not.
type HTTPArbitrator struct {
	base    *HTTPServiceBase
	pm      *svcmetrics.PipelineMetrics
	retries int
}

func NewHTTPArbitrator(cfg *config.Config, pm *svcmetrics.PipelineMetrics) *HTTPArbitrator {
	retries := cfg.Deliberation.Retries
	if retries <= 0 {
		retries = 1
	}
	return &HTTPArbitrator{base: NewHTTPServiceBase(cfg), pm: pm, retries: retries}
}

type proposalReq struct {
	ProposerID string  `json:"proposer_id"`
	Shares     int64   `json:"shares"`
	StopLoss   float64 `json:"stop_loss"`
	Cap        float64 `json:"cap"`
	Reasoning  string  `json:"reasoning"`
}

type arbitrateReq struct {
	Instrument string        `json:"instrument"`
	Action     string        `json:"action"`
	Confidence float64       `json:"confidence"`
	Proposals  []proposalReq `json:"proposals"`
}

type arbitrateResp struct {
	Shares   int64   `json:"shares"`
	StopLoss float64 `json:"stop_loss"`
	Winner   string  `json:"winner"`
}

func (a *HTTPArbitrator) Arbitrate(ctx context.Context, proposals []*models.PositionProposal, c *models.ConsensusResult) (*models.Arbitration, error) {
	req := arbitrateReq{
		Instrument: c.Instrument,
		Action:     string(c.Action),
		Confidence: c.FinalConfidence,
		Proposals:  make([]proposalReq, 0, len(proposals)),
	}
	for _, p := range proposals {
		req.Proposals = append(req.Proposals, proposalReq{
			ProposerID: p.ProposerID,
			Shares:     p.Shares,
			StopLoss:   p.StopLoss,
			Cap:        p.Cap,
			Reasoning:  p.Reasoning,
		})
	}

	start := time.Now()
	var resp arbitrateResp
	err := a.base.PostJSONWithRetry(ctx, "/arbitrate", req, &resp, a.retries)
	if a.pm != nil {
		a.pm.ArbiterDuration(time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("arbitrate %s: %w", c.Instrument, err)
	}
	return &models.Arbitration{
		Shares:   resp.Shares,
		StopLoss: resp.StopLoss,
		Winner:   resp.Winner,
	}, nil
}

var _ domsvc.Arbitrator = (*HTTPArbitrator)(nil)
