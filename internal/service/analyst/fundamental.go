package analyst

import (
	"context"
	"fmt"

	"Tehama/internal/domain/models"
	domsvc "Tehama/internal/domain/service"
	"Tehama/pkg/logger"
)

// Fundamental votes on valuation: harsh on rich P/E, suspicious of
// unprofitable micro-caps.
type Fundamental struct {
	log *logger.Logger
}

func NewFundamental(lgr *logger.Logger) *Fundamental { return &Fundamental{log: lgr} }

func (f *Fundamental) ID() string { return "fundamental" }

func (f *Fundamental) Analyze(ctx context.Context, snap *models.ContextSnapshot) (*models.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fund := snap.Fundamentals
	if fund == nil {
		return models.NewInsufficientVote(f.ID(), "no fundamental data for "+snap.Instrument), nil
	}

	action := models.ActionHold
	conf := 0.50
	reason := "limited fundamental data"
	if fund.PERatio != nil {
		pe := *fund.PERatio
		switch {
		case pe < 0:
			action, conf = models.ActionSell, 0.60
			reason = "negative P/E, not profitable"
		case pe < 15:
			action, conf = models.ActionBuy, 0.65
			reason = fmt.Sprintf("undervalued at P/E %.1f", pe)
		case pe > 50:
			action, conf = models.ActionSell, 0.65
			reason = fmt.Sprintf("overvalued at P/E %.1f", pe)
		default:
			reason = fmt.Sprintf("fair valuation at P/E %.1f", pe)
		}
	}
	if fund.MarketCap > 0 && fund.MarketCap < models.MicroCapThreshold {
		reason += "; micro-cap, higher risk"
	}

	v := models.NewVote(f.ID(), action, conf, reason)
	v.Signals = map[string]float64{"market_cap": fund.MarketCap}
	if fund.PERatio != nil {
		v.Signals["pe_ratio"] = *fund.PERatio
	}
	if f.log != nil {
		f.log.Debug("fundamental vote",
			logger.String("instrument", snap.Instrument),
			logger.String("action", string(v.Action)),
			logger.Float64("confidence", v.Confidence),
		)
	}
	return v, nil
}

var _ domsvc.AnalystAgent = (*Fundamental)(nil)
