package analyst

import (
	"context"
	"fmt"

	"Tehama/internal/domain/models"
	domsvc "Tehama/internal/domain/service"
	"Tehama/pkg/logger"
)

// Technical votes off RSI posture first, MACD crossover second.
type Technical struct {
	log *logger.Logger
}

func NewTechnical(lgr *logger.Logger) *Technical { return &Technical{log: lgr} }

func (t *Technical) ID() string { return "technical" }

func (t *Technical) Analyze(ctx context.Context, snap *models.ContextSnapshot) (*models.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ind := snap.Indicators
	if ind == nil {
		return models.NewInsufficientVote(t.ID(), "no indicator data for "+snap.Instrument), nil
	}

	var (
		action models.Action
		conf   float64
		reason string
	)
	switch {
	case ind.RSI14 > 70:
		action, conf = models.ActionSell, 0.65
		reason = fmt.Sprintf("RSI %.1f overbought", ind.RSI14)
	case ind.RSI14 < 30:
		action, conf = models.ActionBuy, 0.65
		reason = fmt.Sprintf("RSI %.1f oversold", ind.RSI14)
	case ind.MACD > ind.MACDSignal:
		action, conf = models.ActionBuy, 0.60
		reason = "MACD above signal, bullish momentum"
	case ind.MACD < ind.MACDSignal:
		action, conf = models.ActionSell, 0.60
		reason = "MACD below signal, bearish momentum"
	default:
		action, conf = models.ActionHold, 0.50
		reason = "no clear technical edge"
	}

	v := models.NewVote(t.ID(), action, conf, reason)
	v.Signals = map[string]float64{
		"rsi_14":      ind.RSI14,
		"macd":        ind.MACD,
		"macd_signal": ind.MACDSignal,
	}
	if t.log != nil {
		t.log.Debug("technical vote",
			logger.String("instrument", snap.Instrument),
			logger.String("action", string(v.Action)),
			logger.Float64("confidence", v.Confidence),
		)
	}
	return v, nil
}

var _ domsvc.AnalystAgent = (*Technical)(nil)
