package analyst

import (
	"context"
	"fmt"

	"Tehama/internal/domain/models"
	domsvc "Tehama/internal/domain/service"
	"Tehama/pkg/logger"
)

// Sentiment proxies crowd mood with daily price momentum until a real
// news feed is wired in.
type Sentiment struct {
	log *logger.Logger
}

func NewSentiment(lgr *logger.Logger) *Sentiment { return &Sentiment{log: lgr} }

func (s *Sentiment) ID() string { return "sentiment" }

// score maps the daily move to a 0..100 sentiment score.
func score(changePct float64) (float64, string) {
	switch {
	case changePct > 5:
		return 70, fmt.Sprintf("strong positive momentum (%+.1f%% today)", changePct)
	case changePct > 2:
		return 60, fmt.Sprintf("positive momentum (%+.1f%% today)", changePct)
	case changePct < -5:
		return 30, fmt.Sprintf("strong negative momentum (%+.1f%% today)", changePct)
	case changePct < -2:
		return 40, fmt.Sprintf("negative momentum (%+.1f%% today)", changePct)
	default:
		return 50, fmt.Sprintf("neutral price action (%+.1f%% today)", changePct)
	}
}

func (s *Sentiment) Analyze(ctx context.Context, snap *models.ContextSnapshot) (*models.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	change, ok := snap.Quote.DailyChangePct()
	if !ok {
		return models.NewInsufficientVote(s.ID(), "no quote data for sentiment proxy"), nil
	}

	sc, note := score(change)
	var v *models.Vote
	switch {
	case sc >= 65:
		v = models.NewVote(s.ID(), models.ActionBuy, sc/100, "positive sentiment: "+note)
	case sc <= 40:
		v = models.NewVote(s.ID(), models.ActionSell, (100-sc)/100, "negative sentiment: "+note)
	default:
		v = models.NewVote(s.ID(), models.ActionHold, 0.50, "neutral sentiment: "+note)
	}
	v.Signals = map[string]float64{"sentiment_score": sc, "daily_change_pct": change}
	if s.log != nil {
		s.log.Debug("sentiment vote",
			logger.String("instrument", snap.Instrument),
			logger.String("action", string(v.Action)),
			logger.Float64("confidence", v.Confidence),
		)
	}
	return v, nil
}

var _ domsvc.AnalystAgent = (*Sentiment)(nil)
