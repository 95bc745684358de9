package analyst

import (
	"context"
	"fmt"

	"Tehama/internal/domain/models"
	domsvc "Tehama/internal/domain/service"
	"Tehama/pkg/logger"
)

// Exposure judges the trade against the current portfolio: diversification
// first, sector concentration as an override.
type Exposure struct {
	log *logger.Logger
}

func NewExposure(lgr *logger.Logger) *Exposure { return &Exposure{log: lgr} }

func (e *Exposure) ID() string { return "exposure" }

func (e *Exposure) Analyze(ctx context.Context, snap *models.ContextSnapshot) (*models.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pf := snap.Portfolio
	if pf == nil {
		return models.NewInsufficientVote(e.ID(), "no portfolio context for exposure analysis"), nil
	}

	sector := ""
	if snap.Fundamentals != nil {
		sector = snap.Fundamentals.Sector
	}
	sectorExp := pf.SectorExposure(sector)
	positions := len(pf.Positions)

	risk := "high"
	switch {
	case positions >= 10:
		risk = "low"
	case positions >= 5:
		risk = "medium"
	}
	if sectorExp > 0.40 {
		risk = "high" // sector concentration overrides diversification
	}

	var v *models.Vote
	switch risk {
	case "low":
		v = models.NewVote(e.ID(), models.ActionBuy, 0.60,
			fmt.Sprintf("well diversified: %d positions, %.0f%% sector exposure, room to add", positions, sectorExp*100))
	case "medium":
		v = models.NewVote(e.ID(), models.ActionHold, 0.55,
			fmt.Sprintf("moderate concentration: %d positions, %.0f%% sector exposure", positions, sectorExp*100))
	default:
		v = models.NewVote(e.ID(), models.ActionSell, 0.65,
			fmt.Sprintf("concentrated book: %d positions, %.0f%% sector exposure, reduce risk", positions, sectorExp*100))
	}
	v.Signals = map[string]float64{
		"total_positions": float64(positions),
		"sector_exposure": sectorExp,
	}
	if e.log != nil {
		e.log.Debug("exposure vote",
			logger.String("instrument", snap.Instrument),
			logger.String("action", string(v.Action)),
			logger.Float64("confidence", v.Confidence),
		)
	}
	return v, nil
}

var _ domsvc.AnalystAgent = (*Exposure)(nil)
