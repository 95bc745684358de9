package repository

import (
	"context"

	"Tehama/internal/domain/models"
)

// CandleStore provides read-only access to recent candles for indicator
// computation.
type CandleStore interface {
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}
