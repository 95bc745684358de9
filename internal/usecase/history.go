package usecase

import (
	"context"
	"fmt"
	"strings"

	"Tehama/internal/domain/models"
	domrepo "Tehama/internal/domain/repository"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// History reads back persisted recommendations for review.
type History struct {
	store domrepo.Storage
}

func NewHistory(store domrepo.Storage) *History {
	return &History{store: store}
}

// Recent returns the newest recommendations for the instrument, newest
// first. A zero limit uses the default; anything above the cap is clamped.
func (h *History) Recent(ctx context.Context, instrument string, limit int) ([]*models.Recommendation, error) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if instrument == "" {
		return nil, fmt.Errorf("instrument required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	recs, err := h.store.Query(ctx, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("query recommendations %s: %w", instrument, err)
	}
	return recs, nil
}
