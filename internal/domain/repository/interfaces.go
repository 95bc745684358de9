package repository

import (
	"context"

	"Tehama/internal/domain/models"
)

type QuoteStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Publisher interface {
	Publish(ctx context.Context, r *models.Recommendation) error
	PublishBatch(ctx context.Context, recs []*models.Recommendation) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, r *models.Recommendation) error
	StoreBatch(ctx context.Context, recs []*models.Recommendation) error
	Query(ctx context.Context, instrument string, limit int) ([]*models.Recommendation, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordVote(agent, action string)
	RecordConsensus(band string)
	RecordDeliberation(outcome string) // "arbitrated" | "fallback"
	RecordRecommendation(action, backend string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
