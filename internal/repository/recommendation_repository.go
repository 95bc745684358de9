package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"Tehama/internal/domain/models"
	"Tehama/internal/domain/repository"
	pkgkafka "Tehama/pkg/kafka"
)

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(db *sql.DB, table string) repository.Storage {
	return &ClickHouseStorage{db: db, table: table}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

const recommendationColumns = "id, created_at, instrument, action, shares, target_price, stop_loss, confidence, reasoning, agents, status, degraded, winner"

func recommendationArgs(r *models.Recommendation) []interface{} {
	degraded := uint8(0)
	if r.Degraded {
		degraded = 1
	}
	return []interface{}{
		r.ID,
		r.CreatedAt,
		r.Instrument,
		string(r.Action),
		r.Shares,
		r.TargetPrice,
		r.StopLoss,
		r.Confidence,
		r.Reasoning,
		strings.Join(r.Agents, ","),
		r.Status,
		degraded,
		r.Winner,
	}
}

func (s *ClickHouseStorage) Store(ctx context.Context, r *models.Recommendation) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, recommendationColumns)
	_, err := s.db.ExecContext(ctx, q, recommendationArgs(r)...)
	return err
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, recs []*models.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	// Multi-row VALUES insert to reduce round-trips. Scans produce at
	// most a few dozen rows, so no chunking is needed.
	values := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*13)
	for _, r := range recs {
		if r == nil || r.ID == "" {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, recommendationArgs(r)...)
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, recommendationColumns, strings.Join(values, ","))
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *ClickHouseStorage) Query(ctx context.Context, instrument string, limit int) ([]*models.Recommendation, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE instrument = ? ORDER BY created_at DESC LIMIT ?", recommendationColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, instrument, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.Recommendation
	for rows.Next() {
		var r models.Recommendation
		var action, agents string
		var degraded uint8
		if err := rows.Scan(
			&r.ID, &r.CreatedAt, &r.Instrument, &action,
			&r.Shares, &r.TargetPrice, &r.StopLoss, &r.Confidence,
			&r.Reasoning, &agents, &r.Status, &degraded, &r.Winner,
		); err != nil {
			return nil, err
		}
		r.Action = models.Action(action)
		if agents != "" {
			r.Agents = strings.Split(agents, ",")
		}
		r.Degraded = degraded != 0
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // Managed by pkg
}

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func recommendationEvent(r *models.Recommendation) map[string]interface{} {
	return map[string]interface{}{
		"id":           r.ID,
		"instrument":   r.Instrument,
		"action":       string(r.Action),
		"shares":       r.Shares,
		"target_price": r.TargetPrice,
		"stop_loss":    r.StopLoss,
		"confidence":   r.Confidence,
		"agents":       r.Agents,
		"status":       r.Status,
		"degraded":     r.Degraded,
		"winner":       r.Winner,
		"created_at":   r.CreatedAt,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, r *models.Recommendation) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.Instrument), recommendationEvent(r))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, recs []*models.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(recs))
	for i, r := range recs {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(r.Instrument),
			Value: recommendationEvent(r),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
