// Package outbox implements the transactional outbox pattern: domain
// events are written to a Postgres table in the same transaction as the
// state change that produced them, then published to Kafka by a
// background poller. This guarantees an event is never lost because the
// broker was briefly unreachable, and never published for a mutation
// that didn't actually commit.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/feltstack/pokerwallet/internal/common/kafka"
	"github.com/feltstack/pokerwallet/internal/common/logger"
)

const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"

	maxAttempts = 5
)

type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Topic       string
	Payload     map[string]interface{}
	Status      string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type Repository struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewRepository(db *sql.DB, log *logger.Logger) *Repository {
	return &Repository{db: db, logger: log}
}

// EnsureSchema creates the outbox table if it does not already exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS outbox_events (
		id UUID PRIMARY KEY,
		aggregate_id VARCHAR(255) NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		topic VARCHAR(100) NOT NULL,
		payload JSONB NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
		published_at TIMESTAMP WITH TIME ZONE
	);
	CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_events(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_events(aggregate_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveEvent persists event within tx, the same transaction as the
// mutation that produced it.
func (r *Repository) SaveEvent(ctx context.Context, tx *sql.Tx, event *OutboxEvent) error {
	event.ID = uuid.NewString()
	event.Status = StatusPending

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	query := `
		INSERT INTO outbox_events (id, aggregate_id, event_type, topic, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, query, event.ID, event.AggregateID, event.EventType, event.Topic, payload, event.Status).
		Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

// GetPendingEvents returns up to limit events not yet published and
// under the retry ceiling, oldest first.
func (r *Repository) GetPendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, topic, payload, status, attempts, COALESCE(last_error, ''), created_at
		FROM outbox_events
		WHERE status = $1 AND attempts < $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, StatusPending, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Topic, &payload, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outbox payload: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *Repository) MarkAsPublished(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = $1, published_at = CURRENT_TIMESTAMP WHERE id = $2`,
		StatusPublished, id)
	if err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	return nil
}

func (r *Repository) MarkAsFailed(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = $1, last_error = $2 WHERE id = $3`,
		StatusFailed, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

func (r *Repository) IncrementAttempt(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = $1 WHERE id = $2`,
		reason, id)
	if err != nil {
		return fmt.Errorf("failed to increment attempt: %w", err)
	}
	return nil
}

// Publisher polls the outbox table and forwards pending events to Kafka.
type Publisher struct {
	repo     *Repository
	producer *kafka.Producer
	logger   *logger.Logger
	interval time.Duration
}

func NewPublisher(repo *Repository, producer *kafka.Producer, log *logger.Logger, interval time.Duration) *Publisher {
	return &Publisher{repo: repo, producer: producer, logger: log, interval: interval}
}

// Start polls until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishBatch(ctx)
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) {
	events, err := p.repo.GetPendingEvents(ctx, 50)
	if err != nil {
		p.logger.Errorf("failed to load pending outbox events: %v", err)
		return
	}

	for _, e := range events {
		if err := p.producer.PublishEvent(ctx, e.Topic, e.AggregateID, e.Payload); err != nil {
			p.logger.Warnf("failed to publish outbox event %s: %v", e.ID, err)
			if e.Attempts+1 >= maxAttempts {
				p.repo.MarkAsFailed(ctx, e.ID, err.Error())
			} else {
				p.repo.IncrementAttempt(ctx, e.ID, err.Error())
			}
			continue
		}
		if err := p.repo.MarkAsPublished(ctx, e.ID); err != nil {
			p.logger.Errorf("failed to mark event %s published: %v", e.ID, err)
		}
	}
}
