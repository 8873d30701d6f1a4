package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Nick077mp/whatsapp-crm-completo/internal/contacts"
)

// ErrEventNotFound is returned when no unresolved event matches.
var ErrEventNotFound = errors.New("ingest: unresolved event not found")

// UnresolvedEvent is a webhook delivery that could not be attributed to a
// real identity. It is acknowledged to the sender to stop redelivery and
// parked here for manual review instead of being dropped.
type UnresolvedEvent struct {
	ID                uuid.UUID        `json:"id"`
	Channel           contacts.Channel `json:"channel"`
	ExternalMessageID string           `json:"external_message_id"`
	SenderExternalID  string           `json:"sender_external_id"`
	Content           string           `json:"content"`
	Reason            string           `json:"reason"`
	Reviewed          bool             `json:"reviewed"`
	CreatedAt         time.Time        `json:"created_at"`
}

// ReviewQueue stores unresolved events for agents to triage.
type ReviewQueue interface {
	Enqueue(ctx context.Context, ev *UnresolvedEvent) error
	ListPending(ctx context.Context) ([]*UnresolvedEvent, error)
	MarkReviewed(ctx context.Context, id uuid.UUID) error
}

// InMemoryReviewQueue is the queue used by tests and local development.
type InMemoryReviewQueue struct {
	mu     sync.Mutex
	events map[uuid.UUID]*UnresolvedEvent
}

// NewInMemoryReviewQueue creates an empty queue.
func NewInMemoryReviewQueue() *InMemoryReviewQueue {
	return &InMemoryReviewQueue{events: make(map[uuid.UUID]*UnresolvedEvent)}
}

func (q *InMemoryReviewQueue) Enqueue(ctx context.Context, ev *UnresolvedEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	// Redelivery of the same unresolvable message parks it once.
	for _, existing := range q.events {
		if existing.ExternalMessageID == ev.ExternalMessageID && existing.Channel == ev.Channel {
			*ev = *existing
			return nil
		}
	}
	cp := *ev
	q.events[ev.ID] = &cp
	return nil
}

func (q *InMemoryReviewQueue) ListPending(ctx context.Context) ([]*UnresolvedEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var result []*UnresolvedEvent
	for _, ev := range q.events {
		if !ev.Reviewed {
			cp := *ev
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (q *InMemoryReviewQueue) MarkReviewed(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ev, ok := q.events[id]
	if !ok {
		return ErrEventNotFound
	}
	ev.Reviewed = true
	return nil
}

// PgxPool is the subset of pgxpool.Pool the queue needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresReviewQueue persists unresolved events.
type PostgresReviewQueue struct {
	pool PgxPool
}

// NewPostgresReviewQueue initializes a queue backed by pgxpool.
func NewPostgresReviewQueue(pool PgxPool) *PostgresReviewQueue {
	if pool == nil {
		panic("ingest: pgx pool required")
	}
	return &PostgresReviewQueue{pool: pool}
}

func (q *PostgresReviewQueue) Enqueue(ctx context.Context, ev *UnresolvedEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	query := `
		INSERT INTO unresolved_events (id, channel, external_message_id, sender_external_id, content, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel, external_message_id) DO NOTHING
	`
	if _, err := q.pool.Exec(ctx, query,
		ev.ID, ev.Channel, ev.ExternalMessageID, ev.SenderExternalID, ev.Content, ev.Reason); err != nil {
		return fmt.Errorf("ingest: enqueue unresolved event: %w", err)
	}
	return nil
}

func (q *PostgresReviewQueue) ListPending(ctx context.Context) ([]*UnresolvedEvent, error) {
	query := `
		SELECT id, channel, external_message_id, sender_external_id, content, reason, reviewed, created_at
		FROM unresolved_events
		WHERE NOT reviewed
		ORDER BY created_at, id
	`
	rows, err := q.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ingest: list unresolved events: %w", err)
	}
	defer rows.Close()
	var result []*UnresolvedEvent
	for rows.Next() {
		var ev UnresolvedEvent
		if err := rows.Scan(&ev.ID, &ev.Channel, &ev.ExternalMessageID, &ev.SenderExternalID,
			&ev.Content, &ev.Reason, &ev.Reviewed, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("ingest: scan unresolved event: %w", err)
		}
		result = append(result, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ingest: iterate unresolved events: %w", err)
	}
	return result, nil
}

func (q *PostgresReviewQueue) MarkReviewed(ctx context.Context, id uuid.UUID) error {
	ct, err := q.pool.Exec(ctx, `UPDATE unresolved_events SET reviewed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ingest: mark reviewed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}
