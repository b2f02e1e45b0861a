package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/pkg/database"
)

const outboxColumns = `id, aggregate_id, event_type, payload, status, attempts, last_error, available_at, created_at`

// OutboxRepository implements repository.OutboxRepository using PostgreSQL.
type OutboxRepository struct {
	pool database.DBTX
}

// NewOutboxRepository creates a new PostgreSQL-backed outbox.
func NewOutboxRepository(pool database.DBTX) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Append stores an event in the same transaction as the change it describes.
func (r *OutboxRepository) Append(ctx context.Context, ev *domain.OutboxEvent) error {
	query := `INSERT INTO outbox_events (` + outboxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		ev.ID,
		ev.AggregateID,
		ev.EventType,
		[]byte(ev.Payload),
		ev.Status,
		ev.Attempts,
		ev.LastError,
		ev.AvailableAt,
		ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

// ClaimDue leases up to limit pending events that are due at now by pushing
// their availability past the lease. Concurrent relays skip each other's rows.
func (r *OutboxRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) (events []domain.OutboxEvent, err error) {
	query := `
		UPDATE outbox_events o
		SET available_at = $3
		FROM (
			SELECT id FROM outbox_events
			WHERE status = $4 AND available_at <= $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) due
		WHERE o.id = due.id
		RETURNING o.id, o.aggregate_id, o.event_type, o.payload, o.status, o.attempts, o.last_error, o.available_at, o.created_at`

	ctx, end := database.TraceQuery(ctx, "outbox.ClaimDue", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, now, limit, now.Add(lease), domain.OutboxStatusPending)
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	defer rows.Close()

	events = []domain.OutboxEvent{}
	for rows.Next() {
		var (
			ev      domain.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(
			&ev.ID,
			&ev.AggregateID,
			&ev.EventType,
			&payload,
			&ev.Status,
			&ev.Attempts,
			&ev.LastError,
			&ev.AvailableAt,
			&ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox event row: %w", err)
		}
		ev.Payload = payload
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox event rows: %w", err)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

// MarkDone records successful delivery.
func (r *OutboxRepository) MarkDone(ctx context.Context, id string) error {
	query := `UPDATE outbox_events SET status = $2, last_error = '' WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, domain.OutboxStatusDone); err != nil {
		return fmt.Errorf("mark outbox event done: %w", err)
	}
	return nil
}

// MarkRetry schedules another delivery attempt.
func (r *OutboxRepository) MarkRetry(ctx context.Context, id string, attempts int, availableAt time.Time, lastErr string) error {
	query := `UPDATE outbox_events SET attempts = $2, available_at = $3, last_error = $4 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, attempts, availableAt, lastErr); err != nil {
		return fmt.Errorf("mark outbox event retry: %w", err)
	}
	return nil
}

// MarkDead stops delivery attempts for an event.
func (r *OutboxRepository) MarkDead(ctx context.Context, id string, attempts int, lastErr string) error {
	query := `UPDATE outbox_events SET status = $2, attempts = $3, last_error = $4 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, domain.OutboxStatusDead, attempts, lastErr); err != nil {
		return fmt.Errorf("mark outbox event dead: %w", err)
	}
	return nil
}

// Delete removes an event.
func (r *OutboxRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM outbox_events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete outbox event: %w", err)
	}
	return nil
}
