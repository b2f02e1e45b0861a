package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/pkg/database"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// WebhookRepository implements repository.WebhookRepository using PostgreSQL.
type WebhookRepository struct {
	pool database.DBTX
}

// NewWebhookRepository creates a new PostgreSQL-backed webhook log.
func NewWebhookRepository(pool database.DBTX) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

// Insert records a webhook delivery. A repeated dedup key yields ErrAlreadyExists.
func (r *WebhookRepository) Insert(ctx context.Context, rec *domain.WebhookRecord) error {
	query := `
		INSERT INTO webhook_events (id, dedup_key, gateway, event_type, order_id, outcome, event, received_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.DedupKey,
		rec.Gateway,
		rec.EventType,
		rec.OrderID,
		rec.Outcome,
		[]byte(rec.Event),
		rec.ReceivedAt,
		rec.ResolvedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("webhook event", "dedup_key", rec.DedupKey)
		}
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// ListUnmatched returns the oldest deliveries that matched no order.
func (r *WebhookRepository) ListUnmatched(ctx context.Context, limit int) ([]domain.WebhookRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, dedup_key, gateway, event_type, order_id, outcome, event, received_at, resolved_at
		FROM webhook_events
		WHERE outcome = $1
		ORDER BY received_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, domain.WebhookOutcomeUnmatched, limit)
	if err != nil {
		return nil, fmt.Errorf("list unmatched webhook events: %w", err)
	}
	defer rows.Close()

	records := []domain.WebhookRecord{}
	for rows.Next() {
		var (
			rec   domain.WebhookRecord
			event []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.DedupKey,
			&rec.Gateway,
			&rec.EventType,
			&rec.OrderID,
			&rec.Outcome,
			&event,
			&rec.ReceivedAt,
			&rec.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook event row: %w", err)
		}
		rec.Event = event
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook event rows: %w", err)
	}
	return records, nil
}

// Resolve marks an unmatched delivery as applied to orderID.
func (r *WebhookRepository) Resolve(ctx context.Context, id, orderID string, at time.Time) error {
	query := `
		UPDATE webhook_events
		SET outcome = $2, order_id = $3, resolved_at = $4
		WHERE id = $1 AND outcome = $5`

	ct, err := r.pool.Exec(ctx, query, id, domain.WebhookOutcomeResolved, orderID, at, domain.WebhookOutcomeUnmatched)
	if err != nil {
		return fmt.Errorf("resolve webhook event: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("unmatched webhook event", id)
	}
	return nil
}

// Reopen puts a resolved delivery back in the unmatched queue.
func (r *WebhookRepository) Reopen(ctx context.Context, id string) error {
	query := `UPDATE webhook_events SET outcome = $2, resolved_at = NULL WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, domain.WebhookOutcomeUnmatched); err != nil {
		return fmt.Errorf("reopen webhook event: %w", err)
	}
	return nil
}

// Delete removes a delivery record.
func (r *WebhookRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM webhook_events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete webhook event: %w", err)
	}
	return nil
}
