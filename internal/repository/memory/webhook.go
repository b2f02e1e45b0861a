package memory

import (
	"context"
	"sort"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// WebhookRepository implements repository.WebhookRepository.
type WebhookRepository struct {
	db *DB
}

func (r *WebhookRepository) Insert(_ context.Context, rec *domain.WebhookRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.webhookKeys[rec.DedupKey]; ok {
		return apperrors.AlreadyExists("webhook event", "dedup_key", rec.DedupKey)
	}
	c := *rec
	r.db.webhooks[rec.ID] = &c
	r.db.webhookKeys[rec.DedupKey] = rec.ID
	return nil
}

func (r *WebhookRepository) ListUnmatched(_ context.Context, limit int) ([]domain.WebhookRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []domain.WebhookRecord
	for _, rec := range r.db.webhooks {
		if rec.Outcome == domain.WebhookOutcomeUnmatched {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *WebhookRepository) Resolve(_ context.Context, id, orderID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	rec, ok := r.db.webhooks[id]
	if !ok || rec.Outcome != domain.WebhookOutcomeUnmatched {
		return apperrors.NotFound("unmatched webhook event", id)
	}
	rec.Outcome = domain.WebhookOutcomeResolved
	rec.OrderID = orderID
	rec.ResolvedAt = &at
	return nil
}

func (r *WebhookRepository) Reopen(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if rec, ok := r.db.webhooks[id]; ok {
		rec.Outcome = domain.WebhookOutcomeUnmatched
		rec.ResolvedAt = nil
	}
	return nil
}

func (r *WebhookRepository) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if rec, ok := r.db.webhooks[id]; ok {
		delete(r.db.webhookKeys, rec.DedupKey)
		delete(r.db.webhooks, id)
	}
	return nil
}
