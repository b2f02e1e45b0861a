package memory

import (
	"context"
	"sort"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// OutboxRepository implements repository.OutboxRepository.
type OutboxRepository struct {
	db *DB
}

func (r *OutboxRepository) Append(_ context.Context, ev *domain.OutboxEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c := *ev
	if c.Status == "" {
		c.Status = domain.OutboxStatusPending
	}
	r.db.outbox[ev.ID] = &c
	return nil
}

func (r *OutboxRepository) ClaimDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]domain.OutboxEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var due []*domain.OutboxEvent
	for _, ev := range r.db.outbox {
		if ev.Status == domain.OutboxStatusPending && !ev.AvailableAt.After(now) {
			due = append(due, ev)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]domain.OutboxEvent, 0, len(due))
	for _, ev := range due {
		ev.AvailableAt = now.Add(lease)
		out = append(out, *ev)
	}
	return out, nil
}

func (r *OutboxRepository) update(id string, fn func(ev *domain.OutboxEvent)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	ev, ok := r.db.outbox[id]
	if !ok {
		return apperrors.NotFound("outbox event", id)
	}
	fn(ev)
	return nil
}

func (r *OutboxRepository) MarkDone(_ context.Context, id string) error {
	return r.update(id, func(ev *domain.OutboxEvent) {
		ev.Status = domain.OutboxStatusDone
	})
}

func (r *OutboxRepository) MarkRetry(_ context.Context, id string, attempts int, availableAt time.Time, lastErr string) error {
	return r.update(id, func(ev *domain.OutboxEvent) {
		ev.Attempts = attempts
		ev.AvailableAt = availableAt
		ev.LastError = lastErr
	})
}

func (r *OutboxRepository) MarkDead(_ context.Context, id string, attempts int, lastErr string) error {
	return r.update(id, func(ev *domain.OutboxEvent) {
		ev.Status = domain.OutboxStatusDead
		ev.Attempts = attempts
		ev.LastError = lastErr
	})
}

func (r *OutboxRepository) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	delete(r.db.outbox, id)
	return nil
}

// Events returns a snapshot of every outbox event, oldest first.
func (r *OutboxRepository) Events() []domain.OutboxEvent {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]domain.OutboxEvent, 0, len(r.db.outbox))
	for _, ev := range r.db.outbox {
		out = append(out, *ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
