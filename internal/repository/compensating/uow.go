// Package compensating implements repository.UnitOfWork for stores without
// multi-statement transactions. Writes go straight to the underlying store and
// each successful write records its inverse; when the work fails the inverses
// run newest first.
//
// Concurrent units of work are not isolated from each other. Correctness
// under concurrency rests on every single write being an atomic conditional
// update in the underlying store.
package compensating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/ordercore/internal/repository"
)

var compensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "uow_compensations_total",
	Help: "Compensating unit-of-work rollbacks by result.",
}, []string{"result"})

// UnitOfWork runs work against a non-transactional store.
type UnitOfWork struct {
	store   repository.Store
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a compensating unit of work. A positive timeout bounds each
// unit; work still running at the deadline is undone.
func New(store repository.Store, timeout time.Duration, logger *slog.Logger) *UnitOfWork {
	return &UnitOfWork{store: store, timeout: timeout, logger: logger}
}

// Do implements repository.UnitOfWork.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	j := &journal{}
	err := fn(ctx, j.wrap(u.store))
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("unit of work exceeded its deadline: %w", ctxErr)
		}
	}
	if err == nil {
		return nil
	}

	if cerr := j.rollback(context.WithoutCancel(ctx)); cerr != nil {
		compensationsTotal.WithLabelValues("failed").Inc()
		u.logger.ErrorContext(ctx, "compensation incomplete",
			slog.String("cause", err.Error()),
			slog.String("error", cerr.Error()),
		)
	} else if j.len() > 0 {
		compensationsTotal.WithLabelValues("ok").Inc()
	}
	return err
}

type undo struct {
	name string
	fn   func(ctx context.Context) error
}

// journal records the inverse of every write made through the wrapped store.
type journal struct {
	mu    sync.Mutex
	steps []undo
}

func (j *journal) push(name string, fn func(ctx context.Context) error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.steps = append(j.steps, undo{name: name, fn: fn})
}

func (j *journal) len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.steps)
}

// rollback runs every inverse newest first. It keeps going after a failure
// and returns all failures joined.
func (j *journal) rollback(ctx context.Context) error {
	j.mu.Lock()
	steps := j.steps
	j.steps = nil
	j.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := steps[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", steps[i].name, err))
		}
	}
	return errors.Join(errs...)
}

func (j *journal) wrap(s repository.Store) repository.Store {
	return repository.Store{
		Inventory: &inventory{InventoryRepository: s.Inventory, j: j},
		Addresses: s.Addresses,
		Coupons:   &coupons{CouponRepository: s.Coupons, j: j},
		Orders:    &orders{OrderRepository: s.Orders, j: j},
		Webhooks:  &webhooks{WebhookRepository: s.Webhooks, j: j},
		Outbox:    &outbox{OutboxRepository: s.Outbox, j: j},
	}
}
