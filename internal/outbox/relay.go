// Package outbox delivers the side effects recorded next to order state
// changes. Delivery is at least once: handlers must tolerate repeats.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	"github.com/utafrali/ordercore/pkg/logger"
)

var (
	eventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_dispatched_total",
		Help: "Total number of outbox dispatch attempts by event type and result",
	}, []string{"event_type", "result"})

	handlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_failures_total",
		Help: "Total number of outbox handler failures by handler",
	}, []string{"handler"})
)

// Dispatch results.
const (
	ResultDone  = "done"
	ResultRetry = "retry"
	ResultDead  = "dead"
)

// Handler processes one outbox event.
type Handler func(ctx context.Context, ev domain.OutboxEvent) error

// Config holds relay tuning.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	// Lease hides a claimed event from other relays while it is dispatched.
	Lease       time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		BatchSize:    50,
		Lease:        30 * time.Second,
		MaxAttempts:  8,
		BaseBackoff:  time.Second,
		MaxBackoff:   5 * time.Minute,
	}
}

type namedHandler struct {
	name string
	fn   Handler
}

// Relay polls the outbox and runs every registered handler for each due event.
type Relay struct {
	repo     repository.OutboxRepository
	cfg      Config
	handlers []namedHandler
	logger   *slog.Logger
	now      func() time.Time
}

// NewRelay creates a relay over repo.
func NewRelay(repo repository.OutboxRepository, cfg Config, logger *slog.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Lease <= 0 {
		cfg.Lease = DefaultConfig().Lease
	}
	return &Relay{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register adds a handler. Handlers run in registration order.
func (r *Relay) Register(name string, fn Handler) {
	r.handlers = append(r.handlers, namedHandler{name: name, fn: fn})
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.Int("handlers", len(r.handlers)),
	)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce claims one batch of due events and dispatches it. It returns the
// number of events delivered to every handler.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.repo.ClaimDue(ctx, r.now(), r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim outbox events: %w", err)
	}

	done := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			// Unfinished events reappear when their lease runs out.
			return done, ctx.Err()
		}
		result, err := r.dispatch(ctx, ev)
		if err != nil {
			r.logger.Error("failed to record outbox result",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		eventsDispatched.WithLabelValues(ev.EventType, result).Inc()
		if result == ResultDone {
			done++
		}
	}
	return done, nil
}

func (r *Relay) dispatch(ctx context.Context, ev domain.OutboxEvent) (string, error) {
	ctx = logger.WithOrderID(ctx, ev.AggregateID)
	log := logger.WithContext(ctx, r.logger)

	var errs []error
	for _, h := range r.handlers {
		if err := h.fn(ctx, ev); err != nil {
			handlerFailures.WithLabelValues(h.name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	if len(errs) == 0 {
		return ResultDone, r.repo.MarkDone(ctx, ev.ID)
	}

	cause := errors.Join(errs...)
	attempts := ev.Attempts + 1
	log.WarnContext(ctx, "outbox_dispatch_failed",
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.EventType),
		slog.Int("attempt", attempts),
		slog.String("error", cause.Error()),
	)
	if attempts >= r.cfg.MaxAttempts {
		log.ErrorContext(ctx, "outbox event moved to dead letter",
			slog.String("event_id", ev.ID),
			slog.String("event_type", ev.EventType),
		)
		return ResultDead, r.repo.MarkDead(ctx, ev.ID, attempts, cause.Error())
	}
	next := r.now().Add(Backoff(r.cfg.BaseBackoff, r.cfg.MaxBackoff, attempts))
	return ResultRetry, r.repo.MarkRetry(ctx, ev.ID, attempts, next, cause.Error())
}

// Backoff returns the delay before retry number attempt: base doubled per
// previous attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
