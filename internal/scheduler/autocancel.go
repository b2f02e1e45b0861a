// Package scheduler runs the auto-cancel timers of unconfirmed orders on a
// Redis sorted set scored by due time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const defaultKey = "order:auto_cancel"

var timersFired = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "order_auto_cancel_timers_total",
	Help: "Total number of due auto-cancel timers by result",
}, []string{"result"})

// Canceller cancels an order whose timer came due. It reports false when the
// order no longer needed cancelling.
type Canceller interface {
	AutoCancel(ctx context.Context, orderID string) (bool, error)
}

// Config holds the poller settings.
type Config struct {
	Key          string
	PollInterval time.Duration
	BatchSize    int64
	// RetryDelay pushes a timer back when its cancellation failed.
	RetryDelay time.Duration
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		Key:          defaultKey,
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		RetryDelay:   30 * time.Second,
	}
}

// AutoCancelScheduler stores timers in Redis. Several instances may poll the
// same key; ZREM decides which one fires a timer.
type AutoCancelScheduler struct {
	client redis.Cmdable
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a scheduler on client.
func New(client redis.Cmdable, cfg Config, logger *slog.Logger) *AutoCancelScheduler {
	def := DefaultConfig()
	if cfg.Key == "" {
		cfg.Key = def.Key
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	return &AutoCancelScheduler{client: client, cfg: cfg, logger: logger, now: time.Now}
}

// Schedule arms the timer of orderID for at, replacing an earlier one.
func (s *AutoCancelScheduler) Schedule(ctx context.Context, orderID string, at time.Time) error {
	err := s.client.ZAdd(ctx, s.cfg.Key, redis.Z{Score: float64(at.UnixMilli()), Member: orderID}).Err()
	if err != nil {
		return fmt.Errorf("redis schedule auto-cancel %s: %w", orderID, err)
	}
	return nil
}

// Cancel disarms the timer of orderID. A missing timer is not an error.
func (s *AutoCancelScheduler) Cancel(ctx context.Context, orderID string) error {
	if err := s.client.ZRem(ctx, s.cfg.Key, orderID).Err(); err != nil {
		return fmt.Errorf("redis cancel auto-cancel %s: %w", orderID, err)
	}
	return nil
}

// Run polls for due timers until ctx is cancelled.
func (s *AutoCancelScheduler) Run(ctx context.Context, c Canceller) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx, c); err != nil && ctx.Err() == nil {
				s.logger.Error("auto-cancel poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce fires every timer due now and returns how many orders were
// cancelled.
func (s *AutoCancelScheduler) RunOnce(ctx context.Context, c Canceller) (int, error) {
	now := s.now()
	due, err := s.client.ZRangeByScore(ctx, s.cfg.Key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: s.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list due auto-cancels: %w", err)
	}

	cancelled := 0
	for _, orderID := range due {
		won, err := s.client.ZRem(ctx, s.cfg.Key, orderID).Result()
		if err != nil {
			return cancelled, fmt.Errorf("redis claim auto-cancel %s: %w", orderID, err)
		}
		if won == 0 {
			continue
		}

		fired, err := c.AutoCancel(ctx, orderID)
		if err != nil {
			timersFired.WithLabelValues("error").Inc()
			s.logger.Warn("auto-cancel failed, rescheduling",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
			if rerr := s.Schedule(context.WithoutCancel(ctx), orderID, now.Add(s.cfg.RetryDelay)); rerr != nil {
				s.logger.Error("failed to reschedule auto-cancel",
					slog.String("order_id", orderID),
					slog.String("error", rerr.Error()),
				)
			}
			continue
		}
		if fired {
			cancelled++
			timersFired.WithLabelValues("cancelled").Inc()
		} else {
			timersFired.WithLabelValues("skipped").Inc()
		}
	}
	return cancelled, nil
}
