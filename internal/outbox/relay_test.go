package outbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository/memory"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRelay(t *testing.T, cfg Config) (*Relay, *memory.OutboxRepository, *time.Time) {
	t.Helper()
	repo := memory.NewDB().Store().Outbox.(*memory.OutboxRepository)
	r := NewRelay(repo, cfg, newTestLogger())
	clock := epoch
	r.now = func() time.Time { return clock }
	return r, repo, &clock
}

func appendEvent(t *testing.T, repo *memory.OutboxRepository, id, eventType string, at time.Time) {
	t.Helper()
	require.NoError(t, repo.Append(context.Background(), &domain.OutboxEvent{
		ID:          id,
		AggregateID: "o-" + id,
		EventType:   eventType,
		Payload:     []byte(`{}`),
		AvailableAt: at,
		CreatedAt:   at,
	}))
}

func eventByID(t *testing.T, repo *memory.OutboxRepository, id string) domain.OutboxEvent {
	t.Helper()
	for _, ev := range repo.Events() {
		if ev.ID == id {
			return ev
		}
	}
	t.Fatalf("outbox event %s not found", id)
	return domain.OutboxEvent{}
}

func TestRelay_RunOnceDeliversToEveryHandler(t *testing.T) {
	r, repo, _ := newTestRelay(t, DefaultConfig())
	appendEvent(t, repo, "e1", domain.EventOrderCreated, epoch.Add(-time.Second))
	appendEvent(t, repo, "e2", domain.EventOrderConfirmed, epoch)
	appendEvent(t, repo, "later", domain.EventOrderShipped, epoch.Add(time.Minute))

	var first, second []string
	r.Register("first", func(_ context.Context, ev domain.OutboxEvent) error {
		first = append(first, ev.ID)
		return nil
	})
	r.Register("second", func(_ context.Context, ev domain.OutboxEvent) error {
		second = append(second, ev.ID)
		return nil
	})

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"e1", "e2"}, first)
	assert.Equal(t, []string{"e1", "e2"}, second)
	assert.Equal(t, domain.OutboxStatusDone, eventByID(t, repo, "e1").Status)
	assert.Equal(t, domain.OutboxStatusPending, eventByID(t, repo, "later").Status)

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "delivered events are not claimed again")
}

func TestRelay_FailedHandlerRetriesWithBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseBackoff = 10 * time.Second
	r, repo, clock := newTestRelay(t, cfg)
	appendEvent(t, repo, "e1", domain.EventOrderCancelled, epoch)

	calls := 0
	r.Register("ok", func(context.Context, domain.OutboxEvent) error { return nil })
	r.Register("flaky", func(context.Context, domain.OutboxEvent) error {
		calls++
		if calls < 3 {
			return errors.New("downstream unavailable")
		}
		return nil
	})

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	ev := eventByID(t, repo, "e1")
	assert.Equal(t, domain.OutboxStatusPending, ev.Status)
	assert.Equal(t, 1, ev.Attempts)
	assert.Equal(t, epoch.Add(10*time.Second), ev.AvailableAt)
	assert.Contains(t, ev.LastError, "flaky: downstream unavailable")

	*clock = epoch.Add(5 * time.Second)
	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "not due before the backoff elapses")
	assert.Equal(t, 1, calls)

	*clock = epoch.Add(10 * time.Second)
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	ev = eventByID(t, repo, "e1")
	assert.Equal(t, 2, ev.Attempts)
	assert.Equal(t, clock.Add(20*time.Second), ev.AvailableAt)

	*clock = ev.AvailableAt
	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.OutboxStatusDone, eventByID(t, repo, "e1").Status)
}

func TestRelay_ExhaustedEventGoesDead(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	r, repo, clock := newTestRelay(t, cfg)
	appendEvent(t, repo, "e1", domain.EventOrderRefunded, epoch)
	r.Register("broken", func(context.Context, domain.OutboxEvent) error { return errors.New("boom") })

	_, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	*clock = eventByID(t, repo, "e1").AvailableAt
	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)

	ev := eventByID(t, repo, "e1")
	assert.Equal(t, domain.OutboxStatusDead, ev.Status)
	assert.Equal(t, 2, ev.Attempts)

	*clock = epoch.Add(time.Hour)
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_ClaimedEventsAreLeased(t *testing.T) {
	r, repo, _ := newTestRelay(t, DefaultConfig())
	appendEvent(t, repo, "e1", domain.EventOrderCreated, epoch)

	claimed, err := repo.ClaimDue(context.Background(), epoch, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	delivered := 0
	r.Register("count", func(context.Context, domain.OutboxEvent) error {
		delivered++
		return nil
	})
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, delivered, "another relay holds the lease")
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 10, want: time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(time.Second, time.Minute, tt.attempt), "attempt %d", tt.attempt)
	}
}
