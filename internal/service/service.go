package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

const tracerName = "github.com/utafrali/ordercore/internal/service"

var (
	ordersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed by payment method",
	}, []string{"payment_method"})

	placementFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_placement_failures_total",
		Help: "Total number of rejected order placements by error code",
	}, []string{"code"})

	orderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of order status transitions",
	}, []string{"from", "to"})

	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Total number of verified payment events by outcome",
	}, []string{"gateway", "outcome"})
)

// SettingsProvider returns the configuration snapshot one request runs against.
type SettingsProvider interface {
	Current(ctx context.Context) (domain.Settings, error)
}

// StaticSettings serves a fixed snapshot loaded at startup.
type StaticSettings domain.Settings

func (s StaticSettings) Current(context.Context) (domain.Settings, error) {
	return domain.Settings(s), nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// appendOrderEvent writes an order.* event to the outbox of store. edit, if
// non-nil, may add event-specific fields to the payload.
func appendOrderEvent(ctx context.Context, store repository.Store, o *domain.Order, eventType, previousStatus string, now time.Time, edit func(p *domain.OrderEventPayload)) error {
	payload := domain.NewOrderEventPayload(o, previousStatus)
	if edit != nil {
		edit(&payload)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	ev := &domain.OutboxEvent{
		ID:          uuid.New().String(),
		AggregateID: o.ID,
		EventType:   eventType,
		Payload:     data,
		Status:      domain.OutboxStatusPending,
		AvailableAt: now,
		CreatedAt:   now,
	}
	if err := store.Outbox.Append(ctx, ev); err != nil {
		return fmt.Errorf("append %s: %w", eventType, err)
	}
	return nil
}

// errorCode returns the AppError code of err for metrics labels.
func errorCode(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL"
}

// staleOrder converts a lost optimistic race into a 409.
func staleOrder(err error, orderID string) error {
	if errors.Is(err, domain.ErrStaleOrder) {
		return apperrors.Conflict(fmt.Sprintf("order %s was modified concurrently, retry the request", orderID))
	}
	return err
}
