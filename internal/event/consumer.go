package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	pkgkafka "github.com/utafrali/ordercore/pkg/kafka"
)

// Topics consumed from the payment service.
const (
	TopicPaymentSucceeded = "ecommerce.payment.succeeded"
	TopicPaymentFailed    = "ecommerce.payment.failed"
)

// ConsumerGroupID is the consumer group of order core.
const ConsumerGroupID = "order-core"

// PaymentSucceededData is the payload of a payment.succeeded event.
type PaymentSucceededData struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Method        string `json:"method"`
	ProviderName  string `json:"provider_name"`
	ProviderPayID string `json:"provider_payment_id"`
}

// PaymentFailedData is the payload of a payment.failed event.
type PaymentFailedData struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_reason"`
}

// PaymentProcessor applies a normalized payment event.
type PaymentProcessor interface {
	Process(ctx context.Context, ev *domain.PaymentEvent) (string, error)
}

// PaymentConsumer feeds payment service events into the reconciler.
type PaymentConsumer struct {
	processor PaymentProcessor
	logger    *slog.Logger
}

// NewPaymentConsumer creates a new PaymentConsumer.
func NewPaymentConsumer(processor PaymentProcessor, logger *slog.Logger) *PaymentConsumer {
	return &PaymentConsumer{processor: processor, logger: logger}
}

// Handle processes an incoming Kafka event based on its event type.
func (c *PaymentConsumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	ev, err := toPaymentEvent(event)
	if err != nil {
		return err
	}
	if ev == nil {
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	outcome, err := c.processor.Process(ctx, ev)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", event.EventType, err)
	}
	c.logger.InfoContext(ctx, "payment event consumed",
		slog.String("event_id", event.EventID),
		slog.String("event_type", event.EventType),
		slog.String("order_id", ev.OrderID),
		slog.String("outcome", outcome),
	)
	return nil
}

// toPaymentEvent returns nil for event types order core does not act on.
func toPaymentEvent(event *pkgkafka.Event) (*domain.PaymentEvent, error) {
	ev := &domain.PaymentEvent{
		Gateway:    domain.GatewayInternal,
		EventID:    event.EventID,
		RawType:    event.EventType,
		OccurredAt: event.Timestamp,
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	switch event.EventType {
	case TopicPaymentSucceeded:
		var data PaymentSucceededData
		if err := event.UnmarshalData(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		ev.Kind = domain.PaymentEventSucceeded
		ev.OrderID = data.OrderID
		ev.PaymentRef = data.ID
		ev.Amount = data.Amount
		ev.Currency = data.Currency
	case TopicPaymentFailed:
		var data PaymentFailedData
		if err := event.UnmarshalData(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.EventType, err)
		}
		ev.Kind = domain.PaymentEventFailed
		ev.OrderID = data.OrderID
		ev.PaymentRef = data.ID
		ev.Currency = data.Currency
		ev.Reason = data.FailureReason
	default:
		return nil, nil
	}
	return ev, nil
}

// NewPaymentConsumers creates one consumer per payment topic. handler is
// usually PaymentConsumer.Handle wrapped by pkgkafka.IdempotentHandler.
func NewPaymentConsumers(brokers []string, handler pkgkafka.Handler, logger *slog.Logger) []*pkgkafka.Consumer {
	topics := []string{TopicPaymentSucceeded, TopicPaymentFailed}

	consumers := make([]*pkgkafka.Consumer, 0, len(topics))
	for _, topic := range topics {
		cfg := pkgkafka.ConsumerConfig{
			Brokers:   brokers,
			GroupID:   ConsumerGroupID,
			Topic:     topic,
			MinBytes:  1,
			MaxBytes:  10e6,
			EnableDLQ: true,
		}
		consumers = append(consumers, pkgkafka.NewConsumer(cfg, handler, logger))
	}
	return consumers
}
