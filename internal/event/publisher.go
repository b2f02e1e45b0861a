// Package event binds order core to the platform Kafka topics: outbox events
// go out as ecommerce.order.*, payment results come in from the payment
// service.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/ordercore/internal/domain"
	pkgkafka "github.com/utafrali/ordercore/pkg/kafka"
)

// Aggregate type constant.
const AggregateTypeOrder = "order"

// SourceOrderCore identifies events published by this service.
const SourceOrderCore = "order-core"

// Publisher is the part of pkgkafka.Producer the relay handler needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// OutboxPublisher is an outbox handler that republishes order events to Kafka.
type OutboxPublisher struct {
	producer Publisher
	logger   *slog.Logger
}

// NewOutboxPublisher creates a new OutboxPublisher.
func NewOutboxPublisher(producer Publisher, logger *slog.Logger) *OutboxPublisher {
	return &OutboxPublisher{producer: producer, logger: logger}
}

// OrderTopic maps an outbox event type such as order.confirmed to its topic.
func OrderTopic(eventType string) string {
	return pkgkafka.Topic(AggregateTypeOrder, strings.TrimPrefix(eventType, AggregateTypeOrder+"."))
}

// Handle publishes ev. The Kafka event id is the outbox id, so a redelivered
// row is recognisable downstream.
func (p *OutboxPublisher) Handle(ctx context.Context, ev domain.OutboxEvent) error {
	topic := OrderTopic(ev.EventType)
	event, err := pkgkafka.NewEvent(topic, ev.AggregateID, AggregateTypeOrder, SourceOrderCore,
		json.RawMessage(ev.Payload),
		pkgkafka.WithEventID(ev.ID),
		pkgkafka.WithTimestamp(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create %s event: %w", ev.EventType, err)
	}

	if err := p.producer.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.EventType, err)
	}

	p.logger.DebugContext(ctx, "published order event",
		slog.String("topic", topic),
		slog.String("event_id", ev.ID),
		slog.String("order_id", ev.AggregateID),
	)
	return nil
}
