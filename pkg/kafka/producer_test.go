package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type orderCreatedData struct {
	OrderID    string `json:"order_id"`
	GrandTotal int64  `json:"grand_total"`
}

func TestNewEvent_Defaults(t *testing.T) {
	data := orderCreatedData{OrderID: "ord-123", GrandTotal: 4999}
	event, err := NewEvent("order.created", "ord-123", "order", "ordercore", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "order.created", event.EventType)
	assert.Equal(t, "ord-123", event.AggregateID)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got orderCreatedData
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, data, got)
}

func TestNewEvent_Options(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	event, err := NewEvent("order.confirmed", "ord-1", "order", "ordercore", nil,
		WithEventID("outbox-7"), WithTimestamp(at))
	require.NoError(t, err)
	assert.Equal(t, "outbox-7", event.EventID)
	assert.Equal(t, at, event.Timestamp)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("order.created", "ord-1", "order", "ordercore", make(chan int))
	require.Error(t, err)
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	original, err := NewEvent("order.cancelled", "ord-9", "order", "ordercore", map[string]string{"reason": "auto_cancel"})
	require.NoError(t, err)
	original.WithCorrelationID("corr-abc").WithMetadata("actor", "system")

	raw, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, "corr-abc", restored.CorrelationID)
	assert.Equal(t, "system", restored.Metadata["actor"])
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	_, err := UnmarshalEvent([]byte("{not json"))
	assert.Error(t, err)
	_, err = UnmarshalEvent(nil)
	assert.Error(t, err)
}

func TestEvent_WithMetadata_NilMap(t *testing.T) {
	e := &Event{}
	e.WithMetadata("k", "v")
	assert.Equal(t, "v", e.Metadata["k"])
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "ecommerce.order.created", Topic("order", "created"))
	assert.Equal(t, "ecommerce.payment.succeeded", Topic("payment", "succeeded"))
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"kafka:9092"})
	assert.Equal(t, []string{"kafka:9092"}, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.False(t, cfg.Async)
}

func TestProducer_Publish_WritesKeyedMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	w := &fakeWriter{}
	p := &Producer{writer: w, logger: testLogger()}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	event, err := NewEvent("order.created", "ord-1", "order", "ordercore", orderCreatedData{OrderID: "ord-1"}, WithEventID("evt-1"))
	require.NoError(t, err)
	event.WithCorrelationID("req-1")

	require.NoError(t, p.Publish(ctx, "ecommerce.order.created", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ecommerce.order.created", msg.Topic)
	assert.Equal(t, "ord-1", string(msg.Key))
	assert.Equal(t, "evt-1", headerValue(msg, "event_id"))
	assert.Equal(t, "req-1", headerValue(msg, "correlation_id"))
	assert.Contains(t, headerValue(msg, "traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "evt-1", decoded.EventID)
}

func TestProducer_Publish_WriteError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("broker down")}, logger: testLogger()}
	event, err := NewEvent("order.created", "ord-1", "order", "ordercore", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "ecommerce.order.created", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ecommerce.order.created")
}

func TestNewProducer_DoesNotConnect(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
