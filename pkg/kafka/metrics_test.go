package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Registered(t *testing.T) {
	ConsumerMessagesReceived.WithLabelValues("reg-topic", "reg-group")
	ConsumerMessagesProcessed.WithLabelValues("reg-topic", "reg-group")
	ConsumerMessagesFailed.WithLabelValues("reg-topic", "reg-group")
	ConsumerMessagesDuplicate.WithLabelValues("reg-topic", "reg-group")
	ConsumerDLQPublished.WithLabelValues("reg-topic", "reg-group")
	ConsumerProcessingDuration.WithLabelValues("reg-topic", "reg-group")
	ProducerMessagesPublished.WithLabelValues("reg-topic")
	ProducerPublishErrors.WithLabelValues("reg-topic")
	ProducerPublishDuration.WithLabelValues("reg-topic")

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}

	for _, name := range []string{
		"kafka_consumer_messages_received_total",
		"kafka_consumer_messages_processed_total",
		"kafka_consumer_messages_failed_total",
		"kafka_consumer_messages_duplicate_total",
		"kafka_consumer_dlq_published_total",
		"kafka_consumer_processing_duration_seconds",
		"kafka_producer_messages_published_total",
		"kafka_producer_publish_errors_total",
		"kafka_producer_publish_duration_seconds",
	} {
		assert.True(t, names[name], "expected metric %q to be registered", name)
	}
}

func TestConsumerMetrics_CountDuplicates(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	h := IdempotentHandler(store, func(context.Context, *Event) error { return nil }, testLogger())

	ctx := withDelivery(context.Background(), "dup-topic", "dup-group")
	before := testutil.ToFloat64(ConsumerMessagesDuplicate.WithLabelValues("dup-topic", "dup-group"))
	require.NoError(t, h(ctx, testEvent("dup-1")))
	require.NoError(t, h(ctx, testEvent("dup-1")))
	after := testutil.ToFloat64(ConsumerMessagesDuplicate.WithLabelValues("dup-topic", "dup-group"))
	assert.Equal(t, before+1, after)
}
