package notification

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/pkg/httpclient"
)

func newTestDispatcher(t *testing.T, name, url string) *Dispatcher {
	t.Helper()
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 2 * time.Second
	cbCfg := httpclient.DefaultCircuitBreakerConfig(name)
	cbCfg.MinRequests = 2
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(httpclient.NewCircuitBreakerClient(httpclient.New(cfg), cbCfg, logger), url+"/", logger)
}

func TestDispatcher_Notify(t *testing.T) {
	var got SendRequest
	var key, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get(IdempotencyHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, "notification-test-ok", srv.URL)
	err := d.Notify(context.Background(), "ev-1", domain.EventOrderRefunded, domain.OrderEventPayload{
		OrderID:      "o-1",
		OrderNumber:  "ORD-20260301-0A1B2C3D",
		UserID:       "u-1",
		Status:       domain.OrderStatusRefunded,
		RefundAmount: 12345,
		Currency:     "INR",
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/notifications", path)
	assert.Equal(t, "ev-1", key)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, "email", got.Type)
	assert.Equal(t, "Refund for order ORD-20260301-0A1B2C3D", got.Subject)
	assert.Contains(t, got.Body, "123.45 INR")
	assert.Equal(t, "o-1", got.Metadata["order_id"])
}

func TestDispatcher_ServerErrorsOpenTheBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, "notification-test-5xx", srv.URL)
	p := domain.OrderEventPayload{OrderID: "o-1", OrderNumber: "ORD-1", UserID: "u-1"}
	for i := 0; i < 2; i++ {
		assert.Error(t, d.Notify(context.Background(), "ev", domain.EventOrderShipped, p))
	}

	err := d.Notify(context.Background(), "ev", domain.EventOrderShipped, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, httpclient.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBuildRequest(t *testing.T) {
	p := domain.OrderEventPayload{OrderNumber: "ORD-9", Status: domain.OrderStatusCancelled, Reason: "payment failed", GrandTotal: 5000, Currency: "INR"}

	cancelled := buildRequest(domain.EventOrderCancelled, p)
	assert.Equal(t, "high", cancelled.Priority)
	assert.Contains(t, cancelled.Body, "payment failed")

	confirmed := buildRequest(domain.EventOrderConfirmed, p)
	assert.Contains(t, confirmed.Body, "50.00 INR")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.05", formatAmount(5))
	assert.Equal(t, "1000.00", formatAmount(100000))
	assert.Equal(t, "-2.50", formatAmount(-250))
}
