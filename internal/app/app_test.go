package app

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/config"
	"github.com/utafrali/ordercore/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenMemory_Seed(t *testing.T) {
	db, err := openMemory("testdata/seed.json")
	require.NoError(t, err)

	store := db.Store()
	ctx := context.Background()

	p, err := store.Inventory.GetProduct(ctx, "prod-kbd-01")
	require.NoError(t, err)
	assert.Equal(t, 40, p.StockQty)
	assert.Equal(t, int64(459900), p.Price)

	a, err := store.Addresses.GetByID(ctx, "addr-blr-1")
	require.NoError(t, err)
	assert.Equal(t, "KA", a.State)

	c, err := store.Coupons.GetByCode(ctx, "WELCOME10")
	require.NoError(t, err)
	assert.Equal(t, domain.CouponTypePercentage, c.Type)
}

func TestOpenMemory_NoSeed(t *testing.T) {
	db, err := openMemory("")
	require.NoError(t, err)
	assert.NotNil(t, db)

	_, err = openMemory("testdata/missing.json")
	assert.Error(t, err)
}

func TestGatewayRegistry(t *testing.T) {
	cfg := &config.Config{
		EnabledGateways:       []string{domain.GatewayStripe, domain.GatewayRazorpay},
		RazorpayWebhookSecret: "rzp_secret",
	}

	reg := gatewayRegistry(cfg, discardLogger())

	assert.Equal(t, []string{domain.GatewayRazorpay}, reg.Gateways())
	_, err := reg.Get(domain.GatewayStripe)
	assert.ErrorIs(t, err, domain.ErrUnsupportedGateway)

	cfg.StripeWebhookSecret = "whsec_x"
	cfg.EnabledGateways = []string{domain.GatewayStripe}
	reg = gatewayRegistry(cfg, discardLogger())
	assert.Equal(t, []string{domain.GatewayStripe}, reg.Gateways())
}

func TestStartWorkers_StopWaitsForWorkers(t *testing.T) {
	var finished atomic.Int32
	worker := func(ctx context.Context) {
		<-ctx.Done()
		// Simulate a worker finishing its in-flight batch.
		time.Sleep(20 * time.Millisecond)
		finished.Add(1)
	}

	stop := startWorkers(context.Background(), worker, worker, worker)
	assert.Equal(t, int32(0), finished.Load())

	stop()
	assert.Equal(t, int32(3), finished.Load(), "stop returns only after every worker exited")
}

func TestStartWorkers_ParentCancelStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})

	stop := startWorkers(ctx, func(ctx context.Context) {
		<-ctx.Done()
		close(exited)
	})
	cancel()

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after parent context was canceled")
	}
	stop()
}
