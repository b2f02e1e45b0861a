package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/payment"
	"github.com/utafrali/ordercore/internal/pricing"
	"github.com/utafrali/ordercore/internal/repository"
	"github.com/utafrali/ordercore/internal/repository/compensating"
	"github.com/utafrali/ordercore/internal/repository/memory"
	redisrepo "github.com/utafrali/ordercore/internal/repository/redis"
)

const razorpaySecret = "rzp_test_secret"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSettings() domain.Settings {
	return domain.Settings{
		CODEnabled:       true,
		EnabledGateways:  map[string]bool{domain.GatewayStripe: true, domain.GatewayRazorpay: true},
		Currency:         "INR",
		Shipping:         domain.ShippingPolicy{FlatRate: 50, FreeShippingAbove: 1000},
		CouponLockTTL:    time.Minute,
		AutoCancelOnline: 30 * time.Minute,
		AutoCancelCOD:    48 * time.Hour,
	}
}

// fixture wires the services to the in-memory store behind the compensating
// unit of work, with carts and coupon locks in miniredis.
type fixture struct {
	db       *memory.DB
	store    repository.Store
	mr       *miniredis.Miniredis
	carts    *redisrepo.CartRepository
	locker   *redisrepo.CouponLock
	uow      *compensating.UnitOfWork
	orders   *OrderService
	recon    *Reconciler
	razorpay *payment.RazorpayVerifier
}

func newFixture(t *testing.T, settings domain.Settings) *fixture {
	t.Helper()

	db := memory.NewDB()
	db.PutProduct(domain.Product{ID: "p-1", Name: "Widget", SKU: "WID-1", Price: 100, HSNCode: "8471", Status: domain.ProductStatusActive, StockQty: 100})
	db.PutProduct(domain.Product{ID: "p-2", Name: "Gadget", SKU: "GAD-1", Price: 250, HSNCode: "8517", Status: domain.ProductStatusActive, StockQty: 3})
	db.PutProduct(domain.Product{ID: "p-off", Name: "Retired", SKU: "RET-1", Price: 10, Status: domain.ProductStatusInactive, StockQty: 10})
	db.PutAddress(domain.Address{ID: "addr-1", UserID: "u-1", FullName: "Asha Rao", AddressLine: "12 MG Road", City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "IN"})
	db.PutAddress(domain.Address{ID: "addr-2", UserID: "u-2", FullName: "Vikram Shah", AddressLine: "4 Marine Drive", City: "Mumbai", State: "MH", PostalCode: "400002", Country: "IN"})
	db.PutCoupon(domain.Coupon{ID: "c-once", Code: "WELCOME", Type: domain.CouponTypeFixed, Value: 20, Active: true, SingleUse: true})

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := db.Store()
	uow := compensating.New(store, 5*time.Second, newTestLogger())
	carts := redisrepo.NewCartRepository(client, time.Hour)
	locker := redisrepo.NewCouponLock(client)
	tax := pricing.TaxRules{OriginState: "KA"}

	rzp := payment.NewRazorpayVerifier(razorpaySecret)
	return &fixture{
		db:       db,
		store:    store,
		mr:       mr,
		carts:    carts,
		locker:   locker,
		uow:      uow,
		orders:   NewOrderService(uow, store, carts, locker, StaticSettings(settings), tax, newTestLogger()),
		recon:    NewReconciler(uow, store, payment.NewRegistry(rzp), newTestLogger()),
		razorpay: rzp,
	}
}

func (f *fixture) fillCart(t *testing.T, userID string, items ...domain.CartItem) {
	t.Helper()
	cart := domain.NewCart(userID)
	cart.Items = items
	require.NoError(t, f.carts.Save(context.Background(), cart))
}

func (f *fixture) placeCOD(t *testing.T, userID, addressID string) *domain.Order {
	t.Helper()
	o, err := f.orders.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:            userID,
		ShippingAddressID: addressID,
		BillingAddressID:  addressID,
		PaymentMethod:     domain.PaymentMethodCOD,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) placeGateway(t *testing.T, userID, addressID, ref string) *domain.Order {
	t.Helper()
	o, err := f.orders.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:            userID,
		ShippingAddressID: addressID,
		PaymentMethod:     domain.GatewayRazorpay,
		PaymentCompleted:  true,
		PaymentRef:        ref,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) product(t *testing.T, id string) *domain.Product {
	t.Helper()
	p, err := f.store.Inventory.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) order(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := f.store.Orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) orderCount(t *testing.T) int {
	t.Helper()
	_, total, err := f.store.Orders.List(context.Background(), repository.OrderFilter{})
	require.NoError(t, err)
	return total
}

func (f *fixture) outboxEvents(eventType string) []domain.OutboxEvent {
	var out []domain.OutboxEvent
	for _, ev := range f.store.Outbox.(*memory.OutboxRepository).Events() {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fixture) couponUsedCount(t *testing.T, code string) int {
	t.Helper()
	c, err := f.store.Coupons.GetByCode(context.Background(), code)
	require.NoError(t, err)
	return c.UsedCount
}
