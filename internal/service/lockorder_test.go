package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/pricing"
	"github.com/utafrali/ordercore/internal/repository"
	"github.com/utafrali/ordercore/internal/repository/compensating"
)

// recordingInventory logs every stock write as "op:productID".
type recordingInventory struct {
	repository.InventoryRepository

	mu    sync.Mutex
	calls []string
}

func (r *recordingInventory) record(op, productID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op+":"+productID)
}

func (r *recordingInventory) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

func (r *recordingInventory) Reserve(ctx context.Context, productID string, qty int, refID string) error {
	r.record("reserve", productID)
	return r.InventoryRepository.Reserve(ctx, productID, qty, refID)
}

func (r *recordingInventory) Release(ctx context.Context, productID string, qty int, refID string) (int, error) {
	r.record("release", productID)
	return r.InventoryRepository.Release(ctx, productID, qty, refID)
}

func (r *recordingInventory) Commit(ctx context.Context, productID string, qty int, refID string) error {
	r.record("commit", productID)
	return r.InventoryRepository.Commit(ctx, productID, qty, refID)
}

func (r *recordingInventory) Restock(ctx context.Context, productID string, delta int, refID string) (*domain.Product, error) {
	r.record("restock", productID)
	return r.InventoryRepository.Restock(ctx, productID, delta, refID)
}

func TestLockOrder(t *testing.T) {
	ids := []string{"p-3", "p-1", "p-2"}
	assert.Equal(t, []int{1, 2, 0}, lockOrder(len(ids), func(i int) string { return ids[i] }))
	assert.Empty(t, lockOrder(0, func(int) string { return "" }))
}

func TestStockWritesFollowProductIDOrder(t *testing.T) {
	f := newFixture(t, testSettings())
	rec := &recordingInventory{InventoryRepository: f.store.Inventory}
	store := f.store
	store.Inventory = rec
	orders := NewOrderService(compensating.New(store, 5*time.Second, newTestLogger()), store,
		f.carts, f.locker, StaticSettings(testSettings()), pricing.TaxRules{OriginState: "KA"}, newTestLogger())
	ctx := context.Background()

	place := func() *domain.Order {
		// The cart lists the higher product id first.
		f.fillCart(t, "u-1",
			domain.CartItem{ProductID: "p-2", Quantity: 1},
			domain.CartItem{ProductID: "p-1", Quantity: 1},
		)
		o, err := orders.PlaceOrder(ctx, PlaceOrderCommand{
			UserID:            "u-1",
			ShippingAddressID: "addr-1",
			PaymentMethod:     domain.PaymentMethodCOD,
		})
		require.NoError(t, err)
		return o
	}

	confirmed := place()
	assert.Equal(t, []string{"reserve:p-1", "reserve:p-2"}, rec.take())
	_, err := orders.ConfirmOrder(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"commit:p-1", "commit:p-2"}, rec.take())

	cancelled := place()
	rec.take()
	_, err = orders.CancelOrder(ctx, cancelled.ID, "u-1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, []string{"release:p-1", "release:p-2"}, rec.take())

	p, err := store.Inventory.GetProduct(ctx, "p-2")
	require.NoError(t, err)
	assert.Equal(t, 2, p.StockQty)
	assert.Equal(t, 0, p.ReservedQty)
}
