package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

func TestInventoryService_Restock(t *testing.T) {
	f := newFixture(t, testSettings())
	svc := NewInventoryService(f.uow, f.store, newTestLogger())
	ctx := context.Background()

	f.fillCart(t, "u-1", domain.CartItem{ProductID: "p-2", Quantity: 2})
	f.placeCOD(t, "u-1", "addr-1")

	p, err := svc.Restock(ctx, "p-2", 5)
	require.NoError(t, err)
	assert.Equal(t, 8, p.StockQty)
	assert.Equal(t, 2, p.ReservedQty)

	p, err = svc.Restock(ctx, "p-2", -6)
	require.NoError(t, err)
	assert.Equal(t, 2, p.StockQty)

	_, err = svc.Restock(ctx, "p-2", -1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "stock may not drop below reserved")
	assert.Equal(t, 2, f.product(t, "p-2").StockQty)

	_, err = svc.Restock(ctx, "p-2", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Restock(ctx, "p-404", 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInventoryService_ListLogs(t *testing.T) {
	f := newFixture(t, testSettings())
	svc := NewInventoryService(f.uow, f.store, newTestLogger())
	ctx := context.Background()

	f.fillCart(t, "u-1", domain.CartItem{ProductID: "p-1", Quantity: 2})
	o := f.placeCOD(t, "u-1", "addr-1")
	_, err := f.orders.ConfirmOrder(ctx, o.ID)
	require.NoError(t, err)
	_, err = svc.Restock(ctx, "p-1", 10)
	require.NoError(t, err)

	logs, err := svc.ListLogs(ctx, "p-1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, domain.InventoryActionRestock, logs[0].Action)
	assert.Equal(t, domain.InventoryActionCommit, logs[1].Action)
	assert.Equal(t, o.ID, logs[1].ReferenceID)
	assert.Equal(t, 100, logs[1].PreviousStock)
	assert.Equal(t, 98, logs[1].NewStock)
	assert.Equal(t, domain.InventoryActionReserve, logs[2].Action)

	logs, err = svc.ListLogs(ctx, "p-1", 1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = svc.ListLogs(ctx, "p-404", 10)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
