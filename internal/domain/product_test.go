package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProduct(stock, reserved int) *Product {
	return &Product{ID: "p-1", Status: ProductStatusActive, StockQty: stock, ReservedQty: reserved}
}

func assertInvariant(t *testing.T, p *Product) {
	t.Helper()
	assert.GreaterOrEqual(t, p.ReservedQty, 0)
	assert.LessOrEqual(t, p.ReservedQty, p.StockQty)
}

func TestProduct_Reserve(t *testing.T) {
	p := newProduct(3, 0)

	err := p.Reserve(5)
	assert.True(t, errors.Is(err, ErrOutOfStock))
	assert.Equal(t, 0, p.ReservedQty)

	require.NoError(t, p.Reserve(3))
	assert.Equal(t, 0, p.Available())
	assertInvariant(t, p)

	assert.True(t, errors.Is(p.Reserve(1), ErrOutOfStock))
	assert.Error(t, p.Reserve(0))
}

func TestProduct_ReleaseFloorsAtZero(t *testing.T) {
	p := newProduct(10, 2)

	assert.Equal(t, 2, p.Release(5))
	assert.Equal(t, 0, p.ReservedQty)
	assert.Equal(t, 0, p.Release(1))
	assert.Equal(t, 0, p.Release(-1))
	assertInvariant(t, p)
}

func TestProduct_Commit(t *testing.T) {
	p := newProduct(10, 4)

	require.NoError(t, p.Commit(3))
	assert.Equal(t, 7, p.StockQty)
	assert.Equal(t, 1, p.ReservedQty)

	err := p.Commit(2)
	assert.True(t, errors.Is(err, ErrInventoryInvariant))
	assert.Equal(t, 7, p.StockQty)
	assertInvariant(t, p)
}

func TestProduct_Restock(t *testing.T) {
	p := newProduct(5, 4)

	require.NoError(t, p.Restock(10))
	assert.Equal(t, 15, p.StockQty)

	require.NoError(t, p.Restock(-11))
	assert.Equal(t, 4, p.StockQty)

	assert.True(t, errors.Is(p.Restock(-1), ErrInventoryInvariant))
	assert.Error(t, p.Restock(0))
	assertInvariant(t, p)
}
