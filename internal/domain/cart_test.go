package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCart_AddAndRemove(t *testing.T) {
	c := NewCart("user-1")
	assert.True(t, c.IsEmpty())

	c.AddItem("p-1", 2)
	c.AddItem("p-2", 1)
	c.AddItem("p-1", 3)
	assert.Equal(t, []CartItem{{ProductID: "p-1", Quantity: 5}, {ProductID: "p-2", Quantity: 1}}, c.Items)

	assert.True(t, c.SetQuantity("p-2", 4))
	assert.Equal(t, 4, c.Items[1].Quantity)

	assert.True(t, c.RemoveItem("p-1"))
	assert.False(t, c.RemoveItem("p-1"))
	assert.Equal(t, []CartItem{{ProductID: "p-2", Quantity: 4}}, c.Items)
}

func TestCart_LinesMergesDuplicates(t *testing.T) {
	c := &Cart{Items: []CartItem{
		{ProductID: "p-2", Quantity: 1},
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 3},
	}}
	assert.Equal(t, []CartItem{{ProductID: "p-2", Quantity: 4}, {ProductID: "p-1", Quantity: 2}}, c.Lines())
}

func TestCart_ApplyCouponNormalizes(t *testing.T) {
	c := NewCart("user-1")
	c.ApplyCoupon("  save10 ")
	assert.Equal(t, "SAVE10", c.CouponCode)
	c.ApplyCoupon("")
	assert.Empty(t, c.CouponCode)
}
