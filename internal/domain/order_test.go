package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssertTransition(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{OrderStatusCreated, OrderStatusConfirmed, true},
		{OrderStatusCreated, OrderStatusCancelled, true},
		{OrderStatusCreated, OrderStatusRefunded, true},
		{OrderStatusConfirmed, OrderStatusShipped, true},
		{OrderStatusConfirmed, OrderStatusRefunded, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusRefunded, true},

		{OrderStatusConfirmed, OrderStatusConfirmed, false},
		{OrderStatusConfirmed, OrderStatusCancelled, false},
		{OrderStatusShipped, OrderStatusCreated, false},
		{OrderStatusCreated, OrderStatusShipped, false},
		{OrderStatusDelivered, OrderStatusRefunded, false},
		{OrderStatusCancelled, OrderStatusConfirmed, false},
		{OrderStatusRefunded, OrderStatusCreated, false},
		{"bogus", OrderStatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			err := AssertTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidTransition))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(OrderStatusDelivered))
	assert.True(t, IsTerminal(OrderStatusCancelled))
	assert.True(t, IsTerminal(OrderStatusRefunded))
	assert.False(t, IsTerminal(OrderStatusCreated))
	assert.False(t, IsTerminal(OrderStatusShipped))
	assert.False(t, IsTerminal("bogus"))
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range ValidStatuses() {
		assert.True(t, IsValidStatus(s), s)
	}
	assert.False(t, IsValidStatus("pending"))
}

func TestCanAdvancePayment(t *testing.T) {
	assert.True(t, CanAdvancePayment(PaymentStatusPending, PaymentStatusPaid))
	assert.True(t, CanAdvancePayment(PaymentStatusPending, PaymentStatusPartiallyPaid))
	assert.True(t, CanAdvancePayment(PaymentStatusPartiallyPaid, PaymentStatusPaid))
	assert.True(t, CanAdvancePayment(PaymentStatusPaid, PaymentStatusRefunded))
	assert.True(t, CanAdvancePayment(PaymentStatusPending, PaymentStatusFailed))
	assert.True(t, CanAdvancePayment(PaymentStatusPaid, PaymentStatusPaid))

	assert.False(t, CanAdvancePayment(PaymentStatusPaid, PaymentStatusPending))
	assert.False(t, CanAdvancePayment(PaymentStatusPaid, PaymentStatusFailed))
	assert.False(t, CanAdvancePayment(PaymentStatusFailed, PaymentStatusPaid))
	assert.False(t, CanAdvancePayment(PaymentStatusFailed, PaymentStatusRefunded))
	assert.False(t, CanAdvancePayment(PaymentStatusRefunded, PaymentStatusPaid))
}

func TestSetStatus_MovesItems(t *testing.T) {
	o := &Order{Status: OrderStatusCreated, Items: []OrderItem{{Status: ItemStatusPending}, {Status: ItemStatusPending}}}
	o.SetStatus(OrderStatusShipped)

	assert.Equal(t, OrderStatusShipped, o.Status)
	for _, it := range o.Items {
		assert.Equal(t, ItemStatusShipped, it.Status)
	}
}

func TestOrder_Helpers(t *testing.T) {
	o := &Order{
		Status:         OrderStatusConfirmed,
		PaymentMethod:  PaymentMethodCOD,
		PaidAmount:     1000,
		RefundedAmount: 250,
		Items:          []OrderItem{{Total: 600}, {Total: 401}},
	}
	assert.True(t, o.IsCOD())
	assert.True(t, o.InventoryCommitted())
	assert.Equal(t, int64(750), o.Refundable())
	assert.Equal(t, int64(1001), o.ItemsTotal())

	o.Status = OrderStatusCreated
	assert.False(t, o.InventoryCommitted())
}

func TestTaxBreakdown(t *testing.T) {
	a := TaxBreakdown{CGST: 5, SGST: 6}
	b := TaxBreakdown{IGST: 10}
	assert.Equal(t, int64(21), a.Add(b).Total())
}
