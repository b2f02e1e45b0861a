package domain

import (
	"fmt"
	"time"
)

// Order status constants.
const (
	OrderStatusCreated   = "created"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// Payment status constants.
const (
	PaymentStatusPending       = "pending"
	PaymentStatusPartiallyPaid = "partially_paid"
	PaymentStatusPaid          = "paid"
	PaymentStatusFailed        = "failed"
	PaymentStatusRefunded      = "refunded"
)

// Order is the priced, immutable-once-confirmed result of a checkout.
type Order struct {
	ID              string       `json:"id"`
	OrderNumber     string       `json:"order_number"`
	UserID          string       `json:"user_id"`
	Status          string       `json:"status"`
	PaymentStatus   string       `json:"payment_status"`
	PaymentMethod   string       `json:"payment_method"`
	PaymentRef      string       `json:"payment_ref,omitempty"`
	Items           []OrderItem  `json:"items"`
	Subtotal        int64        `json:"subtotal"`
	DiscountAmount  int64        `json:"discount_amount"`
	TaxAmount       int64        `json:"tax_amount"`
	TaxBreakdown    TaxBreakdown `json:"tax_breakdown"`
	ShippingFee     int64        `json:"shipping_fee"`
	CODFee          int64        `json:"cod_fee"`
	GrandTotal      int64        `json:"grand_total"`
	PaidAmount      int64        `json:"paid_amount"`
	RefundedAmount  int64        `json:"refunded_amount"`
	Currency        string       `json:"currency"`
	ShippingAddress Address      `json:"shipping_address"`
	BillingAddress  Address      `json:"billing_address"`
	CouponID        *string      `json:"coupon_id,omitempty"`
	CouponCode      string       `json:"coupon_code,omitempty"`
	IsLocked        bool         `json:"is_locked"`
	InvoiceNumber   string       `json:"invoice_number,omitempty"`
	Carrier         string       `json:"carrier,omitempty"`
	TrackingNumber  string       `json:"tracking_number,omitempty"`
	CancelReason    string       `json:"cancel_reason,omitempty"`
	ShippedAt       *time.Time   `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time   `json:"delivered_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// TaxBreakdown holds GST components in minor units.
type TaxBreakdown struct {
	CGST int64 `json:"cgst"`
	SGST int64 `json:"sgst"`
	IGST int64 `json:"igst"`
}

// Total returns the sum of all components.
func (t TaxBreakdown) Total() int64 {
	return t.CGST + t.SGST + t.IGST
}

// Add returns the component-wise sum of t and o.
func (t TaxBreakdown) Add(o TaxBreakdown) TaxBreakdown {
	return TaxBreakdown{CGST: t.CGST + o.CGST, SGST: t.SGST + o.SGST, IGST: t.IGST + o.IGST}
}

// allowedTransitions is the complete order state graph. Terminal states map
// to nothing.
var allowedTransitions = map[string][]string{
	OrderStatusCreated:   {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusRefunded},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

// ValidStatuses returns all order statuses.
func ValidStatuses() []string {
	return []string{
		OrderStatusCreated,
		OrderStatusConfirmed,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusRefunded,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status string) bool {
	next, ok := allowedTransitions[status]
	return ok && len(next) == 0
}

// AssertTransition is the only gate for order status changes. It fails with
// ErrInvalidTransition unless current -> next is an edge of the state graph.
func AssertTransition(current, next string) error {
	for _, s := range allowedTransitions[current] {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	return AssertTransition(o.Status, target) == nil
}

// paymentRank orders payment statuses along the only direction they may move.
// failed sits beside paid: both end the pending phase.
var paymentRank = map[string]int{
	PaymentStatusPending:       0,
	PaymentStatusPartiallyPaid: 1,
	PaymentStatusPaid:          2,
	PaymentStatusFailed:        2,
	PaymentStatusRefunded:      3,
}

// CanAdvancePayment reports whether payment status may move from -> to.
// Payment status never moves backwards.
func CanAdvancePayment(from, to string) bool {
	if from == to {
		return true
	}
	f, ok1 := paymentRank[from]
	t, ok2 := paymentRank[to]
	if !ok1 || !ok2 || t <= f {
		return false
	}
	// A failed payment cannot later be refunded.
	return !(from == PaymentStatusFailed && to == PaymentStatusRefunded)
}

// IsCOD reports whether the order is paid on delivery.
func (o *Order) IsCOD() bool {
	return o.PaymentMethod == PaymentMethodCOD
}

// Refundable returns the amount still available to refund.
func (o *Order) Refundable() int64 {
	return o.PaidAmount - o.RefundedAmount
}

// InventoryCommitted reports whether the order's reservations have already
// been converted into stock deductions.
func (o *Order) InventoryCommitted() bool {
	switch o.Status {
	case OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// ItemsTotal sums the line totals. It equals GrandTotal for every order
// built by the pricing calculator.
func (o *Order) ItemsTotal() int64 {
	var sum int64
	for _, it := range o.Items {
		sum += it.Total
	}
	return sum
}
