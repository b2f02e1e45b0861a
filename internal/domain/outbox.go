package domain

import (
	"encoding/json"
	"time"
)

// Order event types written to the outbox.
const (
	EventOrderCreated   = "order.created"
	EventOrderConfirmed = "order.confirmed"
	EventOrderCancelled = "order.cancelled"
	EventOrderShipped   = "order.shipped"
	EventOrderDelivered = "order.delivered"
	EventOrderRefunded  = "order.refunded"
)

// Outbox statuses.
const (
	OutboxStatusPending = "pending"
	OutboxStatusDone    = "done"
	OutboxStatusDead    = "dead"
)

// OutboxEvent is a side effect recorded in the same unit of work as the state
// change that caused it and delivered later by the relay.
type OutboxEvent struct {
	ID          string          `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	AvailableAt time.Time       `json:"available_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderEventPayload is the body of every order.* event.
type OrderEventPayload struct {
	OrderID        string `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	PaymentStatus  string `json:"payment_status"`
	PaymentMethod  string `json:"payment_method"`
	GrandTotal     int64  `json:"grand_total"`
	RefundAmount   int64  `json:"refund_amount,omitempty"`
	Currency       string `json:"currency"`
	Reason         string `json:"reason,omitempty"`
	// AutoCancelAt is set on order.created for orders awaiting payment or confirmation.
	AutoCancelAt *time.Time `json:"auto_cancel_at,omitempty"`
}

// NewOrderEventPayload snapshots the fields consumers of order events need.
func NewOrderEventPayload(o *Order, previousStatus string) OrderEventPayload {
	return OrderEventPayload{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Status:         o.Status,
		PreviousStatus: previousStatus,
		PaymentStatus:  o.PaymentStatus,
		PaymentMethod:  o.PaymentMethod,
		GrandTotal:     o.GrandTotal,
		Currency:       o.Currency,
		Reason:         o.CancelReason,
	}
}
