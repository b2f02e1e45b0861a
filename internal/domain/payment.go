package domain

import (
	"encoding/json"
	"time"
)

// PaymentMethodCOD is cash on delivery. Every other payment method names a gateway.
const PaymentMethodCOD = "cod"

// Gateway names.
const (
	GatewayStripe   = "stripe"
	GatewayRazorpay = "razorpay"
	// GatewayInternal marks events relayed by the platform payment service.
	GatewayInternal = "internal"
)

// Payment event kinds after gateway-specific types are normalized.
const (
	PaymentEventSucceeded = "succeeded"
	PaymentEventFailed    = "failed"
	PaymentEventRefunded  = "refunded"
	PaymentEventIgnored   = "ignored"
)

// PaymentEvent is a verified gateway notification in gateway-neutral form.
type PaymentEvent struct {
	Gateway    string `json:"gateway"`
	EventID    string `json:"event_id"`
	RawType    string `json:"raw_type"`
	Kind       string `json:"kind"`
	OrderID    string `json:"order_id,omitempty"`
	PaymentRef string `json:"payment_ref,omitempty"`
	// Amount is the amount captured for succeeded events and the
	// cumulative amount refunded for refunded events, unless PerRefund is
	// set, in which case it is the amount of this refund alone.
	Amount     int64     `json:"amount"`
	PerRefund  bool      `json:"per_refund,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DedupKey identifies the external event for at-most-once processing.
func (e PaymentEvent) DedupKey() string {
	if e.EventID != "" {
		return e.Gateway + ":" + e.EventID
	}
	return e.Gateway + ":" + e.RawType + ":" + e.PaymentRef
}

// Webhook outcomes.
const (
	WebhookOutcomeApplied   = "applied"
	WebhookOutcomeNoop      = "noop"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeUnmatched = "unmatched"
	WebhookOutcomeResolved  = "resolved"
	// WebhookOutcomeDuplicate is reported to callers but never stored.
	WebhookOutcomeDuplicate = "duplicate"
)

// WebhookRecord is the persisted trace of one processed payment event. Its
// DedupKey is unique.
type WebhookRecord struct {
	ID         string          `json:"id"`
	DedupKey   string          `json:"dedup_key"`
	Gateway    string          `json:"gateway"`
	EventType  string          `json:"event_type"`
	OrderID    string          `json:"order_id,omitempty"`
	Outcome    string          `json:"outcome"`
	Event      json.RawMessage `json:"event"`
	ReceivedAt time.Time       `json:"received_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}
