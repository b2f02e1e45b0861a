package domain

import "time"

// ShippingPolicy prices delivery. Shipping is free only when the subtotal is
// strictly above FreeShippingAbove.
type ShippingPolicy struct {
	FlatRate          int64 `json:"flat_rate"`
	FreeShippingAbove int64 `json:"free_shipping_above"`
	CODFee            int64 `json:"cod_fee"`
}

// Settings is the configuration snapshot a single checkout runs against.
type Settings struct {
	CODEnabled       bool
	EnabledGateways  map[string]bool
	Currency         string
	Shipping         ShippingPolicy
	CouponLockTTL    time.Duration
	AutoCancelOnline time.Duration
	AutoCancelCOD    time.Duration
}

// PaymentMethodEnabled reports whether checkout may use method.
func (s Settings) PaymentMethodEnabled(method string) bool {
	if method == PaymentMethodCOD {
		return s.CODEnabled
	}
	return s.EnabledGateways[method]
}

// AutoCancelAfter returns how long an unconfirmed order paid with method may
// stay in created. Zero disables auto-cancel.
func (s Settings) AutoCancelAfter(method string) time.Duration {
	if method == PaymentMethodCOD {
		return s.AutoCancelCOD
	}
	return s.AutoCancelOnline
}
