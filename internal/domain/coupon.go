package domain

import (
	"fmt"
	"time"
)

// Coupon discount types.
const (
	CouponTypePercentage = "percentage"
	CouponTypeFixed      = "fixed_amount"
)

// Coupon is a redeemable discount code. Percentage values are basis points.
type Coupon struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	Type          string     `json:"type"`
	Value         int64      `json:"value"`
	MaxDiscount   int64      `json:"max_discount,omitempty"`
	MinOrderValue int64      `json:"min_order_value"`
	UsageLimit    int        `json:"usage_limit"`
	UsedCount     int        `json:"used_count"`
	SingleUse     bool       `json:"single_use"`
	Active        bool       `json:"active"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// CouponUsage ties one redemption to the order that consumed it.
type CouponUsage struct {
	ID        string    `json:"id"`
	CouponID  string    `json:"coupon_id"`
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckApplicable returns an error wrapping ErrInvalidCoupon when the coupon
// cannot be applied at now to an order with the given subtotal.
func (c *Coupon) CheckApplicable(now time.Time, subtotal int64) error {
	switch {
	case !c.Active:
		return fmt.Errorf("%w: coupon %s is not active", ErrInvalidCoupon, c.Code)
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return fmt.Errorf("%w: coupon %s is not yet valid", ErrInvalidCoupon, c.Code)
	case c.ExpiresAt != nil && !now.Before(*c.ExpiresAt):
		return fmt.Errorf("%w: coupon %s has expired", ErrInvalidCoupon, c.Code)
	case subtotal < c.MinOrderValue:
		return fmt.Errorf("%w: coupon %s requires a minimum order of %d", ErrInvalidCoupon, c.Code, c.MinOrderValue)
	case c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit:
		return fmt.Errorf("%w: coupon %s", ErrCouponExhausted, c.Code)
	}
	return nil
}

// Discount returns the discount for subtotal, never more than subtotal.
func (c *Coupon) Discount(subtotal int64) int64 {
	var d int64
	switch c.Type {
	case CouponTypePercentage:
		d = subtotal * c.Value / 10000
		if c.MaxDiscount > 0 && d > c.MaxDiscount {
			d = c.MaxDiscount
		}
	case CouponTypeFixed:
		d = c.Value
	}
	return max(0, min(d, subtotal))
}
