package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/utafrali/ordercore/internal/domain"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// CouponRepository implements repository.CouponRepository.
type CouponRepository struct {
	db *DB
}

func (r *CouponRepository) GetByCode(_ context.Context, code string) (*domain.Coupon, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, c := range r.db.coupons {
		if strings.EqualFold(c.Code, code) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("coupon", code)
}

func (r *CouponRepository) RecordUsage(_ context.Context, usage *domain.CouponUsage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.coupons[usage.CouponID]
	if !ok {
		return apperrors.NotFound("coupon", usage.CouponID)
	}
	if _, dup := r.db.usages[usage.OrderID]; dup {
		return apperrors.AlreadyExists("coupon usage", "order_id", usage.OrderID)
	}
	if c.SingleUse {
		for _, u := range r.db.usages {
			if u.CouponID == c.ID && u.UserID == usage.UserID {
				return fmt.Errorf("%w: coupon %s user %s", domain.ErrCouponAlreadyUsed, c.Code, usage.UserID)
			}
		}
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return fmt.Errorf("%w: coupon %s", domain.ErrCouponExhausted, c.Code)
	}

	c.UsedCount++
	r.db.usages[usage.OrderID] = *usage
	return nil
}

func (r *CouponRepository) RemoveUsageByOrder(_ context.Context, orderID string) (*domain.CouponUsage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.usages[orderID]
	if !ok {
		return nil, nil
	}
	delete(r.db.usages, orderID)
	if c, ok := r.db.coupons[u.CouponID]; ok && c.UsedCount > 0 {
		c.UsedCount--
	}
	return &u, nil
}
