package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/pkg/database"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// singleUseIndex enforces one redemption per user for single-use coupons.
const singleUseIndex = "idx_coupon_usages_single_use"

// CouponRepository implements repository.CouponRepository using PostgreSQL.
type CouponRepository struct {
	pool database.DBTX
}

// NewCouponRepository creates a new PostgreSQL-backed coupon repository.
func NewCouponRepository(pool database.DBTX) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GetByCode retrieves a coupon by its case-insensitive code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `
		SELECT id, code, type, value, max_discount, min_order_value, usage_limit, used_count, single_use, active, starts_at, expires_at
		FROM coupons
		WHERE UPPER(code) = UPPER($1)`

	var c domain.Coupon
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&c.ID,
		&c.Code,
		&c.Type,
		&c.Value,
		&c.MaxDiscount,
		&c.MinOrderValue,
		&c.UsageLimit,
		&c.UsedCount,
		&c.SingleUse,
		&c.Active,
		&c.StartsAt,
		&c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("coupon", code)
		}
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}
	return &c, nil
}

// RecordUsage increments the coupon's used count within its limit and stores
// the redemption.
func (r *CouponRepository) RecordUsage(ctx context.Context, usage *domain.CouponUsage) (err error) {
	const incrementSQL = `
		UPDATE coupons
		SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)
		RETURNING single_use`

	ctx, end := database.TraceQuery(ctx, "coupon.RecordUsage", incrementSQL)
	defer func() { end(err) }()

	var singleUse bool
	if err := r.pool.QueryRow(ctx, incrementSQL, usage.CouponID).Scan(&singleUse); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("increment coupon usage: %w", err)
		}
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM coupons WHERE id = $1)`, usage.CouponID).Scan(&exists); err != nil {
			return fmt.Errorf("check coupon exists: %w", err)
		}
		if !exists {
			return apperrors.NotFound("coupon", usage.CouponID)
		}
		return fmt.Errorf("%w: coupon %s", domain.ErrCouponExhausted, usage.CouponID)
	}

	insertSQL := `
		INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, single_use, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.pool.Exec(ctx, insertSQL,
		usage.ID,
		usage.CouponID,
		usage.UserID,
		usage.OrderID,
		singleUse,
		usage.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			if constraintName(err) == singleUseIndex {
				return fmt.Errorf("%w: coupon %s user %s", domain.ErrCouponAlreadyUsed, usage.CouponID, usage.UserID)
			}
			return apperrors.AlreadyExists("coupon usage", "order_id", usage.OrderID)
		}
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}

// RemoveUsageByOrder deletes the redemption for orderID and gives the use back.
func (r *CouponRepository) RemoveUsageByOrder(ctx context.Context, orderID string) (*domain.CouponUsage, error) {
	query := `
		DELETE FROM coupon_usages
		WHERE order_id = $1
		RETURNING id, coupon_id, user_id, order_id, created_at`

	var u domain.CouponUsage
	err := r.pool.QueryRow(ctx, query, orderID).Scan(&u.ID, &u.CouponID, &u.UserID, &u.OrderID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("delete coupon usage: %w", err)
	}

	decrement := `UPDATE coupons SET used_count = GREATEST(used_count - 1, 0) WHERE id = $1`
	if _, err := r.pool.Exec(ctx, decrement, u.CouponID); err != nil {
		return nil, fmt.Errorf("decrement coupon usage: %w", err)
	}
	return &u, nil
}
