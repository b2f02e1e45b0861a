package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

func sampleUsage() *domain.CouponUsage {
	return &domain.CouponUsage{
		ID:        "cu-1",
		CouponID:  "c-1",
		UserID:    "u-1",
		OrderID:   "o-1",
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCouponRepository_GetByCode(t *testing.T) {
	mock := newMock(t)
	repo := NewCouponRepository(mock)

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "code", "type", "value", "max_discount", "min_order_value", "usage_limit", "used_count", "single_use", "active", "starts_at", "expires_at"}
	mock.ExpectQuery(`SELECT .+ FROM coupons WHERE UPPER\(code\) = UPPER\(\$1\)`).
		WithArgs("save10").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("c-1", "SAVE10", domain.CouponTypePercentage, int64(1000), int64(0), int64(500), 100, 3, true, true, nil, &expires))

	c, err := repo.GetByCode(context.Background(), "save10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)
	assert.True(t, c.SingleUse)
	assert.Nil(t, c.StartsAt)
	require.NotNil(t, c.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_RecordUsage_Success(t *testing.T) {
	mock := newMock(t)
	repo := NewCouponRepository(mock)
	u := sampleUsage()

	mock.ExpectQuery("UPDATE coupons").
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"single_use"}).AddRow(true))
	mock.ExpectExec("INSERT INTO coupon_usages").
		WithArgs(u.ID, u.CouponID, u.UserID, u.OrderID, true, u.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.RecordUsage(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_RecordUsage_Exhausted(t *testing.T) {
	mock := newMock(t)
	repo := NewCouponRepository(mock)

	mock.ExpectQuery("UPDATE coupons").
		WithArgs("c-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := repo.RecordUsage(context.Background(), sampleUsage())
	assert.ErrorIs(t, err, domain.ErrCouponExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_RecordUsage_UnknownCoupon(t *testing.T) {
	mock := newMock(t)
	repo := NewCouponRepository(mock)

	mock.ExpectQuery("UPDATE coupons").
		WithArgs("c-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.RecordUsage(context.Background(), sampleUsage())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCouponRepository_RecordUsage_SingleUseViolation(t *testing.T) {
	mock := newMock(t)
	repo := NewCouponRepository(mock)

	mock.ExpectQuery("UPDATE coupons").
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"single_use"}).AddRow(true))
	mock.ExpectExec("INSERT INTO coupon_usages").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: singleUseIndex})

	err := repo.RecordUsage(context.Background(), sampleUsage())
	assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsed)
}

func TestCouponRepository_RecordUsage_DuplicateOrder(t *testing.T) {
	mock := newMock(t)
	repo := NewCouponRepository(mock)

	mock.ExpectQuery("UPDATE coupons").
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"single_use"}).AddRow(false))
	mock.ExpectExec("INSERT INTO coupon_usages").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "coupon_usages_order_id_key"})

	err := repo.RecordUsage(context.Background(), sampleUsage())
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestCouponRepository_RemoveUsageByOrder(t *testing.T) {
	mock := newMock(t)
	repo := NewCouponRepository(mock)
	u := sampleUsage()

	mock.ExpectQuery("DELETE FROM coupon_usages").
		WithArgs("o-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "coupon_id", "user_id", "order_id", "created_at"}).
			AddRow(u.ID, u.CouponID, u.UserID, u.OrderID, u.CreatedAt))
	mock.ExpectExec("UPDATE coupons SET used_count = GREATEST").
		WithArgs("c-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	removed, err := repo.RemoveUsageByOrder(context.Background(), "o-1")
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, "u-1", removed.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCouponRepository_RemoveUsageByOrder_None(t *testing.T) {
	mock := newMock(t)
	repo := NewCouponRepository(mock)

	mock.ExpectQuery("DELETE FROM coupon_usages").
		WithArgs("o-1").
		WillReturnError(pgx.ErrNoRows)

	removed, err := repo.RemoveUsageByOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Nil(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
