package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

var orderCols = []string{
	"id", "order_number", "user_id", "status", "payment_status", "payment_method", "payment_ref",
	"subtotal", "discount_amount", "tax_amount", "tax_breakdown", "shipping_fee", "cod_fee", "grand_total",
	"paid_amount", "refunded_amount", "currency", "shipping_address", "billing_address", "coupon_id", "coupon_code",
	"is_locked", "invoice_number", "carrier", "tracking_number", "cancel_reason", "shipped_at", "delivered_at",
	"created_at", "updated_at",
}

var itemCols = []string{
	"id", "order_id", "product_id", "name", "sku", "hsn_code", "unit_price", "quantity", "line_subtotal",
	"discount_amount", "tax_rate_bps", "tax_amount", "tax_breakdown", "shipping_amount", "total", "status",
}

var orderCreatedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:            "o-1",
		OrderNumber:   "ORD-20250301-ABCDEF12",
		UserID:        "u-1",
		Status:        domain.OrderStatusCreated,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodCOD,
		Items: []domain.OrderItem{{
			ID:           "oi-1",
			OrderID:      "o-1",
			ProductID:    "p-1",
			Name:         "Kurta",
			UnitPrice:    1000,
			Quantity:     2,
			LineSubtotal: 2000,
			TaxRateBps:   1200,
			TaxAmount:    240,
			Total:        2240,
			Status:       domain.ItemStatusPending,
		}},
		Subtotal:        2000,
		TaxAmount:       240,
		TaxBreakdown:    domain.TaxBreakdown{CGST: 120, SGST: 120},
		GrandTotal:      2240,
		Currency:        "INR",
		ShippingAddress: domain.Address{FullName: "Asha Rao", State: "KA", Country: "IN"},
		BillingAddress:  domain.Address{FullName: "Asha Rao", State: "KA", Country: "IN"},
		CreatedAt:       orderCreatedAt,
		UpdatedAt:       orderCreatedAt,
	}
}

func orderRow(t *testing.T, o *domain.Order, extra ...any) []any {
	t.Helper()
	tax, err := json.Marshal(o.TaxBreakdown)
	require.NoError(t, err)
	addr, err := json.Marshal(o.ShippingAddress)
	require.NoError(t, err)
	row := []any{
		o.ID, o.OrderNumber, o.UserID, o.Status, o.PaymentStatus, o.PaymentMethod, o.PaymentRef,
		o.Subtotal, o.DiscountAmount, o.TaxAmount, tax, o.ShippingFee, o.CODFee, o.GrandTotal,
		o.PaidAmount, o.RefundedAmount, o.Currency, addr, addr, o.CouponID, o.CouponCode,
		o.IsLocked, o.InvoiceNumber, o.Carrier, o.TrackingNumber, o.CancelReason, o.ShippedAt, o.DeliveredAt,
		o.CreatedAt, o.UpdatedAt,
	}
	return append(row, extra...)
}

func itemRows(o *domain.Order) *pgxmock.Rows {
	rows := pgxmock.NewRows(itemCols)
	for _, it := range o.Items {
		rows.AddRow(it.ID, o.ID, it.ProductID, it.Name, it.SKU, it.HSNCode, it.UnitPrice, it.Quantity, it.LineSubtotal,
			it.DiscountAmount, it.TaxRateBps, it.TaxAmount, []byte(`{"cgst":120,"sgst":120}`), it.ShippingAmount, it.Total, it.Status)
	}
	return rows
}

func TestOrderRepository_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)
	o := sampleOrder()

	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(0, "oi-1", "o-1", "p-1", "Kurta", "", "", int64(1000), 2, int64(2000),
			int64(0), int64(1200), int64(240), pgxmock.AnyArg(), int64(0), int64(2240), domain.ItemStatusPending).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Create_DuplicateNumber(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)
	o := sampleOrder()

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE id = \$1`).
		WithArgs("o-1").
		WillReturnRows(pgxmock.NewRows(orderCols).AddRow(orderRow(t, o)...))
	mock.ExpectQuery("SELECT .+ FROM order_items WHERE order_id = ANY").
		WithArgs([]string{"o-1"}).
		WillReturnRows(itemRows(o))

	got, err := repo.GetByID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)
	assert.Equal(t, int64(120), got.TaxBreakdown.CGST)
	assert.Equal(t, "KA", got.ShippingAddress.State)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(120), got.Items[0].TaxBreakdown.SGST)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM orders").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrderRepository_GetByPaymentRef(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)
	o := sampleOrder()
	o.PaymentMethod = domain.GatewayStripe
	o.PaymentRef = "pi_123"

	mock.ExpectQuery("SELECT .+ FROM orders WHERE payment_method = \\$1 AND payment_ref = \\$2").
		WithArgs(domain.GatewayStripe, "pi_123").
		WillReturnRows(pgxmock.NewRows(orderCols).AddRow(orderRow(t, o)...))
	mock.ExpectQuery("SELECT .+ FROM order_items").
		WithArgs([]string{"o-1"}).
		WillReturnRows(itemRows(o))

	got, err := repo.GetByPaymentRef(context.Background(), domain.GatewayStripe, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, "o-1", got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_List_FiltersAndCounts(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)
	o := sampleOrder()
	userID := "u-1"

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE user_id = \$1 ORDER BY created_at DESC, id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("u-1", 10, 10).
		WillReturnRows(pgxmock.NewRows(append(orderCols, "total_count")).AddRow(orderRow(t, o, 11)...))
	mock.ExpectQuery("SELECT .+ FROM order_items").
		WithArgs([]string{"o-1"}).
		WillReturnRows(itemRows(o))

	orders, total, err := repo.List(context.Background(), repository.OrderFilter{UserID: &userID, Page: 2, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, orders, 1)
	assert.Len(t, orders[0].Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_List_Empty(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM orders").
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(append(orderCols, "total_count")))

	orders, total, err := repo.List(context.Background(), repository.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Update(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)
	o := sampleOrder()
	o.SetStatus(domain.OrderStatusConfirmed)

	mock.ExpectExec("UPDATE orders SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE order_items SET status").
		WithArgs("oi-1", domain.ItemStatusConfirmed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Update(context.Background(), o, domain.OrderStatusCreated))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Update_Stale(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)
	o := sampleOrder()
	o.SetStatus(domain.OrderStatusConfirmed)

	mock.ExpectExec("UPDATE orders SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("o-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(domain.OrderStatusCancelled))

	err := repo.Update(context.Background(), o, domain.OrderStatusCreated)
	assert.ErrorIs(t, err, domain.ErrStaleOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Update_Missing(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectExec("UPDATE orders SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("o-1").
		WillReturnError(pgx.ErrNoRows)

	err := repo.Update(context.Background(), sampleOrder(), domain.OrderStatusCreated)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
