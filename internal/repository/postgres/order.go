package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	"github.com/utafrali/ordercore/pkg/database"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

const orderColumns = `id, order_number, user_id, status, payment_status, payment_method, payment_ref,
	subtotal, discount_amount, tax_amount, tax_breakdown, shipping_fee, cod_fee, grand_total,
	paid_amount, refunded_amount, currency, shipping_address, billing_address, coupon_id, coupon_code,
	is_locked, invoice_number, carrier, tracking_number, cancel_reason, shipped_at, delivered_at,
	created_at, updated_at`

const itemColumns = `id, order_id, product_id, name, sku, hsn_code, unit_price, quantity, line_subtotal,
	discount_amount, tax_rate_bps, tax_amount, tax_breakdown, shipping_amount, total, status`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts an order and its items. Callers run it inside a unit of work.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	orderQuery := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)`

	ctx, end := database.TraceQuery(ctx, "order.Create", orderQuery)
	defer func() { end(err) }()

	taxJSON, err := json.Marshal(o.TaxBreakdown)
	if err != nil {
		return fmt.Errorf("marshal tax breakdown: %w", err)
	}
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}

	_, err = r.pool.Exec(ctx, orderQuery,
		o.ID,
		o.OrderNumber,
		o.UserID,
		o.Status,
		o.PaymentStatus,
		o.PaymentMethod,
		o.PaymentRef,
		o.Subtotal,
		o.DiscountAmount,
		o.TaxAmount,
		taxJSON,
		o.ShippingFee,
		o.CODFee,
		o.GrandTotal,
		o.PaidAmount,
		o.RefundedAmount,
		o.Currency,
		shippingJSON,
		billingJSON,
		o.CouponID,
		o.CouponCode,
		o.IsLocked,
		o.InvoiceNumber,
		o.Carrier,
		o.TrackingNumber,
		o.CancelReason,
		o.ShippedAt,
		o.DeliveredAt,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("order", "order_number", o.OrderNumber)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `INSERT INTO order_items (position, ` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	for i, item := range o.Items {
		itemTax, err := json.Marshal(item.TaxBreakdown)
		if err != nil {
			return fmt.Errorf("marshal item tax breakdown: %w", err)
		}
		_, err = r.pool.Exec(ctx, itemQuery,
			i,
			item.ID,
			o.ID,
			item.ProductID,
			item.Name,
			item.SKU,
			item.HSNCode,
			item.UnitPrice,
			item.Quantity,
			item.LineSubtotal,
			item.DiscountAmount,
			item.TaxRateBps,
			item.TaxAmount,
			itemTax,
			item.ShippingAmount,
			item.Total,
			item.Status,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o            domain.Order
		taxJSON      []byte
		shippingJSON []byte
		billingJSON  []byte
	)
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentMethod,
		&o.PaymentRef,
		&o.Subtotal,
		&o.DiscountAmount,
		&o.TaxAmount,
		&taxJSON,
		&o.ShippingFee,
		&o.CODFee,
		&o.GrandTotal,
		&o.PaidAmount,
		&o.RefundedAmount,
		&o.Currency,
		&shippingJSON,
		&billingJSON,
		&o.CouponID,
		&o.CouponCode,
		&o.IsLocked,
		&o.InvoiceNumber,
		&o.Carrier,
		&o.TrackingNumber,
		&o.CancelReason,
		&o.ShippedAt,
		&o.DeliveredAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(taxJSON, &o.TaxBreakdown); err != nil {
		return nil, fmt.Errorf("unmarshal tax breakdown: %w", err)
	}
	if err := unmarshalIfSet(shippingJSON, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := unmarshalIfSet(billingJSON, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal billing address: %w", err)
	}
	return &o, nil
}

func unmarshalIfSet(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// GetByID retrieves an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByPaymentRef finds the order a gateway payment reference belongs to.
func (r *OrderRepository) GetByPaymentRef(ctx context.Context, gateway, ref string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_method = $1 AND payment_ref = $2 AND payment_ref <> ''`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, gateway, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", gateway+":"+ref)
		}
		return nil, fmt.Errorf("get order by payment ref: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns a page of orders, newest first, and the total match count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	page, perPage := filter.Page, filter.PerPage
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}

	var (
		conditions []string
		args       []any
	)
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, "user_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, perPage, (page-1)*perPage)
	query := `SELECT ` + orderColumns + `, count(*) OVER() AS total_count
		FROM orders ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []*domain.Order
		total  int
	)
	for rows.Next() {
		o, err := scanOrder(&totalCountRow{row: rows, total: &total})
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}

	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, *o)
	}
	return out, total, nil
}

// totalCountRow appends the window count column to a scan.
type totalCountRow struct {
	row   pgx.Row
	total *int
}

func (t *totalCountRow) Scan(dest ...any) error {
	return t.row.Scan(append(dest, t.total)...)
}

// attachItems loads the items of every order in one query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []domain.OrderItem{}
	}

	query := `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    domain.OrderItem
			taxJSON []byte
		)
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.SKU,
			&item.HSNCode,
			&item.UnitPrice,
			&item.Quantity,
			&item.LineSubtotal,
			&item.DiscountAmount,
			&item.TaxRateBps,
			&item.TaxAmount,
			&taxJSON,
			&item.ShippingAmount,
			&item.Total,
			&item.Status,
		); err != nil {
			return fmt.Errorf("scan order item row: %w", err)
		}
		if err := unmarshalIfSet(taxJSON, &item.TaxBreakdown); err != nil {
			return fmt.Errorf("unmarshal item tax breakdown: %w", err)
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order item rows: %w", err)
	}
	return nil
}

// Update writes the mutable fields of o when the stored status still equals
// expectedStatus.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order, expectedStatus string) (err error) {
	query := `
		UPDATE orders SET
			status = $3, payment_status = $4, payment_ref = $5, paid_amount = $6, refunded_amount = $7,
			is_locked = $8, invoice_number = $9, carrier = $10, tracking_number = $11, cancel_reason = $12,
			shipped_at = $13, delivered_at = $14, updated_at = $15
		WHERE id = $1 AND status = $2`

	ctx, end := database.TraceQuery(ctx, "order.Update", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query,
		o.ID,
		expectedStatus,
		o.Status,
		o.PaymentStatus,
		o.PaymentRef,
		o.PaidAmount,
		o.RefundedAmount,
		o.IsLocked,
		o.InvoiceNumber,
		o.Carrier,
		o.TrackingNumber,
		o.CancelReason,
		o.ShippedAt,
		o.DeliveredAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var current string
		err := r.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, o.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("order", o.ID)
		}
		if err != nil {
			return fmt.Errorf("check order status: %w", err)
		}
		return fmt.Errorf("%w: order %s is %s, expected %s", domain.ErrStaleOrder, o.ID, current, expectedStatus)
	}

	for _, item := range o.Items {
		if _, err := r.pool.Exec(ctx, `UPDATE order_items SET status = $2 WHERE id = $1`, item.ID, item.Status); err != nil {
			return fmt.Errorf("update order item status: %w", err)
		}
	}
	return nil
}

// Delete removes an order; its items go with it.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}
