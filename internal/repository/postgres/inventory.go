package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/pkg/database"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

const productColumns = `id, name, sku, price, hsn_code, status, stock_qty, reserved_qty, updated_at`

// InventoryRepository implements repository.InventoryRepository using PostgreSQL.
type InventoryRepository struct {
	pool database.DBTX
}

// NewInventoryRepository creates a new PostgreSQL-backed stock ledger.
func NewInventoryRepository(pool database.DBTX) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.SKU,
		&p.Price,
		&p.HSNCode,
		&p.Status,
		&p.StockQty,
		&p.ReservedQty,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProduct retrieves a product with its stock counters.
func (r *InventoryRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", productID)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// mutate locks the product row, applies fn to a copy and writes the result
// back guarded on the counters it read, then appends an audit entry. The guard
// turns a lost race into a conflict when the call runs outside a transaction.
func (r *InventoryRepository) mutate(ctx context.Context, op, productID, action string, refID string, fn func(p *domain.Product) (int, error)) (p *domain.Product, n int, err error) {
	const updateSQL = `
		UPDATE products
		SET stock_qty = $2, reserved_qty = $3, updated_at = $4
		WHERE id = $1 AND stock_qty = $5 AND reserved_qty = $6`

	ctx, end := database.TraceQuery(ctx, "inventory."+op, updateSQL)
	defer func() { end(err) }()

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	stored, err := scanProduct(r.pool.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, apperrors.NotFound("product", productID)
		}
		return nil, 0, fmt.Errorf("lock product: %w", err)
	}

	next := *stored
	n, err = fn(&next)
	if err != nil {
		return nil, 0, err
	}
	next.UpdatedAt = time.Now().UTC()

	ct, err := r.pool.Exec(ctx, updateSQL,
		productID,
		next.StockQty,
		next.ReservedQty,
		next.UpdatedAt,
		stored.StockQty,
		stored.ReservedQty,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("update product stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, 0, apperrors.Conflict(fmt.Sprintf("stock for product %s changed concurrently", productID))
	}

	logQuery := `
		INSERT INTO inventory_logs (id, product_id, action, quantity, previous_stock, new_stock, previous_reserved, new_reserved, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.pool.Exec(ctx, logQuery,
		uuid.New().String(),
		productID,
		action,
		n,
		stored.StockQty,
		next.StockQty,
		stored.ReservedQty,
		next.ReservedQty,
		refID,
		next.UpdatedAt,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("insert inventory log: %w", err)
	}

	return &next, n, nil
}

// Reserve holds qty units for refID.
func (r *InventoryRepository) Reserve(ctx context.Context, productID string, qty int, refID string) error {
	_, _, err := r.mutate(ctx, "Reserve", productID, domain.InventoryActionReserve, refID, func(p *domain.Product) (int, error) {
		return qty, p.Reserve(qty)
	})
	return err
}

// Release returns up to qty reserved units and reports how many were released.
func (r *InventoryRepository) Release(ctx context.Context, productID string, qty int, refID string) (int, error) {
	_, n, err := r.mutate(ctx, "Release", productID, domain.InventoryActionRelease, refID, func(p *domain.Product) (int, error) {
		return p.Release(qty), nil
	})
	return n, err
}

// Commit turns qty reserved units into a sale.
func (r *InventoryRepository) Commit(ctx context.Context, productID string, qty int, refID string) error {
	_, _, err := r.mutate(ctx, "Commit", productID, domain.InventoryActionCommit, refID, func(p *domain.Product) (int, error) {
		return qty, p.Commit(qty)
	})
	return err
}

// Restock adjusts owned stock by delta.
func (r *InventoryRepository) Restock(ctx context.Context, productID string, delta int, refID string) (*domain.Product, error) {
	p, _, err := r.mutate(ctx, "Restock", productID, domain.InventoryActionRestock, refID, func(p *domain.Product) (int, error) {
		return delta, p.Restock(delta)
	})
	return p, err
}

// ListLogs returns the newest audit entries for a product.
func (r *InventoryRepository) ListLogs(ctx context.Context, productID string, limit int) ([]domain.InventoryLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, product_id, action, quantity, previous_stock, new_stock, previous_reserved, new_reserved, reference_id, created_at
		FROM inventory_logs
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("list inventory logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.InventoryLog{}
	for rows.Next() {
		var l domain.InventoryLog
		if err := rows.Scan(
			&l.ID,
			&l.ProductID,
			&l.Action,
			&l.Quantity,
			&l.PreviousStock,
			&l.NewStock,
			&l.PreviousReserved,
			&l.NewReserved,
			&l.ReferenceID,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan inventory log row: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory log rows: %w", err)
	}

	return logs, nil
}

// AddressRepository implements repository.AddressRepository using PostgreSQL.
type AddressRepository struct {
	pool database.DBTX
}

// NewAddressRepository creates a new PostgreSQL-backed address repository.
func NewAddressRepository(pool database.DBTX) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// GetByID retrieves a saved address.
func (r *AddressRepository) GetByID(ctx context.Context, id string) (*domain.Address, error) {
	query := `
		SELECT id, user_id, full_name, address_line, city, state, postal_code, country, phone
		FROM addresses
		WHERE id = $1`

	var a domain.Address
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.UserID,
		&a.FullName,
		&a.AddressLine,
		&a.City,
		&a.State,
		&a.PostalCode,
		&a.Country,
		&a.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("address", id)
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return &a, nil
}
