package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/utafrali/ordercore/internal/domain"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// InventoryRepository implements repository.InventoryRepository.
type InventoryRepository struct {
	db *DB
}

func (r *InventoryRepository) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.products[productID]
	if !ok {
		return nil, apperrors.NotFound("product", productID)
	}
	c := *p
	return &c, nil
}

// mutate applies fn to a copy of the product and stores it only when fn
// succeeds, logging the change.
func (r *InventoryRepository) mutate(productID, action string, qty int, refID string, fn func(p *domain.Product) (int, error)) (*domain.Product, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	stored, ok := r.db.products[productID]
	if !ok {
		return nil, 0, apperrors.NotFound("product", productID)
	}
	next := *stored
	n, err := fn(&next)
	if err != nil {
		return nil, 0, err
	}
	next.UpdatedAt = r.db.now()
	r.db.logs = append(r.db.logs, domain.InventoryLog{
		ID:               uuid.New().String(),
		ProductID:        productID,
		Action:           action,
		Quantity:         n,
		PreviousStock:    stored.StockQty,
		NewStock:         next.StockQty,
		PreviousReserved: stored.ReservedQty,
		NewReserved:      next.ReservedQty,
		ReferenceID:      refID,
		CreatedAt:        next.UpdatedAt,
	})
	*stored = next
	return &next, n, nil
}

func (r *InventoryRepository) Reserve(_ context.Context, productID string, qty int, refID string) error {
	_, _, err := r.mutate(productID, domain.InventoryActionReserve, qty, refID, func(p *domain.Product) (int, error) {
		return qty, p.Reserve(qty)
	})
	return err
}

func (r *InventoryRepository) Release(_ context.Context, productID string, qty int, refID string) (int, error) {
	_, n, err := r.mutate(productID, domain.InventoryActionRelease, qty, refID, func(p *domain.Product) (int, error) {
		return p.Release(qty), nil
	})
	return n, err
}

func (r *InventoryRepository) Commit(_ context.Context, productID string, qty int, refID string) error {
	_, _, err := r.mutate(productID, domain.InventoryActionCommit, qty, refID, func(p *domain.Product) (int, error) {
		return qty, p.Commit(qty)
	})
	return err
}

func (r *InventoryRepository) Restock(_ context.Context, productID string, delta int, refID string) (*domain.Product, error) {
	p, _, err := r.mutate(productID, domain.InventoryActionRestock, delta, refID, func(p *domain.Product) (int, error) {
		return delta, p.Restock(delta)
	})
	return p, err
}

func (r *InventoryRepository) ListLogs(_ context.Context, productID string, limit int) ([]domain.InventoryLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []domain.InventoryLog
	for i := len(r.db.logs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.db.logs[i].ProductID == productID {
			out = append(out, r.db.logs[i])
		}
	}
	return out, nil
}

// AddressRepository implements repository.AddressRepository.
type AddressRepository struct {
	db *DB
}

func (r *AddressRepository) GetByID(_ context.Context, id string) (*domain.Address, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.addresses[id]
	if !ok {
		return nil, apperrors.NotFound("address", id)
	}
	return &a, nil
}
