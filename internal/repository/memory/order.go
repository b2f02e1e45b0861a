package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// OrderRepository implements repository.OrderRepository.
type OrderRepository struct {
	db *DB
}

func (r *OrderRepository) Create(_ context.Context, o *domain.Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.orders[o.ID]; ok {
		return apperrors.AlreadyExists("order", "id", o.ID)
	}
	for _, existing := range r.db.orders {
		if existing.OrderNumber == o.OrderNumber {
			return apperrors.AlreadyExists("order", "order_number", o.OrderNumber)
		}
	}
	r.db.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	o, ok := r.db.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) GetByPaymentRef(_ context.Context, gateway, ref string) (*domain.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, o := range r.db.orders {
		if o.PaymentMethod == gateway && o.PaymentRef == ref && ref != "" {
			return cloneOrder(o), nil
		}
	}
	return nil, apperrors.NotFound("order", gateway+":"+ref)
}

func (r *OrderRepository) List(_ context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var matched []domain.Order
	for _, o := range r.db.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		matched = append(matched, *cloneOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.PerPage
	if start < 0 || filter.PerPage <= 0 {
		start = 0
	}
	if start >= total {
		return []domain.Order{}, total, nil
	}
	end := total
	if filter.PerPage > 0 {
		end = min(start+filter.PerPage, total)
	}
	return matched[start:end], total, nil
}

func (r *OrderRepository) Update(_ context.Context, o *domain.Order, expectedStatus string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	stored, ok := r.db.orders[o.ID]
	if !ok {
		return apperrors.NotFound("order", o.ID)
	}
	if stored.Status != expectedStatus {
		return fmt.Errorf("%w: order %s is %s, expected %s", domain.ErrStaleOrder, o.ID, stored.Status, expectedStatus)
	}
	r.db.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *OrderRepository) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	delete(r.db.orders, id)
	return nil
}
