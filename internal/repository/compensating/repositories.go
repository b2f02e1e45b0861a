package compensating

import (
	"context"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
)

const compensationRef = "compensation"

type inventory struct {
	repository.InventoryRepository
	j *journal
}

func (r *inventory) Reserve(ctx context.Context, productID string, qty int, refID string) error {
	if err := r.InventoryRepository.Reserve(ctx, productID, qty, refID); err != nil {
		return err
	}
	r.j.push("reserve "+productID, func(ctx context.Context) error {
		_, err := r.InventoryRepository.Release(ctx, productID, qty, compensationRef)
		return err
	})
	return nil
}

func (r *inventory) Release(ctx context.Context, productID string, qty int, refID string) (int, error) {
	n, err := r.InventoryRepository.Release(ctx, productID, qty, refID)
	if err != nil || n == 0 {
		return n, err
	}
	r.j.push("release "+productID, func(ctx context.Context) error {
		return r.InventoryRepository.Reserve(ctx, productID, n, compensationRef)
	})
	return n, nil
}

func (r *inventory) Commit(ctx context.Context, productID string, qty int, refID string) error {
	if err := r.InventoryRepository.Commit(ctx, productID, qty, refID); err != nil {
		return err
	}
	r.j.push("commit "+productID, func(ctx context.Context) error {
		if _, err := r.InventoryRepository.Restock(ctx, productID, qty, compensationRef); err != nil {
			return err
		}
		return r.InventoryRepository.Reserve(ctx, productID, qty, compensationRef)
	})
	return nil
}

func (r *inventory) Restock(ctx context.Context, productID string, delta int, refID string) (*domain.Product, error) {
	p, err := r.InventoryRepository.Restock(ctx, productID, delta, refID)
	if err != nil {
		return nil, err
	}
	r.j.push("restock "+productID, func(ctx context.Context) error {
		_, err := r.InventoryRepository.Restock(ctx, productID, -delta, compensationRef)
		return err
	})
	return p, nil
}

type coupons struct {
	repository.CouponRepository
	j *journal
}

func (r *coupons) RecordUsage(ctx context.Context, usage *domain.CouponUsage) error {
	if err := r.CouponRepository.RecordUsage(ctx, usage); err != nil {
		return err
	}
	orderID := usage.OrderID
	r.j.push("record coupon usage", func(ctx context.Context) error {
		_, err := r.CouponRepository.RemoveUsageByOrder(ctx, orderID)
		return err
	})
	return nil
}

func (r *coupons) RemoveUsageByOrder(ctx context.Context, orderID string) (*domain.CouponUsage, error) {
	u, err := r.CouponRepository.RemoveUsageByOrder(ctx, orderID)
	if err != nil || u == nil {
		return u, err
	}
	removed := *u
	r.j.push("remove coupon usage", func(ctx context.Context) error {
		return r.CouponRepository.RecordUsage(ctx, &removed)
	})
	return u, nil
}

type orders struct {
	repository.OrderRepository
	j *journal
}

func (r *orders) Create(ctx context.Context, o *domain.Order) error {
	if err := r.OrderRepository.Create(ctx, o); err != nil {
		return err
	}
	id := o.ID
	r.j.push("create order", func(ctx context.Context) error {
		return r.OrderRepository.Delete(ctx, id)
	})
	return nil
}

func (r *orders) Update(ctx context.Context, o *domain.Order, expectedStatus string) error {
	prev, err := r.OrderRepository.GetByID(ctx, o.ID)
	if err != nil {
		return err
	}
	if err := r.OrderRepository.Update(ctx, o, expectedStatus); err != nil {
		return err
	}
	newStatus := o.Status
	r.j.push("update order", func(ctx context.Context) error {
		return r.OrderRepository.Update(ctx, prev, newStatus)
	})
	return nil
}

func (r *orders) Delete(ctx context.Context, id string) error {
	prev, err := r.OrderRepository.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.OrderRepository.Delete(ctx, id); err != nil {
		return err
	}
	r.j.push("delete order", func(ctx context.Context) error {
		return r.OrderRepository.Create(ctx, prev)
	})
	return nil
}

type webhooks struct {
	repository.WebhookRepository
	j *journal
}

func (r *webhooks) Insert(ctx context.Context, rec *domain.WebhookRecord) error {
	if err := r.WebhookRepository.Insert(ctx, rec); err != nil {
		return err
	}
	id := rec.ID
	r.j.push("insert webhook", func(ctx context.Context) error {
		return r.WebhookRepository.Delete(ctx, id)
	})
	return nil
}

func (r *webhooks) Resolve(ctx context.Context, id, orderID string, at time.Time) error {
	if err := r.WebhookRepository.Resolve(ctx, id, orderID, at); err != nil {
		return err
	}
	r.j.push("resolve webhook", func(ctx context.Context) error {
		return r.WebhookRepository.Reopen(ctx, id)
	})
	return nil
}

type outbox struct {
	repository.OutboxRepository
	j *journal
}

func (r *outbox) Append(ctx context.Context, ev *domain.OutboxEvent) error {
	if err := r.OutboxRepository.Append(ctx, ev); err != nil {
		return err
	}
	id := ev.ID
	r.j.push("append outbox", func(ctx context.Context) error {
		return r.OutboxRepository.Delete(ctx, id)
	})
	return nil
}
