package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
)

// AutoCancelScheduler arms and disarms the auto-cancel timer of an order.
type AutoCancelScheduler interface {
	Schedule(ctx context.Context, orderID string, at time.Time) error
	Cancel(ctx context.Context, orderID string) error
}

// Notifier delivers a customer notification for an order event. eventID
// lets the receiver drop redeliveries.
type Notifier interface {
	Notify(ctx context.Context, eventID, eventType string, payload domain.OrderEventPayload) error
}

// SideEffects holds the post-commit work bound to order events. Each method
// is an outbox handler; a returned error makes the relay retry the event, so
// every handler tolerates running more than once.
type SideEffects struct {
	orders    *OrderService
	scheduler AutoCancelScheduler
	notifier  Notifier
	logger    *slog.Logger
}

// NewSideEffects creates a new SideEffects.
func NewSideEffects(orders *OrderService, scheduler AutoCancelScheduler, notifier Notifier, logger *slog.Logger) *SideEffects {
	return &SideEffects{orders: orders, scheduler: scheduler, notifier: notifier, logger: logger}
}

// AutoCancelTimers schedules the timer of a new order and disarms it once
// the order leaves created.
func (h *SideEffects) AutoCancelTimers(ctx context.Context, ev domain.OutboxEvent) error {
	switch ev.EventType {
	case domain.EventOrderCreated:
		p, err := decodePayload(ev)
		if err != nil {
			return err
		}
		if p.AutoCancelAt == nil {
			return nil
		}
		if err := h.scheduler.Schedule(ctx, p.OrderID, *p.AutoCancelAt); err != nil {
			return fmt.Errorf("schedule auto-cancel: %w", err)
		}
	case domain.EventOrderConfirmed, domain.EventOrderCancelled, domain.EventOrderRefunded:
		if err := h.scheduler.Cancel(ctx, ev.AggregateID); err != nil {
			return fmt.Errorf("cancel auto-cancel: %w", err)
		}
	}
	return nil
}

// Invoices generates the invoice of a confirmed order.
func (h *SideEffects) Invoices(ctx context.Context, ev domain.OutboxEvent) error {
	if ev.EventType != domain.EventOrderConfirmed {
		return nil
	}
	o, err := h.orders.GenerateInvoice(ctx, ev.AggregateID)
	if err != nil {
		return fmt.Errorf("generate invoice: %w", err)
	}
	h.logger.InfoContext(ctx, "invoice generated",
		slog.String("order_id", o.ID),
		slog.String("invoice_number", o.InvoiceNumber),
	)
	return nil
}

// Notifications forwards every order event except creation to the customer.
// Creation is acknowledged synchronously by the checkout response.
func (h *SideEffects) Notifications(ctx context.Context, ev domain.OutboxEvent) error {
	if ev.EventType == domain.EventOrderCreated {
		return nil
	}
	p, err := decodePayload(ev)
	if err != nil {
		return err
	}
	if err := h.notifier.Notify(ctx, ev.ID, ev.EventType, p); err != nil {
		return fmt.Errorf("notify %s: %w", ev.EventType, err)
	}
	return nil
}

func decodePayload(ev domain.OutboxEvent) (domain.OrderEventPayload, error) {
	var p domain.OrderEventPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", ev.EventType, err)
	}
	return p, nil
}
