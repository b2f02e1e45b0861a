package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/pricing"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
	"github.com/utafrali/ordercore/pkg/tracing"
)

// OrderService places orders and drives them through their lifecycle.
type OrderService struct {
	uow      repository.UnitOfWork
	store    repository.Store
	carts    repository.CartRepository
	locker   repository.CouponLocker
	settings SettingsProvider
	tax      pricing.TaxRules
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrderService creates a new OrderService. store serves reads outside a
// unit of work.
func NewOrderService(
	uow repository.UnitOfWork,
	store repository.Store,
	carts repository.CartRepository,
	locker repository.CouponLocker,
	settings SettingsProvider,
	tax pricing.TaxRules,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		uow:      uow,
		store:    store,
		carts:    carts,
		locker:   locker,
		settings: settings,
		tax:      tax,
		logger:   logger,
		now:      utcNow,
	}
}

// ShipmentInfo carries the carrier details recorded on shipping.
type ShipmentInfo struct {
	Carrier        string
	TrackingNumber string
}

// effect describes what a lifecycle step changed. A nil effect leaves the
// order untouched; an empty event persists without emitting one.
type effect struct {
	event  string
	refund int64
	reason string
	// stock runs after the guarded order update, so a concurrent writer
	// loses on the order row before touching inventory.
	stock stockFn
}

// transition loads the order, applies fn and persists the result together
// with its outbox event in one unit of work.
func (s *OrderService) transition(ctx context.Context, orderID, op string, fn func(ctx context.Context, st repository.Store, o *domain.Order, now time.Time) (*effect, error)) (order *domain.Order, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "OrderService."+op, attribute.String("order.id", orderID))
	defer func() { tracing.EndSpan(span, err) }()

	var prev string
	var changed bool
	err = s.uow.Do(ctx, func(ctx context.Context, st repository.Store) error {
		o, err := st.Orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		prev = o.Status
		now := s.now()

		eff, err := fn(ctx, st, o, now)
		if err != nil || eff == nil {
			order = o
			return err
		}
		if err := persist(ctx, st, o, prev, now, eff); err != nil {
			return err
		}
		order, changed = o, true
		return nil
	})
	if err != nil {
		return nil, staleOrder(err, orderID)
	}

	if changed && order.Status != prev {
		orderTransitions.WithLabelValues(prev, order.Status).Inc()
		s.logger.InfoContext(ctx, "order_transition",
			slog.String("order_id", order.ID),
			slog.String("operation", op),
			slog.String("from", prev),
			slog.String("to", order.Status),
			slog.String("payment_status", order.PaymentStatus),
		)
	}
	return order, nil
}

// persist writes o guarded by its previous status and appends eff's event.
func persist(ctx context.Context, st repository.Store, o *domain.Order, prev string, now time.Time, eff *effect) error {
	o.UpdatedAt = now
	if err := st.Orders.Update(ctx, o, prev); err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if eff.stock != nil {
		if err := eff.stock(ctx, st); err != nil {
			return err
		}
	}
	if eff.event == "" {
		return nil
	}
	return appendOrderEvent(ctx, st, o, eff.event, prev, now, func(p *domain.OrderEventPayload) {
		p.RefundAmount = eff.refund
		if eff.reason != "" {
			p.Reason = eff.reason
		}
	})
}

// ConfirmOrder confirms a COD order or a gateway order whose payment has
// already been captured, converting its reservations into sales.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, "ConfirmOrder", func(ctx context.Context, st repository.Store, o *domain.Order, _ time.Time) (*effect, error) {
		if err := domain.AssertTransition(o.Status, domain.OrderStatusConfirmed); err != nil {
			return nil, domain.InvalidTransition(o.Status, domain.OrderStatusConfirmed)
		}
		if !o.IsCOD() && o.PaymentStatus != domain.PaymentStatusPaid {
			return nil, domain.PaymentRequired(fmt.Sprintf("order %s is still awaiting payment", o.OrderNumber))
		}
		step, err := confirm(o)
		if err != nil {
			return nil, err
		}
		return &effect{event: domain.EventOrderConfirmed, stock: step}, nil
	})
}

// CancelOrder cancels an order that has not been confirmed yet. A non-empty
// userID restricts the operation to the order's owner.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID, reason string) (*domain.Order, error) {
	if reason == "" {
		reason = "cancelled by customer"
	}
	return s.transition(ctx, orderID, "CancelOrder", func(ctx context.Context, st repository.Store, o *domain.Order, _ time.Time) (*effect, error) {
		if userID != "" && o.UserID != userID {
			return nil, apperrors.NotFound("order", orderID)
		}
		step, err := cancel(o, reason, "")
		if err != nil {
			return nil, err
		}
		return &effect{event: domain.EventOrderCancelled, stock: step}, nil
	})
}

// FailOrder cancels an unconfirmed order whose payment failed. Every
// reservation is released and the coupon redemption reversed.
func (s *OrderService) FailOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	if reason == "" {
		reason = "payment failed"
	}
	return s.transition(ctx, orderID, "FailOrder", func(ctx context.Context, st repository.Store, o *domain.Order, _ time.Time) (*effect, error) {
		step, err := cancel(o, reason, domain.PaymentStatusFailed)
		if err != nil {
			return nil, err
		}
		return &effect{event: domain.EventOrderCancelled, stock: step}, nil
	})
}

// AutoCancel cancels an order still waiting for payment or confirmation.
// It reports false, without error, when the order has moved on since the
// timer was scheduled.
func (s *OrderService) AutoCancel(ctx context.Context, orderID string) (bool, error) {
	fired := false
	_, err := s.transition(ctx, orderID, "AutoCancel", func(ctx context.Context, st repository.Store, o *domain.Order, _ time.Time) (*effect, error) {
		if o.Status != domain.OrderStatusCreated || o.PaymentStatus != domain.PaymentStatusPending {
			return nil, nil
		}
		paymentStatus := domain.PaymentStatusFailed
		if o.IsCOD() {
			paymentStatus = ""
		}
		step, err := cancel(o, "not confirmed in time", paymentStatus)
		if err != nil {
			return nil, err
		}
		fired = true
		return &effect{event: domain.EventOrderCancelled, stock: step}, nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if fired {
		s.logger.InfoContext(ctx, "auto_cancel_fired", slog.String("order_id", orderID))
	}
	return fired, nil
}

// ShipOrder records the shipment. Gateway orders must be fully paid first.
func (s *OrderService) ShipOrder(ctx context.Context, orderID string, info ShipmentInfo) (*domain.Order, error) {
	return s.transition(ctx, orderID, "ShipOrder", func(_ context.Context, _ repository.Store, o *domain.Order, now time.Time) (*effect, error) {
		if err := domain.AssertTransition(o.Status, domain.OrderStatusShipped); err != nil {
			return nil, domain.InvalidTransition(o.Status, domain.OrderStatusShipped)
		}
		if !o.IsCOD() && o.PaymentStatus != domain.PaymentStatusPaid {
			return nil, domain.PaymentRequired(fmt.Sprintf("order %s cannot ship before payment is complete", o.OrderNumber))
		}
		o.SetStatus(domain.OrderStatusShipped)
		o.Carrier = info.Carrier
		o.TrackingNumber = info.TrackingNumber
		o.ShippedAt = &now
		return &effect{event: domain.EventOrderShipped}, nil
	})
}

// DeliverOrder marks the order delivered. Cash on delivery is collected here.
func (s *OrderService) DeliverOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, "DeliverOrder", func(_ context.Context, _ repository.Store, o *domain.Order, now time.Time) (*effect, error) {
		if err := domain.AssertTransition(o.Status, domain.OrderStatusDelivered); err != nil {
			return nil, domain.InvalidTransition(o.Status, domain.OrderStatusDelivered)
		}
		o.SetStatus(domain.OrderStatusDelivered)
		o.DeliveredAt = &now
		if o.IsCOD() && o.PaymentStatus != domain.PaymentStatusPaid {
			o.PaymentStatus = domain.PaymentStatusPaid
			o.PaidAmount = o.GrandTotal
		}
		return &effect{event: domain.EventOrderDelivered}, nil
	})
}

// RefundOrder refunds amount of the captured payment; zero refunds whatever
// is left. Only a refund that covers everything paid moves the order to
// refunded and returns its stock.
func (s *OrderService) RefundOrder(ctx context.Context, orderID string, amount int64, reason string) (*domain.Order, error) {
	return s.transition(ctx, orderID, "RefundOrder", func(ctx context.Context, st repository.Store, o *domain.Order, _ time.Time) (*effect, error) {
		if amount == 0 {
			amount = o.Refundable()
		}
		step, err := refund(o, amount)
		if err != nil {
			return nil, err
		}
		return &effect{event: domain.EventOrderRefunded, refund: amount, reason: reason, stock: step}, nil
	})
}

// GenerateInvoice assigns the invoice number of a confirmed order. Calling it
// again returns the order unchanged.
func (s *OrderService) GenerateInvoice(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, "GenerateInvoice", func(_ context.Context, _ repository.Store, o *domain.Order, _ time.Time) (*effect, error) {
		if o.InvoiceNumber != "" {
			return nil, nil
		}
		if !o.InventoryCommitted() {
			return nil, apperrors.New("INVOICE_NOT_READY",
				fmt.Sprintf("order %s is %s, only confirmed orders are invoiced", o.OrderNumber, o.Status),
				http.StatusConflict, apperrors.ErrConflict)
		}
		o.InvoiceNumber = invoiceNumber(o)
		return &effect{}, nil
	})
}

// GetOrder returns an order. A non-empty userID hides other users' orders.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	o, err := s.store.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID != "" && o.UserID != userID {
		return nil, apperrors.NotFound("order", orderID)
	}
	return o, nil
}

// ListOrders returns one page of orders matching filter and the total count.
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	if filter.Status != nil && !domain.IsValidStatus(*filter.Status) {
		return nil, 0, domain.ValidationError(fmt.Sprintf("unknown order status %q", *filter.Status))
	}
	orders, total, err := s.store.Orders.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// stockFn applies the inventory and coupon side of a transition.
type stockFn func(ctx context.Context, st repository.Store) error

// confirm moves o to confirmed. The returned step converts its reservations
// into sales.
func confirm(o *domain.Order) (stockFn, error) {
	if err := domain.AssertTransition(o.Status, domain.OrderStatusConfirmed); err != nil {
		return nil, domain.InvalidTransition(o.Status, domain.OrderStatusConfirmed)
	}
	o.SetStatus(domain.OrderStatusConfirmed)
	o.IsLocked = true

	items := o.Items
	return func(ctx context.Context, st repository.Store) error {
		for _, i := range lockOrder(len(items), func(i int) string { return items[i].ProductID }) {
			it := items[i]
			if err := st.Inventory.Commit(ctx, it.ProductID, it.Quantity, o.ID); err != nil {
				return fmt.Errorf("commit stock for product %s: %w", it.ProductID, err)
			}
		}
		return nil
	}, nil
}

// cancel moves o to cancelled. paymentStatus, when set, replaces the payment
// status. The returned step releases the reservations and reverses the
// coupon redemption.
func cancel(o *domain.Order, reason, paymentStatus string) (stockFn, error) {
	if err := domain.AssertTransition(o.Status, domain.OrderStatusCancelled); err != nil {
		return nil, domain.InvalidTransition(o.Status, domain.OrderStatusCancelled)
	}
	o.SetStatus(domain.OrderStatusCancelled)
	o.CancelReason = reason
	if paymentStatus != "" && domain.CanAdvancePayment(o.PaymentStatus, paymentStatus) {
		o.PaymentStatus = paymentStatus
	}
	return releaseItems(o.ID, o.Items), nil
}

// refund records amount against the captured payment. Only when it covers
// the rest of the payment does the order become refunded; the returned step
// then releases the reservations of an unconfirmed order, puts back committed
// stock that never shipped, and reverses the coupon redemption. A partial
// refund returns a nil step.
func refund(o *domain.Order, amount int64) (stockFn, error) {
	if o.PaidAmount == 0 {
		return nil, domain.PaymentRequired(fmt.Sprintf("order %s has no captured payment to refund", o.OrderNumber))
	}
	if amount <= 0 {
		return nil, domain.ValidationError("refund amount must be positive")
	}
	if amount > o.Refundable() {
		return nil, apperrors.New("REFUND_EXCEEDS_PAID",
			fmt.Sprintf("refund of %d exceeds the refundable amount %d", amount, o.Refundable()),
			http.StatusBadRequest, domain.ErrRefundExceedsPaid)
	}
	if err := domain.AssertTransition(o.Status, domain.OrderStatusRefunded); err != nil {
		return nil, domain.InvalidTransition(o.Status, domain.OrderStatusRefunded)
	}

	o.RefundedAmount += amount
	if o.RefundedAmount < o.PaidAmount {
		return nil, nil
	}

	var step stockFn
	switch o.Status {
	case domain.OrderStatusCreated:
		step = releaseItems(o.ID, o.Items)
	case domain.OrderStatusConfirmed:
		step = restockItems(o.ID, o.Items)
	default:
		step = revokeCoupon(o.ID)
	}
	o.SetStatus(domain.OrderStatusRefunded)
	o.PaymentStatus = domain.PaymentStatusRefunded
	return step, nil
}

func releaseItems(orderID string, items []domain.OrderItem) stockFn {
	return func(ctx context.Context, st repository.Store) error {
		for _, i := range lockOrder(len(items), func(i int) string { return items[i].ProductID }) {
			it := items[i]
			if _, err := st.Inventory.Release(ctx, it.ProductID, it.Quantity, orderID); err != nil {
				return fmt.Errorf("release stock for product %s: %w", it.ProductID, err)
			}
		}
		return revokeCoupon(orderID)(ctx, st)
	}
}

func restockItems(orderID string, items []domain.OrderItem) stockFn {
	return func(ctx context.Context, st repository.Store) error {
		for _, i := range lockOrder(len(items), func(i int) string { return items[i].ProductID }) {
			it := items[i]
			if _, err := st.Inventory.Restock(ctx, it.ProductID, it.Quantity, orderID); err != nil {
				return fmt.Errorf("return stock for product %s: %w", it.ProductID, err)
			}
		}
		return revokeCoupon(orderID)(ctx, st)
	}
}

// lockOrder returns the indexes 0..n-1 sorted by product id. Every unit of
// work touches stock rows in this order, so overlapping orders wait on each
// other instead of deadlocking.
func lockOrder(n int, productID func(i int) string) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return strings.Compare(productID(a), productID(b))
	})
	return idx
}

func revokeCoupon(orderID string) stockFn {
	return func(ctx context.Context, st repository.Store) error {
		if _, err := st.Coupons.RemoveUsageByOrder(ctx, orderID); err != nil {
			return fmt.Errorf("reverse coupon usage: %w", err)
		}
		return nil
	}
}

// invoiceNumber derives the invoice number from the order number so repeated
// generation can never produce a second one.
func invoiceNumber(o *domain.Order) string {
	return "INV-" + strings.TrimPrefix(o.OrderNumber, "ORD-")
}
