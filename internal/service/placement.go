package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/pricing"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
	"github.com/utafrali/ordercore/pkg/tracing"
)

const defaultCouponLockTTL = 30 * time.Second

// PlaceOrderCommand is a checkout request that already passed boundary
// validation. PaymentMethod is "cod" or a gateway name.
type PlaceOrderCommand struct {
	UserID            string
	SessionID         string
	ShippingAddressID string
	BillingAddressID  string
	PaymentMethod     string
	PaymentCompleted  bool
	PaymentRef        string
	// CouponCode overrides the code attached to the cart.
	CouponCode string
}

// PlaceOrder turns the user's cart into an order. Reservations, the order,
// its items, the coupon redemption and the order.created event are written
// in one unit of work; nothing is left behind when any step fails.
func (s *OrderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (order *domain.Order, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "OrderService.PlaceOrder",
		attribute.String("user.id", cmd.UserID),
		attribute.String("payment.method", cmd.PaymentMethod),
	)
	defer func() {
		tracing.EndSpan(span, err)
		if err != nil {
			placementFailures.WithLabelValues(errorCode(err)).Inc()
		}
	}()

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !settings.PaymentMethodEnabled(cmd.PaymentMethod) {
		return nil, domain.PaymentMethodDisabled(cmd.PaymentMethod)
	}
	if cmd.PaymentMethod != domain.PaymentMethodCOD {
		if !cmd.PaymentCompleted {
			return nil, domain.PaymentRequired("complete the online payment before placing the order")
		}
		if cmd.PaymentRef == "" {
			return nil, domain.ValidationError("payment reference is required for online payments")
		}
	}

	cart, err := s.carts.Get(ctx, cmd.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.EmptyCart()
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	lines := cart.Lines()
	if len(lines) == 0 {
		return nil, domain.EmptyCart()
	}

	code := cmd.CouponCode
	if code == "" {
		code = cart.CouponCode
	}
	var coupon *domain.Coupon
	if code != "" {
		coupon, err = s.store.Coupons.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, domain.InvalidCoupon(fmt.Sprintf("coupon %s does not exist", code))
			}
			return nil, fmt.Errorf("get coupon: %w", err)
		}

		sessionID := cmd.SessionID
		if sessionID == "" {
			sessionID = uuid.New().String()
		}
		unlock, lockErr := s.lockCoupon(ctx, coupon, cmd.UserID, sessionID, settings.CouponLockTTL)
		if lockErr != nil {
			return nil, lockErr
		}
		defer unlock()
	}

	now := s.now()
	order = &domain.Order{
		ID:            uuid.New().String(),
		OrderNumber:   newOrderNumber(now),
		UserID:        cmd.UserID,
		Status:        domain.OrderStatusCreated,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: cmd.PaymentMethod,
		PaymentRef:    cmd.PaymentRef,
		Currency:      settings.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.uow.Do(ctx, func(ctx context.Context, st repository.Store) error {
		return s.placeInStore(ctx, st, cmd, lines, coupon, settings, order)
	})
	if err != nil {
		return nil, err
	}

	if err := s.carts.Delete(ctx, cmd.UserID); err != nil {
		s.logger.WarnContext(ctx, "failed to clear cart after checkout",
			slog.String("user_id", cmd.UserID),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	ordersPlaced.WithLabelValues(order.PaymentMethod).Inc()
	s.logger.InfoContext(ctx, "order_created",
		slog.String("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.String("user_id", order.UserID),
		slog.String("payment_method", order.PaymentMethod),
		slog.Int64("grand_total", order.GrandTotal),
		slog.Int("items", len(order.Items)),
	)
	return order, nil
}

func (s *OrderService) placeInStore(ctx context.Context, st repository.Store, cmd PlaceOrderCommand, lines []domain.CartItem, coupon *domain.Coupon, settings domain.Settings, order *domain.Order) error {
	// Stock is re-validated against the live rows; the cart may be stale.
	products := make([]*domain.Product, len(lines))
	for _, i := range lockOrder(len(lines), func(i int) string { return lines[i].ProductID }) {
		p, err := s.reserveLine(ctx, st, lines[i], order.ID)
		if err != nil {
			return err
		}
		products[i] = p
	}

	shipping, err := userAddress(ctx, st, cmd.UserID, cmd.ShippingAddressID, "shipping")
	if err != nil {
		return err
	}
	billing := shipping
	if cmd.BillingAddressID != "" && cmd.BillingAddressID != cmd.ShippingAddressID {
		if billing, err = userAddress(ctx, st, cmd.UserID, cmd.BillingAddressID, "billing"); err != nil {
			return err
		}
	}

	in := pricing.Input{
		Lines:         make([]pricing.Line, len(lines)),
		Destination:   pricing.Destination{State: shipping.State, Country: shipping.Country},
		PaymentMethod: cmd.PaymentMethod,
		Shipping:      settings.Shipping,
		Tax:           s.tax,
	}
	var subtotal int64
	for i, p := range products {
		in.Lines[i] = pricing.Line{ProductID: p.ID, HSNCode: p.HSNCode, UnitPrice: p.Price, Quantity: lines[i].Quantity}
		subtotal += p.Price * int64(lines[i].Quantity)
	}

	if coupon != nil {
		// Re-read so the usage count is the one this unit of work sees.
		live, err := st.Coupons.GetByCode(ctx, coupon.Code)
		if err != nil {
			return fmt.Errorf("get coupon: %w", err)
		}
		if err := live.CheckApplicable(order.CreatedAt, subtotal); err != nil {
			return couponError(err, live.Code)
		}
		in.Coupon = live
	}

	totals, err := pricing.Calculate(in)
	if err != nil {
		return fmt.Errorf("price order: %w", err)
	}

	order.Subtotal = totals.Subtotal
	order.DiscountAmount = totals.Discount
	order.TaxAmount = totals.Tax
	order.TaxBreakdown = totals.TaxBreakdown
	order.ShippingFee = totals.ShippingFee
	order.CODFee = totals.CODFee
	order.GrandTotal = totals.GrandTotal
	order.ShippingAddress = *shipping
	order.BillingAddress = *billing
	if in.Coupon != nil {
		id := in.Coupon.ID
		order.CouponID = &id
		order.CouponCode = in.Coupon.Code
	}

	order.Items = make([]domain.OrderItem, len(products))
	for i, p := range products {
		lt := totals.Lines[i]
		order.Items[i] = domain.OrderItem{
			ID:             uuid.New().String(),
			OrderID:        order.ID,
			ProductID:      p.ID,
			Name:           p.Name,
			SKU:            p.SKU,
			HSNCode:        p.HSNCode,
			UnitPrice:      p.Price,
			Quantity:       lines[i].Quantity,
			LineSubtotal:   lt.LineSubtotal,
			DiscountAmount: lt.Discount,
			TaxRateBps:     lt.TaxRateBps,
			TaxAmount:      lt.Tax,
			TaxBreakdown:   lt.TaxBreakdown,
			ShippingAmount: lt.Shipping,
			Total:          lt.Total,
			Status:         domain.ItemStatusPending,
		}
	}

	if err := st.Orders.Create(ctx, order); err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	if in.Coupon != nil {
		usage := &domain.CouponUsage{
			ID:        uuid.New().String(),
			CouponID:  in.Coupon.ID,
			UserID:    order.UserID,
			OrderID:   order.ID,
			CreatedAt: order.CreatedAt,
		}
		if err := st.Coupons.RecordUsage(ctx, usage); err != nil {
			return couponError(err, in.Coupon.Code)
		}
	}

	var autoCancelAt *time.Time
	if d := settings.AutoCancelAfter(order.PaymentMethod); d > 0 {
		at := order.CreatedAt.Add(d)
		autoCancelAt = &at
	}
	return appendOrderEvent(ctx, st, order, domain.EventOrderCreated, "", order.CreatedAt, func(p *domain.OrderEventPayload) {
		p.AutoCancelAt = autoCancelAt
	})
}

// reserveLine re-reads a product and holds the line's quantity.
func (s *OrderService) reserveLine(ctx context.Context, st repository.Store, line domain.CartItem, orderID string) (*domain.Product, error) {
	if line.Quantity <= 0 {
		return nil, domain.ValidationError(fmt.Sprintf("quantity for product %s must be positive", line.ProductID))
	}

	p, err := st.Inventory.GetProduct(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ProductUnavailable(line.ProductID)
		}
		return nil, fmt.Errorf("get product %s: %w", line.ProductID, err)
	}
	if !p.IsActive() {
		return nil, domain.ProductUnavailable(p.ID)
	}
	if line.Quantity > p.Available() {
		return nil, domain.OutOfStock(p.ID, line.Quantity, p.Available())
	}

	if err := st.Inventory.Reserve(ctx, p.ID, line.Quantity, orderID); err != nil {
		if !errors.Is(err, domain.ErrOutOfStock) {
			return nil, fmt.Errorf("reserve product %s: %w", p.ID, err)
		}
		// Lost the race to a concurrent checkout; report what is left now.
		available := 0
		if cur, getErr := st.Inventory.GetProduct(ctx, p.ID); getErr == nil {
			available = cur.Available()
		}
		return nil, domain.OutOfStock(p.ID, line.Quantity, available)
	}
	return p, nil
}

func (s *OrderService) lockCoupon(ctx context.Context, c *domain.Coupon, userID, sessionID string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = defaultCouponLockTTL
	}

	ok, err := s.locker.Lock(ctx, c.ID, userID, sessionID, ttl)
	if err != nil {
		s.logger.ErrorContext(ctx, "coupon lock unavailable",
			slog.String("coupon_id", c.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.ServiceUnavailable("coupon redemption is temporarily unavailable")
	}
	if !ok {
		return nil, domain.CouponInUse(c.Code)
	}

	return func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), c.ID, userID, sessionID); err != nil {
			s.logger.WarnContext(ctx, "failed to unlock coupon",
				slog.String("coupon_id", c.ID),
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}, nil
}

func userAddress(ctx context.Context, st repository.Store, userID, addressID, kind string) (*domain.Address, error) {
	if addressID == "" {
		return nil, domain.InvalidAddress(kind + " address is required")
	}
	a, err := st.Addresses.GetByID(ctx, addressID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.InvalidAddress(fmt.Sprintf("%s address %s not found", kind, addressID))
		}
		return nil, fmt.Errorf("get %s address: %w", kind, err)
	}
	if a.UserID != userID {
		return nil, domain.InvalidAddress(fmt.Sprintf("%s address %s does not belong to the user", kind, addressID))
	}
	return a, nil
}

func couponError(err error, code string) error {
	switch {
	case errors.Is(err, domain.ErrCouponAlreadyUsed):
		return domain.CouponInUse(code)
	case errors.Is(err, domain.ErrCouponExhausted):
		return domain.CouponExhausted(code)
	case errors.Is(err, domain.ErrInvalidCoupon):
		return domain.InvalidCoupon(strings.TrimPrefix(err.Error(), domain.ErrInvalidCoupon.Error()+": "))
	default:
		return fmt.Errorf("redeem coupon %s: %w", code, err)
	}
}

// newOrderNumber returns a human-facing number such as ORD-20260314-9F1C2A7B.
func newOrderNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "ORD-" + now.Format("20060102") + "-" + strings.ToUpper(id[:8])
}
