package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
	apperrors "github.com/utafrali/ordercore/pkg/errors"
)

// maxLineQuantity caps a single cart line.
const maxLineQuantity = 99

// CartService handles the basket checkout reads from.
type CartService struct {
	carts     repository.CartRepository
	inventory repository.InventoryRepository
	coupons   repository.CouponRepository
	logger    *slog.Logger
}

// NewCartService creates a new CartService.
func NewCartService(carts repository.CartRepository, inventory repository.InventoryRepository, coupons repository.CouponRepository, logger *slog.Logger) *CartService {
	return &CartService{carts: carts, inventory: inventory, coupons: coupons, logger: logger}
}

// GetCart returns the user's cart, or an empty one if none exists.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.NewCart(userID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

// AddItem adds quantity units of a product. Availability is checked again at
// checkout; here it only rejects what could never be bought.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 || quantity > maxLineQuantity {
		return nil, domain.ValidationError(fmt.Sprintf("quantity must be between 1 and %d", maxLineQuantity))
	}

	p, err := s.inventory.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ProductUnavailable(productID)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !p.IsActive() {
		return nil, domain.ProductUnavailable(productID)
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.AddItem(productID, quantity)
	for _, it := range cart.Items {
		if it.ProductID == productID && it.Quantity > p.Available() {
			return nil, domain.OutOfStock(productID, it.Quantity, p.Available())
		}
	}

	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	s.logger.DebugContext(ctx, "cart item added",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
	)
	return cart, nil
}

// RemoveItem drops a product line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !cart.RemoveItem(productID) {
		return nil, apperrors.NotFound("cart item", productID)
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}

// ApplyCoupon attaches a coupon code to the cart after checking it exists and
// is active. Whether it applies to the final subtotal is decided at checkout.
// An empty code detaches the current coupon.
func (s *CartService) ApplyCoupon(ctx context.Context, userID, code string) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	code = strings.TrimSpace(code)
	if code != "" {
		c, err := s.coupons.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, domain.InvalidCoupon(fmt.Sprintf("coupon %s does not exist", code))
			}
			return nil, fmt.Errorf("get coupon: %w", err)
		}
		if !c.Active {
			return nil, domain.InvalidCoupon(fmt.Sprintf("coupon %s is not active", c.Code))
		}
		code = c.Code
	}

	cart.ApplyCoupon(code)
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}

// ClearCart deletes the user's cart.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if err := s.carts.Delete(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
