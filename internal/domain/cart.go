package domain

import (
	"strings"
	"time"
)

// Cart is the mutable basket checkout turns into an order.
type Cart struct {
	UserID     string     `json:"user_id"`
	Items      []CartItem `json:"items"`
	CouponCode string     `json:"coupon_code,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CartItem references a product; price and availability are re-read at checkout.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// NewCart creates an empty cart for the given user.
func NewCart(userID string) *Cart {
	return &Cart{UserID: userID, Items: []CartItem{}, UpdatedAt: time.Now().UTC()}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// AddItem adds quantity of a product, merging with an existing line.
func (c *Cart) AddItem(productID string, quantity int) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity += quantity
			c.touch()
			return
		}
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity})
	c.touch()
}

// SetQuantity replaces a line's quantity; zero removes it. Returns false when
// the product is not in the cart.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	for i := range c.Items {
		if c.Items[i].ProductID != productID {
			continue
		}
		if quantity <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		} else {
			c.Items[i].Quantity = quantity
		}
		c.touch()
		return true
	}
	return false
}

// RemoveItem removes a product line. Returns false when it was not present.
func (c *Cart) RemoveItem(productID string) bool {
	return c.SetQuantity(productID, 0)
}

// ApplyCoupon attaches a coupon code; an empty code detaches it.
func (c *Cart) ApplyCoupon(code string) {
	c.CouponCode = strings.ToUpper(strings.TrimSpace(code))
	c.touch()
}

// Lines returns the cart lines with duplicates merged, in first-seen order.
func (c *Cart) Lines() []CartItem {
	index := make(map[string]int, len(c.Items))
	lines := make([]CartItem, 0, len(c.Items))
	for _, it := range c.Items {
		if i, ok := index[it.ProductID]; ok {
			lines[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(lines)
		lines = append(lines, it)
	}
	return lines
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
