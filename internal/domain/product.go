package domain

import (
	"fmt"
	"time"
)

// Product status constants.
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

// Product carries the catalog fields checkout needs and the stock ledger.
// 0 <= ReservedQty <= StockQty holds after every mutation.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku"`
	Price       int64     `json:"price"`
	HSNCode     string    `json:"hsn_code,omitempty"`
	Status      string    `json:"status"`
	StockQty    int       `json:"stock_qty"`
	ReservedQty int       `json:"reserved_qty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Available returns the quantity that may be offered to new orders.
func (p *Product) Available() int {
	return p.StockQty - p.ReservedQty
}

// IsActive reports whether the product can be sold.
func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}

func (p *Product) check(stock, reserved int) error {
	if reserved < 0 || stock < 0 || reserved > stock {
		return fmt.Errorf("%w: product %s stock=%d reserved=%d", ErrInventoryInvariant, p.ID, stock, reserved)
	}
	return nil
}

// Reserve holds qty units for an unconfirmed order.
func (p *Product) Reserve(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}
	if qty > p.Available() {
		return fmt.Errorf("%w: product %s requested %d available %d", ErrOutOfStock, p.ID, qty, p.Available())
	}
	if err := p.check(p.StockQty, p.ReservedQty+qty); err != nil {
		return err
	}
	p.ReservedQty += qty
	return nil
}

// Release returns up to qty reserved units to the pool and reports how many
// were actually released. The reserved counter is floored at zero.
func (p *Product) Release(qty int) int {
	if qty <= 0 {
		return 0
	}
	released := min(qty, p.ReservedQty)
	p.ReservedQty -= released
	return released
}

// Commit converts qty reserved units into a sale.
func (p *Product) Commit(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("commit quantity must be positive, got %d", qty)
	}
	if qty > p.ReservedQty {
		return fmt.Errorf("%w: product %s commit %d exceeds reserved %d", ErrInventoryInvariant, p.ID, qty, p.ReservedQty)
	}
	if err := p.check(p.StockQty-qty, p.ReservedQty-qty); err != nil {
		return err
	}
	p.StockQty -= qty
	p.ReservedQty -= qty
	return nil
}

// Restock adjusts owned stock by delta. A negative delta may not cut into
// reserved units.
func (p *Product) Restock(delta int) error {
	if delta == 0 {
		return fmt.Errorf("restock delta must not be zero")
	}
	if err := p.check(p.StockQty+delta, p.ReservedQty); err != nil {
		return err
	}
	p.StockQty += delta
	return nil
}
