// Package memory keeps every repository in process memory. Each method is
// atomic on its own; multi-step atomicity comes from the compensating
// unit of work.
package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
)

// DB holds all in-memory state behind one mutex.
type DB struct {
	mu          sync.Mutex
	products    map[string]*domain.Product
	logs        []domain.InventoryLog
	addresses   map[string]domain.Address
	coupons     map[string]*domain.Coupon
	usages      map[string]domain.CouponUsage
	orders      map[string]*domain.Order
	webhooks    map[string]*domain.WebhookRecord
	webhookKeys map[string]string
	outbox      map[string]*domain.OutboxEvent
	now         func() time.Time
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{
		products:    make(map[string]*domain.Product),
		addresses:   make(map[string]domain.Address),
		coupons:     make(map[string]*domain.Coupon),
		usages:      make(map[string]domain.CouponUsage),
		orders:      make(map[string]*domain.Order),
		webhooks:    make(map[string]*domain.WebhookRecord),
		webhookKeys: make(map[string]string),
		outbox:      make(map[string]*domain.OutboxEvent),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Store returns repositories backed by db.
func (db *DB) Store() repository.Store {
	return repository.Store{
		Inventory: &InventoryRepository{db: db},
		Addresses: &AddressRepository{db: db},
		Coupons:   &CouponRepository{db: db},
		Orders:    &OrderRepository{db: db},
		Webhooks:  &WebhookRepository{db: db},
		Outbox:    &OutboxRepository{db: db},
	}
}

func (db *DB) PutProduct(p domain.Product) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.products[p.ID] = &p
}

func (db *DB) PutAddress(a domain.Address) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.addresses[a.ID] = a
}

func (db *DB) PutCoupon(c domain.Coupon) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.coupons[c.ID] = &c
}

// Seed is the JSON shape accepted by Load.
type Seed struct {
	Products  []domain.Product `json:"products"`
	Addresses []domain.Address `json:"addresses"`
	Coupons   []domain.Coupon  `json:"coupons"`
}

// Load adds the catalog, addresses and coupons in r to db.
func (db *DB) Load(r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	for _, p := range seed.Products {
		if p.ReservedQty < 0 || p.ReservedQty > p.StockQty {
			return fmt.Errorf("seed product %s: %w", p.ID, domain.ErrInventoryInvariant)
		}
		db.PutProduct(p)
	}
	for _, a := range seed.Addresses {
		db.PutAddress(a)
	}
	for _, c := range seed.Coupons {
		db.PutCoupon(c)
	}
	return nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.CouponID != nil {
		id := *o.CouponID
		c.CouponID = &id
	}
	return &c
}
