package repository

import (
	"context"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
)

// InventoryRepository is the stock ledger. Every mutation is a single
// conditional read-modify-write on the product row and appends an
// InventoryLog entry with refID.
type InventoryRepository interface {
	// GetProduct returns the product and its current stock counters.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// Reserve holds qty units. Fails with domain.ErrOutOfStock when qty exceeds
	// the available quantity.
	Reserve(ctx context.Context, productID string, qty int, refID string) error

	// Release returns up to qty reserved units, floored at zero, and reports
	// how many were released.
	Release(ctx context.Context, productID string, qty int, refID string) (int, error)

	// Commit deducts qty from both stock and reserved. Fails with
	// domain.ErrInventoryInvariant when fewer than qty units are reserved.
	Commit(ctx context.Context, productID string, qty int, refID string) error

	// Restock adjusts stock by delta, which may be negative but may not cut
	// into reserved units.
	Restock(ctx context.Context, productID string, delta int, refID string) (*domain.Product, error)

	// ListLogs returns the newest audit entries for a product.
	ListLogs(ctx context.Context, productID string, limit int) ([]domain.InventoryLog, error)
}

// AddressRepository reads saved user addresses.
type AddressRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Address, error)
}

// CouponRepository owns coupons and their usage ledger.
type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)

	// RecordUsage stores a redemption and increments the coupon's used count.
	// Fails with domain.ErrCouponExhausted when the usage limit is reached and
	// with domain.ErrCouponAlreadyUsed when a single-use coupon was already
	// redeemed by the user.
	RecordUsage(ctx context.Context, usage *domain.CouponUsage) error

	// RemoveUsageByOrder reverses the redemption tied to orderID, decrementing
	// the used count, and returns the removed usage. It returns nil when the
	// order had none.
	RemoveUsageByOrder(ctx context.Context, orderID string) (*domain.CouponUsage, error)
}

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	UserID  *string
	Status  *string
	Page    int
	PerPage int
}

// OrderRepository persists orders and their items.
type OrderRepository interface {
	// Create inserts a new order and its items.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order with its items.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// GetByPaymentRef finds the order paid through gateway with ref.
	GetByPaymentRef(ctx context.Context, gateway, ref string) (*domain.Order, error)

	// List returns orders matching the filter along with the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// Update writes the mutable fields of order and its item statuses, but only
	// if the stored status still equals expectedStatus. Fails with
	// domain.ErrStaleOrder otherwise.
	Update(ctx context.Context, order *domain.Order, expectedStatus string) error

	// Delete removes an order and its items.
	Delete(ctx context.Context, id string) error
}

// WebhookRepository stores processed payment events keyed by dedup key.
type WebhookRepository interface {
	// Insert stores a record. Fails with apperrors.ErrAlreadyExists when the
	// dedup key was seen before.
	Insert(ctx context.Context, rec *domain.WebhookRecord) error

	// ListUnmatched returns the oldest records with outcome unmatched.
	ListUnmatched(ctx context.Context, limit int) ([]domain.WebhookRecord, error)

	// Resolve marks an unmatched record as resolved for orderID.
	Resolve(ctx context.Context, id, orderID string, at time.Time) error

	// Reopen returns a resolved record to unmatched.
	Reopen(ctx context.Context, id string) error

	Delete(ctx context.Context, id string) error
}

// OutboxRepository is the transactional outbox.
type OutboxRepository interface {
	Append(ctx context.Context, ev *domain.OutboxEvent) error

	// ClaimDue returns up to limit pending events available at now and hides
	// them from other claimers until now+lease.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]domain.OutboxEvent, error)

	MarkDone(ctx context.Context, id string) error

	// MarkRetry records a failed attempt and makes the event available again at availableAt.
	MarkRetry(ctx context.Context, id string, attempts int, availableAt time.Time, lastErr string) error

	// MarkDead parks an event that exhausted its attempts.
	MarkDead(ctx context.Context, id string, attempts int, lastErr string) error

	Delete(ctx context.Context, id string) error
}

// Store groups the repositories a unit of work operates on.
type Store struct {
	Inventory InventoryRepository
	Addresses AddressRepository
	Coupons   CouponRepository
	Orders    OrderRepository
	Webhooks  WebhookRepository
	Outbox    OutboxRepository
}

// UnitOfWork runs fn against a Store whose writes either all take effect or
// none do. fn's error is returned unchanged.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// CouponLocker is a short-lived mutual exclusion per coupon and user.
type CouponLocker interface {
	// Lock returns false when another session holds the lock.
	Lock(ctx context.Context, couponID, userID, sessionID string, ttl time.Duration) (bool, error)

	// Unlock releases the lock if sessionID still holds it. Unlocking a lock
	// that expired or was never taken is not an error.
	Unlock(ctx context.Context, couponID, userID, sessionID string) error
}

// CartRepository stores carts keyed by user.
type CartRepository interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}
