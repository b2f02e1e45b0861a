// Package postgres implements the repositories and the transactional unit of
// work on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/ordercore/internal/repository"
	"github.com/utafrali/ordercore/pkg/database"
)

// NewStore builds every repository over db, which may be a pool or a
// transaction.
func NewStore(db database.DBTX) repository.Store {
	return repository.Store{
		Inventory: NewInventoryRepository(db),
		Addresses: NewAddressRepository(db),
		Coupons:   NewCouponRepository(db),
		Orders:    NewOrderRepository(db),
		Webhooks:  NewWebhookRepository(db),
		Outbox:    NewOutboxRepository(db),
	}
}

// UnitOfWork implements repository.UnitOfWork with a database transaction.
type UnitOfWork struct {
	db      database.TxBeginner
	timeout time.Duration
}

// NewUnitOfWork creates a transactional unit of work. A positive timeout
// bounds each transaction.
func NewUnitOfWork(db database.TxBeginner, timeout time.Duration) *UnitOfWork {
	return &UnitOfWork{db: db, timeout: timeout}
}

// Do runs fn in a read-committed transaction. Row locks taken by the stock
// ledger serialize concurrent writers to the same product.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	return database.WithTx(ctx, u.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
