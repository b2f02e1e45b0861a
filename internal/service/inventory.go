package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/repository"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// InventoryService exposes the stock ledger to administrators.
type InventoryService struct {
	uow    repository.UnitOfWork
	store  repository.Store
	logger *slog.Logger
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(uow repository.UnitOfWork, store repository.Store, logger *slog.Logger) *InventoryService {
	return &InventoryService{uow: uow, store: store, logger: logger}
}

// GetProduct returns a product with its stock counters.
func (s *InventoryService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.store.Inventory.GetProduct(ctx, productID)
}

// Restock adjusts the owned stock of a product by delta. A negative delta
// corrects stock downwards but may not cut into reserved units.
func (s *InventoryService) Restock(ctx context.Context, productID string, delta int) (*domain.Product, error) {
	if delta == 0 {
		return nil, domain.ValidationError("restock quantity must not be zero")
	}

	refID := "restock-" + uuid.New().String()
	var product *domain.Product
	err := s.uow.Do(ctx, func(ctx context.Context, st repository.Store) error {
		p, err := st.Inventory.Restock(ctx, productID, delta, refID)
		if err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInventoryInvariant) {
			return nil, domain.ValidationError(fmt.Sprintf("cannot adjust stock of %s by %d: reserved units would exceed stock", productID, delta))
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "product restocked",
		slog.String("product_id", productID),
		slog.Int("delta", delta),
		slog.Int("stock_qty", product.StockQty),
		slog.Int("reserved_qty", product.ReservedQty),
	)
	return product, nil
}

// ListLogs returns the newest audit entries for a product.
func (s *InventoryService) ListLogs(ctx context.Context, productID string, limit int) ([]domain.InventoryLog, error) {
	switch {
	case limit <= 0:
		limit = defaultLogLimit
	case limit > maxLogLimit:
		limit = maxLogLimit
	}
	if _, err := s.store.Inventory.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	logs, err := s.store.Inventory.ListLogs(ctx, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("list inventory logs: %w", err)
	}
	return logs, nil
}
