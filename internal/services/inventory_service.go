package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/locks"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

const (
	eventInventoryApplied  = "inventory.applied"
	eventInventoryRejected = "inventory.rejected"
	eventInventoryStockSet = "inventory.stock_set"
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Locks     Locker
	Metrics   EngineMetrics
	Clock     func() time.Time
	Logger    Logger
}

type inventoryService struct {
	repo    repositories.InventoryRepository
	locks   Locker
	metrics EngineMetrics
	clock   func() time.Time
	logger  Logger
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}
	if deps.Locks == nil {
		return nil, errors.New("inventory service: lock manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &inventoryService{
		repo:    deps.Inventory,
		locks:   deps.Locks,
		metrics: metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *inventoryService) Reserve(ctx context.Context, productID string, qty int) (InventoryRecord, error) {
	return s.applyOne(ctx, repositories.InventoryOpReserve, productID, qty)
}

func (s *inventoryService) Release(ctx context.Context, productID string, qty int) (InventoryRecord, error) {
	return s.applyOne(ctx, repositories.InventoryOpRelease, productID, qty)
}

func (s *inventoryService) Commit(ctx context.Context, productID string, qty int) (InventoryRecord, error) {
	return s.applyOne(ctx, repositories.InventoryOpCommit, productID, qty)
}

func (s *inventoryService) Available(ctx context.Context, productID string) (int, error) {
	record, err := s.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	return record.Available, nil
}

func (s *inventoryService) Get(ctx context.Context, productID string) (InventoryRecord, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return InventoryRecord{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	record, err := s.repo.Get(ctx, productID)
	if err != nil {
		return InventoryRecord{}, mapRepositoryError(err, "inventory for product "+productID)
	}
	return record, nil
}

// SetStock resets a product's on-hand count, keeping existing reservations.
func (s *inventoryService) SetStock(ctx context.Context, productID string, onHand int) (InventoryRecord, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return InventoryRecord{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if onHand < 0 {
		return InventoryRecord{}, fmt.Errorf("%w: stock must be zero or positive", ErrInvalidQuantity)
	}
	ctx, release, err := acquire(ctx, s.locks, locks.ProductKey(productID))
	if err != nil {
		return InventoryRecord{}, err
	}
	defer release()

	record, err := s.repo.SetStock(ctx, productID, onHand, s.clock())
	if err != nil {
		return InventoryRecord{}, mapRepositoryError(err, "inventory for product "+productID)
	}
	s.logger(ctx, eventInventoryStockSet, map[string]any{
		"productId": productID,
		"onHand":    record.OnHand,
		"available": record.Available,
		"reserved":  record.Reserved,
	})
	return record, nil
}

func (s *inventoryService) ReserveLines(ctx context.Context, lines []InventoryLine) error {
	return s.applyLines(ctx, repositories.InventoryOpReserve, lines)
}

func (s *inventoryService) CommitLines(ctx context.Context, lines []InventoryLine) error {
	return s.applyLines(ctx, repositories.InventoryOpCommit, lines)
}

func (s *inventoryService) ReleaseLines(ctx context.Context, lines []InventoryLine) error {
	return s.applyLines(ctx, repositories.InventoryOpRelease, lines)
}

func (s *inventoryService) RestockLines(ctx context.Context, lines []InventoryLine) error {
	return s.applyLines(ctx, repositories.InventoryOpRestock, lines)
}

func (s *inventoryService) DeductLines(ctx context.Context, lines []InventoryLine) error {
	return s.applyLines(ctx, repositories.InventoryOpDeduct, lines)
}

func (s *inventoryService) applyOne(ctx context.Context, op repositories.InventoryOp, productID string, qty int) (InventoryRecord, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return InventoryRecord{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	records, err := s.apply(ctx, op, []InventoryLine{{ProductID: productID, Quantity: qty}})
	if err != nil {
		return InventoryRecord{}, err
	}
	return records[productID], nil
}

func (s *inventoryService) applyLines(ctx context.Context, op repositories.InventoryOp, lines []InventoryLine) error {
	_, err := s.apply(ctx, op, lines)
	return err
}

// apply validates and normalises lines, then applies them under the product locks in
// sorted order. Locks already held by ctx are not reacquired.
func (s *inventoryService) apply(ctx context.Context, op repositories.InventoryOp, lines []InventoryLine) (map[string]InventoryRecord, error) {
	if len(lines) == 0 {
		return map[string]InventoryRecord{}, nil
	}
	for _, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInvalidQuantity, line.ProductID)
		}
	}
	normalised := domain.NormalizeInventoryLines(lines)

	keys := make([]string, 0, len(normalised))
	for _, id := range domain.InventoryProductIDs(normalised) {
		keys = append(keys, locks.ProductKey(id))
	}
	ctx, release, err := acquire(ctx, s.locks, keys...)
	if err != nil {
		s.metrics.ObserveInventory(string(op), string(KindOf(err)))
		return nil, err
	}
	defer release()

	records, err := s.repo.Apply(ctx, op, normalised, s.clock())
	if err != nil {
		mapped := mapRepositoryError(err, "inventory")
		s.metrics.ObserveInventory(string(op), string(KindOf(mapped)))
		s.logger(ctx, eventInventoryRejected, map[string]any{
			"op":    string(op),
			"lines": len(normalised),
			"error": mapped.Error(),
		})
		return nil, mapped
	}
	s.metrics.ObserveInventory(string(op), "ok")
	s.logger(ctx, eventInventoryApplied, map[string]any{
		"op":       string(op),
		"products": domain.InventoryProductIDs(normalised),
	})
	return records, nil
}
