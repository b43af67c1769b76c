// Package memory provides process-local repository implementations used for local
// development, tests, and single-instance deployments.
package memory

import (
	"context"
	"sync"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

// Store is the shared state behind every memory repository. A single mutex guards all maps;
// callers serialise per entity through the service lock manager.
type Store struct {
	mu        sync.RWMutex
	carts     map[string]domain.Cart
	inventory map[string]domain.InventoryRecord
	orders    map[string]domain.Order
	history   map[string][]domain.OrderHistoryEntry
	coupons   map[string]domain.Coupon
	claims    map[string]domain.DealClaim
	products  map[string]domain.Product
	counters  map[string]int64

	health repositories.HealthRepository
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	health, _ := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "memory", Check: func(context.Context) error { return nil }},
	})
	return &Store{
		health:    health,
		carts:     make(map[string]domain.Cart),
		inventory: make(map[string]domain.InventoryRecord),
		orders:    make(map[string]domain.Order),
		history:   make(map[string][]domain.OrderHistoryEntry),
		coupons:   make(map[string]domain.Coupon),
		claims:    make(map[string]domain.DealClaim),
		products:  make(map[string]domain.Product),
		counters:  make(map[string]int64),
	}
}

// WithHealth attaches a health repository exposed through the registry.
func (s *Store) WithHealth(repo repositories.HealthRepository) *Store {
	s.health = repo
	return s
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Carts() repositories.CartRepository                { return cartRepository{s} }
func (s *Store) Inventory() repositories.InventoryRepository       { return inventoryRepository{s} }
func (s *Store) Orders() repositories.OrderRepository              { return orderRepository{s} }
func (s *Store) OrderHistory() repositories.OrderHistoryRepository { return historyRepository{s} }
func (s *Store) Coupons() repositories.CouponRepository            { return couponRepository{s} }
func (s *Store) DealClaims() repositories.DealClaimRepository      { return dealClaimRepository{s} }
func (s *Store) Catalog() repositories.CatalogRepository           { return catalogRepository{s} }
func (s *Store) Counters() repositories.CounterRepository          { return counterRepository{s} }
func (s *Store) Health() repositories.HealthRepository             { return s.health }

type journalKey struct{}

// journal collects undo steps for writes performed inside RunInTx.
type journal struct {
	mu    sync.Mutex
	undos []func()
}

func (j *journal) add(undo func()) {
	j.mu.Lock()
	j.undos = append(j.undos, undo)
	j.mu.Unlock()
}

// RunInTx runs fn and rolls back every write it made through this store when fn fails.
// Nested calls join the outer journal.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}
	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		s.mu.Lock()
		for i := len(j.undos) - 1; i >= 0; i-- {
			j.undos[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// record registers undo for the current transaction. Must be called with s.mu held.
func record(ctx context.Context, undo func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.add(undo)
	}
}

func restoreMap[K comparable, V any](m map[K]V, key K) func() {
	prev, existed := m[key]
	return func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	}
}
