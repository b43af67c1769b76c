package firestore

import (
	"context"
	"fmt"

	pfirestore "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/firestore"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

// Registry wires every Firestore repository against a shared provider.
type Registry struct {
	*pfirestore.UnitOfWork

	provider  *pfirestore.Provider
	carts     *CartRepository
	inventory *InventoryRepository
	orders    *OrderRepository
	history   *OrderHistoryRepository
	coupons   *CouponRepository
	deals     *DealClaimRepository
	catalog   *CatalogRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the Firestore registry. health may be nil, in which case only the
// provider ping is checked.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, fmt.Errorf("firestore registry: provider is required")
	}
	reg := &Registry{UnitOfWork: pfirestore.NewUnitOfWork(provider), provider: provider}
	var err error
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, err
	}
	if reg.inventory, err = NewInventoryRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.history, err = NewOrderHistoryRepository(provider); err != nil {
		return nil, err
	}
	if reg.coupons, err = NewCouponRepository(provider); err != nil {
		return nil, err
	}
	if reg.deals, err = NewDealClaimRepository(provider); err != nil {
		return nil, err
	}
	if reg.catalog, err = NewCatalogRepository(provider); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}
	if health == nil {
		health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
			Name:  "firestore",
			Check: provider.Ping,
		}})
		if err != nil {
			return nil, err
		}
	}
	reg.health = health
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Carts() repositories.CartRepository                { return r.carts }
func (r *Registry) Inventory() repositories.InventoryRepository       { return r.inventory }
func (r *Registry) Orders() repositories.OrderRepository              { return r.orders }
func (r *Registry) OrderHistory() repositories.OrderHistoryRepository { return r.history }
func (r *Registry) Coupons() repositories.CouponRepository            { return r.coupons }
func (r *Registry) DealClaims() repositories.DealClaimRepository      { return r.deals }
func (r *Registry) Catalog() repositories.CatalogRepository           { return r.catalog }
func (r *Registry) Counters() repositories.CounterRepository          { return r.counters }
func (r *Registry) Health() repositories.HealthRepository             { return r.health }
