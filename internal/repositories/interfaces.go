package repositories

import (
	"context"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Inventory() InventoryRepository
	Orders() OrderRepository
	OrderHistory() OrderHistoryRepository
	Coupons() CouponRepository
	DealClaims() DealClaimRepository
	Catalog() CatalogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository persists one cart per owner.
type CartRepository interface {
	Get(ctx context.Context, owner domain.CartOwner) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, owner domain.CartOwner) error
}

// InventoryOp names a ledger movement applied atomically across a set of lines.
type InventoryOp string

const (
	// InventoryOpReserve moves units from available to reserved.
	InventoryOpReserve InventoryOp = "reserve"
	// InventoryOpRelease moves units from reserved back to available.
	InventoryOpRelease InventoryOp = "release"
	// InventoryOpCommit turns reserved units into sold units, lowering on-hand stock.
	InventoryOpCommit InventoryOp = "commit"
	// InventoryOpRestock returns sold units to on-hand and available stock.
	InventoryOpRestock InventoryOp = "restock"
	// InventoryOpDeduct sells available units directly, undoing a restock.
	InventoryOpDeduct InventoryOp = "deduct"
)

// InventoryRepository manages stock levels. Apply is all-or-nothing: either every line is
// applied or the ledger is unchanged.
type InventoryRepository interface {
	Get(ctx context.Context, productID string) (domain.InventoryRecord, error)
	SetStock(ctx context.Context, productID string, onHand int, now time.Time) (domain.InventoryRecord, error)
	Apply(ctx context.Context, op InventoryOp, lines []domain.InventoryLine, now time.Time) (map[string]domain.InventoryRecord, error)
}

// OrderRepository persists order documents with optimistic version checks.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order, expectedVersion int) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	OwnerKey   string
	Statuses   []domain.OrderStatus
	AssigneeID string
	Pagination domain.Pagination
}

// OrderHistoryRepository is append-only. Entries are immutable once written.
type OrderHistoryRepository interface {
	Append(ctx context.Context, entry domain.OrderHistoryEntry) error
	List(ctx context.Context, orderID string) ([]domain.OrderHistoryEntry, error)
}

// CouponRepository stores coupon definitions and their usage counters.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	Save(ctx context.Context, coupon domain.Coupon) error
	// Redeem increments usage, failing with a PromotionError when the cap is reached.
	Redeem(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
	Unredeem(ctx context.Context, code string, now time.Time) error
}

// DealClaimRepository tracks units sold at deal prices against each deal's cap.
type DealClaimRepository interface {
	Claimed(ctx context.Context, dealIDs []string) (map[string]int, error)
	// Claim adds every claim or none, failing with a PromotionError when a limit would be exceeded.
	Claim(ctx context.Context, claims map[string]int, limits map[string]int, now time.Time) error
	Unclaim(ctx context.Context, claims map[string]int, now time.Time) error
}

// CatalogRepository is the read side of the product catalog.
type CatalogRepository interface {
	FindProduct(ctx context.Context, productID string) (domain.Product, error)
	SaveProduct(ctx context.Context, product domain.Product) error
}

// CounterRepository provides monotonic sequences keyed by scope.
type CounterRepository interface {
	Next(ctx context.Context, scope string, step int64) (int64, error)
}

// HealthRepository reports dependency readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
