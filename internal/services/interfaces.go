package services

import (
	"context"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Money             = domain.Money
	CartOwner         = domain.CartOwner
	Cart              = domain.Cart
	CartLine          = domain.CartLine
	InventoryRecord   = domain.InventoryRecord
	InventoryLine     = domain.InventoryLine
	Product           = domain.Product
	Coupon            = domain.Coupon
	PriceSnapshot     = domain.PriceSnapshot
	PricedLine        = domain.PricedLine
	Order             = domain.Order
	OrderStatus       = domain.OrderStatus
	PaymentStatus     = domain.PaymentStatus
	OrderHistoryEntry = domain.OrderHistoryEntry
	Address           = domain.Address
	OrderListFilter   = repositories.OrderListFilter
)

// Logger is the structured logging hook shared by services. Fields are attached to the event.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Locker serialises mutations per entity key with a bounded wait.
type Locker interface {
	Hold(ctx context.Context, keys ...string) (context.Context, func(), error)
}

// InventoryService is the inventory ledger: per-product reserve, release and commit with
// batch variants that are all-or-nothing across products.
type InventoryService interface {
	Reserve(ctx context.Context, productID string, qty int) (InventoryRecord, error)
	Release(ctx context.Context, productID string, qty int) (InventoryRecord, error)
	Commit(ctx context.Context, productID string, qty int) (InventoryRecord, error)
	Available(ctx context.Context, productID string) (int, error)
	Get(ctx context.Context, productID string) (InventoryRecord, error)
	SetStock(ctx context.Context, productID string, onHand int) (InventoryRecord, error)
	ReserveLines(ctx context.Context, lines []InventoryLine) error
	CommitLines(ctx context.Context, lines []InventoryLine) error
	ReleaseLines(ctx context.Context, lines []InventoryLine) error
	RestockLines(ctx context.Context, lines []InventoryLine) error
	DeductLines(ctx context.Context, lines []InventoryLine) error
}

// CartService owns guest and customer carts. Every mutation returns the refreshed cart.
type CartService interface {
	Get(ctx context.Context, owner CartOwner) (Cart, error)
	Stored(ctx context.Context, owner CartOwner) (Cart, error)
	AddItem(ctx context.Context, owner CartOwner, productID string, qty int) (Cart, error)
	SetQuantity(ctx context.Context, owner CartOwner, productID string, qty int) (Cart, error)
	RemoveItem(ctx context.Context, owner CartOwner, productID string) (Cart, error)
	Clear(ctx context.Context, owner CartOwner) (Cart, error)
	Merge(ctx context.Context, guest CartOwner, customer CartOwner) (Cart, error)
	ApplyCoupon(ctx context.Context, owner CartOwner, code string) (Cart, error)
	RemoveCoupon(ctx context.Context, owner CartOwner) (Cart, error)
}

// PricingService turns carts into immutable price snapshots.
type PricingService interface {
	Quote(ctx context.Context, cart Cart) (PriceSnapshot, error)
	ValidateCoupon(ctx context.Context, code string, merchandise Money) (Coupon, error)
}

// TaxCalculator is the pluggable tax rate provider.
type TaxCalculator interface {
	Tax(ctx context.Context, cart Cart, taxable Money) (Money, error)
}

// ShippingEstimator is the pluggable shipping rate provider.
type ShippingEstimator interface {
	Shipping(ctx context.Context, cart Cart, merchandise Money) (Money, error)
}

// CatalogReader is the read-only catalog collaborator.
type CatalogReader interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
}

// OrderService is the order lifecycle engine.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListHistory(ctx context.Context, orderID string) ([]OrderHistoryEntry, error)
	TransitionStatus(ctx context.Context, cmd TransitionCommand) (Order, error)
	TransitionPaymentStatus(ctx context.Context, cmd PaymentTransitionCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	ProcessRefund(ctx context.Context, cmd RefundCommand) (Order, error)
	ReassignOrder(ctx context.Context, cmd ReassignCommand) (Order, error)
	AddNote(ctx context.Context, cmd AddNoteCommand) (Order, error)
}

// CheckoutService quotes a stored cart and turns it into an order.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error)
}

// AuditRecorder appends immutable history entries for order mutations.
type AuditRecorder interface {
	Record(ctx context.Context, order Order, entry AuditEntry) (OrderHistoryEntry, error)
	List(ctx context.Context, orderID string) ([]OrderHistoryEntry, error)
}

// NotificationDispatcher receives events after committed transitions. Failures never roll
// back the transition that produced the event.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, event OrderEvent)
}

// EngineMetrics observes engine outcomes.
type EngineMetrics interface {
	ObserveCheckout(outcome string, elapsed time.Duration)
	ObserveTransition(kind string, outcome string)
	ObserveInventory(op string, outcome string)
}

// CreateOrderCommand carries the frozen inputs for CreateOrder.
type CreateOrderCommand struct {
	Cart            Cart
	ShippingAddress Address
	BillingAddress  *Address
	Snapshot        PriceSnapshot
	PaymentMethod   domain.PaymentMethod
	CustomerEmail   string
	CustomerNotes   string
	ActorID         string
}

// CheckoutCommand starts checkout from the owner's stored cart.
type CheckoutCommand struct {
	Owner           CartOwner
	ShippingAddress Address
	BillingAddress  *Address
	PaymentMethod   domain.PaymentMethod
	CustomerEmail   string
	CustomerNotes   string
	ActorID         string
}

// TransitionCommand requests a fulfilment status change.
type TransitionCommand struct {
	OrderID string
	Status  OrderStatus
	Notes   string
	ActorID string
}

// PaymentTransitionCommand requests a payment status change.
type PaymentTransitionCommand struct {
	OrderID         string
	Status          PaymentStatus
	PaymentIntentID string
	Notes           string
	ActorID         string
}

// CancelOrderCommand cancels an order and returns its inventory.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

// RefundCommand records a refund against the order's final amount.
type RefundCommand struct {
	OrderID        string
	Amount         Money
	Reason         string
	ActorID        string
	IdempotencyKey string
}

// ReassignCommand moves an order to a new fulfilling party.
type ReassignCommand struct {
	OrderID    string
	AssigneeID string
	ActorID    string
}

// AddNoteCommand appends to the internal notes.
type AddNoteCommand struct {
	OrderID string
	Note    string
	ActorID string
}

// AuditEntry is the caller supplied part of a history entry.
type AuditEntry struct {
	Action   domain.HistoryAction
	ActorID  string
	From     string
	To       string
	Amount   Money
	Note     string
	Metadata map[string]any
}
