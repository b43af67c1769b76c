package services

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/locks"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories/memory"
)

var fixtureNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type engineFixture struct {
	store     *memory.Store
	locks     *locks.Manager
	inventory InventoryService
	catalog   CatalogReader
	carts     CartService
	pricing   PricingService
	audit     AuditRecorder
	orders    OrderService
	checkout  CheckoutService
	events    *recordingDispatcher
	logs      *logCapture
}

type fixtureDeps struct {
	history     repositories.OrderHistoryRepository
	dispatcher  NotificationDispatcher
	refunds     RefundGateway
	counters    CounterService
	tax         TaxCalculator
	shipping    ShippingEstimator
	cartCache   CartCache
	lockTimeout time.Duration
}

func newEngineFixture(t *testing.T, opts ...func(*fixtureDeps)) *engineFixture {
	t.Helper()

	store := memory.NewStore()
	deps := fixtureDeps{history: store.OrderHistory(), lockTimeout: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(&deps)
	}

	clock := func() time.Time { return fixtureNow }
	logs := &logCapture{}
	events := &recordingDispatcher{}
	var dispatcher NotificationDispatcher = events
	if deps.dispatcher != nil {
		dispatcher = deps.dispatcher
	}
	lockManager := locks.NewManager(locks.WithTimeout(deps.lockTimeout))

	inventory, err := NewInventoryService(InventoryServiceDeps{
		Inventory: store.Inventory(),
		Locks:     lockManager,
		Clock:     clock,
		Logger:    logs.logger(),
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	catalog, err := NewCatalogReader(CatalogServiceDeps{Catalog: store.Catalog()})
	if err != nil {
		t.Fatalf("new catalog reader: %v", err)
	}
	pricing, err := NewPricingService(PricingServiceDeps{
		Catalog:    catalog,
		Coupons:    store.Coupons(),
		DealClaims: store.DealClaims(),
		Tax:        deps.tax,
		Shipping:   deps.shipping,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("new pricing service: %v", err)
	}
	carts, err := NewCartService(CartServiceDeps{
		Repository: store.Carts(),
		Catalog:    catalog,
		Inventory:  inventory,
		Coupons:    pricing,
		Locks:      lockManager,
		UnitOfWork: store,
		Cache:      deps.cartCache,
		Clock:      clock,
		Logger:     logs.logger(),
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	audit, err := NewAuditService(AuditServiceDeps{History: deps.history, Clock: clock})
	if err != nil {
		t.Fatalf("new audit service: %v", err)
	}
	counters := deps.counters
	if counters == nil {
		counters, err = NewCounterService(CounterServiceDeps{Repository: store.Counters(), Clock: clock})
		if err != nil {
			t.Fatalf("new counter service: %v", err)
		}
	}
	orders, err := NewOrderService(OrderServiceDeps{
		Orders:     store.Orders(),
		Audit:      audit,
		Counters:   counters,
		Inventory:  inventory,
		Coupons:    store.Coupons(),
		DealClaims: store.DealClaims(),
		Catalog:    catalog,
		Carts:      carts,
		Locks:      lockManager,
		UnitOfWork: store,
		Dispatcher: dispatcher,
		Refunds:    deps.refunds,
		Clock:      clock,
		Logger:     logs.logger(),
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	checkout, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:   carts,
		Pricing: pricing,
		Orders:  orders,
		Locks:   lockManager,
		Logger:  logs.logger(),
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}

	return &engineFixture{
		store:     store,
		locks:     lockManager,
		inventory: inventory,
		catalog:   catalog,
		carts:     carts,
		pricing:   pricing,
		audit:     audit,
		orders:    orders,
		checkout:  checkout,
		events:    events,
		logs:      logs,
	}
}

func (f *engineFixture) seedProduct(t *testing.T, product domain.Product, stock int) {
	t.Helper()
	ctx := context.Background()
	if product.Currency == "" {
		product.Currency = "USD"
	}
	if product.Name == "" {
		product.Name = "Product " + product.ID
	}
	product.Active = true
	if err := f.store.Catalog().SaveProduct(ctx, product); err != nil {
		t.Fatalf("seed product %s: %v", product.ID, err)
	}
	if _, err := f.inventory.SetStock(ctx, product.ID, stock); err != nil {
		t.Fatalf("seed stock %s: %v", product.ID, err)
	}
}

func (f *engineFixture) seedCoupon(t *testing.T, coupon domain.Coupon) {
	t.Helper()
	if err := f.store.Coupons().Save(context.Background(), coupon); err != nil {
		t.Fatalf("seed coupon %s: %v", coupon.Code, err)
	}
}

func (f *engineFixture) record(t *testing.T, productID string) domain.InventoryRecord {
	t.Helper()
	rec, err := f.inventory.Get(context.Background(), productID)
	if err != nil {
		t.Fatalf("get inventory %s: %v", productID, err)
	}
	return rec
}

// placeOrder fills the owner's cart and checks it out.
func (f *engineFixture) placeOrder(t *testing.T, owner domain.CartOwner, items map[string]int) domain.Order {
	t.Helper()
	ctx := context.Background()
	for productID, qty := range items {
		if _, err := f.carts.AddItem(ctx, owner, productID, qty); err != nil {
			t.Fatalf("add %s to cart: %v", productID, err)
		}
	}
	order, err := f.checkout.Checkout(ctx, CheckoutCommand{
		Owner:           owner,
		ShippingAddress: testAddress(),
		PaymentMethod:   domain.PaymentMethodCard,
		CustomerEmail:   "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return order
}

func (f *engineFixture) transition(t *testing.T, orderID string, statuses ...domain.OrderStatus) domain.Order {
	t.Helper()
	var order domain.Order
	for _, status := range statuses {
		var err error
		order, err = f.orders.TransitionStatus(context.Background(), TransitionCommand{OrderID: orderID, Status: status, ActorID: "staff-1"})
		if err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}
	return order
}

func (f *engineFixture) markPaid(t *testing.T, orderID string) domain.Order {
	t.Helper()
	order, err := f.orders.TransitionPaymentStatus(context.Background(), PaymentTransitionCommand{
		OrderID: orderID,
		Status:  domain.PaymentStatusPaid,
		ActorID: "payments",
	})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	return order
}

func testAddress() domain.Address {
	return domain.Address{
		Recipient:  "Ada Buyer",
		Line1:      "1 Market Street",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	}
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event OrderEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.events))
	for _, event := range d.events {
		out = append(out, event.Type)
	}
	return out
}

type logEntry struct {
	event  string
	fields map[string]any
}

type logCapture struct {
	mu      sync.Mutex
	entries []logEntry
}

func (c *logCapture) logger() Logger {
	return func(_ context.Context, event string, fields map[string]any) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.entries = append(c.entries, logEntry{event: event, fields: fields})
	}
}

func (c *logCapture) find(event string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, entry := range c.entries {
		if entry.event == event {
			out = append(out, entry.fields)
		}
	}
	return out
}

// failingHistory delegates to the wrapped repository until fail is set.
type failingHistory struct {
	repositories.OrderHistoryRepository
	mu   sync.Mutex
	fail bool
}

func (h *failingHistory) setFail(fail bool) {
	h.mu.Lock()
	h.fail = fail
	h.mu.Unlock()
}

func (h *failingHistory) Append(ctx context.Context, entry domain.OrderHistoryEntry) error {
	h.mu.Lock()
	fail := h.fail
	h.mu.Unlock()
	if fail {
		return repositories.NewUnavailableError("history.append", context.DeadlineExceeded)
	}
	return h.OrderHistoryRepository.Append(ctx, entry)
}
