package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/locks"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories/memory"
)

type stubCartCache struct {
	mu      sync.Mutex
	carts   map[string]Cart
	getErr  error
	setErr  error
	delErr  error
	deleted []string
}

func (c *stubCartCache) failWrites(setErr, delErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setErr, c.delErr = setErr, delErr
}

func (c *stubCartCache) Get(_ context.Context, owner CartOwner) (Cart, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return Cart{}, false, c.getErr
	}
	cart, ok := c.carts[owner.Key()]
	return cart, ok, nil
}

func (c *stubCartCache) Set(_ context.Context, cart Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	if c.carts == nil {
		c.carts = map[string]Cart{}
	}
	c.carts[cart.Owner.Key()] = cart.Clone()
	return nil
}

func (c *stubCartCache) Delete(_ context.Context, owner CartOwner) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delErr != nil {
		return c.delErr
	}
	delete(c.carts, owner.Key())
	c.deleted = append(c.deleted, owner.Key())
	return nil
}

func TestNewCartServiceRequiresDependencies(t *testing.T) {
	store := memory.NewStore()
	catalog, _ := NewCatalogReader(CatalogServiceDeps{Catalog: store.Catalog()})
	inventory, _ := NewInventoryService(InventoryServiceDeps{Inventory: store.Inventory(), Locks: locks.NewManager()})

	cases := []struct {
		name string
		deps CartServiceDeps
		want error
	}{
		{"repository", CartServiceDeps{Catalog: catalog, Inventory: inventory, Locks: locks.NewManager()}, errCartRepositoryRequired},
		{"catalog", CartServiceDeps{Repository: store.Carts(), Inventory: inventory, Locks: locks.NewManager()}, errCartCatalogRequired},
		{"inventory", CartServiceDeps{Repository: store.Carts(), Catalog: catalog, Locks: locks.NewManager()}, errCartInventoryRequired},
		{"locks", CartServiceDeps{Repository: store.Carts(), Catalog: catalog, Inventory: inventory}, errCartLocksRequired},
	}
	for _, tc := range cases {
		if _, err := NewCartService(tc.deps); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestCartServiceGetMissingCartIsEmpty(t *testing.T) {
	f := newEngineFixture(t)
	owner := domain.SessionOwner("sess-1")

	cart, err := f.carts.Get(context.Background(), owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !cart.IsEmpty() || cart.Owner != owner || cart.Currency != "USD" {
		t.Fatalf("unexpected cart: %+v", cart)
	}
	if _, err := f.store.Carts().Get(context.Background(), owner); err == nil {
		t.Fatalf("expected reading a cart not to create it")
	}
}

func TestCartServiceRejectsInvalidOwner(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.carts.AddItem(context.Background(), domain.CartOwner{Kind: domain.OwnerCustomer}, "p1", 1)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCartServiceAddItemSumsExistingLine(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(1000)}, 5)
	ctx := context.Background()
	owner := domain.CustomerOwner("cust-1")

	if _, err := f.carts.AddItem(ctx, owner, "p1", 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := f.carts.AddItem(ctx, owner, "p1", 1)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 3 {
		t.Fatalf("expected one line with quantity 3, got %+v", cart.Lines)
	}
	if cart.Lines[0].UnitPrice != domain.Cents(1000) || cart.Lines[0].Name != "Product p1" {
		t.Fatalf("expected catalog price and name on line, got %+v", cart.Lines[0])
	}

	stored, err := f.carts.Get(ctx, owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ItemCount() != 3 {
		t.Fatalf("expected stored cart to hold 3 units, got %d", stored.ItemCount())
	}
}

func TestCartServiceAddItemRejectsInvalidQuantity(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(1000)}, 5)

	for _, qty := range []int{0, -2, 1000} {
		_, err := f.carts.AddItem(context.Background(), domain.SessionOwner("s"), "p1", qty)
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("qty %d: expected invalid quantity, got %v", qty, err)
		}
	}
}

func TestCartServiceAddItemAboveAvailability(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(1000)}, 2)

	_, err := f.carts.AddItem(context.Background(), domain.SessionOwner("s"), "p1", 3)
	var stockErr *StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected stock error, got %v", err)
	}
	if stockErr.Available != 2 || stockErr.Requested != 3 {
		t.Fatalf("unexpected stock error: %+v", stockErr)
	}
}

func TestCartServiceAddItemUnknownOrInactiveProduct(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	if err := f.store.Catalog().SaveProduct(ctx, domain.Product{ID: "off", Price: domain.Cents(100), Active: false}); err != nil {
		t.Fatalf("save product: %v", err)
	}

	if _, err := f.carts.AddItem(ctx, domain.SessionOwner("s"), "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.carts.AddItem(ctx, domain.SessionOwner("s"), "off", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected inactive product to read as not found, got %v", err)
	}
}

func TestCartServiceSetQuantity(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(500)}, 4)
	f.seedProduct(t, domain.Product{ID: "p2", Price: domain.Cents(700)}, 4)
	ctx := context.Background()
	owner := domain.SessionOwner("s")

	if _, err := f.carts.AddItem(ctx, owner, "p1", 1); err != nil {
		t.Fatalf("add p1: %v", err)
	}
	if _, err := f.carts.AddItem(ctx, owner, "p2", 1); err != nil {
		t.Fatalf("add p2: %v", err)
	}

	cart, err := f.carts.SetQuantity(ctx, owner, "p1", 4)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if line, _ := cart.Line("p1"); line.Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", line.Quantity)
	}

	// Rejected, not clamped.
	if _, err := f.carts.SetQuantity(ctx, owner, "p1", 5); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	stored, _ := f.carts.Get(ctx, owner)
	if line, _ := stored.Line("p1"); line.Quantity != 4 {
		t.Fatalf("expected quantity to stay 4 after rejection, got %d", line.Quantity)
	}

	cart, err = f.carts.SetQuantity(ctx, owner, "p1", 0)
	if err != nil {
		t.Fatalf("set quantity 0: %v", err)
	}
	if _, ok := cart.Line("p1"); ok || len(cart.Lines) != 1 {
		t.Fatalf("expected p1 removed, got %+v", cart.Lines)
	}

	if _, err := f.carts.SetQuantity(ctx, owner, "p9", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for absent line, got %v", err)
	}
	if _, err := f.carts.SetQuantity(ctx, owner, "p2", -1); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}

func TestCartServiceRemoveItemAndClear(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(500)}, 4)
	ctx := context.Background()
	owner := domain.SessionOwner("s")

	if _, err := f.carts.AddItem(ctx, owner, "p1", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := f.carts.RemoveItem(ctx, owner, "absent")
	if err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected removing an absent line to be a no-op, got %+v", cart.Lines)
	}

	cart, err = f.carts.Clear(ctx, owner)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v", cart.Lines)
	}
}

func TestCartServiceApplyCoupon(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(1000)}, 10)
	f.seedCoupon(t, domain.Coupon{Code: "SAVE10", Kind: domain.CouponPercentage, BasisPts: 1000, Active: true, MinSpend: domain.Cents(2000)})
	ctx := context.Background()
	owner := domain.SessionOwner("s")

	if _, err := f.carts.AddItem(ctx, owner, "p1", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := f.carts.ApplyCoupon(ctx, owner, "save10"); !errors.Is(err, ErrCouponInvalid) {
		t.Fatalf("expected min spend rejection, got %v", err)
	}
	if _, err := f.carts.AddItem(ctx, owner, "p1", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := f.carts.ApplyCoupon(ctx, owner, "save10")
	if err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	if cart.CouponCode != "SAVE10" {
		t.Fatalf("expected coupon SAVE10, got %q", cart.CouponCode)
	}
	cart, err = f.carts.RemoveCoupon(ctx, owner)
	if err != nil {
		t.Fatalf("remove coupon: %v", err)
	}
	if cart.CouponCode != "" {
		t.Fatalf("expected coupon removed, got %q", cart.CouponCode)
	}
}

func TestCartServiceMergeSumsQuantitiesAndDeletesGuest(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(1000)}, 10)
	f.seedProduct(t, domain.Product{ID: "p2", Price: domain.Cents(300)}, 10)
	ctx := context.Background()
	guest := domain.SessionOwner("sess-9")
	customer := domain.CustomerOwner("cust-9")

	if _, err := f.carts.AddItem(ctx, guest, "p1", 2); err != nil {
		t.Fatalf("guest add p1: %v", err)
	}
	if _, err := f.carts.AddItem(ctx, guest, "p2", 1); err != nil {
		t.Fatalf("guest add p2: %v", err)
	}
	if _, err := f.carts.AddItem(ctx, customer, "p1", 3); err != nil {
		t.Fatalf("customer add p1: %v", err)
	}

	merged, err := f.carts.Merge(ctx, guest, customer)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Owner != customer {
		t.Fatalf("expected merged cart owned by customer, got %v", merged.Owner)
	}
	if line, _ := merged.Line("p1"); line.Quantity != 5 {
		t.Fatalf("expected p1 quantity 5, got %d", line.Quantity)
	}
	if line, _ := merged.Line("p2"); line.Quantity != 1 {
		t.Fatalf("expected p2 quantity 1, got %d", line.Quantity)
	}
	if _, err := f.store.Carts().Get(ctx, guest); err == nil {
		t.Fatalf("expected guest cart deleted")
	}

	// A second merge finds no guest cart and changes nothing.
	again, err := f.carts.Merge(ctx, guest, customer)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if line, _ := again.Line("p1"); line.Quantity != 5 || again.ItemCount() != 6 {
		t.Fatalf("expected second merge to be a no-op, got %+v", again.Lines)
	}
}

func TestCartServiceMergeRevalidatesAvailability(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(1000)}, 4)
	ctx := context.Background()
	guest := domain.SessionOwner("sess-1")
	customer := domain.CustomerOwner("cust-1")

	if _, err := f.carts.AddItem(ctx, guest, "p1", 3); err != nil {
		t.Fatalf("guest add: %v", err)
	}
	if _, err := f.carts.AddItem(ctx, customer, "p1", 2); err != nil {
		t.Fatalf("customer add: %v", err)
	}

	if _, err := f.carts.Merge(ctx, guest, customer); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock on merge, got %v", err)
	}
	if _, err := f.store.Carts().Get(ctx, guest); err != nil {
		t.Fatalf("expected guest cart kept after a rejected merge: %v", err)
	}
	customerCart, _ := f.carts.Get(ctx, customer)
	if line, _ := customerCart.Line("p1"); line.Quantity != 2 {
		t.Fatalf("expected customer cart unchanged, got %d", line.Quantity)
	}
}

func TestCartServiceMergeRequiresGuestAndCustomer(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.carts.Merge(context.Background(), domain.CustomerOwner("a"), domain.CustomerOwner("b"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCartServiceMergeCarriesGuestCoupon(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(1000)}, 10)
	f.seedCoupon(t, domain.Coupon{Code: "WELCOME", Kind: domain.CouponFixed, Amount: domain.Cents(100), Active: true})
	ctx := context.Background()
	guest := domain.SessionOwner("sess-2")
	customer := domain.CustomerOwner("cust-2")

	if _, err := f.carts.AddItem(ctx, guest, "p1", 1); err != nil {
		t.Fatalf("guest add: %v", err)
	}
	if _, err := f.carts.ApplyCoupon(ctx, guest, "welcome"); err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	merged, err := f.carts.Merge(ctx, guest, customer)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.CouponCode != "WELCOME" {
		t.Fatalf("expected guest coupon carried over, got %q", merged.CouponCode)
	}
}

func TestCartServiceCacheFailuresDoNotFailMutations(t *testing.T) {
	store := memory.NewStore()
	manager := locks.NewManager()
	catalog, _ := NewCatalogReader(CatalogServiceDeps{Catalog: store.Catalog()})
	inventory, _ := NewInventoryService(InventoryServiceDeps{Inventory: store.Inventory(), Locks: manager})
	logs := &logCapture{}
	cache := &stubCartCache{getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	svc, err := NewCartService(CartServiceDeps{
		Repository: store.Carts(),
		Catalog:    catalog,
		Inventory:  inventory,
		Locks:      manager,
		Cache:      cache,
		Clock:      func() time.Time { return fixtureNow },
		Logger:     logs.logger(),
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	ctx := context.Background()
	if err := store.Catalog().SaveProduct(ctx, domain.Product{ID: "p1", Price: domain.Cents(100), Currency: "USD", Active: true}); err != nil {
		t.Fatalf("save product: %v", err)
	}
	if _, err := inventory.SetStock(ctx, "p1", 3); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	owner := domain.SessionOwner("s")
	if _, err := svc.AddItem(ctx, owner, "p1", 1); err != nil {
		t.Fatalf("add with failing cache: %v", err)
	}
	cart, err := svc.Get(ctx, owner)
	if err != nil {
		t.Fatalf("get with failing cache: %v", err)
	}
	if cart.ItemCount() != 1 {
		t.Fatalf("expected cart read from repository, got %+v", cart.Lines)
	}
	if len(logs.find("cart.cache_write_failed")) != 1 || len(logs.find("cart.cache_read_failed")) != 1 {
		t.Fatalf("expected cache failures to be logged")
	}
}

func TestCartServiceReadsThroughCache(t *testing.T) {
	store := memory.NewStore()
	manager := locks.NewManager()
	catalog, _ := NewCatalogReader(CatalogServiceDeps{Catalog: store.Catalog()})
	inventory, _ := NewInventoryService(InventoryServiceDeps{Inventory: store.Inventory(), Locks: manager})
	cache := &stubCartCache{}
	svc, err := NewCartService(CartServiceDeps{
		Repository: store.Carts(),
		Catalog:    catalog,
		Inventory:  inventory,
		Locks:      manager,
		Cache:      cache,
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	owner := domain.CustomerOwner("c")
	cached := domain.NewCart(owner, "USD", fixtureNow)
	cached.Lines = []domain.CartLine{{ProductID: "p1", Quantity: 2}}
	if err := cache.Set(context.Background(), cached); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	cart, err := svc.Get(context.Background(), owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cart.ItemCount() != 2 {
		t.Fatalf("expected cached cart, got %+v", cart.Lines)
	}
}

func TestCartServiceEvictsEntryWhenCacheWriteFails(t *testing.T) {
	cache := &stubCartCache{}
	f := newEngineFixture(t, func(d *fixtureDeps) { d.cartCache = cache })
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(1000)}, 5)
	ctx := context.Background()
	owner := domain.CustomerOwner("cust-1")

	if _, err := f.carts.AddItem(ctx, owner, "p1", 5); err != nil {
		t.Fatalf("add: %v", err)
	}
	cache.failWrites(errors.New("redis down"), nil)
	if _, err := f.carts.SetQuantity(ctx, owner, "p1", 1); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, owner); ok {
		t.Fatalf("expected stale entry to be evicted")
	}
	cart, err := f.carts.Get(ctx, owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cart.ItemCount() != 1 {
		t.Fatalf("expected saved quantity 1, got %+v", cart.Lines)
	}
}

func TestCartServiceSkipsCacheWhenEvictionFails(t *testing.T) {
	cache := &stubCartCache{}
	f := newEngineFixture(t, func(d *fixtureDeps) { d.cartCache = cache })
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(1000)}, 5)
	ctx := context.Background()
	owner := domain.CustomerOwner("cust-1")

	if _, err := f.carts.AddItem(ctx, owner, "p1", 5); err != nil {
		t.Fatalf("add: %v", err)
	}
	down := errors.New("redis down")
	cache.failWrites(down, down)
	if _, err := f.carts.SetQuantity(ctx, owner, "p1", 1); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if cached, ok, _ := cache.Get(ctx, owner); !ok || cached.ItemCount() != 5 {
		t.Fatalf("expected the stale entry to remain in the broken cache")
	}

	cart, err := f.carts.Get(ctx, owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cart.ItemCount() != 1 {
		t.Fatalf("expected repository copy while the cache is bypassed, got %+v", cart.Lines)
	}
	if len(f.logs.find("cart.cache_delete_failed")) != 1 {
		t.Fatalf("expected the failed eviction to be logged")
	}

	cache.failWrites(nil, nil)
	if _, err := f.carts.SetQuantity(ctx, owner, "p1", 2); err != nil {
		t.Fatalf("set quantity after recovery: %v", err)
	}
	cart, err = f.carts.Get(ctx, owner)
	if err != nil {
		t.Fatalf("get after recovery: %v", err)
	}
	if cart.ItemCount() != 2 {
		t.Fatalf("expected refreshed cache entry, got %+v", cart.Lines)
	}
}

type txMarker struct{}

type markingUnitOfWork struct{ runs int }

func (u *markingUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	u.runs++
	return fn(context.WithValue(ctx, txMarker{}, true))
}

// txOnlyCarts fails any read or write made outside a unit of work.
type txOnlyCarts struct {
	repositories.CartRepository
}

func (r txOnlyCarts) Get(ctx context.Context, owner CartOwner) (Cart, error) {
	if ctx.Value(txMarker{}) == nil {
		return Cart{}, errors.New("cart read outside transaction")
	}
	return r.CartRepository.Get(ctx, owner)
}

func (r txOnlyCarts) Save(ctx context.Context, cart Cart) (Cart, error) {
	if ctx.Value(txMarker{}) == nil {
		return Cart{}, errors.New("cart write outside transaction")
	}
	return r.CartRepository.Save(ctx, cart)
}

func TestCartServiceMutatesInsideUnitOfWork(t *testing.T) {
	store := memory.NewStore()
	manager := locks.NewManager()
	catalog, _ := NewCatalogReader(CatalogServiceDeps{Catalog: store.Catalog()})
	inventory, _ := NewInventoryService(InventoryServiceDeps{Inventory: store.Inventory(), Locks: manager})
	uow := &markingUnitOfWork{}
	svc, err := NewCartService(CartServiceDeps{
		Repository: txOnlyCarts{store.Carts()},
		Catalog:    catalog,
		Inventory:  inventory,
		Locks:      manager,
		UnitOfWork: uow,
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	ctx := context.Background()
	if err := store.Catalog().SaveProduct(ctx, domain.Product{ID: "p1", Price: domain.Cents(100), Currency: "USD", Active: true}); err != nil {
		t.Fatalf("save product: %v", err)
	}
	if _, err := inventory.SetStock(ctx, "p1", 3); err != nil {
		t.Fatalf("set stock: %v", err)
	}

	owner := domain.CustomerOwner("c")
	if _, err := svc.AddItem(ctx, owner, "p1", 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.SetQuantity(ctx, owner, "p1", 1); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if uow.runs != 2 {
		t.Fatalf("expected one unit of work per mutation, got %d", uow.runs)
	}
}
