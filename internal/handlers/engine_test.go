package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/auth"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/idempotency"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/locks"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories/memory"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

const (
	testUIDHeader   = "X-Test-UID"
	testRolesHeader = "X-Test-Roles"
)

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type testEngine struct {
	store     *memory.Store
	inventory services.InventoryService
	carts     services.CartService
	pricing   services.PricingService
	orders    services.OrderService
	checkout  services.CheckoutService
	router    chi.Router
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	store := memory.NewStore()
	lockManager := locks.NewManager(locks.WithTimeout(time.Second))
	clock := func() time.Time { return testNow }

	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: store.Inventory(),
		Locks:     lockManager,
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	catalog, err := services.NewCatalogReader(services.CatalogServiceDeps{Catalog: store.Catalog()})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	pricing, err := services.NewPricingService(services.PricingServiceDeps{
		Catalog:    catalog,
		Coupons:    store.Coupons(),
		DealClaims: store.DealClaims(),
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	carts, err := services.NewCartService(services.CartServiceDeps{
		Repository: store.Carts(),
		Catalog:    catalog,
		Inventory:  inventory,
		Coupons:    pricing,
		Locks:      lockManager,
		UnitOfWork: store,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("carts: %v", err)
	}
	audit, err := services.NewAuditService(services.AuditServiceDeps{History: store.OrderHistory(), Clock: clock})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	counters, err := services.NewCounterService(services.CounterServiceDeps{Repository: store.Counters(), Clock: clock})
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	orders, err := services.NewOrderService(services.OrderServiceDeps{
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
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:   carts,
		Pricing: pricing,
		Orders:  orders,
		Locks:   lockManager,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	e := &testEngine{
		store:     store,
		inventory: inventory,
		carts:     carts,
		pricing:   pricing,
		orders:    orders,
		checkout:  checkout,
	}
	e.router = NewRouter(
		WithMiddlewares(testIdentityMiddleware),
		WithCartRoutes(NewCartHandlers(carts, pricing).Routes),
		WithOrderRoutes(NewOrderHandlers(checkout, orders).Routes),
		WithAdminRoutes(NewAdminHandlers(orders, inventory).Routes),
		WithAdminMiddlewares(auth.RequireRoles(auth.RoleStaff, auth.RoleAdmin)),
	)
	return e
}

// testIdentityMiddleware stands in for the Firebase authenticator.
func testIdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get(testUIDHeader)
		if uid == "" {
			next.ServeHTTP(w, r)
			return
		}
		roles := []string{auth.RoleCustomer}
		if raw := r.Header.Get(testRolesHeader); raw != "" {
			roles = strings.Split(raw, ",")
		}
		identity := &auth.Identity{UID: uid, Roles: roles}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

func (e *testEngine) seedProduct(t *testing.T, id string, price domain.Money, stock int) {
	t.Helper()
	ctx := context.Background()
	product := domain.Product{ID: id, Name: "Product " + id, Currency: "USD", Price: price, Active: true}
	if err := e.store.Catalog().SaveProduct(ctx, product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := e.inventory.SetStock(ctx, id, stock); err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

type requester struct {
	session string
	uid     string
	roles   string
}

func guest(session string) requester { return requester{session: session} }

func customer(uid string) requester { return requester{uid: uid} }

func staff(uid string) requester { return requester{uid: uid, roles: auth.RoleStaff} }

func (e *testEngine) do(t *testing.T, who requester, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who.session != "" {
		req.Header.Set(idempotency.SessionHeader, who.session)
	}
	if who.uid != "" {
		req.Header.Set(testUIDHeader, who.uid)
	}
	if who.roles != "" {
		req.Header.Set(testRolesHeader, who.roles)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func testShippingAddress() domain.Address {
	return domain.Address{
		Recipient:  "Ada Buyer",
		Line1:      "1 Market Street",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	}
}
