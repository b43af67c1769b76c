package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/locks"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
	errCartInventoryRequired  = errors.New("cart service: inventory is required")
	errCartLocksRequired      = errors.New("cart service: lock manager is required")
)

const (
	maxCartLineQuantity = 999
	defaultCartCacheTTL = 15 * time.Minute
)

// CartCache is an optional read-through copy of stored carts. Failures are logged and never
// fail the mutation that triggered them. An entry that could be neither refreshed nor evicted
// is skipped until CacheTTL has passed.
type CartCache interface {
	Get(ctx context.Context, owner CartOwner) (Cart, bool, error)
	Set(ctx context.Context, cart Cart) error
	Delete(ctx context.Context, owner CartOwner) error
}

type couponValidator interface {
	ValidateCoupon(ctx context.Context, code string, merchandise Money) (Coupon, error)
}

// CartServiceDeps wires the repository and collaborators for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Catalog         CatalogReader
	Inventory       InventoryService
	Coupons         couponValidator
	Locks           Locker
	UnitOfWork      repositories.UnitOfWork
	Cache           CartCache
	CacheTTL        time.Duration
	Clock           func() time.Time
	DefaultCurrency string
	MaxLineQuantity int
	Logger          Logger
}

type cartService struct {
	repo      repositories.CartRepository
	catalog   CatalogReader
	inventory InventoryService
	coupons   couponValidator
	locks     Locker
	uow       repositories.UnitOfWork
	cache     CartCache
	cacheTTL  time.Duration
	reads     singleflight.Group
	bypassMu  sync.Mutex
	bypass    map[string]time.Time
	now       func() time.Time
	currency  string
	maxQty    int
	logger    Logger
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Inventory == nil {
		return nil, errCartInventoryRequired
	}
	if deps.Locks == nil {
		return nil, errCartLocksRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}
	maxQty := deps.MaxLineQuantity
	if maxQty <= 0 {
		maxQty = maxCartLineQuantity
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	var uow repositories.UnitOfWork = noopUnitOfWork{}
	if deps.UnitOfWork != nil {
		uow = deps.UnitOfWork
	}
	cacheTTL := deps.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCartCacheTTL
	}

	return &cartService{
		repo:      deps.Repository,
		catalog:   deps.Catalog,
		inventory: deps.Inventory,
		coupons:   deps.Coupons,
		locks:     deps.Locks,
		uow:       uow,
		cache:     deps.Cache,
		cacheTTL:  cacheTTL,
		bypass:    map[string]time.Time{},
		now:       func() time.Time { return clock().UTC() },
		currency:  currency,
		maxQty:    maxQty,
		logger:    logger,
	}, nil
}

// Get returns the owner's cart. A missing cart is returned empty without being stored.
func (s *cartService) Get(ctx context.Context, owner CartOwner) (Cart, error) {
	if err := validateOwner(owner); err != nil {
		return Cart{}, err
	}
	if s.cache != nil && !s.bypassed(owner) {
		cached, ok, err := s.cache.Get(ctx, owner)
		if err != nil {
			s.logger(ctx, "cart.cache_read_failed", map[string]any{"owner": owner.Key(), "error": err.Error()})
		} else if ok {
			return cached, nil
		}
	}
	// Concurrent misses for one owner share a single repository read.
	v, err, _ := s.reads.Do(owner.Key(), func() (any, error) {
		cart, _, err := s.load(ctx, owner)
		return cart, err
	})
	if err != nil {
		return Cart{}, err
	}
	return v.(Cart).Clone(), nil
}

// Stored reads the cart from the repository, never from the cache. Checkout orders from this
// copy.
func (s *cartService) Stored(ctx context.Context, owner CartOwner) (Cart, error) {
	if err := validateOwner(owner); err != nil {
		return Cart{}, err
	}
	cart, _, err := s.load(ctx, owner)
	return cart, err
}

func (s *cartService) AddItem(ctx context.Context, owner CartOwner, productID string, qty int) (Cart, error) {
	if qty < 1 || qty > s.maxQty {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidQuantity, s.maxQty)
	}
	return s.mutate(ctx, owner, func(ctx context.Context, cart *Cart, now time.Time) error {
		product, err := s.product(ctx, productID)
		if err != nil {
			return err
		}
		if err := s.checkCurrency(*cart, product); err != nil {
			return err
		}
		idx := cart.LineIndex(product.ID)
		target := qty
		if idx >= 0 {
			target += cart.Lines[idx].Quantity
		}
		if target > s.maxQty {
			return fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidQuantity, s.maxQty)
		}
		if err := s.checkAvailable(ctx, product.ID, target); err != nil {
			return err
		}
		if idx >= 0 {
			line := &cart.Lines[idx]
			line.Quantity = target
			line.UnitPrice = product.Price
			line.Name = product.Name
			line.UpdatedAt = now
			return nil
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  qty,
			UnitPrice: product.Price,
			AddedAt:   now,
			UpdatedAt: now,
		})
		return nil
	})
}

// SetQuantity replaces a line's quantity. Zero removes the line; values above the current
// availability are rejected rather than clamped.
func (s *cartService) SetQuantity(ctx context.Context, owner CartOwner, productID string, qty int) (Cart, error) {
	if qty < 0 || qty > s.maxQty {
		return Cart{}, fmt.Errorf("%w: quantity must be between 0 and %d", ErrInvalidQuantity, s.maxQty)
	}
	if qty == 0 {
		return s.RemoveItem(ctx, owner, productID)
	}
	return s.mutate(ctx, owner, func(ctx context.Context, cart *Cart, now time.Time) error {
		productID = strings.TrimSpace(productID)
		idx := cart.LineIndex(productID)
		if idx < 0 {
			return fmt.Errorf("%w: product %s is not in the cart", ErrNotFound, productID)
		}
		if err := s.checkAvailable(ctx, productID, qty); err != nil {
			return err
		}
		cart.Lines[idx].Quantity = qty
		cart.Lines[idx].UpdatedAt = now
		return nil
	})
}

// RemoveItem drops a line. Removing an absent product is not an error.
func (s *cartService) RemoveItem(ctx context.Context, owner CartOwner, productID string) (Cart, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	return s.mutate(ctx, owner, func(_ context.Context, cart *Cart, _ time.Time) error {
		if idx := cart.LineIndex(productID); idx >= 0 {
			cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
		}
		return nil
	})
}

func (s *cartService) Clear(ctx context.Context, owner CartOwner) (Cart, error) {
	return s.mutate(ctx, owner, func(_ context.Context, cart *Cart, _ time.Time) error {
		cart.Lines = nil
		cart.CouponCode = ""
		return nil
	})
}

func (s *cartService) ApplyCoupon(ctx context.Context, owner CartOwner, code string) (Cart, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Cart{}, fmt.Errorf("%w: coupon code is required", ErrCouponInvalid)
	}
	if s.coupons == nil {
		return Cart{}, fmt.Errorf("%w: coupons are not enabled", ErrCouponInvalid)
	}
	return s.mutate(ctx, owner, func(ctx context.Context, cart *Cart, _ time.Time) error {
		var merchandise Money
		for _, line := range cart.Lines {
			merchandise += line.UnitPrice.Times(line.Quantity) - line.DiscountAmount
		}
		coupon, err := s.coupons.ValidateCoupon(ctx, code, merchandise)
		if err != nil {
			return err
		}
		cart.CouponCode = coupon.Code
		return nil
	})
}

func (s *cartService) RemoveCoupon(ctx context.Context, owner CartOwner) (Cart, error) {
	return s.mutate(ctx, owner, func(_ context.Context, cart *Cart, _ time.Time) error {
		cart.CouponCode = ""
		return nil
	})
}

// Merge folds the guest cart into the customer's cart on login. Shared products have their
// quantities summed and revalidated; the guest cart is deleted. An absent or empty guest cart
// makes the call a no-op.
func (s *cartService) Merge(ctx context.Context, guest CartOwner, customer CartOwner) (Cart, error) {
	if err := validateOwner(guest); err != nil {
		return Cart{}, err
	}
	if err := validateOwner(customer); err != nil {
		return Cart{}, err
	}
	if !guest.IsGuest() || customer.IsGuest() {
		return Cart{}, fmt.Errorf("%w: merge requires a session owner and a customer owner", ErrInvalidInput)
	}

	ctx, release, err := acquire(ctx, s.locks, locks.CartKey(guest.Key()), locks.CartKey(customer.Key()))
	if err != nil {
		return Cart{}, err
	}
	defer release()

	var saved Cart
	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		saved, err = s.mergeStored(txCtx, guest, customer)
		return err
	})
	if err != nil {
		return Cart{}, err
	}
	s.cacheDelete(ctx, guest)
	s.cacheSet(ctx, saved)
	s.logger(ctx, "cart.merged", map[string]any{
		"guest":    guest.Key(),
		"customer": customer.Key(),
		"lines":    len(saved.Lines),
	})
	return saved, nil
}

// mergeStored reads both carts and writes the merged result within the caller's unit of work.
func (s *cartService) mergeStored(ctx context.Context, guest, customer CartOwner) (Cart, error) {
	guestCart, guestExists, err := s.load(ctx, guest)
	if err != nil {
		return Cart{}, err
	}
	target, _, err := s.load(ctx, customer)
	if err != nil {
		return Cart{}, err
	}
	if !guestExists || guestCart.IsEmpty() {
		if guestExists {
			if err := s.repo.Delete(ctx, guest); err != nil && !repositories.IsNotFound(err) {
				return Cart{}, mapRepositoryError(err, "cart "+guest.Key())
			}
		}
		return target, nil
	}
	if !target.IsEmpty() && guestCart.Currency != "" && target.Currency != guestCart.Currency {
		return Cart{}, fmt.Errorf("%w: cannot merge %s cart into %s cart", ErrInvalidInput, guestCart.Currency, target.Currency)
	}
	if target.IsEmpty() {
		target.Currency = guestCart.Currency
	}

	now := s.now()
	for _, line := range guestCart.Lines {
		idx := target.LineIndex(line.ProductID)
		if idx < 0 {
			line.UpdatedAt = now
			target.Lines = append(target.Lines, line)
			continue
		}
		merged := target.Lines[idx].Quantity + line.Quantity
		if merged > s.maxQty {
			return Cart{}, fmt.Errorf("%w: merged quantity for %s exceeds %d", ErrInvalidQuantity, line.ProductID, s.maxQty)
		}
		target.Lines[idx].Quantity = merged
		target.Lines[idx].UpdatedAt = now
	}
	for _, line := range target.Lines {
		if err := s.checkAvailable(ctx, line.ProductID, line.Quantity); err != nil {
			return Cart{}, err
		}
	}
	if target.CouponCode == "" {
		target.CouponCode = guestCart.CouponCode
	}
	target.UpdatedAt = now

	saved, err := s.repo.Save(ctx, target)
	if err != nil {
		return Cart{}, mapRepositoryError(err, "cart "+customer.Key())
	}
	if err := s.repo.Delete(ctx, guest); err != nil && !repositories.IsNotFound(err) {
		return Cart{}, mapRepositoryError(err, "cart "+guest.Key())
	}
	return saved, nil
}

// mutate runs fn against the owner's cart under the cart lock and persists the result. The
// read and the write share one unit of work, so on Firestore a concurrent writer in another
// process aborts and retries the transaction instead of being overwritten.
func (s *cartService) mutate(ctx context.Context, owner CartOwner, fn func(context.Context, *Cart, time.Time) error) (Cart, error) {
	if err := validateOwner(owner); err != nil {
		return Cart{}, err
	}
	ctx, release, err := acquire(ctx, s.locks, locks.CartKey(owner.Key()))
	if err != nil {
		return Cart{}, err
	}
	defer release()

	var saved Cart
	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		cart, _, err := s.load(txCtx, owner)
		if err != nil {
			return err
		}
		now := s.now()
		if err := fn(txCtx, &cart, now); err != nil {
			return err
		}
		cart.UpdatedAt = now
		if cart.CreatedAt.IsZero() {
			cart.CreatedAt = now
		}
		saved, err = s.repo.Save(txCtx, cart)
		if err != nil {
			return mapRepositoryError(err, "cart "+owner.Key())
		}
		return nil
	})
	if err != nil {
		return Cart{}, err
	}
	s.cacheSet(ctx, saved)
	return saved, nil
}

// load reads the stored cart. Missing carts come back as a fresh empty cart.
func (s *cartService) load(ctx context.Context, owner CartOwner) (Cart, bool, error) {
	cart, err := s.repo.Get(ctx, owner)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.NewCart(owner, s.currency, s.now()), false, nil
		}
		return Cart{}, false, mapRepositoryError(err, "cart "+owner.Key())
	}
	if cart.Currency == "" {
		cart.Currency = s.currency
	}
	return cart, true, nil
}

func (s *cartService) product(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	return s.catalog.GetProduct(ctx, productID)
}

func (s *cartService) checkCurrency(cart Cart, product Product) error {
	if product.Currency == "" || cart.Currency == "" {
		return nil
	}
	if !strings.EqualFold(product.Currency, cart.Currency) {
		return fmt.Errorf("%w: product %s is priced in %s, cart uses %s", ErrInvalidInput, product.ID, product.Currency, cart.Currency)
	}
	return nil
}

func (s *cartService) checkAvailable(ctx context.Context, productID string, qty int) error {
	available, err := s.inventory.Available(ctx, productID)
	if err != nil {
		return err
	}
	if qty > available {
		return &StockError{ProductID: productID, Requested: qty, Available: available}
	}
	return nil
}

// cacheSet refreshes the cached copy. When the write fails the old entry is evicted so it
// cannot be served in place of the saved cart.
func (s *cartService) cacheSet(ctx context.Context, cart Cart) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cart); err != nil {
		s.logger(ctx, "cart.cache_write_failed", map[string]any{"owner": cart.Owner.Key(), "error": err.Error()})
		s.cacheDelete(ctx, cart.Owner)
		return
	}
	s.bypassMu.Lock()
	delete(s.bypass, cart.Owner.Key())
	s.bypassMu.Unlock()
}

// cacheDelete evicts the cached copy. If Redis cannot be reached the entry may still be there,
// so reads skip the cache for that owner until the entry has expired on its own.
func (s *cartService) cacheDelete(ctx context.Context, owner CartOwner) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, owner); err != nil {
		s.logger(ctx, "cart.cache_delete_failed", map[string]any{"owner": owner.Key(), "error": err.Error()})
		s.bypassMu.Lock()
		s.bypass[owner.Key()] = s.now().Add(s.cacheTTL)
		s.bypassMu.Unlock()
	}
}

func (s *cartService) bypassed(owner CartOwner) bool {
	s.bypassMu.Lock()
	defer s.bypassMu.Unlock()
	until, ok := s.bypass[owner.Key()]
	if !ok {
		return false
	}
	if !s.now().Before(until) {
		delete(s.bypass, owner.Key())
		return false
	}
	return true
}

func validateOwner(owner CartOwner) error {
	if err := owner.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
