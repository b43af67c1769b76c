package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/locks"
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts   CartService
	Pricing PricingService
	Orders  OrderService
	Locks   Locker
	Logger  Logger
}

type checkoutService struct {
	carts   CartService
	pricing PricingService
	orders  OrderService
	locks   Locker
	logger  Logger
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart service is required")
	case deps.Pricing == nil:
		return nil, errors.New("checkout service: pricing service is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order service is required")
	case deps.Locks == nil:
		return nil, errors.New("checkout service: lock manager is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &checkoutService{
		carts:   deps.Carts,
		pricing: deps.Pricing,
		orders:  deps.Orders,
		locks:   deps.Locks,
		logger:  logger,
	}, nil
}

// Checkout quotes the owner's stored cart and creates the order from that snapshot. The
// cart lock is held throughout so the cart cannot change between quote and order.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	if err := validateOwner(cmd.Owner); err != nil {
		return Order{}, err
	}
	ctx, release, err := acquire(ctx, s.locks, locks.CartKey(cmd.Owner.Key()))
	if err != nil {
		return Order{}, err
	}
	defer release()

	cart, err := s.carts.Stored(ctx, cmd.Owner)
	if err != nil {
		return Order{}, err
	}
	if cart.IsEmpty() {
		return Order{}, fmt.Errorf("%w: cart is empty", ErrInvalidInput)
	}

	snapshot, err := s.pricing.Quote(ctx, cart)
	if err != nil {
		s.logger(ctx, "checkout.quote_failed", map[string]any{
			"owner": cmd.Owner.Key(),
			"error": err.Error(),
		})
		return Order{}, err
	}

	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		actor = cmd.Owner.Key()
	}
	return s.orders.CreateOrder(ctx, CreateOrderCommand{
		Cart:            cart,
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  cmd.BillingAddress,
		Snapshot:        snapshot,
		PaymentMethod:   cmd.PaymentMethod,
		CustomerEmail:   cmd.CustomerEmail,
		CustomerNotes:   cmd.CustomerNotes,
		ActorID:         actor,
	})
}
