package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/locks"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

const (
	eventOrderIntegrityViolation = "order_integrity_violation"
	eventOrderCreated            = "order.created"
	eventOrderCreateRejected     = "order.create_rejected"
	eventCartClearFailed         = "order.cart_clear_failed"
	eventOrderCompensationFailed = "order.compensation_failed"

	maxOrderNotesLength = 20000
)

type cartClearer interface {
	Clear(ctx context.Context, owner CartOwner) (Cart, error)
}

// RefundGateway forwards refunds to the payment provider.
type RefundGateway interface {
	Refund(ctx context.Context, req RefundRequest) (string, error)
}

// RefundRequest describes one refund sent to the payment provider.
type RefundRequest struct {
	OrderID         string
	OrderNumber     string
	PaymentIntentID string
	Amount          Money
	Currency        string
	Reason          string
	IdempotencyKey  string
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Audit       AuditRecorder
	Counters    CounterService
	Inventory   InventoryService
	Coupons     repositories.CouponRepository
	DealClaims  repositories.DealClaimRepository
	Catalog     CatalogReader
	Carts       cartClearer
	Locks       Locker
	UnitOfWork  repositories.UnitOfWork
	Dispatcher  NotificationDispatcher
	Refunds     RefundGateway
	Metrics     EngineMetrics
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type orderService struct {
	orders     repositories.OrderRepository
	audit      AuditRecorder
	counters   CounterService
	inventory  InventoryService
	coupons    repositories.CouponRepository
	deals      repositories.DealClaimRepository
	catalog    CatalogReader
	carts      cartClearer
	locks      Locker
	unitOfWork repositories.UnitOfWork
	dispatcher NotificationDispatcher
	refunds    RefundGateway
	metrics    EngineMetrics
	clock      func() time.Time
	newID      func() string
	logger     Logger
}

// NewOrderService wires the lifecycle engine.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Audit == nil:
		return nil, errors.New("order service: audit recorder is required")
	case deps.Counters == nil:
		return nil, errors.New("order service: counter service is required")
	case deps.Inventory == nil:
		return nil, errors.New("order service: inventory service is required")
	case deps.Locks == nil:
		return nil, errors.New("order service: lock manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	var uow repositories.UnitOfWork = noopUnitOfWork{}
	if deps.UnitOfWork != nil {
		uow = deps.UnitOfWork
	}
	var dispatcher NotificationDispatcher = noopDispatcher{}
	if deps.Dispatcher != nil {
		dispatcher = deps.Dispatcher
	}
	var metrics EngineMetrics = noopMetrics{}
	if deps.Metrics != nil {
		metrics = deps.Metrics
	}

	return &orderService{
		orders:     deps.Orders,
		audit:      deps.Audit,
		counters:   deps.Counters,
		inventory:  deps.Inventory,
		coupons:    deps.Coupons,
		deals:      deps.DealClaims,
		catalog:    deps.Catalog,
		carts:      deps.Carts,
		locks:      deps.Locks,
		unitOfWork: uow,
		dispatcher: dispatcher,
		refunds:    deps.Refunds,
		metrics:    metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder turns a cart and its frozen price snapshot into a PENDING order. Inventory
// for every line is reserved and committed under sorted product locks; any failure
// undoes every completed step before the error is returned.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	started := time.Now()
	order, err := s.createOrder(ctx, cmd)
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		s.logger(ctx, eventOrderCreateRejected, map[string]any{
			"owner": cmd.Cart.Owner.Key(),
			"kind":  outcome,
			"error": err.Error(),
		})
	}
	s.metrics.ObserveCheckout(outcome, time.Since(started))
	return order, err
}

func (s *orderService) createOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if err := validateCreateOrder(cmd); err != nil {
		return Order{}, err
	}
	lines := cmd.Cart.InventoryLines()

	// The cart lock is taken with the product locks so that clearing the cart afterwards
	// never waits on a cart lock while product locks are held.
	keys := make([]string, 0, len(lines)+1)
	if s.carts != nil {
		keys = append(keys, locks.CartKey(cmd.Cart.Owner.Key()))
	}
	for _, id := range domain.InventoryProductIDs(lines) {
		keys = append(keys, locks.ProductKey(id))
	}
	ctx, release, err := acquire(ctx, s.locks, keys...)
	if err != nil {
		return Order{}, err
	}
	defer release()

	var undo compensations
	fail := func(err error) (Order, error) {
		undo.run(context.WithoutCancel(ctx), s.logger)
		return Order{}, err
	}

	if err := s.inventory.ReserveLines(ctx, lines); err != nil {
		return Order{}, err
	}
	undo.add("release reservation", func(c context.Context) error { return s.inventory.ReleaseLines(c, lines) })
	if err := ctxError(ctx); err != nil {
		return fail(err)
	}

	if err := s.inventory.CommitLines(ctx, lines); err != nil {
		return fail(fmt.Errorf("%w: commit failed: %v", ErrInventoryConflict, err))
	}
	// Committed units are no longer reserved; undo now restocks instead of releasing.
	undo = compensations{}
	undo.add("restock committed lines", func(c context.Context) error { return s.inventory.RestockLines(c, lines) })
	if err := ctxError(ctx); err != nil {
		return fail(err)
	}

	now := s.clock()
	snapshot := cmd.Snapshot
	if code := snapshot.CouponCode; code != "" {
		if s.coupons == nil {
			return fail(fmt.Errorf("%w: coupon %s is not recognised", ErrCouponInvalid, code))
		}
		if _, err := s.coupons.Redeem(ctx, code, now); err != nil {
			return fail(mapRepositoryError(err, "coupon "+code))
		}
		undo.add("unredeem coupon", func(c context.Context) error { return s.coupons.Unredeem(c, code, now) })
	}

	if claims := snapshot.DealClaims(); len(claims) > 0 {
		if s.deals == nil || s.catalog == nil {
			return fail(fmt.Errorf("%w: deal pricing is not configured", ErrInventoryConflict))
		}
		limits, err := dealLimits(ctx, s.catalog, snapshot)
		if err != nil {
			return fail(err)
		}
		if err := s.deals.Claim(ctx, claims, limits, now); err != nil {
			return fail(mapRepositoryError(err, "deal claims"))
		}
		undo.add("unclaim deals", func(c context.Context) error { return s.deals.Unclaim(c, claims, now) })
	}
	if err := ctxError(ctx); err != nil {
		return fail(err)
	}

	orderNumber, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		return fail(err)
	}

	order := buildOrder(s.newID(), orderNumber, cmd, now)
	if err := order.Validate(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapRepositoryError(err, "order "+order.ID)
		}
		_, err := s.audit.Record(txCtx, order, AuditEntry{
			Action:  domain.HistoryCreated,
			ActorID: cmd.ActorID,
			To:      string(order.Status),
			Amount:  order.Totals.Final,
			Note:    "order created",
			Metadata: map[string]any{
				"orderNumber": order.OrderNumber,
				"lines":       len(order.Lines),
			},
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrOrderAuditFailed) {
			s.integrityViolation(ctx, Order{}, order, domain.HistoryCreated, err)
		}
		return fail(err)
	}

	if s.carts != nil {
		if _, err := s.carts.Clear(ctx, cmd.Cart.Owner); err != nil {
			s.logger(ctx, eventCartClearFailed, map[string]any{
				"orderId": order.ID,
				"owner":   cmd.Cart.Owner.Key(),
				"error":   err.Error(),
			})
		}
	}

	s.logger(ctx, eventOrderCreated, map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"owner":       order.Owner.Key(),
		"final":       order.Totals.Final.String(),
	})
	s.dispatch(ctx, OrderEvent{
		Type:        EventOrderCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		OwnerKey:    order.Owner.Key(),
		To:          string(order.Status),
		Amount:      order.Totals.Final,
		ActorID:     cmd.ActorID,
		OccurredAt:  now,
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, "order "+orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err, "orders")
	}
	return page, nil
}

func (s *orderService) ListHistory(ctx context.Context, orderID string) ([]OrderHistoryEntry, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, strings.TrimSpace(orderID))
}

// persist writes the mutated order and its history entry in one unit of work. If the
// append fails the update is rolled back and the integrity violation is logged.
func (s *orderService) persist(ctx context.Context, before Order, after *Order, entry AuditEntry, now time.Time) error {
	after.Version = before.Version + 1
	after.HistoryCount = before.HistoryCount + 1
	after.UpdatedAt = now
	if err := after.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, *after, before.Version); err != nil {
			return mapRepositoryError(err, "order "+after.ID)
		}
		_, err := s.audit.Record(txCtx, *after, entry)
		return err
	})
	if err != nil && errors.Is(err, ErrOrderAuditFailed) {
		s.integrityViolation(ctx, before, *after, entry.Action, err)
	}
	return err
}

func (s *orderService) integrityViolation(ctx context.Context, before, after Order, action domain.HistoryAction, err error) {
	s.logger(ctx, eventOrderIntegrityViolation, map[string]any{
		"severity":      "error",
		"orderId":       after.ID,
		"orderNumber":   after.OrderNumber,
		"action":        string(action),
		"fromVersion":   before.Version,
		"toVersion":     after.Version,
		"fromStatus":    string(before.Status),
		"toStatus":      string(after.Status),
		"paymentStatus": string(after.PaymentStatus),
		"error":         err.Error(),
	})
}

func (s *orderService) dispatch(ctx context.Context, event OrderEvent) {
	if event.ID == "" {
		event.ID = s.newID()
	}
	s.dispatcher.Dispatch(context.WithoutCancel(ctx), event)
}

// loadLocked takes the order lock and reads the current order.
func (s *orderService) loadLocked(ctx context.Context, orderID string) (context.Context, Order, func(), error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return ctx, Order{}, nil, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	ctx, release, err := acquire(ctx, s.locks, locks.OrderKey(orderID))
	if err != nil {
		return ctx, Order{}, nil, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		release()
		return ctx, Order{}, nil, mapRepositoryError(err, "order "+orderID)
	}
	return ctx, order, release, nil
}

func validateCreateOrder(cmd CreateOrderCommand) error {
	if err := validateOwner(cmd.Cart.Owner); err != nil {
		return err
	}
	if cmd.Cart.IsEmpty() {
		return fmt.Errorf("%w: cart is empty", ErrInvalidInput)
	}
	if err := cmd.ShippingAddress.Validate(); err != nil {
		return fmt.Errorf("%w: shipping %v", ErrInvalidInput, err)
	}
	if cmd.BillingAddress != nil {
		if err := cmd.BillingAddress.Validate(); err != nil {
			return fmt.Errorf("%w: billing %v", ErrInvalidInput, err)
		}
	}
	switch cmd.PaymentMethod {
	case "", domain.PaymentMethodCard, domain.PaymentMethodCashOnDelivery, domain.PaymentMethodBankTransfer:
	default:
		return fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, cmd.PaymentMethod)
	}

	snap := cmd.Snapshot
	if len(snap.Lines) != len(cmd.Cart.Lines) {
		return fmt.Errorf("%w: price snapshot does not match the cart", ErrInvalidInput)
	}
	for i, line := range cmd.Cart.Lines {
		if line.Quantity < 1 {
			return fmt.Errorf("%w: line %s has quantity %d", ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
		priced := snap.Lines[i]
		if priced.ProductID != line.ProductID || priced.Quantity != line.Quantity {
			return fmt.Errorf("%w: price snapshot does not match the cart at line %d", ErrInvalidInput, i+1)
		}
	}
	want := domain.ComputeFinalAmount(snap.TotalAmount, snap.ShippingAmount, snap.TaxAmount, snap.DiscountAmount, snap.CouponDiscount)
	if snap.FinalAmount != want {
		return fmt.Errorf("%w: snapshot final amount %s does not match breakdown %s", ErrInvalidInput, snap.FinalAmount, want)
	}
	return nil
}

func buildOrder(id, orderNumber string, cmd CreateOrderCommand, now time.Time) Order {
	snap := cmd.Snapshot
	lines := make([]domain.OrderLine, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID:      line.ProductID,
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			DiscountAmount: line.DiscountAmount,
			Subtotal:       line.Subtotal,
			DealID:         line.DealID,
			DealUnits:      line.DealUnits,
		})
	}
	method := cmd.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodCard
	}
	var billing *Address
	if cmd.BillingAddress != nil {
		copied := *cmd.BillingAddress
		billing = &copied
	}
	currency := snap.Currency
	if currency == "" {
		currency = cmd.Cart.Currency
	}
	return Order{
		ID:              id,
		OrderNumber:     orderNumber,
		Owner:           cmd.Cart.Owner,
		CustomerEmail:   strings.TrimSpace(cmd.CustomerEmail),
		Currency:        strings.ToUpper(currency),
		Lines:           lines,
		Totals:          snap.Totals(),
		CouponCode:      snap.CouponCode,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   method,
		InventoryState:  domain.InventoryCommitted,
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  billing,
		CustomerNotes:   sanitizeNote(cmd.CustomerNotes),
		Version:         1,
		HistoryCount:    1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// compensations is a stack of undo steps run in reverse order.
type compensations struct {
	steps []compensation
}

type compensation struct {
	name string
	fn   func(context.Context) error
}

func (c *compensations) add(name string, fn func(context.Context) error) {
	c.steps = append(c.steps, compensation{name: name, fn: fn})
}

func (c *compensations) run(ctx context.Context, logger Logger) {
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.fn(ctx); err != nil {
			logger(ctx, eventOrderCompensationFailed, map[string]any{
				"severity": "error",
				"step":     step.name,
				"error":    err.Error(),
			})
		}
	}
	c.steps = nil
}

func ctxError(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}
