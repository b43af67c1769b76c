package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/locks"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

var (
	// ErrInvalidQuantity signals a quantity outside the accepted range.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInsufficientStock signals a request above the available units.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryConflict signals a checkout whose inventory commit could not complete.
	ErrInventoryConflict = errors.New("inventory: conflict")
	// ErrReservationNotFound signals a release or commit without matching reserved units.
	ErrReservationNotFound = errors.New("inventory: reservation not found")

	// ErrInvalidTransition signals a status change the state table forbids.
	ErrInvalidTransition = errors.New("order: invalid transition")
	// ErrRefundNotEligible signals a refund on an order that has not been paid.
	ErrRefundNotEligible = errors.New("order: refund not eligible")
	// ErrRefundExceedsOrder signals a refund above the refundable amount.
	ErrRefundExceedsOrder = errors.New("order: refund exceeds order")
	// ErrOrderAuditFailed signals the history append failed and the mutation was not committed.
	ErrOrderAuditFailed = errors.New("order: audit append failed")

	// ErrCouponExhausted signals a coupon whose usage cap is reached.
	ErrCouponExhausted = errors.New("coupon: exhausted")
	// ErrCouponInvalid signals an unknown, inactive, expired or below-minimum coupon.
	ErrCouponInvalid = errors.New("coupon: invalid")

	// ErrBusy signals an entity lock could not be acquired within the bounded wait.
	ErrBusy = errors.New("engine: busy")
	// ErrTimeout signals the caller's deadline elapsed mid-operation.
	ErrTimeout = errors.New("engine: timeout")
	// ErrNotFound signals a missing cart, order or product.
	ErrNotFound = errors.New("engine: not found")
	// ErrInvalidInput signals a malformed request.
	ErrInvalidInput = errors.New("engine: invalid input")
	// ErrConflict signals a concurrent modification detected by storage.
	ErrConflict = errors.New("engine: conflict")
	// ErrUnavailable signals a transient backend failure.
	ErrUnavailable = errors.New("engine: unavailable")
)

// StockError reports a shortfall for one product so callers can render "only N left".
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock: product %s has %d available, requested %d", e.ProductID, e.Available, e.Requested)
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// ErrorKind is the typed error classification exposed at the engine boundary.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindInvalidQuantity     ErrorKind = "invalid_quantity"
	KindInsufficientStock   ErrorKind = "insufficient_stock"
	KindInventoryConflict   ErrorKind = "inventory_conflict"
	KindReservationNotFound ErrorKind = "reservation_not_found"
	KindInvalidTransition   ErrorKind = "invalid_transition"
	KindRefundNotEligible   ErrorKind = "refund_not_eligible"
	KindRefundExceedsOrder  ErrorKind = "refund_exceeds_order"
	KindCouponExhausted     ErrorKind = "coupon_exhausted"
	KindCouponInvalid       ErrorKind = "coupon_invalid"
	KindBusy                ErrorKind = "busy"
	KindTimeout             ErrorKind = "timeout"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindConflict            ErrorKind = "conflict"
	KindUnavailable         ErrorKind = "unavailable"
	KindIntegrity           ErrorKind = "integrity"
	KindInternal            ErrorKind = "internal"
)

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidQuantity, KindInvalidQuantity},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrInventoryConflict, KindInventoryConflict},
	{ErrReservationNotFound, KindReservationNotFound},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrRefundNotEligible, KindRefundNotEligible},
	{ErrRefundExceedsOrder, KindRefundExceedsOrder},
	{ErrCouponExhausted, KindCouponExhausted},
	{ErrCouponInvalid, KindCouponInvalid},
	{ErrOrderAuditFailed, KindIntegrity},
	{ErrBusy, KindBusy},
	{ErrTimeout, KindTimeout},
	{ErrNotFound, KindNotFound},
	{ErrInvalidInput, KindInvalidInput},
	{ErrConflict, KindConflict},
	{ErrUnavailable, KindUnavailable},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, row := range kindTable {
		if errors.Is(err, row.err) {
			return row.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// mapRepositoryError translates storage failures into engine sentinels.
func mapRepositoryError(err error, what string) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		return mapInventoryError(invErr)
	}
	var promoErr *repositories.PromotionError
	if errors.As(err, &promoErr) {
		if promoErr.Code == repositories.PromotionErrorCouponExhausted {
			return fmt.Errorf("%w: coupon %s reached its usage cap", ErrCouponExhausted, promoErr.Ref)
		}
		return fmt.Errorf("%w: deal %s has no units left", ErrInventoryConflict, promoErr.Ref)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrNotFound, what)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func mapInventoryError(err *repositories.InventoryError) error {
	switch err.Code {
	case repositories.InventoryErrorInsufficientStock:
		return &StockError{ProductID: err.ProductID, Requested: err.Requested, Available: err.Available}
	case repositories.InventoryErrorReservationNotFound:
		return fmt.Errorf("%w: %s", ErrReservationNotFound, err.Message)
	case repositories.InventoryErrorInvalidQuantity:
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, err.Message)
	case repositories.InventoryErrorStockNotFound:
		return fmt.Errorf("%w: inventory for product %s", ErrNotFound, err.ProductID)
	default:
		return fmt.Errorf("%w: %s", ErrInventoryConflict, err.Message)
	}
}

// acquire takes entity locks, translating lock failures into engine errors. The returned
// context records the held keys so nested calls do not wait on their own locks.
func acquire(ctx context.Context, locker Locker, keys ...string) (context.Context, func(), error) {
	if locker == nil {
		return ctx, func() {}, nil
	}
	held, release, err := locker.Hold(ctx, keys...)
	switch {
	case err == nil:
		return held, release, nil
	case errors.Is(err, locks.ErrBusy):
		return ctx, nil, fmt.Errorf("%w: %v", ErrBusy, err)
	case errors.Is(err, context.DeadlineExceeded):
		return ctx, nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return ctx, nil, err
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func noopLogger(context.Context, string, map[string]any) {}

type noopMetrics struct{}

func (noopMetrics) ObserveCheckout(string, time.Duration) {}
func (noopMetrics) ObserveTransition(string, string)      {}
func (noopMetrics) ObserveInventory(string, string)       {}
