package repositories

import (
	"errors"
	"fmt"
)

// InventoryErrorCode enumerates repository error causes for inventory operations.
type InventoryErrorCode string

const (
	// InventoryErrorInvalidQuantity indicates a non-positive line quantity.
	InventoryErrorInvalidQuantity InventoryErrorCode = "inventory_invalid_quantity"
	// InventoryErrorInsufficientStock indicates requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorStockNotFound indicates the product has no stock record.
	InventoryErrorStockNotFound InventoryErrorCode = "inventory_stock_not_found"
	// InventoryErrorReservationNotFound indicates fewer units are reserved than the operation needs.
	InventoryErrorReservationNotFound InventoryErrorCode = "inventory_reservation_not_found"
	// InventoryErrorInvariant indicates an update would break available + reserved <= on hand.
	InventoryErrorInvariant InventoryErrorCode = "inventory_invariant"
)

// InventoryError wraps inventory-specific failures with machine readable codes.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	ProductID string
	Requested int
	Available int
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, productID, message string) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{Code: code, ProductID: productID, Message: message}
}

// PromotionErrorCode enumerates coupon and deal ledger failures.
type PromotionErrorCode string

const (
	PromotionErrorCouponExhausted PromotionErrorCode = "coupon_exhausted"
	PromotionErrorDealExhausted   PromotionErrorCode = "deal_exhausted"
)

// PromotionError reports a cap reached on a coupon or deal.
type PromotionError struct {
	Code PromotionErrorCode
	Ref  string
}

func (e *PromotionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Ref)
}

// StoreError is the RepositoryError produced by the in-memory backends.
type StoreError struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(op, resource, id string) *StoreError {
	return &StoreError{op: op, err: fmt.Errorf("%s %q not found", resource, id), notFound: true}
}

// NewConflictError reports a write that lost a version race or hit a duplicate key.
func NewConflictError(op, message string) *StoreError {
	return &StoreError{op: op, err: errors.New(message), conflict: true}
}

// NewUnavailableError reports a transient backend failure.
func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{op: op, err: err, unavailable: true}
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *StoreError) Unwrap() error       { return e.err }
func (e *StoreError) IsNotFound() bool    { return e != nil && e.notFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.conflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.unavailable }

// IsNotFound reports whether err is a RepositoryError for a missing entity.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError for a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a transient RepositoryError.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
