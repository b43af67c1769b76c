package repositories

import (
	"fmt"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
)

// ApplyInventoryOp mutates record for a single line. It is shared by every backend so the
// ledger arithmetic is identical regardless of storage. record is left untouched on error.
func ApplyInventoryOp(op InventoryOp, record *domain.InventoryRecord, qty int, now time.Time) error {
	if qty <= 0 {
		return NewInventoryError(InventoryErrorInvalidQuantity, record.ProductID, fmt.Sprintf("quantity must be positive, got %d", qty))
	}
	next := *record
	switch op {
	case InventoryOpReserve:
		if next.Available < qty {
			err := NewInventoryError(InventoryErrorInsufficientStock, record.ProductID,
				fmt.Sprintf("requested %d of %s, %d available", qty, record.ProductID, next.Available))
			err.Requested, err.Available = qty, next.Available
			return err
		}
		next.Available -= qty
		next.Reserved += qty
	case InventoryOpRelease:
		if next.Reserved < qty {
			return NewInventoryError(InventoryErrorReservationNotFound, record.ProductID,
				fmt.Sprintf("release %d of %s, only %d reserved", qty, record.ProductID, next.Reserved))
		}
		next.Reserved -= qty
		next.Available += qty
	case InventoryOpCommit:
		if next.Reserved < qty {
			return NewInventoryError(InventoryErrorReservationNotFound, record.ProductID,
				fmt.Sprintf("commit %d of %s, only %d reserved", qty, record.ProductID, next.Reserved))
		}
		next.Reserved -= qty
		next.OnHand -= qty
	case InventoryOpRestock:
		next.OnHand += qty
		next.Available += qty
	case InventoryOpDeduct:
		if next.Available < qty {
			err := NewInventoryError(InventoryErrorInsufficientStock, record.ProductID,
				fmt.Sprintf("deduct %d of %s, %d available", qty, record.ProductID, next.Available))
			err.Requested, err.Available = qty, next.Available
			return err
		}
		next.Available -= qty
		next.OnHand -= qty
	default:
		return fmt.Errorf("inventory: unknown op %q", op)
	}
	if err := next.CheckInvariants(); err != nil {
		return &InventoryError{Code: InventoryErrorInvariant, ProductID: record.ProductID, Message: err.Error(), Err: err}
	}
	next.UpdatedAt = now
	*record = next
	return nil
}

// ResetStock sets the on-hand count, keeping current reservations and recomputing availability.
func ResetStock(record *domain.InventoryRecord, onHand int, now time.Time) error {
	if onHand < record.Reserved {
		return NewInventoryError(InventoryErrorInvariant, record.ProductID,
			fmt.Sprintf("on hand %d below reserved %d", onHand, record.Reserved))
	}
	if onHand < 0 {
		return NewInventoryError(InventoryErrorInvalidQuantity, record.ProductID, "on hand must not be negative")
	}
	record.OnHand = onHand
	record.Available = onHand - record.Reserved
	record.UpdatedAt = now
	return nil
}
