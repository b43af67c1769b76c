package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	pfirestore "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/firestore"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

const inventoryCollection = "inventory"

// InventoryRepository keeps one stock document per product and applies ledger movements
// inside Firestore transactions.
type InventoryRepository struct {
	provider *pfirestore.Provider
	stocks   *pfirestore.BaseRepository[domain.InventoryRecord]
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{
		provider: provider,
		stocks:   pfirestore.NewBaseRepository[domain.InventoryRecord](provider, inventoryCollection, nil),
	}, nil
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (domain.InventoryRecord, error) {
	return r.stocks.Get(ctx, strings.TrimSpace(productID))
}

func (r *InventoryRepository) SetStock(ctx context.Context, productID string, onHand int, now time.Time) (domain.InventoryRecord, error) {
	id := strings.TrimSpace(productID)
	var result domain.InventoryRecord
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		values, found, err := r.stocks.GetAll(ctx, []string{id})
		if err != nil {
			return err
		}
		rec := values[0]
		if !found[0] {
			rec = domain.InventoryRecord{ProductID: id}
		}
		if err := repositories.ResetStock(&rec, onHand, now.UTC()); err != nil {
			return err
		}
		if err := r.stocks.Set(ctx, id, rec); err != nil {
			return err
		}
		result = rec
		return nil
	})
	if err != nil {
		return domain.InventoryRecord{}, unwrapInventoryError(err)
	}
	return result, nil
}

// Apply reads every stock document first and only then writes, as Firestore transactions
// reject reads issued after a write.
func (r *InventoryRepository) Apply(ctx context.Context, op repositories.InventoryOp, lines []domain.InventoryLine, now time.Time) (map[string]domain.InventoryRecord, error) {
	lines = domain.NormalizeInventoryLines(lines)
	if len(lines) == 0 {
		return map[string]domain.InventoryRecord{}, nil
	}
	ids := domain.InventoryProductIDs(lines)

	var updated map[string]domain.InventoryRecord
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		values, found, err := r.stocks.GetAll(ctx, ids)
		if err != nil {
			return err
		}
		updated = make(map[string]domain.InventoryRecord, len(lines))
		for i, line := range lines {
			if !found[i] {
				return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, line.ProductID, "no stock record for "+line.ProductID)
			}
			rec := values[i]
			rec.ProductID = line.ProductID
			if err := repositories.ApplyInventoryOp(op, &rec, line.Quantity, now.UTC()); err != nil {
				return err
			}
			updated[line.ProductID] = rec
		}
		for _, id := range ids {
			if err := r.stocks.Set(ctx, id, updated[id]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, unwrapInventoryError(err)
	}
	return updated, nil
}

func unwrapInventoryError(err error) error {
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		return invErr
	}
	return err
}
