package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/firestore"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository keeps one document per sequence in the counters collection.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
}

func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("firestore counters: nil provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil),
	}, nil
}

// Next adds step to the sequence and returns the result. It deliberately uses a fresh
// client transaction rather than one on ctx, so a rolled back checkout still consumes
// its number and numbers are never handed out twice.
func (r *CounterRepository) Next(ctx context.Context, scope string, step int64) (int64, error) {
	id := strings.TrimSpace(scope)
	if id == "" {
		return 0, errors.New("firestore counters: empty scope")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return 0, err
	}

	var value int64
	err = client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		var doc counterDocument
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode counter %s: %w", id, err)
			}
		}
		doc.CurrentValue += max(step, 1)
		doc.UpdatedAt = time.Now().UTC()
		value = doc.CurrentValue
		return tx.Set(ref, doc)
	})
	if err != nil {
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return value, nil
}
