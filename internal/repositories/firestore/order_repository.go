package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	pfirestore "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/firestore"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/pagination"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

const (
	ordersCollection  = "orders"
	historyCollection = "history"
	defaultPageSize   = 20
	maxPageSize       = 100
)

type orderDocument struct {
	domain.Order
	OwnerKey string `firestore:"ownerKey"`
}

// OrderRepository stores orders in the orders collection with their audit trail in an
// orders/{id}/history subcollection.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	return r.base.CreateRef(ctx, ref, orderDocument{Order: order, OwnerKey: order.Owner.Key()})
}

// Update writes the order only when the stored version still matches expectedVersion.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		current, err := r.base.Get(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return repositories.NewConflictError("orders.update", fmt.Sprintf("order %s version %d, expected %d", order.ID, current.Version, expectedVersion))
		}
		return r.base.Set(ctx, order.ID, orderDocument{Order: order, OwnerKey: order.Owner.Key()})
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	coll, err := r.base.Collection(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	query := coll.Query
	if filter.OwnerKey != "" {
		query = query.Where("ownerKey", "==", filter.OwnerKey)
	}
	if filter.AssigneeID != "" {
		query = query.Where("assigneeId", "==", filter.AssigneeID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		query = query.Where("status", "in", statuses)
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy("id", firestore.Desc)
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}
	query = query.Limit(size + 1)

	docs, err := r.base.Query(ctx, query, nil)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for i, doc := range docs {
		if i == size {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, doc.Order)
	}
	return page, nil
}

// OrderHistoryRepository appends audit entries under orders/{id}/history. Entries are
// written with Create so an existing sequence number can never be overwritten.
type OrderHistoryRepository struct {
	base *pfirestore.BaseRepository[domain.OrderHistoryEntry]
}

// NewOrderHistoryRepository constructs the history repository.
func NewOrderHistoryRepository(provider *pfirestore.Provider) (*OrderHistoryRepository, error) {
	if provider == nil {
		return nil, errors.New("order history repository requires firestore provider")
	}
	return &OrderHistoryRepository{base: pfirestore.NewBaseRepository[domain.OrderHistoryEntry](provider, ordersCollection, nil)}, nil
}

func (r *OrderHistoryRepository) Append(ctx context.Context, entry domain.OrderHistoryEntry) error {
	orderRef, err := r.base.DocumentRef(ctx, entry.OrderID)
	if err != nil {
		return err
	}
	ref := orderRef.Collection(historyCollection).Doc(fmt.Sprintf("%08d", entry.Sequence))
	return r.base.CreateRef(ctx, ref, entry)
}

func (r *OrderHistoryRepository) List(ctx context.Context, orderID string) ([]domain.OrderHistoryEntry, error) {
	orderRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return r.base.Query(ctx, orderRef.Collection(historyCollection).OrderBy("sequence", firestore.Asc), nil)
}
