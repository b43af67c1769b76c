package firestore

import (
	"context"
	"errors"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	pfirestore "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/firestore"
)

const cartCollection = "carts"

// CartRepository persists one cart document per owner key.
type CartRepository struct {
	base *pfirestore.BaseRepository[domain.Cart]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[domain.Cart](provider, cartCollection, nil)}, nil
}

func (r *CartRepository) Get(ctx context.Context, owner domain.CartOwner) (domain.Cart, error) {
	return r.base.Get(ctx, owner.Key())
}

func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if cart.Lines == nil {
		cart.Lines = []domain.CartLine{}
	}
	if err := r.base.Set(ctx, cart.Owner.Key(), cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (r *CartRepository) Delete(ctx context.Context, owner domain.CartOwner) error {
	err := r.base.Delete(ctx, owner.Key())
	if pfirestore.IsNotFound(err) {
		return nil
	}
	return err
}
