package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	pfirestore "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/firestore"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

const (
	couponsCollection    = "coupons"
	dealClaimsCollection = "dealClaims"
)

// CouponRepository stores coupons keyed by their upper-cased code.
type CouponRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.Coupon]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{provider: provider, base: pfirestore.NewBaseRepository[domain.Coupon](provider, couponsCollection, nil)}, nil
}

func couponID(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	return r.base.Get(ctx, couponID(code))
}

func (r *CouponRepository) Save(ctx context.Context, coupon domain.Coupon) error {
	coupon.Code = couponID(coupon.Code)
	return r.base.Set(ctx, coupon.Code, coupon)
}

func (r *CouponRepository) Redeem(ctx context.Context, code string, now time.Time) (domain.Coupon, error) {
	id := couponID(code)
	var result domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		coupon, err := r.base.Get(ctx, id)
		if err != nil {
			return err
		}
		if coupon.Exhausted() {
			return &repositories.PromotionError{Code: repositories.PromotionErrorCouponExhausted, Ref: id}
		}
		coupon.UsedCount++
		coupon.UpdatedAt = now.UTC()
		result = coupon
		return r.base.Set(ctx, id, coupon)
	})
	if err != nil {
		return domain.Coupon{}, unwrapPromotionError(err)
	}
	return result, nil
}

func (r *CouponRepository) Unredeem(ctx context.Context, code string, now time.Time) error {
	id := couponID(code)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		coupon, err := r.base.Get(ctx, id)
		if err != nil {
			return err
		}
		if coupon.UsedCount == 0 {
			return nil
		}
		coupon.UsedCount--
		coupon.UpdatedAt = now.UTC()
		return r.base.Set(ctx, id, coupon)
	})
}

// DealClaimRepository counts deal units in one document per deal.
type DealClaimRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.DealClaim]
}

// NewDealClaimRepository constructs a Firestore-backed deal claim ledger.
func NewDealClaimRepository(provider *pfirestore.Provider) (*DealClaimRepository, error) {
	if provider == nil {
		return nil, errors.New("deal claim repository requires firestore provider")
	}
	return &DealClaimRepository{provider: provider, base: pfirestore.NewBaseRepository[domain.DealClaim](provider, dealClaimsCollection, nil)}, nil
}

func (r *DealClaimRepository) Claimed(ctx context.Context, dealIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(dealIDs))
	if len(dealIDs) == 0 {
		return out, nil
	}
	values, found, err := r.base.GetAll(ctx, dealIDs)
	if err != nil {
		return nil, err
	}
	for i, id := range dealIDs {
		if found[i] {
			out[id] = values[i].Claimed
		} else {
			out[id] = 0
		}
	}
	return out, nil
}

func (r *DealClaimRepository) Claim(ctx context.Context, claims map[string]int, limits map[string]int, now time.Time) error {
	return unwrapPromotionError(r.adjust(ctx, claims, limits, 1, now))
}

func (r *DealClaimRepository) Unclaim(ctx context.Context, claims map[string]int, now time.Time) error {
	return r.adjust(ctx, claims, nil, -1, now)
}

func (r *DealClaimRepository) adjust(ctx context.Context, claims map[string]int, limits map[string]int, sign int, now time.Time) error {
	ids := make([]string, 0, len(claims))
	for id := range claims {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		values, _, err := r.base.GetAll(ctx, ids)
		if err != nil {
			return err
		}
		for i, id := range ids {
			next := values[i].Claimed + sign*claims[id]
			if next < 0 {
				next = 0
			}
			if limit, ok := limits[id]; ok && sign > 0 && next > limit {
				return &repositories.PromotionError{Code: repositories.PromotionErrorDealExhausted, Ref: id}
			}
			values[i] = domain.DealClaim{DealID: id, Claimed: next, UpdatedAt: now.UTC()}
		}
		for i, id := range ids {
			if err := r.base.Set(ctx, id, values[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func unwrapPromotionError(err error) error {
	var promoErr *repositories.PromotionError
	if errors.As(err, &promoErr) {
		return promoErr
	}
	return err
}

// CatalogRepository reads products from the products collection.
type CatalogRepository struct {
	base *pfirestore.BaseRepository[domain.Product]
}

// NewCatalogRepository constructs a Firestore-backed catalog reader.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{base: pfirestore.NewBaseRepository[domain.Product](provider, "products", nil)}, nil
}

func (r *CatalogRepository) FindProduct(ctx context.Context, productID string) (domain.Product, error) {
	return r.base.Get(ctx, strings.TrimSpace(productID))
}

func (r *CatalogRepository) SaveProduct(ctx context.Context, product domain.Product) error {
	return r.base.Set(ctx, product.ID, product)
}
