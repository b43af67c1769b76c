package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

// PricingServiceDeps wires catalog, promotion and rate collaborators.
type PricingServiceDeps struct {
	Catalog    CatalogReader
	Coupons    repositories.CouponRepository
	DealClaims repositories.DealClaimRepository
	Tax        TaxCalculator
	Shipping   ShippingEstimator
	Clock      func() time.Time
	Logger     Logger
}

type pricingService struct {
	catalog  CatalogReader
	coupons  repositories.CouponRepository
	deals    repositories.DealClaimRepository
	tax      TaxCalculator
	shipping ShippingEstimator
	now      func() time.Time
	logger   Logger
}

// NewPricingService constructs the resolver. Missing rate providers default to zero rates.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing service: catalog is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	var tax TaxCalculator = BasisPointTax{}
	if deps.Tax != nil {
		tax = deps.Tax
	}
	var shipping ShippingEstimator = FlatRateShipping{}
	if deps.Shipping != nil {
		shipping = deps.Shipping
	}
	return &pricingService{
		catalog:  deps.Catalog,
		coupons:  deps.Coupons,
		deals:    deps.DealClaims,
		tax:      tax,
		shipping: shipping,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// Quote prices every line at the current catalog price, applies deal pricing within each
// deal's remaining units, then the cart coupon, shipping and tax.
func (s *pricingService) Quote(ctx context.Context, cart Cart) (PriceSnapshot, error) {
	now := s.now()
	snapshot := PriceSnapshot{
		Currency:   strings.ToUpper(cart.Currency),
		Lines:      make([]PricedLine, 0, len(cart.Lines)),
		CouponCode: strings.ToUpper(strings.TrimSpace(cart.CouponCode)),
		QuotedAt:   now,
	}

	products := make([]Product, 0, len(cart.Lines))
	dealIDs := make([]string, 0)
	for _, line := range cart.Lines {
		if line.Quantity < 1 {
			return PriceSnapshot{}, fmt.Errorf("%w: line %s has quantity %d", ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return PriceSnapshot{}, err
		}
		if snapshot.Currency != "" && product.Currency != "" && !strings.EqualFold(product.Currency, snapshot.Currency) {
			return PriceSnapshot{}, fmt.Errorf("%w: product %s is priced in %s, cart uses %s", ErrInvalidInput, product.ID, product.Currency, snapshot.Currency)
		}
		products = append(products, product)
		if product.Deal.ActiveAt(now) {
			dealIDs = append(dealIDs, product.Deal.ID)
		}
	}

	remaining, err := s.remainingDealUnits(ctx, products, dealIDs)
	if err != nil {
		return PriceSnapshot{}, err
	}

	for i, line := range cart.Lines {
		product := products[i]
		priced := PricedLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
		}
		gross := product.Price.Times(line.Quantity)
		discount := line.DiscountAmount.ClampZero()

		if deal := product.Deal; deal.ActiveAt(now) && deal.Price < product.Price {
			units := min(line.Quantity, remaining[deal.ID])
			if units > 0 {
				remaining[deal.ID] -= units
				priced.DealID = deal.ID
				priced.DealUnits = units
				discount += (product.Price - deal.Price).Times(units)
			}
		}
		if discount > gross {
			discount = gross
		}
		priced.DiscountAmount = discount
		priced.Subtotal = gross - discount

		snapshot.TotalAmount += gross
		snapshot.DiscountAmount += discount
		snapshot.Lines = append(snapshot.Lines, priced)
	}

	merchandise := snapshot.TotalAmount - snapshot.DiscountAmount
	if snapshot.CouponCode != "" {
		coupon, err := s.ValidateCoupon(ctx, snapshot.CouponCode, merchandise)
		if err != nil {
			return PriceSnapshot{}, err
		}
		snapshot.CouponDiscount = coupon.DiscountFor(merchandise)
	}
	afterCoupon := (merchandise - snapshot.CouponDiscount).ClampZero()

	if len(snapshot.Lines) > 0 {
		shipping, err := s.shipping.Shipping(ctx, cart, afterCoupon)
		if err != nil {
			return PriceSnapshot{}, fmt.Errorf("pricing: shipping estimate: %w", err)
		}
		tax, err := s.tax.Tax(ctx, cart, afterCoupon)
		if err != nil {
			return PriceSnapshot{}, fmt.Errorf("pricing: tax calculation: %w", err)
		}
		snapshot.ShippingAmount = shipping.ClampZero()
		snapshot.TaxAmount = tax.ClampZero()
	}

	snapshot.FinalAmount = domain.ComputeFinalAmount(
		snapshot.TotalAmount,
		snapshot.ShippingAmount,
		snapshot.TaxAmount,
		snapshot.DiscountAmount,
		snapshot.CouponDiscount,
	)
	return snapshot, nil
}

// ValidateCoupon checks activity window, usage cap and minimum spend for the merchandise
// amount the coupon would apply to.
func (s *pricingService) ValidateCoupon(ctx context.Context, code string, merchandise Money) (Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Coupon{}, fmt.Errorf("%w: coupon code is required", ErrCouponInvalid)
	}
	if s.coupons == nil {
		return Coupon{}, fmt.Errorf("%w: coupon %s is not recognised", ErrCouponInvalid, code)
	}
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Coupon{}, fmt.Errorf("%w: coupon %s is not recognised", ErrCouponInvalid, code)
		}
		return Coupon{}, mapRepositoryError(err, "coupon "+code)
	}
	now := s.now()
	switch {
	case !coupon.Active:
		return Coupon{}, fmt.Errorf("%w: coupon %s is not active", ErrCouponInvalid, code)
	case coupon.StartsAt != nil && now.Before(*coupon.StartsAt):
		return Coupon{}, fmt.Errorf("%w: coupon %s is not valid until %s", ErrCouponInvalid, code, coupon.StartsAt.Format(time.RFC3339))
	case coupon.ExpiresAt != nil && !now.Before(*coupon.ExpiresAt):
		return Coupon{}, fmt.Errorf("%w: coupon %s expired at %s", ErrCouponInvalid, code, coupon.ExpiresAt.Format(time.RFC3339))
	case coupon.Exhausted():
		return Coupon{}, fmt.Errorf("%w: coupon %s reached its usage cap of %d", ErrCouponExhausted, code, coupon.UsageCap)
	case merchandise < coupon.MinSpend:
		return Coupon{}, fmt.Errorf("%w: coupon %s requires a minimum spend of %s", ErrCouponInvalid, code, coupon.MinSpend)
	}
	return coupon, nil
}

func (s *pricingService) remainingDealUnits(ctx context.Context, products []Product, dealIDs []string) (map[string]int, error) {
	remaining := make(map[string]int, len(dealIDs))
	if len(dealIDs) == 0 {
		return remaining, nil
	}
	claimed := map[string]int{}
	if s.deals != nil {
		var err error
		claimed, err = s.deals.Claimed(ctx, dealIDs)
		if err != nil {
			return nil, mapRepositoryError(err, "deal claims")
		}
	}
	for _, product := range products {
		deal := product.Deal
		if deal == nil || deal.ID == "" {
			continue
		}
		if _, seen := remaining[deal.ID]; seen {
			continue
		}
		left := deal.StockLimit - claimed[deal.ID]
		if left < 0 {
			left = 0
		}
		remaining[deal.ID] = left
	}
	return remaining, nil
}

// dealLimits returns the configured cap of every deal referenced by the snapshot.
func dealLimits(ctx context.Context, catalog CatalogReader, snapshot PriceSnapshot) (map[string]int, error) {
	limits := map[string]int{}
	for _, line := range snapshot.Lines {
		if line.DealID == "" || line.DealUnits == 0 {
			continue
		}
		product, err := catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if product.Deal == nil || product.Deal.ID != line.DealID {
			return nil, fmt.Errorf("%w: deal %s no longer applies to product %s", ErrInventoryConflict, line.DealID, line.ProductID)
		}
		limits[line.DealID] = product.Deal.StockLimit
	}
	return limits, nil
}
