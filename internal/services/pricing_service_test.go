package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
)

type stubTax struct {
	fn func(context.Context, Cart, Money) (Money, error)
}

func (s stubTax) Tax(ctx context.Context, cart Cart, taxable Money) (Money, error) {
	return s.fn(ctx, cart, taxable)
}

func cartWith(owner domain.CartOwner, lines ...domain.CartLine) Cart {
	cart := domain.NewCart(owner, "USD", fixtureNow)
	cart.Lines = append(cart.Lines, lines...)
	return cart
}

func TestPricingServiceQuoteUsesCatalogPrices(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Name: "Mug", Price: domain.Cents(1000)}, 10)
	f.seedProduct(t, domain.Product{ID: "p2", Name: "Pen", Price: domain.Cents(250)}, 10)

	// Stale cart prices are ignored.
	cart := cartWith(domain.SessionOwner("s"),
		domain.CartLine{ProductID: "p1", Quantity: 2, UnitPrice: domain.Cents(1)},
		domain.CartLine{ProductID: "p2", Quantity: 3},
	)
	snap, err := f.pricing.Quote(context.Background(), cart)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if snap.TotalAmount != domain.Cents(2750) {
		t.Fatalf("expected total 27.50, got %s", snap.TotalAmount)
	}
	if snap.FinalAmount != domain.Cents(2750) || snap.DiscountAmount != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(snap.Lines) != 2 || snap.Lines[0].UnitPrice != domain.Cents(1000) || snap.Lines[0].Subtotal != domain.Cents(2000) {
		t.Fatalf("unexpected lines: %+v", snap.Lines)
	}
	if !snap.QuotedAt.Equal(fixtureNow) {
		t.Fatalf("expected quote time %v, got %v", fixtureNow, snap.QuotedAt)
	}
}

func TestPricingServiceQuoteAppliesDealWithinRemainingUnits(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{
		ID:    "p1",
		Price: domain.Cents(1000),
		Deal:  &domain.Deal{ID: "deal-1", Price: domain.Cents(600), StockLimit: 3},
	}, 10)
	ctx := context.Background()
	if err := f.store.DealClaims().Claim(ctx, map[string]int{"deal-1": 1}, nil, fixtureNow); err != nil {
		t.Fatalf("claim: %v", err)
	}

	snap, err := f.pricing.Quote(ctx, cartWith(domain.SessionOwner("s"), domain.CartLine{ProductID: "p1", Quantity: 4}))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	line := snap.Lines[0]
	if line.DealID != "deal-1" || line.DealUnits != 2 {
		t.Fatalf("expected 2 deal units, got %+v", line)
	}
	// 2 units at 6.00 and 2 at 10.00.
	if line.DiscountAmount != domain.Cents(800) || line.Subtotal != domain.Cents(3200) {
		t.Fatalf("unexpected line pricing: %+v", line)
	}
	if snap.TotalAmount != domain.Cents(4000) || snap.DiscountAmount != domain.Cents(800) || snap.FinalAmount != domain.Cents(3200) {
		t.Fatalf("unexpected totals: %+v", snap)
	}
}

func TestPricingServiceQuoteIgnoresInactiveDeal(t *testing.T) {
	f := newEngineFixture(t)
	ended := fixtureNow.Add(-time.Hour)
	f.seedProduct(t, domain.Product{
		ID:    "p1",
		Price: domain.Cents(1000),
		Deal:  &domain.Deal{ID: "deal-1", Price: domain.Cents(600), StockLimit: 3, EndsAt: &ended},
	}, 10)

	snap, err := f.pricing.Quote(context.Background(), cartWith(domain.SessionOwner("s"), domain.CartLine{ProductID: "p1", Quantity: 1}))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if snap.Lines[0].DealUnits != 0 || snap.FinalAmount != domain.Cents(1000) {
		t.Fatalf("expected expired deal ignored, got %+v", snap)
	}
}

func TestPricingServiceQuoteAppliesCouponShippingAndTax(t *testing.T) {
	f := newEngineFixture(t, func(d *fixtureDeps) {
		d.tax = BasisPointTax{BasisPoints: 825}
		d.shipping = FlatRateShipping{Rate: domain.Cents(500), FreeThreshold: domain.Cents(10000)}
	})
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(2000)}, 10)
	f.seedCoupon(t, domain.Coupon{Code: "TENOFF", Kind: domain.CouponPercentage, BasisPts: 1000, Active: true})

	cart := cartWith(domain.SessionOwner("s"), domain.CartLine{ProductID: "p1", Quantity: 2})
	cart.CouponCode = "tenoff"
	snap, err := f.pricing.Quote(context.Background(), cart)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if snap.CouponCode != "TENOFF" || snap.CouponDiscount != domain.Cents(400) {
		t.Fatalf("unexpected coupon: %s %s", snap.CouponCode, snap.CouponDiscount)
	}
	if snap.ShippingAmount != domain.Cents(500) {
		t.Fatalf("expected shipping 5.00, got %s", snap.ShippingAmount)
	}
	// 8.25% of 36.00 = 2.97
	if snap.TaxAmount != domain.Cents(297) {
		t.Fatalf("expected tax 2.97, got %s", snap.TaxAmount)
	}
	want := domain.ComputeFinalAmount(snap.TotalAmount, snap.ShippingAmount, snap.TaxAmount, snap.DiscountAmount, snap.CouponDiscount)
	if snap.FinalAmount != want || want != domain.Cents(4397) {
		t.Fatalf("expected final 43.97, got %s (formula %s)", snap.FinalAmount, want)
	}
}

func TestPricingServiceQuoteRejectsBadCoupons(t *testing.T) {
	expired := fixtureNow.Add(-time.Minute)
	future := fixtureNow.Add(time.Hour)

	cases := []struct {
		name   string
		coupon *domain.Coupon
		want   error
	}{
		{"unknown", nil, ErrCouponInvalid},
		{"inactive", &domain.Coupon{Code: "C", Kind: domain.CouponFixed, Amount: 100}, ErrCouponInvalid},
		{"expired", &domain.Coupon{Code: "C", Kind: domain.CouponFixed, Amount: 100, Active: true, ExpiresAt: &expired}, ErrCouponInvalid},
		{"not started", &domain.Coupon{Code: "C", Kind: domain.CouponFixed, Amount: 100, Active: true, StartsAt: &future}, ErrCouponInvalid},
		{"min spend", &domain.Coupon{Code: "C", Kind: domain.CouponFixed, Amount: 100, Active: true, MinSpend: domain.Cents(5000)}, ErrCouponInvalid},
		{"exhausted", &domain.Coupon{Code: "C", Kind: domain.CouponFixed, Amount: 100, Active: true, UsageCap: 2, UsedCount: 2}, ErrCouponExhausted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEngineFixture(t)
			f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(1000)}, 10)
			if tc.coupon != nil {
				f.seedCoupon(t, *tc.coupon)
			}
			cart := cartWith(domain.SessionOwner("s"), domain.CartLine{ProductID: "p1", Quantity: 1})
			cart.CouponCode = "C"

			_, err := f.pricing.Quote(context.Background(), cart)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPricingServiceFixedCouponNeverExceedsMerchandise(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(300)}, 10)
	f.seedCoupon(t, domain.Coupon{Code: "BIG", Kind: domain.CouponFixed, Amount: domain.Cents(1000), Active: true})

	cart := cartWith(domain.SessionOwner("s"), domain.CartLine{ProductID: "p1", Quantity: 1})
	cart.CouponCode = "BIG"
	snap, err := f.pricing.Quote(context.Background(), cart)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if snap.CouponDiscount != domain.Cents(300) || snap.FinalAmount != 0 {
		t.Fatalf("expected coupon capped at merchandise, got %+v", snap)
	}
}

func TestPricingServiceQuoteEmptyCart(t *testing.T) {
	f := newEngineFixture(t, func(d *fixtureDeps) {
		d.shipping = FlatRateShipping{Rate: domain.Cents(500)}
	})
	snap, err := f.pricing.Quote(context.Background(), cartWith(domain.SessionOwner("s")))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if snap.FinalAmount != 0 || snap.ShippingAmount != 0 {
		t.Fatalf("expected zero quote for empty cart, got %+v", snap)
	}
}

func TestPricingServiceQuoteSurfacesRateProviderErrors(t *testing.T) {
	f := newEngineFixture(t, func(d *fixtureDeps) {
		d.tax = stubTax{fn: func(context.Context, Cart, Money) (Money, error) {
			return 0, errors.New("tax service down")
		}}
	})
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(300)}, 10)

	_, err := f.pricing.Quote(context.Background(), cartWith(domain.SessionOwner("s"), domain.CartLine{ProductID: "p1", Quantity: 1}))
	if err == nil {
		t.Fatalf("expected tax error")
	}
}

func TestPricingServiceQuoteRejectsCurrencyMismatch(t *testing.T) {
	f := newEngineFixture(t)
	f.seedProduct(t, domain.Product{ID: "p1", Price: domain.Cents(300), Currency: "EUR"}, 10)

	_, err := f.pricing.Quote(context.Background(), cartWith(domain.SessionOwner("s"), domain.CartLine{ProductID: "p1", Quantity: 1}))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRateProviders(t *testing.T) {
	ctx := context.Background()
	cart := cartWith(domain.SessionOwner("s"), domain.CartLine{ProductID: "p1", Quantity: 1})

	tax, _ := BasisPointTax{BasisPoints: 1000}.Tax(ctx, cart, domain.Cents(1005))
	if tax != domain.Cents(101) {
		t.Fatalf("expected half-up rounding to 1.01, got %s", tax)
	}
	if tax, _ := (BasisPointTax{}).Tax(ctx, cart, domain.Cents(1000)); tax != 0 {
		t.Fatalf("expected zero tax from zero rate, got %s", tax)
	}

	shipping := FlatRateShipping{Rate: domain.Cents(499), FreeThreshold: domain.Cents(5000)}
	if got, _ := shipping.Shipping(ctx, cart, domain.Cents(4999)); got != domain.Cents(499) {
		t.Fatalf("expected flat rate below threshold, got %s", got)
	}
	if got, _ := shipping.Shipping(ctx, cart, domain.Cents(5000)); got != 0 {
		t.Fatalf("expected free shipping at threshold, got %s", got)
	}
}
