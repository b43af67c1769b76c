package services

import (
	"context"
)

// BasisPointTax charges a single rate on the taxable amount, rounding half up to the
// nearest minor unit. The zero value charges no tax.
type BasisPointTax struct {
	BasisPoints int
}

func (t BasisPointTax) Tax(_ context.Context, _ Cart, taxable Money) (Money, error) {
	if t.BasisPoints <= 0 || taxable <= 0 {
		return 0, nil
	}
	return Money((int64(taxable)*int64(t.BasisPoints) + 5000) / 10000), nil
}

// FlatRateShipping charges Rate per order, waived once merchandise reaches FreeThreshold.
// A zero threshold never waives the rate.
type FlatRateShipping struct {
	Rate          Money
	FreeThreshold Money
}

func (f FlatRateShipping) Shipping(_ context.Context, cart Cart, merchandise Money) (Money, error) {
	if cart.IsEmpty() || f.Rate <= 0 {
		return 0, nil
	}
	if f.FreeThreshold > 0 && merchandise >= f.FreeThreshold {
		return 0, nil
	}
	return f.Rate, nil
}
