package domain

import "time"

// CouponKind selects how a coupon discount is computed.
type CouponKind string

const (
	CouponPercentage CouponKind = "percentage"
	CouponFixed      CouponKind = "fixed"
)

// Coupon is a cart-level discount code.
type Coupon struct {
	Code      string     `json:"code" firestore:"code"`
	Kind      CouponKind `json:"kind" firestore:"kind"`
	BasisPts  int        `json:"basisPoints,omitempty" firestore:"basisPoints,omitempty"`
	Amount    Money      `json:"amount,omitempty" firestore:"amount,omitempty"`
	MinSpend  Money      `json:"minSpend,omitempty" firestore:"minSpend,omitempty"`
	UsageCap  int        `json:"usageCap,omitempty" firestore:"usageCap,omitempty"`
	UsedCount int        `json:"usedCount" firestore:"usedCount"`
	Active    bool       `json:"active" firestore:"active"`
	StartsAt  *time.Time `json:"startsAt,omitempty" firestore:"startsAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" firestore:"expiresAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt" firestore:"updatedAt"`
}

// Exhausted reports whether the usage cap has been reached. A zero cap is unlimited.
func (c Coupon) Exhausted() bool {
	return c.UsageCap > 0 && c.UsedCount >= c.UsageCap
}

// DiscountFor computes the coupon discount for a merchandise amount, never exceeding it.
func (c Coupon) DiscountFor(merchandise Money) Money {
	if merchandise <= 0 {
		return 0
	}
	var discount Money
	switch c.Kind {
	case CouponPercentage:
		discount = Money(int64(merchandise) * int64(c.BasisPts) / 10000)
	case CouponFixed:
		discount = c.Amount
	}
	if discount > merchandise {
		discount = merchandise
	}
	return discount.ClampZero()
}
