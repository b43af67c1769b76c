package domain

import "time"

// PricedLine is a cart line after catalog and deal resolution.
type PricedLine struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPrice      Money  `json:"unitPrice"`
	DealID         string `json:"dealId,omitempty"`
	DealUnits      int    `json:"dealUnits,omitempty"`
	DiscountAmount Money  `json:"discountAmount"`
	Subtotal       Money  `json:"subtotal"`
}

// PriceSnapshot is the immutable price breakdown captured on an order.
type PriceSnapshot struct {
	Currency       string       `json:"currency"`
	Lines          []PricedLine `json:"lines"`
	TotalAmount    Money        `json:"totalAmount"`
	DiscountAmount Money        `json:"discountAmount"`
	CouponCode     string       `json:"couponCode,omitempty"`
	CouponDiscount Money        `json:"couponDiscount"`
	ShippingAmount Money        `json:"shippingAmount"`
	TaxAmount      Money        `json:"taxAmount"`
	FinalAmount    Money        `json:"finalAmount"`
	QuotedAt       time.Time    `json:"quotedAt"`
}

// ComputeFinalAmount applies total + shipping + tax - discount - coupon, clamped at zero.
func ComputeFinalAmount(total, shipping, tax, discount, coupon Money) Money {
	return (total + shipping + tax - discount - coupon).ClampZero()
}

// Totals projects the snapshot into the order totals block.
func (s PriceSnapshot) Totals() OrderTotals {
	return OrderTotals{
		Total:          s.TotalAmount,
		Discount:       s.DiscountAmount,
		CouponDiscount: s.CouponDiscount,
		Shipping:       s.ShippingAmount,
		Tax:            s.TaxAmount,
		Final:          s.FinalAmount,
	}
}

// DealClaims returns units per deal consumed by the snapshot.
func (s PriceSnapshot) DealClaims() map[string]int {
	claims := map[string]int{}
	for _, line := range s.Lines {
		if line.DealID != "" && line.DealUnits > 0 {
			claims[line.DealID] += line.DealUnits
		}
	}
	return claims
}
