package domain

import "time"

// Product is the read-only catalog view consumed at cart mutation and checkout time.
type Product struct {
	ID             string `json:"id" firestore:"id"`
	Name           string `json:"name" firestore:"name"`
	Currency       string `json:"currency" firestore:"currency"`
	Price          Money  `json:"price" firestore:"price"`
	CompareAtPrice Money  `json:"compareAtPrice,omitempty" firestore:"compareAtPrice,omitempty"`
	Stock          int    `json:"stock" firestore:"stock"`
	Active         bool   `json:"active" firestore:"active"`
	Deal           *Deal  `json:"deal,omitempty" firestore:"deal,omitempty"`
}

// Deal is a promotional price with its own unit cap. Deal units are counted in a
// separate claim ledger and also consume regular product stock.
type Deal struct {
	ID         string     `json:"id" firestore:"id"`
	Price      Money      `json:"price" firestore:"price"`
	StockLimit int        `json:"stockLimit" firestore:"stockLimit"`
	StartsAt   *time.Time `json:"startsAt,omitempty" firestore:"startsAt,omitempty"`
	EndsAt     *time.Time `json:"endsAt,omitempty" firestore:"endsAt,omitempty"`
}

// ActiveAt reports whether the deal applies at the instant.
func (d *Deal) ActiveAt(now time.Time) bool {
	if d == nil || d.ID == "" || d.StockLimit <= 0 {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && !now.Before(*d.EndsAt) {
		return false
	}
	return true
}

// DealClaim counts units sold at a deal price.
type DealClaim struct {
	DealID    string    `json:"dealId" firestore:"dealId"`
	Claimed   int       `json:"claimed" firestore:"claimed"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}
