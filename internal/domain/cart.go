package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OwnerKind discriminates the two cart owner variants.
type OwnerKind string

const (
	// OwnerSession identifies a guest cart keyed by an opaque client token.
	OwnerSession OwnerKind = "session"
	// OwnerCustomer identifies an authenticated customer's cart.
	OwnerCustomer OwnerKind = "customer"
)

// ErrInvalidOwner is returned for owners without a kind or identifier.
var ErrInvalidOwner = errors.New("cart: invalid owner")

// CartOwner is either a guest session or an authenticated customer. A cart has exactly one.
type CartOwner struct {
	Kind OwnerKind `json:"kind" firestore:"kind"`
	ID   string    `json:"id" firestore:"id"`
}

// SessionOwner returns a guest owner for the supplied session token.
func SessionOwner(token string) CartOwner {
	return CartOwner{Kind: OwnerSession, ID: strings.TrimSpace(token)}
}

// CustomerOwner returns an authenticated owner for the supplied customer id.
func CustomerOwner(customerID string) CartOwner {
	return CartOwner{Kind: OwnerCustomer, ID: strings.TrimSpace(customerID)}
}

// ParseOwnerKey reverses Key.
func ParseOwnerKey(key string) (CartOwner, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok {
		return CartOwner{}, fmt.Errorf("%w: %q", ErrInvalidOwner, key)
	}
	owner := CartOwner{Kind: OwnerKind(kind), ID: id}
	if err := owner.Validate(); err != nil {
		return CartOwner{}, err
	}
	return owner, nil
}

// Validate checks the owner variant is well formed.
func (o CartOwner) Validate() error {
	switch o.Kind {
	case OwnerSession, OwnerCustomer:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOwner, o.Kind)
	}
	if strings.TrimSpace(o.ID) == "" {
		return fmt.Errorf("%w: %s id is required", ErrInvalidOwner, o.Kind)
	}
	return nil
}

// Key renders the owner as a stable storage and lock key.
func (o CartOwner) Key() string {
	return string(o.Kind) + ":" + o.ID
}

// IsGuest reports whether the owner is a session token.
func (o CartOwner) IsGuest() bool { return o.Kind == OwnerSession }

func (o CartOwner) String() string { return o.Key() }

// CartLine is one product in a cart. Quantity is always at least one.
type CartLine struct {
	ProductID      string    `json:"productId" firestore:"productId"`
	Name           string    `json:"name,omitempty" firestore:"name,omitempty"`
	Quantity       int       `json:"quantity" firestore:"quantity"`
	UnitPrice      Money     `json:"unitPrice" firestore:"unitPrice"`
	DiscountAmount Money     `json:"discountAmount" firestore:"discountAmount"`
	AddedAt        time.Time `json:"addedAt" firestore:"addedAt"`
	UpdatedAt      time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// Cart holds ordered lines for a single owner.
type Cart struct {
	Owner      CartOwner  `json:"owner" firestore:"owner"`
	Currency   string     `json:"currency" firestore:"currency"`
	Lines      []CartLine `json:"lines" firestore:"lines"`
	CouponCode string     `json:"couponCode,omitempty" firestore:"couponCode,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" firestore:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt" firestore:"updatedAt"`
}

// NewCart returns an empty cart for the owner.
func NewCart(owner CartOwner, currency string, now time.Time) Cart {
	return Cart{Owner: owner, Currency: currency, Lines: []CartLine{}, CreatedAt: now, UpdatedAt: now}
}

// LineIndex returns the index of the product's line or -1.
func (c Cart) LineIndex(productID string) int {
	for i, line := range c.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// Line returns the line for productID when present.
func (c Cart) Line(productID string) (CartLine, bool) {
	if idx := c.LineIndex(productID); idx >= 0 {
		return c.Lines[idx], true
	}
	return CartLine{}, false
}

// ItemCount sums line quantities.
func (c Cart) ItemCount() int {
	total := 0
	for _, line := range c.Lines {
		total += line.Quantity
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool { return len(c.Lines) == 0 }

// Clone returns a deep copy safe to hand to callers.
func (c Cart) Clone() Cart {
	out := c
	out.Lines = make([]CartLine, len(c.Lines))
	copy(out.Lines, c.Lines)
	return out
}

// InventoryLines converts the cart into ledger lines.
func (c Cart) InventoryLines() []InventoryLine {
	lines := make([]InventoryLine, 0, len(c.Lines))
	for _, line := range c.Lines {
		lines = append(lines, InventoryLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return NormalizeInventoryLines(lines)
}
