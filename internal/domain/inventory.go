package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// InventoryRecord tracks sellable and held units for one product.
// Available + Reserved never exceeds OnHand and neither goes negative.
type InventoryRecord struct {
	ProductID string    `json:"productId" firestore:"productId"`
	OnHand    int       `json:"onHand" firestore:"onHand"`
	Available int       `json:"available" firestore:"available"`
	Reserved  int       `json:"reserved" firestore:"reserved"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// CheckInvariants reports a violation of the stock invariants.
func (r InventoryRecord) CheckInvariants() error {
	if r.Available < 0 {
		return fmt.Errorf("inventory %s: available %d is negative", r.ProductID, r.Available)
	}
	if r.Reserved < 0 {
		return fmt.Errorf("inventory %s: reserved %d is negative", r.ProductID, r.Reserved)
	}
	if r.Available+r.Reserved > r.OnHand {
		return fmt.Errorf("inventory %s: available %d + reserved %d exceeds on hand %d", r.ProductID, r.Available, r.Reserved, r.OnHand)
	}
	return nil
}

// InventoryLine is a product quantity pair handled by the ledger.
type InventoryLine struct {
	ProductID string `json:"productId" firestore:"productId"`
	Quantity  int    `json:"quantity" firestore:"quantity"`
}

// NormalizeInventoryLines merges duplicate products and sorts by product id so that
// locks and transactional reads always happen in the same order.
func NormalizeInventoryLines(lines []InventoryLine) []InventoryLine {
	merged := make(map[string]int, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			continue
		}
		merged[id] += line.Quantity
	}
	out := make([]InventoryLine, 0, len(merged))
	for id, qty := range merged {
		out = append(out, InventoryLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// InventoryProductIDs returns the product ids of normalised lines.
func InventoryProductIDs(lines []InventoryLine) []string {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}
