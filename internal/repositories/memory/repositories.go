package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/pagination"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

const defaultPageSize = 20

type cartRepository struct{ s *Store }

func (r cartRepository) Get(_ context.Context, owner domain.CartOwner) (domain.Cart, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cart, ok := r.s.carts[owner.Key()]
	if !ok {
		return domain.Cart{}, repositories.NewNotFoundError("carts.get", "cart", owner.Key())
	}
	return cart.Clone(), nil
}

func (r cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := cart.Owner.Key()
	record(ctx, restoreMap(r.s.carts, key))
	stored := cart.Clone()
	r.s.carts[key] = stored
	return stored.Clone(), nil
}

func (r cartRepository) Delete(ctx context.Context, owner domain.CartOwner) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	record(ctx, restoreMap(r.s.carts, owner.Key()))
	delete(r.s.carts, owner.Key())
	return nil
}

type inventoryRepository struct{ s *Store }

func (r inventoryRepository) Get(_ context.Context, productID string) (domain.InventoryRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.inventory[productID]
	if !ok {
		return domain.InventoryRecord{}, repositories.NewNotFoundError("inventory.get", "inventory", productID)
	}
	return rec, nil
}

func (r inventoryRepository) SetStock(ctx context.Context, productID string, onHand int, now time.Time) (domain.InventoryRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.inventory[productID]
	if !ok {
		rec = domain.InventoryRecord{ProductID: productID}
	}
	if err := repositories.ResetStock(&rec, onHand, now); err != nil {
		return domain.InventoryRecord{}, err
	}
	record(ctx, restoreMap(r.s.inventory, productID))
	r.s.inventory[productID] = rec
	return rec, nil
}

func (r inventoryRepository) Apply(ctx context.Context, op repositories.InventoryOp, lines []domain.InventoryLine, now time.Time) (map[string]domain.InventoryRecord, error) {
	lines = domain.NormalizeInventoryLines(lines)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	updated := make(map[string]domain.InventoryRecord, len(lines))
	for _, line := range lines {
		rec, ok := r.s.inventory[line.ProductID]
		if !ok {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, line.ProductID, "no stock record for "+line.ProductID)
		}
		if err := repositories.ApplyInventoryOp(op, &rec, line.Quantity, now); err != nil {
			return nil, err
		}
		updated[line.ProductID] = rec
	}
	for id, rec := range updated {
		record(ctx, restoreMap(r.s.inventory, id))
		r.s.inventory[id] = rec
	}
	return updated, nil
}

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.orders[order.ID]; exists {
		return repositories.NewConflictError("orders.insert", "order "+order.ID+" already exists")
	}
	record(ctx, restoreMap(r.s.orders, order.ID))
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.orders[order.ID]
	if !ok {
		return repositories.NewNotFoundError("orders.update", "order", order.ID)
	}
	if current.Version != expectedVersion {
		return repositories.NewConflictError("orders.update", "order "+order.ID+" version mismatch")
	}
	record(ctx, restoreMap(r.s.orders, order.ID))
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFoundError("orders.get", "order", orderID)
	}
	return cloneOrder(order), nil
}

// List orders newest first using the same keyset cursor as the Firestore repository.
func (r orderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.s.mu.RLock()
	matched := make([]domain.Order, 0)
	for _, order := range r.s.orders {
		if filter.OwnerKey != "" && order.Owner.Key() != filter.OwnerKey {
			continue
		}
		if filter.AssigneeID != "" && order.AssigneeID != filter.AssigneeID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, order.Status) {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	size := filter.Pagination.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, repositories.NewConflictError("orders.list", "invalid page token")
	}
	if !cursor.IsZero() {
		idx := sort.Search(len(matched), func(i int) bool {
			return cursor.Follows(matched[i].CreatedAt, matched[i].ID)
		})
		matched = matched[idx:]
	}

	page := domain.CursorPage[domain.Order]{Items: matched}
	if len(matched) > size {
		page.Items = matched[:size]
		last := page.Items[size-1]
		page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func containsStatus(statuses []domain.OrderStatus, status domain.OrderStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	out.Lines = append([]domain.OrderLine(nil), order.Lines...)
	if order.BillingAddress != nil {
		addr := *order.BillingAddress
		out.BillingAddress = &addr
	}
	return out
}

type historyRepository struct{ s *Store }

func (r historyRepository) Append(ctx context.Context, entry domain.OrderHistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entries := r.s.history[entry.OrderID]
	for _, existing := range entries {
		if existing.ID == entry.ID || existing.Sequence == entry.Sequence {
			return repositories.NewConflictError("history.append", "history entry already recorded")
		}
	}
	orderID := entry.OrderID
	prevLen := len(entries)
	record(ctx, func() {
		r.s.history[orderID] = r.s.history[orderID][:prevLen]
	})
	r.s.history[orderID] = append(entries, entry)
	return nil
}

func (r historyRepository) List(_ context.Context, orderID string) ([]domain.OrderHistoryEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	entries := append([]domain.OrderHistoryEntry(nil), r.s.history[orderID]...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	return entries, nil
}

type couponRepository struct{ s *Store }

func couponKey(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func (r couponRepository) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	coupon, ok := r.s.coupons[couponKey(code)]
	if !ok {
		return domain.Coupon{}, repositories.NewNotFoundError("coupons.get", "coupon", code)
	}
	return coupon, nil
}

func (r couponRepository) Save(ctx context.Context, coupon domain.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := couponKey(coupon.Code)
	record(ctx, restoreMap(r.s.coupons, key))
	coupon.Code = key
	r.s.coupons[key] = coupon
	return nil
}

func (r couponRepository) Redeem(ctx context.Context, code string, now time.Time) (domain.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := couponKey(code)
	coupon, ok := r.s.coupons[key]
	if !ok {
		return domain.Coupon{}, repositories.NewNotFoundError("coupons.redeem", "coupon", code)
	}
	if coupon.Exhausted() {
		return domain.Coupon{}, &repositories.PromotionError{Code: repositories.PromotionErrorCouponExhausted, Ref: key}
	}
	record(ctx, restoreMap(r.s.coupons, key))
	coupon.UsedCount++
	coupon.UpdatedAt = now
	r.s.coupons[key] = coupon
	return coupon, nil
}

func (r couponRepository) Unredeem(ctx context.Context, code string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := couponKey(code)
	coupon, ok := r.s.coupons[key]
	if !ok {
		return repositories.NewNotFoundError("coupons.unredeem", "coupon", code)
	}
	if coupon.UsedCount > 0 {
		record(ctx, restoreMap(r.s.coupons, key))
		coupon.UsedCount--
		coupon.UpdatedAt = now
		r.s.coupons[key] = coupon
	}
	return nil
}

type dealClaimRepository struct{ s *Store }

func (r dealClaimRepository) Claimed(_ context.Context, dealIDs []string) (map[string]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]int, len(dealIDs))
	for _, id := range dealIDs {
		out[id] = r.s.claims[id].Claimed
	}
	return out, nil
}

func (r dealClaimRepository) Claim(ctx context.Context, claims map[string]int, limits map[string]int, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, units := range claims {
		if limit, ok := limits[id]; ok && r.s.claims[id].Claimed+units > limit {
			return &repositories.PromotionError{Code: repositories.PromotionErrorDealExhausted, Ref: id}
		}
	}
	for id, units := range claims {
		record(ctx, restoreMap(r.s.claims, id))
		claim := r.s.claims[id]
		claim.DealID = id
		claim.Claimed += units
		claim.UpdatedAt = now
		r.s.claims[id] = claim
	}
	return nil
}

func (r dealClaimRepository) Unclaim(ctx context.Context, claims map[string]int, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, units := range claims {
		record(ctx, restoreMap(r.s.claims, id))
		claim := r.s.claims[id]
		claim.DealID = id
		claim.Claimed -= units
		if claim.Claimed < 0 {
			claim.Claimed = 0
		}
		claim.UpdatedAt = now
		r.s.claims[id] = claim
	}
	return nil
}

type catalogRepository struct{ s *Store }

func (r catalogRepository) FindProduct(_ context.Context, productID string) (domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	product, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFoundError("catalog.get", "product", productID)
	}
	return product, nil
}

func (r catalogRepository) SaveProduct(ctx context.Context, product domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	record(ctx, restoreMap(r.s.products, product.ID))
	r.s.products[product.ID] = product
	return nil
}

type counterRepository struct{ s *Store }

func (r counterRepository) Next(_ context.Context, scope string, step int64) (int64, error) {
	if step <= 0 {
		step = 1
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	// Sequence numbers are never rolled back, matching the Firestore counter.
	r.s.counters[scope] += step
	return r.s.counters[scope], nil
}
