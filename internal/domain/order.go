package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OrderStatus is the fulfilment lifecycle state.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// IsTerminal reports whether no further fulfilment transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus tracks money movement independently of fulfilment.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusPaid              PaymentStatus = "PAID"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
)

// PaymentMethod is captured at checkout.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "CARD"
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentMethodBankTransfer   PaymentMethod = "BANK_TRANSFER"
)

// InventoryState records whether the order's units are still sold or were put back on hand.
// Checkout commits every unit, so orders start COMMITTED.
type InventoryState string

const (
	InventoryCommitted InventoryState = "COMMITTED"
	InventoryReturned  InventoryState = "RETURNED"
)

// Address is a postal address snapshot.
type Address struct {
	Recipient  string `json:"recipient" firestore:"recipient"`
	Line1      string `json:"line1" firestore:"line1"`
	Line2      string `json:"line2,omitempty" firestore:"line2,omitempty"`
	City       string `json:"city" firestore:"city"`
	State      string `json:"state,omitempty" firestore:"state,omitempty"`
	PostalCode string `json:"postalCode" firestore:"postalCode"`
	Country    string `json:"country" firestore:"country"`
	Phone      string `json:"phone,omitempty" firestore:"phone,omitempty"`
}

// Validate ensures required address fields are present.
func (a Address) Validate() error {
	missing := make([]string, 0)
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("recipient", a.Recipient)
	check("line1", a.Line1)
	check("city", a.City)
	check("postalCode", a.PostalCode)
	check("country", a.Country)
	if len(missing) > 0 {
		return fmt.Errorf("address: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// OrderLine is a purchased product at the price captured during checkout.
type OrderLine struct {
	ProductID      string `json:"productId" firestore:"productId"`
	Name           string `json:"name" firestore:"name"`
	Quantity       int    `json:"quantity" firestore:"quantity"`
	UnitPrice      Money  `json:"unitPrice" firestore:"unitPrice"`
	DiscountAmount Money  `json:"discountAmount" firestore:"discountAmount"`
	Subtotal       Money  `json:"subtotal" firestore:"subtotal"`
	DealID         string `json:"dealId,omitempty" firestore:"dealId,omitempty"`
	DealUnits      int    `json:"dealUnits,omitempty" firestore:"dealUnits,omitempty"`
}

// OrderTotals captures the money breakdown of an order.
type OrderTotals struct {
	Total          Money `json:"total" firestore:"total"`
	Discount       Money `json:"discount" firestore:"discount"`
	CouponDiscount Money `json:"couponDiscount" firestore:"couponDiscount"`
	Shipping       Money `json:"shipping" firestore:"shipping"`
	Tax            Money `json:"tax" firestore:"tax"`
	Final          Money `json:"final" firestore:"final"`
}

// Order is the durable record produced by checkout.
type Order struct {
	ID              string         `json:"id" firestore:"id"`
	OrderNumber     string         `json:"orderNumber" firestore:"orderNumber"`
	Owner           CartOwner      `json:"owner" firestore:"owner"`
	CustomerEmail   string         `json:"customerEmail,omitempty" firestore:"customerEmail,omitempty"`
	Currency        string         `json:"currency" firestore:"currency"`
	Lines           []OrderLine    `json:"lines" firestore:"lines"`
	Totals          OrderTotals    `json:"totals" firestore:"totals"`
	CouponCode      string         `json:"couponCode,omitempty" firestore:"couponCode,omitempty"`
	Status          OrderStatus    `json:"status" firestore:"status"`
	PaymentStatus   PaymentStatus  `json:"paymentStatus" firestore:"paymentStatus"`
	PaymentMethod   PaymentMethod  `json:"paymentMethod" firestore:"paymentMethod"`
	PaymentIntentID string         `json:"paymentIntentId,omitempty" firestore:"paymentIntentId,omitempty"`
	InventoryState  InventoryState `json:"inventoryState" firestore:"inventoryState"`
	RefundedAmount  Money          `json:"refundedAmount" firestore:"refundedAmount"`
	ShippingAddress Address        `json:"shippingAddress" firestore:"shippingAddress"`
	BillingAddress  *Address       `json:"billingAddress,omitempty" firestore:"billingAddress,omitempty"`
	AssigneeID      string         `json:"assigneeId,omitempty" firestore:"assigneeId,omitempty"`
	TrackingNumber  string         `json:"trackingNumber,omitempty" firestore:"trackingNumber,omitempty"`
	Notes           string         `json:"notes,omitempty" firestore:"notes,omitempty"`
	CustomerNotes   string         `json:"customerNotes,omitempty" firestore:"customerNotes,omitempty"`
	CancelReason    string         `json:"cancelReason,omitempty" firestore:"cancelReason,omitempty"`
	Version         int            `json:"version" firestore:"version"`
	HistoryCount    int            `json:"historyCount" firestore:"historyCount"`
	CreatedAt       time.Time      `json:"createdAt" firestore:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt" firestore:"updatedAt"`
	PaidAt          *time.Time     `json:"paidAt,omitempty" firestore:"paidAt,omitempty"`
	ShippedAt       *time.Time     `json:"shippedAt,omitempty" firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time     `json:"deliveredAt,omitempty" firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time     `json:"cancelledAt,omitempty" firestore:"cancelledAt,omitempty"`
}

// ErrInvalidOrder is wrapped by Validate failures.
var ErrInvalidOrder = errors.New("order: invalid")

// Validate checks structural invariants before an order is persisted.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidOrder)
	}
	if err := o.Owner.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if len(o.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrInvalidOrder)
	}
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line %s quantity must be positive", ErrInvalidOrder, line.ProductID)
		}
	}
	t := o.Totals
	if want := ComputeFinalAmount(t.Total, t.Shipping, t.Tax, t.Discount, t.CouponDiscount); t.Final != want {
		return fmt.Errorf("%w: final amount %s does not match breakdown %s", ErrInvalidOrder, t.Final, want)
	}
	if o.RefundedAmount < 0 || o.RefundedAmount > t.Final {
		return fmt.Errorf("%w: refunded amount %s outside [0, %s]", ErrInvalidOrder, o.RefundedAmount, t.Final)
	}
	return nil
}

// InventoryLines returns the order's units as ledger lines.
func (o Order) InventoryLines() []InventoryLine {
	lines := make([]InventoryLine, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, InventoryLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return NormalizeInventoryLines(lines)
}

// DealClaims returns units per deal held by the order.
func (o Order) DealClaims() map[string]int {
	claims := map[string]int{}
	for _, line := range o.Lines {
		if line.DealID != "" && line.DealUnits > 0 {
			claims[line.DealID] += line.DealUnits
		}
	}
	return claims
}

// RefundableAmount is the portion of the final amount not yet refunded.
func (o Order) RefundableAmount() Money {
	return (o.Totals.Final - o.RefundedAmount).ClampZero()
}

// HistoryAction names an audited order mutation.
type HistoryAction string

const (
	HistoryCreated              HistoryAction = "CREATED"
	HistoryStatusChanged        HistoryAction = "STATUS_CHANGED"
	HistoryPaymentStatusChanged HistoryAction = "PAYMENT_STATUS_CHANGED"
	HistoryRefundProcessed      HistoryAction = "REFUND_PROCESSED"
	HistoryCancelled            HistoryAction = "CANCELLED"
	HistoryReassigned           HistoryAction = "REASSIGNED"
	HistoryNoteAdded            HistoryAction = "NOTE_ADDED"
)

// OrderHistoryEntry is an append-only audit record. Entries are never updated or deleted.
type OrderHistoryEntry struct {
	ID        string         `json:"id" firestore:"id"`
	OrderID   string         `json:"orderId" firestore:"orderId"`
	Sequence  int            `json:"sequence" firestore:"sequence"`
	Action    HistoryAction  `json:"action" firestore:"action"`
	ActorID   string         `json:"actorId,omitempty" firestore:"actorId,omitempty"`
	FromValue string         `json:"fromValue,omitempty" firestore:"fromValue,omitempty"`
	ToValue   string         `json:"toValue,omitempty" firestore:"toValue,omitempty"`
	Amount    Money          `json:"amount,omitempty" firestore:"amount,omitempty"`
	Note      string         `json:"note,omitempty" firestore:"note,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" firestore:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt" firestore:"createdAt"`
}

// Pagination captures cursor based listing input.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of items with the next cursor.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
