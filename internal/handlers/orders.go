package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/auth"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/httpx"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/pagination"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxCheckoutBodySize    = 16 * 1024
	maxOrderCancelBodySize = 4 * 1024
)

var orderListOptions = pagination.Options{
	DefaultPageSize: defaultOrderPageSize,
	MaxPageSize:     maxOrderPageSize,
	FilterFields:    []string{"status"},
}

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:    {},
	domain.OrderStatusConfirmed:  {},
	domain.OrderStatusProcessing: {},
	domain.OrderStatusShipped:    {},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
	domain.OrderStatusRefunded:   {},
}

type checkoutRequest struct {
	ShippingAddress domain.Address  `json:"shippingAddress"`
	BillingAddress  *domain.Address `json:"billingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	CustomerEmail   string          `json:"customerEmail"`
	CustomerNotes   string          `json:"customerNotes"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderResponse struct {
	Order domain.Order `json:"order"`
}

type orderListResponse struct {
	Items         []domain.Order `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type historyResponse struct {
	Items []domain.OrderHistoryEntry `json:"items"`
}

// OrderHandlers exposes checkout and the caller's own orders.
type OrderHandlers struct {
	checkout services.CheckoutService
	orders   services.OrderService
	limiter  *ownerLimiter
}

type OrderHandlersOption func(*OrderHandlers)

// WithCheckoutRateLimit caps checkouts per cart owner. perMinute <= 0 disables it.
func WithCheckoutRateLimit(perMinute, burst int) OrderHandlersOption {
	return func(h *OrderHandlers) { h.limiter = newOwnerLimiter(perMinute, burst, nil) }
}

func NewOrderHandlers(checkout services.CheckoutService, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{checkout: checkout, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/history", h.getHistory)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}
	owner, ok := requestOwner(r)
	if !ok {
		writeOwnerRequired(ctx, w)
		return
	}
	if allowed, wait := h.limiter.Allow(owner.Key()); !allowed {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts", http.StatusTooManyRequests).WithRetryAfter(wait))
		return
	}
	var req checkoutRequest
	if !decodeBody(w, r, maxCheckoutBodySize, &req) {
		return
	}
	method, err := parsePaymentMethod(req.PaymentMethod)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result := services.ResultOf(h.checkout.Checkout(ctx, services.CheckoutCommand{
		Owner:           owner,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   method,
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		CustomerNotes:   req.CustomerNotes,
		ActorID:         actorID(r),
	}))
	if result.IsOk() {
		w.Header().Set("Location", fmt.Sprintf("%s/orders/%s", defaultAPIPrefix, result.Value.ID))
	}
	respond(ctx, w, http.StatusCreated, result, renderOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	owner, ok := requestOwner(r)
	if !ok {
		writeOwnerRequired(ctx, w)
		return
	}
	params, err := pagination.FromRequest(r, orderListOptions)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter := services.OrderListFilter{
		OwnerKey: owner.Key(),
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	statuses, err := statusFilters(params.Values("status"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.Statuses = statuses

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	items := page.Items
	if items == nil {
		items = []domain.Order{}
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, renderOrder(order))
}

func (h *OrderHandlers) getHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	entries, err := h.orders.ListHistory(ctx, order.ID)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, historyResponse{Items: entries})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, maxOrderCancelBodySize, &req) {
			return
		}
	}
	result := services.ResultOf(h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: order.ID,
		Reason:  req.Reason,
		ActorID: actorID(r),
	}))
	respond(ctx, w, http.StatusOK, result, renderOrder)
}

// visibleOrder loads the order and hides it from callers other than its owner and staff.
func (h *OrderHandlers) visibleOrder(w http.ResponseWriter, r *http.Request) (domain.Order, bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return domain.Order{}, false
	}
	owner, hasOwner := requestOwner(r)
	staff := isStaff(ctx)
	if !hasOwner && !staff {
		writeOwnerRequired(ctx, w)
		return domain.Order{}, false
	}
	orderID := orderIDParam(r)
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeEngineError(ctx, w, err)
		return domain.Order{}, false
	}
	if !staff && order.Owner.Key() != owner.Key() {
		writeEngineError(ctx, w, fmt.Errorf("%w: order %s", services.ErrNotFound, orderID))
		return domain.Order{}, false
	}
	return order, true
}

func renderOrder(order services.Order) any {
	return orderResponse{Order: order}
}

func isStaff(ctx context.Context) bool {
	identity, ok := auth.IdentityFromContext(ctx)
	return ok && identity != nil && identity.IsStaff()
}

func parsePaymentMethod(raw string) (domain.PaymentMethod, error) {
	method := domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	switch method {
	case "":
		return domain.PaymentMethodCard, nil
	case domain.PaymentMethodCard, domain.PaymentMethodCashOnDelivery, domain.PaymentMethodBankTransfer:
		return method, nil
	default:
		return "", fmt.Errorf("unsupported paymentMethod %q", raw)
	}
}

func parseOrderStatus(raw string) (domain.OrderStatus, error) {
	status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := validOrderStatuses[status]; !ok {
		return "", fmt.Errorf("unsupported order status %q", raw)
	}
	return status, nil
}

func statusFilters(values []string) ([]domain.OrderStatus, error) {
	var statuses []domain.OrderStatus
	for _, raw := range values {
		status, err := parseOrderStatus(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidFilter, err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
