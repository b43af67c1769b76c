package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/httpx"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

const (
	maxAdminBodySize     = 8 * 1024
	idempotencyKeyHeader = "Idempotency-Key"
)

var validPaymentStatuses = map[domain.PaymentStatus]struct{}{
	domain.PaymentStatusPending:           {},
	domain.PaymentStatusPaid:              {},
	domain.PaymentStatusFailed:            {},
	domain.PaymentStatusPartiallyRefunded: {},
	domain.PaymentStatusRefunded:          {},
}

type statusTransitionRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type paymentTransitionRequest struct {
	Status          string `json:"status"`
	PaymentIntentID string `json:"paymentIntentId"`
	Notes           string `json:"notes"`
}

type refundRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type assigneeRequest struct {
	AssigneeID string `json:"assigneeId"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type setStockRequest struct {
	OnHand *int `json:"onHand"`
}

type inventoryResponse struct {
	Inventory domain.InventoryRecord `json:"inventory"`
}

// AdminHandlers exposes staff operations on orders and stock.
type AdminHandlers struct {
	orders    services.OrderService
	inventory services.InventoryService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(orders services.OrderService, inventory services.InventoryService) *AdminHandlers {
	return &AdminHandlers{orders: orders, inventory: inventory}
}

// Routes registers the /admin endpoints. Role checks are applied by the router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Post("/status", h.transitionStatus)
		r.Post("/payment-status", h.transitionPaymentStatus)
		r.Post("/refunds", h.processRefund)
		r.Post("/assignee", h.reassign)
		r.Post("/notes", h.addNote)
	})
	r.Get("/inventory/{productID}", h.getInventory)
	r.Put("/inventory/{productID}", h.setStock)
}

func (h *AdminHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersReady(w, r) {
		return
	}
	var req statusTransitionRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	status, err := parseOrderStatus(req.Status)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	result := services.ResultOf(h.orders.TransitionStatus(ctx, services.TransitionCommand{
		OrderID: orderIDParam(r),
		Status:  status,
		Notes:   req.Notes,
		ActorID: actorID(r),
	}))
	respond(ctx, w, http.StatusOK, result, renderOrder)
}

func (h *AdminHandlers) transitionPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersReady(w, r) {
		return
	}
	var req paymentTransitionRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	status := domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if _, ok := validPaymentStatuses[status]; !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unsupported payment status", http.StatusBadRequest))
		return
	}
	result := services.ResultOf(h.orders.TransitionPaymentStatus(ctx, services.PaymentTransitionCommand{
		OrderID:         orderIDParam(r),
		Status:          status,
		PaymentIntentID: strings.TrimSpace(req.PaymentIntentID),
		Notes:           req.Notes,
		ActorID:         actorID(r),
	}))
	respond(ctx, w, http.StatusOK, result, renderOrder)
}

func (h *AdminHandlers) processRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersReady(w, r) {
		return
	}
	var req refundRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	amount, err := parseMoneyField("amount", req.Amount)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	result := services.ResultOf(h.orders.ProcessRefund(ctx, services.RefundCommand{
		OrderID:        orderIDParam(r),
		Amount:         amount,
		Reason:         req.Reason,
		ActorID:        actorID(r),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	}))
	respond(ctx, w, http.StatusOK, result, renderOrder)
}

func (h *AdminHandlers) reassign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersReady(w, r) {
		return
	}
	var req assigneeRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	result := services.ResultOf(h.orders.ReassignOrder(ctx, services.ReassignCommand{
		OrderID:    orderIDParam(r),
		AssigneeID: strings.TrimSpace(req.AssigneeID),
		ActorID:    actorID(r),
	}))
	respond(ctx, w, http.StatusOK, result, renderOrder)
}

func (h *AdminHandlers) addNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersReady(w, r) {
		return
	}
	var req noteRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	result := services.ResultOf(h.orders.AddNote(ctx, services.AddNoteCommand{
		OrderID: orderIDParam(r),
		Note:    req.Note,
		ActorID: actorID(r),
	}))
	respond(ctx, w, http.StatusOK, result, renderOrder)
}

func (h *AdminHandlers) getInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.inventoryReady(w, r) {
		return
	}
	result := services.ResultOf(h.inventory.Get(ctx, productIDParam(r)))
	respond(ctx, w, http.StatusOK, result, renderInventory)
}

func (h *AdminHandlers) setStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.inventoryReady(w, r) {
		return
	}
	var req setStockRequest
	if !decodeBody(w, r, maxAdminBodySize, &req) {
		return
	}
	if req.OnHand == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "onHand is required", http.StatusBadRequest))
		return
	}
	result := services.ResultOf(h.inventory.SetStock(ctx, productIDParam(r), *req.OnHand))
	respond(ctx, w, http.StatusOK, result, renderInventory)
}

func (h *AdminHandlers) ordersReady(w http.ResponseWriter, r *http.Request) bool {
	if h.orders != nil {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	return false
}

func (h *AdminHandlers) inventoryReady(w http.ResponseWriter, r *http.Request) bool {
	if h.inventory != nil {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
	return false
}

func renderInventory(record services.InventoryRecord) any {
	return inventoryResponse{Inventory: record}
}

func orderIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "orderID"))
}

func productIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "productID"))
}
