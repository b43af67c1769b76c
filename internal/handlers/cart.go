package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/auth"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/httpx"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/idempotency"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

const maxCartBodySize = 4 * 1024

// CartHandlers exposes the cart store to guests (X-Cart-Session) and signed-in customers.
type CartHandlers struct {
	carts   services.CartService
	pricing services.PricingService
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(carts services.CartService, pricing services.PricingService) *CartHandlers {
	return &CartHandlers{carts: carts, pricing: pricing}
}

// Routes wires the cart endpoints. Paths are absolute under the api prefix.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/cart", h.getCart)
	r.Delete("/cart", h.clearCart)
	r.Post("/cart/items", h.addItem)
	r.Put("/cart/items/{productID}", h.setQuantity)
	r.Delete("/cart/items/{productID}", h.removeItem)
	r.Post("/cart/coupon", h.applyCoupon)
	r.Delete("/cart/coupon", h.removeCoupon)
	r.Get("/cart/quote", h.quote)
	r.Post("/cart:merge", h.merge)
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

type cartPayload struct {
	Owner      string            `json:"owner"`
	Guest      bool              `json:"guest"`
	Currency   string            `json:"currency"`
	Lines      []cartLinePayload `json:"lines"`
	ItemCount  int               `json:"itemCount"`
	Subtotal   domain.Money      `json:"subtotal"`
	CouponCode string            `json:"couponCode,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

type cartLinePayload struct {
	ProductID string       `json:"productId"`
	Name      string       `json:"name,omitempty"`
	Quantity  int          `json:"quantity"`
	UnitPrice domain.Money `json:"unitPrice"`
	LineTotal domain.Money `json:"lineTotal"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type quoteResponse struct {
	Cart  cartPayload          `json:"cart"`
	Quote domain.PriceSnapshot `json:"quote"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	respond(r.Context(), w, http.StatusOK, services.ResultOf(h.carts.Get(r.Context(), owner)), renderCart)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	respond(r.Context(), w, http.StatusOK, services.ResultOf(h.carts.Clear(r.Context(), owner)), renderCart)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	result := services.ResultOf(h.carts.AddItem(r.Context(), owner, req.ProductID, req.Quantity))
	respond(r.Context(), w, http.StatusOK, result, renderCart)
}

func (h *CartHandlers) setQuantity(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req setQuantityRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	productID := chi.URLParam(r, "productID")
	result := services.ResultOf(h.carts.SetQuantity(r.Context(), owner, productID, req.Quantity))
	respond(r.Context(), w, http.StatusOK, result, renderCart)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	respond(r.Context(), w, http.StatusOK, services.ResultOf(h.carts.RemoveItem(r.Context(), owner, productID)), renderCart)
}

func (h *CartHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req applyCouponRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	respond(r.Context(), w, http.StatusOK, services.ResultOf(h.carts.ApplyCoupon(r.Context(), owner, req.Code)), renderCart)
}

func (h *CartHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	respond(r.Context(), w, http.StatusOK, services.ResultOf(h.carts.RemoveCoupon(r.Context(), owner)), renderCart)
}

func (h *CartHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	if h.pricing == nil {
		httpx.WriteError(ctx, w, httpx.NewError("pricing_unavailable", "pricing service is unavailable", http.StatusServiceUnavailable))
		return
	}
	cart, err := h.carts.Get(ctx, owner)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	snapshot, err := h.pricing.Quote(ctx, cart)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, quoteResponse{Cart: buildCartPayload(cart), Quote: snapshot})
}

// merge folds the guest cart named by X-Cart-Session into the signed-in customer's cart.
func (h *CartHandlers) merge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	token := strings.TrimSpace(r.Header.Get(idempotency.SessionHeader))
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", idempotency.SessionHeader+" header is required", http.StatusBadRequest))
		return
	}
	result := services.ResultOf(h.carts.Merge(ctx, domain.SessionOwner(token), domain.CustomerOwner(identity.UID)))
	respond(ctx, w, http.StatusOK, result, renderCart)
}

func (h *CartHandlers) owner(w http.ResponseWriter, r *http.Request) (domain.CartOwner, bool) {
	if h.carts == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return domain.CartOwner{}, false
	}
	owner, ok := requestOwner(r)
	if !ok {
		writeOwnerRequired(r.Context(), w)
		return domain.CartOwner{}, false
	}
	return owner, true
}

func renderCart(cart services.Cart) any {
	return cartResponse{Cart: buildCartPayload(cart)}
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		Owner:      cart.Owner.Key(),
		Guest:      cart.Owner.IsGuest(),
		Currency:   cart.Currency,
		Lines:      make([]cartLinePayload, 0, len(cart.Lines)),
		ItemCount:  cart.ItemCount(),
		CouponCode: cart.CouponCode,
		UpdatedAt:  cart.UpdatedAt,
	}
	for _, line := range cart.Lines {
		total := line.UnitPrice.Times(line.Quantity)
		payload.Subtotal += total
		payload.Lines = append(payload.Lines, cartLinePayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: total,
		})
	}
	return payload
}
