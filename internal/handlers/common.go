package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/auth"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/httpx"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/idempotency"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/observability"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

const (
	defaultBodyLimit = 16 * 1024
	// retryAfter is advised on lock timeouts and backend outages.
	retryAfter = time.Second
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads a bounded JSON body into dst and writes the error response itself.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

// respond renders a successful result or maps its error kind to an HTTP status.
func respond[T any](ctx context.Context, w http.ResponseWriter, status int, result services.Result[T], render func(T) any) {
	if !result.IsOk() {
		writeEngineError(ctx, w, result.Err)
		return
	}
	writeJSONResponse(w, status, render(result.Value))
}

func writeEngineError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	kind := services.KindOf(err)
	status := statusForKind(kind)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "the request could not be completed"
		if kind == services.KindUnavailable || kind == services.KindTimeout {
			message = "a backend dependency is unavailable; retry later"
		}
	}
	httpErr := httpx.NewError(string(kind), message, status)
	if kind == services.KindBusy || kind == services.KindTimeout || kind == services.KindUnavailable {
		httpErr = httpErr.WithRetryAfter(retryAfter)
	}

	var stockErr *services.StockError
	if errors.As(err, &stockErr) {
		httpErr = httpErr.WithDetails(map[string]any{
			"productId": stockErr.ProductID,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
	}
	httpx.WriteError(ctx, w, httpErr)
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindInvalidQuantity, services.KindInvalidInput:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInsufficientStock, services.KindInventoryConflict, services.KindReservationNotFound,
		services.KindInvalidTransition, services.KindRefundNotEligible, services.KindRefundExceedsOrder,
		services.KindConflict:
		return http.StatusConflict
	case services.KindCouponExhausted, services.KindCouponInvalid:
		return http.StatusUnprocessableEntity
	case services.KindBusy:
		return http.StatusLocked
	case services.KindTimeout, services.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestOwner resolves the cart owner: an authenticated customer wins over a guest session token.
// The owner is noted for the request log line.
func requestOwner(r *http.Request) (domain.CartOwner, bool) {
	var owner domain.CartOwner
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		owner = identity.CartOwner()
	} else if token := strings.TrimSpace(r.Header.Get(idempotency.SessionHeader)); token != "" {
		owner = domain.SessionOwner(token)
	} else {
		return owner, false
	}
	observability.NoteOwner(r.Context(), owner.Key())
	return owner, true
}

func writeOwnerRequired(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("owner_required",
		fmt.Sprintf("sign in or send the %s header", idempotency.SessionHeader), http.StatusUnauthorized))
}

// actorID names the caller in audit entries.
func actorID(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.UID
	}
	if owner, ok := requestOwner(r); ok {
		return owner.Key()
	}
	return "anonymous"
}

func parseMoneyField(name, raw string) (domain.Money, error) {
	value, err := domain.ParseMoney(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a decimal amount such as \"20.00\"", services.ErrInvalidInput, name)
	}
	return value, nil
}
