package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/auth"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	// SessionHeader carries the guest cart token; guests are scoped by it.
	SessionHeader = "X-Cart-Session"
	maxKeyLength  = 255
)

// Logger is the structured event hook used for persistence failures.
type Logger func(ctx context.Context, event string, fields map[string]any)

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	clock      func() time.Time
	logger     Logger
}

// MiddlewareOption customises middleware behaviour.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header name used to extract the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL configures how long completed idempotency records are retained.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithLogger injects a logger for persistence errors.
func WithLogger(logger Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.logger = logger
	}
}

// WithClock overrides the time source, primarily for testing.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware replays the stored response when a requester repeats an idempotency key on
// a write. Requests without the header pass through. Outcomes a client would retry (5xx,
// 423, 429) release the key instead of being stored.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{
		store: store,
		cfg: middlewareConfig{
			headerName: defaultHeaderName,
			ttl:        DefaultTTL,
			clock:      time.Now,
			logger:     func(context.Context, string, map[string]any) {},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&g.cfg)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

type guard struct {
	store Store
	cfg   middlewareConfig
}

func (g *guard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(g.cfg.headerName))
	if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
		next.ServeHTTP(w, r)
		return
	}
	if len(key) > maxKeyLength {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "idempotency key is too long", http.StatusBadRequest))
		return
	}
	body, err := bufferBody(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	requester := requesterKey(r)
	scoped := key + "|" + requester
	fingerprint := fingerprintOf(r, body, requester)

	reservation, err := g.store.Reserve(ctx, scoped, fingerprint, g.now(), g.cfg.ttl)
	switch {
	case errors.Is(err, ErrFingerprintMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
		return
	case err != nil:
		g.cfg.logger(ctx, "idempotency.store_failed", map[string]any{"severity": "error", "error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable).WithRetryAfter(time.Second))
		return
	}
	switch reservation.State {
	case ReservationStateCompleted:
		replay(w, reservation.Record)
		return
	case ReservationStatePending:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
		return
	}

	rec := newResponseRecorder()
	next.ServeHTTP(rec, r)
	g.settle(ctx, scoped, fingerprint, rec)
	rec.flush(w)
}

// settle stores a final response or frees the key for a retry.
func (g *guard) settle(ctx context.Context, key, fingerprint string, rec *responseRecorder) {
	status := rec.Status()
	if status >= http.StatusInternalServerError || status == http.StatusLocked || status == http.StatusTooManyRequests {
		if err := g.store.Release(ctx, key, fingerprint); err != nil {
			g.cfg.logger(ctx, "idempotency.release_failed", map[string]any{"severity": "warn", "error": err.Error()})
		}
		return
	}
	resp := Response{Status: status, Headers: rec.header, Body: rec.body.Bytes()}
	if err := g.store.SaveResponse(ctx, key, fingerprint, resp, g.now(), g.cfg.ttl); err != nil {
		g.cfg.logger(ctx, "idempotency.save_failed", map[string]any{"severity": "error", "error": err.Error()})
		_ = g.store.Release(ctx, key, fingerprint)
	}
}

func (g *guard) now() time.Time { return g.cfg.clock().UTC() }

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// fingerprintOf hashes method, path, query, requester and body.
func fingerprintOf(r *http.Request, body []byte, requester string) string {
	h := sha256.New()
	for _, part := range []string{strings.ToUpper(r.Method), r.URL.Path, r.URL.RawQuery, requester} {
		io.WriteString(h, part)
		h.Write([]byte{0})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// requesterKey scopes keys to the cart owner so two guests cannot collide on one key.
func requesterKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.CartOwner().Key()
	}
	if token := strings.TrimSpace(r.Header.Get(SessionHeader)); token != "" {
		return domain.SessionOwner(token).Key()
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name, values := range record.ResponseHeaders {
		header[name] = append(header[name], values...)
	}
	header.Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

// responseRecorder buffers the handler output so it can be stored before it is sent.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.WriteHeader(r.Status())
	_, _ = w.Write(r.body.Bytes())
}
