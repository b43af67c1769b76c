package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/requestctx"
)

func TestEventLoggerMapsSeverity(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "order_integrity_violation", map[string]any{
		"severity": "error",
		"orderId":  "o1",
		"action":   "STATUS_CHANGED",
	})
	log(context.Background(), "notification.retry", map[string]any{"severity": "warn"})
	log(context.Background(), "cart.cache_failed", nil)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "order_integrity_violation", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "o1", fields["orderId"])
	assert.Equal(t, "STATUS_CHANGED", fields["action"])
	assert.NotContains(t, fields, "severity")

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.InfoLevel)
	reqCore, reqLogs := observer.New(zapcore.InfoLevel)

	log := EventLogger(zap.New(baseCore))
	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore).With(zap.String("request_id", "r-1")))
	log(ctx, "checkout.quote_failed", map[string]any{"owner": "session:abc"})

	assert.Zero(t, baseLogs.Len())
	require.Equal(t, 1, reqLogs.Len())
	assert.Equal(t, "r-1", reqLogs.All()[0].ContextMap()["request_id"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("not-a-level")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	debug, err := NewLogger("DEBUG")
	require.NoError(t, err)
	assert.True(t, debug.Core().Enabled(zapcore.DebugLevel))
}

func TestEventLoggerRedactsSessionOwners(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "cart.cache_read_failed", map[string]any{"owner": "session:0f9c2d7e-secret"})
	log(context.Background(), "order.created", map[string]any{"owner": "customer:user-1"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "session:0f9c***", entries[0].ContextMap()["owner"])
	assert.Equal(t, "customer:user-1", entries[1].ContextMap()["owner"])
}

func TestSanitizers(t *testing.T) {
	assert.Equal(t, "/", SanitizeRoute(""))
	assert.Equal(t, "/api/v1/orders", SanitizeRoute("/api/v1/orders\n"))
	assert.Equal(t, "GET", SanitizeMethod("get"))
	assert.Len(t, RedactOwnerKey("customer:"+strings.Repeat("u", 100)), maxIDLength)
	assert.Equal(t, "session:***", RedactOwnerKey("session:ab"))
}

func TestRequestLoggerCarriesNotedOwner(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			NoteOwner(r.Context(), "session:0f9c1d2e3f")
			w.WriteHeader(http.StatusCreated)
		}),
	))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "session:0f9c***", fields["owner"])
	assert.EqualValues(t, http.StatusCreated, fields["status"])
	assert.Equal(t, "POST", fields["method"])
}

func TestRecoveryMiddlewareWritesJSON(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_server_error")
}
