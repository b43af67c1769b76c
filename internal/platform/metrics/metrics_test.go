package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

var (
	_ services.EngineMetrics    = (*Registry)(nil)
	_ services.DeliveryObserver = (*Registry)(nil)
)

func TestRegistryRecordsEngineOutcomes(t *testing.T) {
	r := New()

	r.ObserveCheckout("ok", 40*time.Millisecond)
	r.ObserveCheckout("insufficient_stock", 5*time.Millisecond)
	r.ObserveTransition("status", "ok")
	r.ObserveInventory("reserve", "ok")
	r.ObserveInventory("reserve", "ok")
	r.ObserveDelivery("order.created", "delivered", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.checkouts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.checkouts.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("status", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.inventory.WithLabelValues("reserve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deliveries.WithLabelValues("order.created", "delivered")))
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := New()
	router := chi.NewRouter()
	router.Use(r.Middleware)
	router.Get("/orders/{orderID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Handle("/metrics", r.Handler())

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(r.requests.WithLabelValues("/orders/{orderID}", http.MethodGet, "404")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "nexacommerce_http_requests_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
