package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nexacommerce"

// Registry owns every engine collector. Each instance registers on its own prometheus
// registry so tests can build as many as they need.
type Registry struct {
	reg *prometheus.Registry

	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	checkouts   *prometheus.CounterVec
	checkoutDur prometheus.Histogram
	transitions *prometheus.CounterVec
	inventory   *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	attempts    *prometheus.HistogramVec
}

// New builds and registers the collectors along with Go runtime and process metrics.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "method", "status"})
	r.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route"})
	r.checkouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "checkouts_total",
		Help:      "Checkout attempts by outcome.",
	}, []string{"outcome"})
	r.checkoutDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "checkout_duration_ms",
		Help:      "Time spent creating an order from a cart.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000},
	})
	r.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "transitions_total",
		Help:      "Order status, payment and refund transitions by outcome.",
	}, []string{"kind", "outcome"})
	r.inventory = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inventory",
		Name:      "operations_total",
		Help:      "Inventory ledger operations by outcome.",
	}, []string{"op", "outcome"})
	r.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "deliveries_total",
		Help:      "Order event deliveries by event type and outcome.",
	}, []string{"type", "outcome"})
	r.attempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "delivery_attempts",
		Help:      "Attempts needed per delivered or dropped event.",
		Buckets:   []float64{1, 2, 3, 5, 8},
	}, []string{"outcome"})

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requests, r.latency,
		r.checkouts, r.checkoutDur, r.transitions,
		r.inventory,
		r.deliveries, r.attempts,
	)
	return r
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) ObserveCheckout(outcome string, elapsed time.Duration) {
	r.checkouts.WithLabelValues(outcome).Inc()
	r.checkoutDur.Observe(float64(elapsed.Milliseconds()))
}

func (r *Registry) ObserveTransition(kind string, outcome string) {
	r.transitions.WithLabelValues(kind, outcome).Inc()
}

func (r *Registry) ObserveInventory(op string, outcome string) {
	r.inventory.WithLabelValues(op, outcome).Inc()
}

func (r *Registry) ObserveDelivery(eventType string, outcome string, attempts int) {
	r.deliveries.WithLabelValues(eventType, outcome).Inc()
	r.attempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// Middleware counts requests by chi route pattern so path parameters do not explode cardinality.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.requests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
		r.latency.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}
