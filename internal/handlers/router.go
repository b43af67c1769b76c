package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/httpx"
)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 30 * time.Second
	errorNotFoundCode = "route_not_found"
)

// RouteRegistrar adds one group's routes to r.
type RouteRegistrar func(r chi.Router)

type middlewareFunc = func(http.Handler) http.Handler

type routerConfig struct {
	middlewares      []middlewareFunc
	health           *HealthHandlers
	metrics          http.Handler
	cart             RouteRegistrar
	orders           RouteRegistrar
	admin            RouteRegistrar
	adminMiddlewares []middlewareFunc
}

type Option func(*routerConfig)

// WithMiddlewares appends global middleware after request id, real ip and timeout.
func WithMiddlewares(mw ...middlewareFunc) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithMetricsHandler serves h at GET /metrics. Without it /metrics is a 404.
func WithMetricsHandler(h http.Handler) Option {
	return func(cfg *routerConfig) { cfg.metrics = h }
}

// WithCartRoutes registers cart routes on the API root, since POST /cart:merge is not
// under /cart/.
func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.cart = reg }
}

func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders = reg }
}

func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.admin = reg }
}

// WithAdminMiddlewares guards the /admin group, typically with auth.RequireRoles.
func WithAdminMiddlewares(mw ...middlewareFunc) Option {
	return func(cfg *routerConfig) { cfg.adminMiddlewares = append(cfg.adminMiddlewares, mw...) }
}

// NewRouter builds the HTTP surface: probes and metrics at the root, the engine under
// /api/v1. Groups without a registrar answer 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []middlewareFunc{middleware.RequestID, middleware.RealIP, middleware.Timeout(defaultTimeout)},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	use(r, cfg.middlewares)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed",
			req.Method+" is not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route(defaultAPIPrefix, func(api chi.Router) {
		if cfg.cart != nil {
			cfg.cart(api)
		} else {
			api.Route("/cart", notImplemented("cart"))
		}
		api.Route("/orders", group("orders", cfg.orders, nil))
		api.Route("/admin", group("admin", cfg.admin, cfg.adminMiddlewares))
	})
	return r
}

func group(name string, reg RouteRegistrar, mw []middlewareFunc) func(chi.Router) {
	if reg == nil {
		reg = notImplemented(name)
	}
	return func(r chi.Router) {
		use(r, mw)
		reg(r)
	}
}

func use(r chi.Router, mw []middlewareFunc) {
	for _, m := range mw {
		if m != nil {
			r.Use(m)
		}
	}
}

func notImplemented(name string) RouteRegistrar {
	return func(r chi.Router) {
		handler := func(w http.ResponseWriter, req *http.Request) {
			httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", name+" routes not implemented", http.StatusNotImplemented))
		}
		r.HandleFunc("/", handler)
		r.HandleFunc("/*", handler)
	}
}
