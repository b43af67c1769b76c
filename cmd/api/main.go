package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/di"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/handlers"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/auth"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/config"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/idempotency"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/observability"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/secrets"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	startedAt := time.Now().UTC()

	env, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	base, err := observability.NewLogger(env["LOG_LEVEL"])
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = base.Sync() }()

	logger := base.Named("api")
	ctx := observability.WithLogger(context.Background(), logger)

	fetcher, err := newSecretFetcher(ctx, logger, env)
	if err != nil {
		return fmt.Errorf("secret fetcher: %w", err)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(env)...),
	)
	if missing := (*config.MissingSecretsError)(nil); errors.As(err, &missing) {
		logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		return missing
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	container, err := di.NewContainer(ctx, cfg, di.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	if container.Verifier == nil {
		logger.Warn("auth: firebase project not configured; bearer tokens will be rejected")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newHandler(logger, cfg, container, buildInfoFromEnv(env, startedAt)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("commerce api listening",
			zap.String("addr", server.Addr),
			zap.String("storage", cfg.Storage.Backend),
			zap.String("eventSink", cfg.Notifications.Sink),
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = container.Close(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	case <-sigCtx.Done():
		logger.Info("shutdown signal received; draining requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	// Queued notifications drain once no request can enqueue more.
	return container.Close(shutdownCtx)
}

func newHandler(logger *zap.Logger, cfg config.Config, container *di.Container, build handlers.BuildInfo) http.Handler {
	authenticator := auth.NewAuthenticator(container.Verifier)
	idempotencyMiddleware := idempotency.Middleware(
		container.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.EventLogger(logger.Named("idempotency"))),
	)

	svc := container.Services
	cartHandlers := handlers.NewCartHandlers(svc.Carts, svc.Pricing)
	orderHandlers := handlers.NewOrderHandlers(svc.Checkout, svc.Orders,
		handlers.WithCheckoutRateLimit(cfg.Engine.CheckoutPerMinute, cfg.Engine.CheckoutBurst),
	)
	adminHandlers := handlers.NewAdminHandlers(svc.Orders, svc.Inventory)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthRepository(container.Health),
		handlers.WithHealthBuildInfo(build),
	)

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
			container.Metrics.Middleware,
			authenticator.Authenticate(),
			idempotencyMiddleware,
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(container.Metrics.Handler()),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithAdminMiddlewares(auth.RequireRoles(auth.RoleStaff, auth.RoleAdmin)),
	)
}

func buildInfoFromEnv(env map[string]string, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(env["API_ENVIRONMENT"])
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames marks secrets as mandatory only when their variable is set, so a
// reference that fails to resolve stops startup instead of silently disabling the feature.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if strings.TrimSpace(env["API_PAYMENTS_STRIPE_API_KEY"]) != "" {
		required = append(required, "Payments.StripeAPIKey")
	}
	if strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	return required
}
