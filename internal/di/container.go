package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/payments"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/auth"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/cache"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/config"
	pfirestore "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/firestore"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/idempotency"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/jobs"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/locks"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/metrics"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/platform/observability"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
	firestoreRepo "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories/firestore"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories/memory"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Inventory services.InventoryService
	Catalog   services.CatalogReader
	Carts     services.CartService
	Pricing   services.PricingService
	Audit     services.AuditRecorder
	Counters  services.CounterService
	Orders    services.OrderService
	Checkout  services.CheckoutService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Metrics      *metrics.Registry
	Dispatcher   *services.Dispatcher
	Idempotency  idempotency.Store
	Health       repositories.HealthRepository
	// Verifier is nil when no Firebase project is configured.
	Verifier auth.TokenVerifier

	logger  *zap.Logger
	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	registry  repositories.Registry
	logger    *zap.Logger
	redis     redis.UniversalClient
	publisher services.EventPublisher
	clock     func() time.Time
}

// WithRegistry supplies a pre-built repository registry instead of the configured backend.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) {
		o.registry = reg
	}
}

// WithLogger sets the base logger used by engine components.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithRedisClient reuses an existing Redis client for the cart cache and idempotency store.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *containerOptions) {
		o.redis = client
	}
}

// WithPublisher overrides the configured event sink.
func WithPublisher(publisher services.EventPublisher) Option {
	return func(o *containerOptions) {
		o.publisher = publisher
	}
}

// WithClock injects the clock shared by all services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// NewContainer constructs the runtime dependencies. Resources opened before a failure are
// released before the error is returned.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (c *Container, err error) {
	options := containerOptions{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.clock == nil {
		options.clock = time.Now
	}

	c = &Container{
		Config:  cfg,
		Metrics: metrics.New(),
		logger:  options.logger,
	}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.Close(closeCtx)
			c = nil
		}
	}()

	reg := options.registry
	if reg == nil {
		reg, err = buildRegistry(ctx, cfg)
		if err != nil {
			return c, err
		}
	}
	c.Repositories = reg
	c.addCloser("repositories", reg.Close)

	redisClient := options.redis
	if redisClient == nil && strings.TrimSpace(cfg.Redis.Addr) != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.addCloser("redis", func(context.Context) error { return client.Close() })
		redisClient = client
	}

	var cartCache services.CartCache
	if redisClient != nil {
		redisCache, err := cache.NewRedisCartCache(redisClient, cache.WithTTL(cfg.Redis.CartTTL))
		if err != nil {
			return c, fmt.Errorf("build cart cache: %w", err)
		}
		cartCache = redisCache
		c.Idempotency = idempotency.NewRedisStore(redisClient)
	} else {
		c.Idempotency = idempotency.NewMemoryStore()
	}

	publisher := options.publisher
	var breaker *jobs.BreakerPublisher
	if publisher == nil {
		publisher, breaker, err = c.buildPublisher(ctx, cfg.Notifications)
		if err != nil {
			return c, err
		}
	}

	dispatcher, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
		Publisher:   publisher,
		Workers:     cfg.Notifications.Workers,
		QueueSize:   cfg.Notifications.QueueSize,
		MaxAttempts: cfg.Notifications.MaxAttempts,
		Backoff:     cfg.Notifications.Backoff,
		Observer:    c.Metrics,
		Logger:      observability.EventLogger(options.logger.Named("notifications")),
	})
	if err != nil {
		return c, fmt.Errorf("build notification dispatcher: %w", err)
	}
	c.Dispatcher = dispatcher
	c.addCloser("dispatcher", dispatcher.Close)

	var refunds services.RefundGateway
	if key := strings.TrimSpace(cfg.Payments.StripeAPIKey); key != "" {
		gateway, err := payments.NewStripeRefundGateway(payments.StripeRefundConfig{
			APIKey:           key,
			Logger:           observability.EventLogger(options.logger.Named("stripe")),
			FailureThreshold: cfg.Notifications.BreakerFailures,
			Cooldown:         cfg.Notifications.BreakerCooldown,
		})
		if err != nil {
			return c, fmt.Errorf("build stripe refund gateway: %w", err)
		}
		refunds = gateway
	}

	svc, err := buildServices(cfg, serviceInputs{
		registry:   reg,
		cache:      cartCache,
		dispatcher: dispatcher,
		refunds:    refunds,
		metrics:    c.Metrics,
		clock:      options.clock,
		logger:     options.logger,
	})
	if err != nil {
		return c, err
	}
	c.Services = svc

	if cfg.Storage.SeedDemo {
		if err := seedDemo(ctx, reg, svc.Inventory, cfg.Engine.Currency, options.clock()); err != nil {
			return c, fmt.Errorf("seed demo data: %w", err)
		}
		options.logger.Info("demo catalog seeded")
	}

	health, err := buildHealth(reg, redisClient, breaker, options.clock)
	if err != nil {
		return c, err
	}
	c.Health = health

	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return c, fmt.Errorf("build firebase verifier: %w", err)
		}
		c.Verifier = verifier
	}

	return c, nil
}

// Close drains the notification dispatcher and then releases sinks, caches, and repository
// clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) addCloser(name string, fn func(context.Context) error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

func buildRegistry(ctx context.Context, cfg config.Config) (repositories.Registry, error) {
	switch cfg.Storage.Backend {
	case "", config.BackendMemory:
		return memory.NewStore(), nil
	case config.BackendFirestore:
		var providerOpts []pfirestore.ProviderOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
		}
		provider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
		if _, err := provider.Client(ctx); err != nil {
			return nil, fmt.Errorf("initialise firestore client: %w", err)
		}
		reg, err := firestoreRepo.NewRegistry(provider, nil)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

func (c *Container) buildPublisher(ctx context.Context, cfg config.NotificationConfig) (services.EventPublisher, *jobs.BreakerPublisher, error) {
	var sink services.EventPublisher
	switch cfg.Sink {
	case "", config.SinkLog:
		return jobs.NewLogPublisher(observability.EventLogger(c.logger.Named("events"))), nil, nil
	case config.SinkPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("initialise pubsub client: %w", err)
		}
		c.addCloser("pubsub client", func(context.Context) error { return client.Close() })
		publisher, err := jobs.NewPubSubPublisher(client.Topic(cfg.PubSubTopic))
		if err != nil {
			return nil, nil, err
		}
		c.addCloser("pubsub topic", func(context.Context) error { return publisher.Close() })
		sink = publisher
	case config.SinkKafka:
		publisher, err := jobs.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		c.addCloser("kafka writer", func(context.Context) error { return publisher.Close() })
		sink = publisher
	default:
		return nil, nil, fmt.Errorf("unsupported notification sink %q", cfg.Sink)
	}

	breaker, err := jobs.NewBreakerPublisher(sink, jobs.BreakerSettings{
		Name:             "event-sink-" + cfg.Sink,
		FailureThreshold: cfg.BreakerFailures,
		Cooldown:         cfg.BreakerCooldown,
		Logger:           observability.EventLogger(c.logger.Named("events")),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build event sink breaker: %w", err)
	}
	return breaker, breaker, nil
}

type serviceInputs struct {
	registry   repositories.Registry
	cache      services.CartCache
	dispatcher services.NotificationDispatcher
	refunds    services.RefundGateway
	metrics    *metrics.Registry
	clock      func() time.Time
	logger     *zap.Logger
}

func buildServices(cfg config.Config, in serviceInputs) (Services, error) {
	reg := in.registry
	engineLog := observability.EventLogger(in.logger.Named("engine"))
	lockManager := locks.NewManager(locks.WithTimeout(cfg.Engine.LockTimeout))

	shippingRate, err := domain.ParseMoney(cfg.Engine.ShippingFlatRate)
	if err != nil {
		return Services{}, fmt.Errorf("parse shipping flat rate: %w", err)
	}
	freeThreshold, err := domain.ParseMoney(cfg.Engine.FreeShippingThreshold)
	if err != nil {
		return Services{}, fmt.Errorf("parse free shipping threshold: %w", err)
	}

	var svc Services

	svc.Inventory, err = services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Locks:     lockManager,
		Metrics:   in.metrics,
		Clock:     in.clock,
		Logger:    engineLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}

	svc.Catalog, err = services.NewCatalogReader(services.CatalogServiceDeps{Catalog: reg.Catalog()})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog reader: %w", err)
	}

	svc.Pricing, err = services.NewPricingService(services.PricingServiceDeps{
		Catalog:    svc.Catalog,
		Coupons:    reg.Coupons(),
		DealClaims: reg.DealClaims(),
		Tax:        services.BasisPointTax{BasisPoints: cfg.Engine.TaxBasisPoints},
		Shipping:   services.FlatRateShipping{Rate: shippingRate, FreeThreshold: freeThreshold},
		Clock:      in.clock,
		Logger:     engineLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}

	svc.Carts, err = services.NewCartService(services.CartServiceDeps{
		Repository:      reg.Carts(),
		Catalog:         svc.Catalog,
		Inventory:       svc.Inventory,
		Coupons:         svc.Pricing,
		Locks:           lockManager,
		UnitOfWork:      reg,
		Cache:           in.cache,
		CacheTTL:        cfg.Redis.CartTTL,
		Clock:           in.clock,
		DefaultCurrency: cfg.Engine.Currency,
		MaxLineQuantity: cfg.Engine.MaxLineQuantity,
		Logger:          engineLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}

	svc.Audit, err = services.NewAuditService(services.AuditServiceDeps{
		History: reg.OrderHistory(),
		Clock:   in.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit service: %w", err)
	}

	svc.Counters, err = services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      in.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Audit:      svc.Audit,
		Counters:   svc.Counters,
		Inventory:  svc.Inventory,
		Coupons:    reg.Coupons(),
		DealClaims: reg.DealClaims(),
		Catalog:    svc.Catalog,
		Carts:      svc.Carts,
		Locks:      lockManager,
		UnitOfWork: reg,
		Dispatcher: in.dispatcher,
		Refunds:    in.refunds,
		Metrics:    in.metrics,
		Clock:      in.clock,
		Logger:     engineLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	svc.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:   svc.Carts,
		Pricing: svc.Pricing,
		Orders:  svc.Orders,
		Locks:   lockManager,
		Logger:  engineLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	return svc, nil
}

func buildHealth(reg repositories.Registry, redisClient redis.UniversalClient, breaker *jobs.BreakerPublisher, clock func() time.Time) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if storage := reg.Health(); storage != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name: "storage",
			Check: func(ctx context.Context) error {
				report, err := storage.Collect(ctx)
				if err != nil {
					return err
				}
				if report.Status != domain.HealthStatusOK {
					return fmt.Errorf("storage reported %s", report.Status)
				}
				return nil
			},
		})
	}
	if redisClient != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	if breaker != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name: "eventSink",
			Check: func(context.Context) error {
				if state := breaker.State(); state == "open" {
					return errors.New("event sink circuit open")
				}
				return nil
			},
		})
	}
	if len(checks) == 0 {
		return nil, nil
	}
	repo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(clock))
	if err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}
	return repo, nil
}
