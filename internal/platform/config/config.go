package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 20 * time.Second
	defaultBackend           = BackendMemory
	defaultCartCacheTTL      = 15 * time.Minute
	defaultSink              = SinkLog
	defaultDispatchWorkers   = 4
	defaultDispatchQueue     = 1024
	defaultDispatchAttempts  = 5
	defaultDispatchBackoff   = 500 * time.Millisecond
	defaultBreakerFailures   = 5
	defaultBreakerCooldown   = 30 * time.Second
	defaultLockTimeout       = 2 * time.Second
	defaultCurrency          = "USD"
	defaultMaxLineQuantity   = 99
	defaultCheckoutPerMinute = 10
	defaultCheckoutBurst     = 3
	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour
)

// Storage backends.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
)

// Notification sinks.
const (
	SinkLog    = "log"
	SinkPubSub = "pubsub"
	SinkKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Log           LogConfig
	Storage       StorageConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Redis         RedisConfig
	Notifications NotificationConfig
	Payments      PaymentConfig
	Engine        EngineConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend  string
	SeedDemo bool
}

// FirebaseConfig stores Firebase project settings. An empty project disables token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig enables the cart cache and shared idempotency store when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

// NotificationConfig selects and tunes the order event sink.
type NotificationConfig struct {
	Sink            string
	PubSubProjectID string
	PubSubTopic     string
	KafkaBrokers    []string
	KafkaTopic      string
	Workers         int
	QueueSize       int
	MaxAttempts     int
	Backoff         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// PaymentConfig holds payment provider credentials. An empty key disables refund forwarding.
type PaymentConfig struct {
	StripeAPIKey string
}

// EngineConfig tunes the cart-to-order engine.
type EngineConfig struct {
	LockTimeout           time.Duration
	Currency              string
	MaxLineQuantity       int
	TaxBasisPoints        int
	ShippingFlatRate      string
	FreeShippingThreshold string
	// CheckoutPerMinute caps checkouts per cart owner; 0 disables the limit.
	CheckoutPerMinute int
	CheckoutBurst     int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// Load builds the configuration from defaults, the dotenv file, the process environment
// and WithEnvMap values, in increasing precedence, then resolves secret references and
// validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	o := defaultOptions()
	o.secret = SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})
	for _, opt := range opts {
		opt(&o)
	}

	env, err := newSource(o)
	if err != nil {
		return Config{}, err
	}
	cfg := fromSource(env)

	resolved, err := resolveSecrets(ctx, &cfg, o.secret)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if missing := missingSecrets(o.requiredSecrets, resolved); missing != nil {
		if o.panicOnMissingSecrets {
			fmt.Fprintln(os.Stderr, missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func fromSource(env source) Config {
	cfg := Config{
		Server: ServerConfig{
			Port:            env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:     env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: env.duration("API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Log: LogConfig{Level: env.str("LOG_LEVEL", "info")},
		Storage: StorageConfig{
			Backend:  strings.ToLower(env.str("API_STORAGE_BACKEND", defaultBackend)),
			SeedDemo: env.flag("API_STORAGE_SEED_DEMO", false),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:     env.str("API_REDIS_ADDR", ""),
			Password: env.str("API_REDIS_PASSWORD", ""),
			DB:       env.integer("API_REDIS_DB", 0),
			CartTTL:  env.duration("API_REDIS_CART_TTL", defaultCartCacheTTL),
		},
		Notifications: NotificationConfig{
			Sink:            strings.ToLower(env.str("API_NOTIFY_SINK", defaultSink)),
			PubSubProjectID: env.str("API_NOTIFY_PUBSUB_PROJECT_ID", ""),
			PubSubTopic:     env.str("API_NOTIFY_PUBSUB_TOPIC", ""),
			KafkaBrokers:    env.list("API_NOTIFY_KAFKA_BROKERS"),
			KafkaTopic:      env.str("API_NOTIFY_KAFKA_TOPIC", ""),
			Workers:         env.integer("API_NOTIFY_WORKERS", defaultDispatchWorkers),
			QueueSize:       env.integer("API_NOTIFY_QUEUE_SIZE", defaultDispatchQueue),
			MaxAttempts:     env.integer("API_NOTIFY_MAX_ATTEMPTS", defaultDispatchAttempts),
			Backoff:         env.duration("API_NOTIFY_BACKOFF", defaultDispatchBackoff),
			BreakerFailures: env.integer("API_NOTIFY_BREAKER_FAILURES", defaultBreakerFailures),
			BreakerCooldown: env.duration("API_NOTIFY_BREAKER_COOLDOWN", defaultBreakerCooldown),
		},
		Payments: PaymentConfig{StripeAPIKey: env.str("API_PAYMENTS_STRIPE_API_KEY", "")},
		Engine: EngineConfig{
			LockTimeout:           env.duration("API_ENGINE_LOCK_TIMEOUT", defaultLockTimeout),
			Currency:              strings.ToUpper(env.str("API_ENGINE_CURRENCY", defaultCurrency)),
			MaxLineQuantity:       env.integer("API_ENGINE_MAX_LINE_QUANTITY", defaultMaxLineQuantity),
			TaxBasisPoints:        env.integer("API_ENGINE_TAX_BASIS_POINTS", 0),
			ShippingFlatRate:      env.str("API_ENGINE_SHIPPING_FLAT_RATE", "0.00"),
			FreeShippingThreshold: env.str("API_ENGINE_FREE_SHIPPING_THRESHOLD", "0.00"),
			CheckoutPerMinute:     env.integer("API_ENGINE_CHECKOUT_PER_MINUTE", defaultCheckoutPerMinute),
			CheckoutBurst:         env.integer("API_ENGINE_CHECKOUT_BURST", defaultCheckoutBurst),
		},
		Idempotency: IdempotencyConfig{
			Header: env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Notifications.PubSubProjectID == "" {
		cfg.Notifications.PubSubProjectID = cfg.Firestore.ProjectID
	}
	return cfg
}

// ValidationError lists every invalid field, by config path.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return "config: invalid fields [" + strings.Join(e.fields, ", ") + "]"
}

// Fields returns the invalid config paths in check order.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

func (c Config) validate() error {
	var bad []string
	require := func(ok bool, field string) {
		if !ok {
			bad = append(bad, field)
		}
	}

	require(c.Server.Port != "", "Server.Port")

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFirestore:
		require(c.Firestore.ProjectID != "", "Firestore.ProjectID")
	default:
		bad = append(bad, "Storage.Backend")
	}

	n := c.Notifications
	switch n.Sink {
	case SinkLog:
	case SinkPubSub:
		require(n.PubSubProjectID != "", "Notifications.PubSubProjectID")
		require(n.PubSubTopic != "", "Notifications.PubSubTopic")
	case SinkKafka:
		require(len(n.KafkaBrokers) > 0, "Notifications.KafkaBrokers")
		require(n.KafkaTopic != "", "Notifications.KafkaTopic")
	default:
		bad = append(bad, "Notifications.Sink")
	}
	require(n.Workers > 0, "Notifications.Workers")
	require(n.MaxAttempts > 0, "Notifications.MaxAttempts")

	e := c.Engine
	require(e.LockTimeout > 0, "Engine.LockTimeout")
	require(len(e.Currency) == 3, "Engine.Currency")
	require(e.TaxBasisPoints >= 0 && e.TaxBasisPoints <= 10000, "Engine.TaxBasisPoints")
	require(e.CheckoutPerMinute >= 0, "Engine.CheckoutPerMinute")
	_, err := domain.ParseMoney(e.ShippingFlatRate)
	require(err == nil, "Engine.ShippingFlatRate")
	_, err = domain.ParseMoney(e.FreeShippingThreshold)
	require(err == nil, "Engine.FreeShippingThreshold")

	require(strings.TrimSpace(c.Idempotency.Header) != "", "Idempotency.Header")
	require(c.Idempotency.TTL > 0, "Idempotency.TTL")

	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}
