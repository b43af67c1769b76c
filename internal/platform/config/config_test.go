package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "nexa-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "nexa-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Notifications.Sink != SinkLog {
		t.Errorf("expected log sink, got %s", cfg.Notifications.Sink)
	}
	if cfg.Notifications.Workers != defaultDispatchWorkers || cfg.Notifications.MaxAttempts != defaultDispatchAttempts {
		t.Errorf("unexpected dispatcher defaults: %+v", cfg.Notifications)
	}
	if cfg.Engine.LockTimeout != 2*time.Second {
		t.Errorf("expected 2s lock timeout, got %s", cfg.Engine.LockTimeout)
	}
	if cfg.Engine.Currency != "USD" {
		t.Errorf("expected USD, got %s", cfg.Engine.Currency)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("expected redis disabled by default, got %s", cfg.Redis.Addr)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                    "9090",
		"API_SERVER_IDLE_TIMEOUT":            "2m",
		"API_STORAGE_BACKEND":                "Firestore",
		"API_STORAGE_SEED_DEMO":              "yes",
		"API_FIREBASE_PROJECT_ID":            "nexa-prod",
		"API_FIRESTORE_PROJECT_ID":           "nexa-fire",
		"API_REDIS_ADDR":                     "redis:6379",
		"API_REDIS_PASSWORD":                 "secret://redis/password",
		"API_REDIS_DB":                       "2",
		"API_REDIS_CART_TTL":                 "1h",
		"API_NOTIFY_SINK":                    "kafka",
		"API_NOTIFY_KAFKA_BROKERS":           "k1:9092, k2:9092",
		"API_NOTIFY_KAFKA_TOPIC":             "order-events",
		"API_NOTIFY_WORKERS":                 "8",
		"API_NOTIFY_BACKOFF":                 "1s",
		"API_PAYMENTS_STRIPE_API_KEY":        "secret://stripe/api",
		"API_ENGINE_LOCK_TIMEOUT":            "5s",
		"API_ENGINE_CURRENCY":                "eur",
		"API_ENGINE_TAX_BASIS_POINTS":        "825",
		"API_ENGINE_SHIPPING_FLAT_RATE":      "4.99",
		"API_ENGINE_FREE_SHIPPING_THRESHOLD": "50",
		"API_IDEMPOTENCY_HEADER":             "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":                "48h",
	}

	secrets := map[string]string{
		"secret://stripe/api":     "stripe-key",
		"secret://redis/password": "redis-pass",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Storage.Backend != BackendFirestore || !cfg.Storage.SeedDemo {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Firestore.ProjectID != "nexa-fire" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Redis.Password != "redis-pass" || cfg.Redis.DB != 2 || cfg.Redis.CartTTL != time.Hour {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if len(cfg.Notifications.KafkaBrokers) != 2 || cfg.Notifications.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected kafka brokers: %v", cfg.Notifications.KafkaBrokers)
	}
	if cfg.Notifications.Workers != 8 || cfg.Notifications.Backoff != time.Second {
		t.Errorf("unexpected dispatcher tuning: %+v", cfg.Notifications)
	}
	if cfg.Payments.StripeAPIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.Payments.StripeAPIKey)
	}
	if cfg.Engine.LockTimeout != 5*time.Second || cfg.Engine.Currency != "EUR" || cfg.Engine.TaxBasisPoints != 825 {
		t.Errorf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Engine.ShippingFlatRate != "4.99" || cfg.Engine.FreeShippingThreshold != "50" {
		t.Errorf("unexpected shipping config: %+v", cfg.Engine)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=nexa-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "nexa-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	cases := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"unknown backend", map[string]string{"API_STORAGE_BACKEND": "mongo"}, "Storage.Backend"},
		{"firestore without project", map[string]string{"API_STORAGE_BACKEND": "firestore"}, "Firestore.ProjectID"},
		{"pubsub without topic", map[string]string{"API_NOTIFY_SINK": "pubsub", "API_FIREBASE_PROJECT_ID": "p"}, "Notifications.PubSubTopic"},
		{"kafka without brokers", map[string]string{"API_NOTIFY_SINK": "kafka", "API_NOTIFY_KAFKA_TOPIC": "t"}, "Notifications.KafkaBrokers"},
		{"bad tax", map[string]string{"API_ENGINE_TAX_BASIS_POINTS": "20000"}, "Engine.TaxBasisPoints"},
		{"bad shipping", map[string]string{"API_ENGINE_SHIPPING_FLAT_RATE": "4.999"}, "Engine.ShippingFlatRate"},
		{"bad currency", map[string]string{"API_ENGINE_CURRENCY": "dollars"}, "Engine.Currency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(context.Background(), WithEnvMap(tc.env), WithoutSystemEnv(), WithEnvFile(""))
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, field := range validation.Fields() {
				if field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %v", tc.field, validation.Fields())
			}
		})
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_PAYMENTS_STRIPE_API_KEY": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_DEFAULT_PROJECT", "project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_DEFAULT_PROJECT"]; got != "project-prod" {
		t.Fatalf("expected system env project, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Payments.StripeAPIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Payments.StripeAPIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Payments.StripeAPIKey" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Payments.StripeAPIKey"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_PAYMENTS_STRIPE_API_KEY": "sm://stripe/api",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://stripe/api" {
			return "legacy-secret", nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Payments.StripeAPIKey != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Payments.StripeAPIKey)
	}
}

func TestReadDotEnvHandlesExportAndQuotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# local overrides\nexport API_ENGINE_CURRENCY=\"eur\"\nAPI_STORAGE_SEED_DEMO=yes\nAPI_NOTIFY_KAFKA_BROKERS='a:9092, ,b:9092'\nnot a pair\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Currency != "EUR" {
		t.Fatalf("currency = %s", cfg.Engine.Currency)
	}
	if !cfg.Storage.SeedDemo {
		t.Fatal("expected seed demo from yes")
	}
	if got := cfg.Notifications.KafkaBrokers; len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("brokers = %v", got)
	}
}
