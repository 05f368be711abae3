package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hossain-rashid/Smartshop/internal/platform/textutil"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 20 * time.Second
	defaultEnvironment       = "local"
	defaultStorageBackend    = StorageBackendPebble
	defaultPebbleDir         = "./data/smartshop"
	defaultStorageCollection = "smartshop_storage"
	defaultDynamoDBTable     = "smartshop_storage"
	defaultCatalogURL        = "https://fakestoreapi.com/products"
	defaultReviewsSource     = "./assets/data/reviews.json"
	defaultCatalogTimeout    = 10 * time.Second
	defaultEventsBackend     = EventsBackendNone
	defaultOrdersTopic       = "smartshop-orders"
	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultIdempotencySweep  = time.Hour
	defaultCurrency          = "BDT"
	defaultMetricsPath       = "/metrics"
)

// Storage backends accepted by SMARTSHOP_STORAGE_BACKEND.
const (
	StorageBackendMemory    = "memory"
	StorageBackendPebble    = "pebble"
	StorageBackendFirestore = "firestore"
	StorageBackendDynamoDB  = "dynamodb"
)

// Event backends accepted by SMARTSHOP_EVENTS_BACKEND.
const (
	EventsBackendNone   = "none"
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
	EventsBackendSQS    = "sqs"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Currency    string
	Server      ServerConfig
	Storage     StorageConfig
	Firestore   FirestoreConfig
	DynamoDB    DynamoDBConfig
	Catalog     CatalogConfig
	Events      EventsConfig
	Idempotency IdempotencyConfig
	Metrics     MetricsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig selects the key/value backend holding balance, cart and order history. Memory keeps
// nothing across restarts and is meant for tests.
type StorageConfig struct {
	Backend   string
	PebbleDir string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// DynamoDBConfig stores table parameters for the DynamoDB backend.
type DynamoDBConfig struct {
	Table    string
	Region   string
	Endpoint string
}

// CatalogConfig points at the product and review sources.
type CatalogConfig struct {
	ProductsURL   string
	ReviewsSource string
	APIToken      string
	Timeout       time.Duration
}

// EventsConfig selects where order-placed events are published.
type EventsConfig struct {
	Backend       string
	PubSubProject string
	PubSubTopic   string
	PubSubHost    string
	KafkaBrokers  []string
	KafkaTopic    string
	SQSQueueURL   string
	SQSRegion     string
	// Attributes are attached to every published event.
	Attributes map[string]string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header          string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "SMARTSHOP_ENVIRONMENT", defaultEnvironment)),
		Currency:    strings.ToUpper(stringWithDefault(lookup, "SMARTSHOP_CURRENCY", defaultCurrency)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "SMARTSHOP_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "SMARTSHOP_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "SMARTSHOP_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "SMARTSHOP_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "SMARTSHOP_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(stringWithDefault(lookup, "SMARTSHOP_STORAGE_BACKEND", defaultStorageBackend)),
			PebbleDir: stringWithDefault(lookup, "SMARTSHOP_STORAGE_PEBBLE_DIR", defaultPebbleDir),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "SMARTSHOP_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "SMARTSHOP_FIRESTORE_EMULATOR_HOST", ""),
			Collection:   stringWithDefault(lookup, "SMARTSHOP_FIRESTORE_COLLECTION", defaultStorageCollection),
		},
		DynamoDB: DynamoDBConfig{
			Table:    stringWithDefault(lookup, "SMARTSHOP_DYNAMODB_TABLE", defaultDynamoDBTable),
			Region:   stringWithDefault(lookup, "SMARTSHOP_DYNAMODB_REGION", ""),
			Endpoint: stringWithDefault(lookup, "SMARTSHOP_DYNAMODB_ENDPOINT", ""),
		},
		Catalog: CatalogConfig{
			ProductsURL:   stringWithDefault(lookup, "SMARTSHOP_CATALOG_URL", defaultCatalogURL),
			ReviewsSource: stringWithDefault(lookup, "SMARTSHOP_REVIEWS_SOURCE", defaultReviewsSource),
			APIToken:      stringWithDefault(lookup, "SMARTSHOP_CATALOG_API_TOKEN", ""),
			Timeout:       durationWithDefault(lookup, "SMARTSHOP_CATALOG_TIMEOUT", defaultCatalogTimeout),
		},
		Events: EventsConfig{
			Backend:       strings.ToLower(stringWithDefault(lookup, "SMARTSHOP_EVENTS_BACKEND", defaultEventsBackend)),
			PubSubProject: stringWithDefault(lookup, "SMARTSHOP_PUBSUB_PROJECT_ID", ""),
			PubSubTopic:   stringWithDefault(lookup, "SMARTSHOP_PUBSUB_TOPIC", defaultOrdersTopic),
			PubSubHost:    stringWithDefault(lookup, "SMARTSHOP_PUBSUB_EMULATOR_HOST", ""),
			KafkaBrokers:  csvWithDefault(lookup, "SMARTSHOP_KAFKA_BROKERS"),
			KafkaTopic:    stringWithDefault(lookup, "SMARTSHOP_KAFKA_TOPIC", defaultOrdersTopic),
			SQSQueueURL:   stringWithDefault(lookup, "SMARTSHOP_SQS_QUEUE_URL", ""),
			SQSRegion:     stringWithDefault(lookup, "SMARTSHOP_SQS_REGION", ""),
			Attributes:    keyValueWithDefault(lookup, "SMARTSHOP_EVENTS_ATTRIBUTES"),
		},
		Idempotency: IdempotencyConfig{
			Header:          stringWithDefault(lookup, "SMARTSHOP_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:             durationWithDefault(lookup, "SMARTSHOP_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: durationWithDefault(lookup, "SMARTSHOP_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencySweep),
		},
		Metrics: MetricsConfig{
			Enabled: boolWithDefault(lookup, "SMARTSHOP_METRICS_ENABLED", true),
			Path:    stringWithDefault(lookup, "SMARTSHOP_METRICS_PATH", defaultMetricsPath),
		},
	}

	// Firestore project falls back to the Pub/Sub project and vice versa.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Events.PubSubProject
	}
	if cfg.Events.PubSubProject == "" {
		cfg.Events.PubSubProject = cfg.Firestore.ProjectID
	}
	if cfg.Events.SQSRegion == "" {
		cfg.Events.SQSRegion = cfg.DynamoDB.Region
	}

	token, err := resolveSecret(ctx, cfg.Catalog.APIToken, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Catalog.APIToken = token

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !IsSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if len(cfg.Currency) != 3 {
		missing = append(missing, "Currency")
	}

	switch cfg.Storage.Backend {
	case StorageBackendMemory:
	case StorageBackendPebble:
		if strings.TrimSpace(cfg.Storage.PebbleDir) == "" {
			missing = append(missing, "Storage.PebbleDir")
		}
	case StorageBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
		if strings.TrimSpace(cfg.Firestore.Collection) == "" {
			missing = append(missing, "Firestore.Collection")
		}
	case StorageBackendDynamoDB:
		if strings.TrimSpace(cfg.DynamoDB.Table) == "" {
			missing = append(missing, "DynamoDB.Table")
		}
	default:
		missing = append(missing, "Storage.Backend")
	}

	if strings.TrimSpace(cfg.Catalog.ProductsURL) == "" {
		missing = append(missing, "Catalog.ProductsURL")
	}
	if cfg.Catalog.Timeout <= 0 {
		missing = append(missing, "Catalog.Timeout")
	}

	switch cfg.Events.Backend {
	case EventsBackendNone:
	case EventsBackendPubSub:
		if cfg.Events.PubSubProject == "" {
			missing = append(missing, "Events.PubSubProject")
		}
		if cfg.Events.PubSubTopic == "" {
			missing = append(missing, "Events.PubSubTopic")
		}
	case EventsBackendKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
		if cfg.Events.KafkaTopic == "" {
			missing = append(missing, "Events.KafkaTopic")
		}
	case EventsBackendSQS:
		if cfg.Events.SQSQueueURL == "" {
			missing = append(missing, "Events.SQSQueueURL")
		}
	default:
		missing = append(missing, "Events.Backend")
	}

	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		missing = append(missing, "Metrics.Path")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// IsSecretReference reports whether value points at Secret Manager.
func IsSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return parsed
		}
		switch strings.ToLower(value) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func keyValueWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	raw, ok := lookup(key)
	if !ok {
		return map[string]string{}
	}
	return textutil.ParseKeyValueList(raw)
}
