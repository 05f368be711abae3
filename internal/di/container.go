package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hossain-rashid/Smartshop/internal/platform/config"
	"github.com/hossain-rashid/Smartshop/internal/platform/events"
	pfirestore "github.com/hossain-rashid/Smartshop/internal/platform/firestore"
	"github.com/hossain-rashid/Smartshop/internal/platform/idempotency"
	"github.com/hossain-rashid/Smartshop/internal/platform/kvstore"
	"github.com/hossain-rashid/Smartshop/internal/platform/metrics"
	"github.com/hossain-rashid/Smartshop/internal/platform/observability"
	"github.com/hossain-rashid/Smartshop/internal/platform/storage"
	"github.com/hossain-rashid/Smartshop/internal/repositories"
	"github.com/hossain-rashid/Smartshop/internal/repositories/kv"
	"github.com/hossain-rashid/Smartshop/internal/repositories/sources"
	"github.com/hossain-rashid/Smartshop/internal/services"
)

// Container wires the storefront's repositories, services and supporting infrastructure.
type Container struct {
	Config      config.Config
	Logger      *zap.Logger
	Store       kvstore.Store
	Registry    *kv.Registry
	Metrics     *metrics.Registry
	Idempotency idempotency.Store
	Services    Services

	closers []func(context.Context) error
}

// Services aggregates domain services exposed to the HTTP layer.
type Services struct {
	Catalog  *services.CatalogService
	Balance  *services.BalanceService
	Cart     *services.CartService
	Checkout *services.CheckoutService
	System   *services.SystemService
}

type containerOptions struct {
	store     kvstore.Store
	products  repositories.ProductSource
	reviews   repositories.ReviewSource
	publisher services.OrderEventPublisher
	build     services.BuildInfo
	clock     func() time.Time
}

// Option customises container construction.
type Option func(*containerOptions)

// WithStore replaces the configured storage backend.
func WithStore(store kvstore.Store) Option {
	return func(o *containerOptions) {
		o.store = store
	}
}

// WithSources replaces the configured product and review sources.
func WithSources(products repositories.ProductSource, reviews repositories.ReviewSource) Option {
	return func(o *containerOptions) {
		o.products = products
		o.reviews = reviews
	}
}

// WithPublisher replaces the configured order event publisher.
func WithPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.publisher = publisher
	}
}

// WithBuildInfo sets the build metadata reported by health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the clock handed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the dependency container using the supplied configuration.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewRegistry(),
	}

	store := options.store
	if store == nil {
		opened, err := openStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = opened
	}
	c.Store = store

	products, reviews := options.products, options.reviews
	if products == nil || reviews == nil {
		built, builtReviews, closer, err := buildSources(cfg, logger.Named("catalog"))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if products == nil {
			products = built
		}
		if reviews == nil {
			reviews = builtReviews
		}
		c.closers = append(c.closers, closer)
	}

	publisher := options.publisher
	if publisher == nil {
		built, closer, err := buildPublisher(ctx, cfg, options.clock)
		if err != nil {
			_ = c.Close(ctx)
			_ = store.Close()
			return nil, fmt.Errorf("build event publisher: %w", err)
		}
		publisher = built
		if closer != nil {
			c.closers = append(c.closers, closer)
		}
	}

	svc, registry, err := buildServices(cfg, store, products, reviews, publisher, c.Metrics, logger, options)
	if err != nil {
		_ = c.Close(ctx)
		_ = store.Close()
		return nil, err
	}
	c.Registry = registry
	c.Services = svc

	if cfg.Storage.Backend == config.StorageBackendMemory {
		c.Idempotency = idempotency.NewMemoryStore()
	} else {
		c.Idempotency = idempotency.NewKVStore(store)
	}
	return c, nil
}

// Start restores persisted balance and cart state and performs the initial catalog refresh. Storage
// failures are returned; catalog fetch failures only degrade the catalog.
func (c *Container) Start(ctx context.Context) error {
	if c == nil {
		return errors.New("di: container is nil")
	}
	if _, err := c.Services.Balance.Load(ctx); err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	if _, err := c.Services.Cart.Load(ctx); err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	refresh := c.Services.Catalog.Refresh(ctx)
	c.Metrics.RecordCatalog(refresh)
	if len(refresh.Errors) > 0 {
		c.Logger.Warn("catalog refresh degraded",
			zap.Int("products", refresh.Products),
			zap.Int("reviews", refresh.Reviews),
			zap.Any("errors", refresh.Errors),
		)
	}
	return nil
}

// Close releases resources such as repository clients, publishers, or storage readers.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.Registry != nil {
		if err := c.Registry.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		c.Registry = nil
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.Config) (kvstore.Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		return kvstore.NewMemoryStore(), nil
	case config.StorageBackendPebble:
		return kvstore.NewPebbleStore(cfg.Storage.PebbleDir)
	case config.StorageBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		return kvstore.NewFirestoreStore(provider, cfg.Firestore.Collection)
	case config.StorageBackendDynamoDB:
		client, err := kvstore.NewDynamoDBClient(ctx, cfg.DynamoDB.Region, cfg.DynamoDB.Endpoint)
		if err != nil {
			return nil, err
		}
		return kvstore.NewDynamoDBStore(client, cfg.DynamoDB.Table)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

func buildSources(cfg config.Config, logger *zap.Logger) (*sources.ProductSource, *sources.ReviewSource, func(context.Context) error, error) {
	reader := storage.NewReader()
	opts := []sources.Option{
		sources.WithHTTPClient(&http.Client{Timeout: cfg.Catalog.Timeout}),
		sources.WithLogger(logger),
		sources.WithObjectOpener(reader.Open),
	}
	products, err := sources.NewProductSource(cfg.Catalog.ProductsURL, append(opts, sources.WithBearerToken(cfg.Catalog.APIToken))...)
	if err != nil {
		_ = reader.Close()
		return nil, nil, nil, fmt.Errorf("build product source: %w", err)
	}
	reviews, err := sources.NewReviewSource(cfg.Catalog.ReviewsSource, opts...)
	if err != nil {
		_ = reader.Close()
		return nil, nil, nil, fmt.Errorf("build review source: %w", err)
	}
	return products, reviews, func(context.Context) error { return reader.Close() }, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, clock func() time.Time) (services.OrderEventPublisher, func(context.Context) error, error) {
	eventOpts := []events.Option{events.WithClock(clock), events.WithAttributes(cfg.Events.Attributes)}
	switch cfg.Events.Backend {
	case config.EventsBackendNone, "":
		return nil, nil, nil
	case config.EventsBackendPubSub:
		var clientOpts []option.ClientOption
		if cfg.Events.PubSubHost != "" {
			clientOpts = append(clientOpts,
				option.WithEndpoint(cfg.Events.PubSubHost),
				option.WithoutAuthentication(),
				option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		client, err := pubsub.NewClient(ctx, cfg.Events.PubSubProject, clientOpts...)
		if err != nil {
			return nil, nil, err
		}
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.Events.PubSubTopic), eventOpts...)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return publisher, func(context.Context) error {
			_ = publisher.Close()
			return client.Close()
		}, nil
	case config.EventsBackendKafka:
		writer, err := events.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		publisher, err := events.NewKafkaPublisher(writer, eventOpts...)
		if err != nil {
			_ = writer.Close()
			return nil, nil, err
		}
		return publisher, func(context.Context) error { return publisher.Close() }, nil
	case config.EventsBackendSQS:
		client, err := events.NewSQSClient(ctx, cfg.Events.SQSRegion)
		if err != nil {
			return nil, nil, err
		}
		publisher, err := events.NewSQSPublisher(client, cfg.Events.SQSQueueURL, eventOpts...)
		if err != nil {
			return nil, nil, err
		}
		return publisher, func(context.Context) error { return publisher.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported events backend %q", cfg.Events.Backend)
	}
}

func buildServices(
	cfg config.Config,
	store kvstore.Store,
	products repositories.ProductSource,
	reviews repositories.ReviewSource,
	publisher services.OrderEventPublisher,
	recorder *metrics.Registry,
	logger *zap.Logger,
	options containerOptions,
) (Services, *kv.Registry, error) {
	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: products,
		Reviews:  reviews,
		Timeout:  cfg.Catalog.Timeout,
		Clock:    options.clock,
		Logger:   observability.EventLogger(logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	registry, err := kv.NewRegistry(store, cfg.Storage.Backend, repositories.DependencyCheck{
		Name:     "catalog",
		Optional: true,
		Check:    catalogSvc.Ready,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build repositories: %w", err)
	}

	lock := &sync.Mutex{}
	balanceSvc, err := services.NewBalanceService(services.BalanceServiceDeps{
		Repository: registry.Balances(),
		Lock:       lock,
		Logger:     observability.EventLogger(logger.Named("balance")),
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build balance service: %w", err)
	}
	svc.Balance = balanceSvc

	pricer, err := services.NewPricingEngine(services.PricingEngineDeps{})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build pricing engine: %w", err)
	}

	cartLogger := observability.EventLogger(logger.Named("cart"))
	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository: registry.Carts(),
		Balance:    balanceSvc,
		Pricer:     pricer,
		Observers:  []services.Observer{recorder.Observer(), services.LoggingObserver(cartLogger)},
		Clock:      options.clock,
		Logger:     cartLogger,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Cart:      cartSvc,
		Orders:    registry.Orders(),
		Publisher: publisher,
		Currency:  cfg.Currency,
		Clock:     options.clock,
		Logger:    observability.EventLogger(logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	build := options.build
	if build.Environment == "" {
		build.Environment = cfg.Environment
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: registry.Health(),
		Clock:            options.clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, nil, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, registry, nil
}
