package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/ordercore/internal/config"
	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/event"
	handler "github.com/utafrali/ordercore/internal/handler/http"
	"github.com/utafrali/ordercore/internal/notification"
	"github.com/utafrali/ordercore/internal/outbox"
	"github.com/utafrali/ordercore/internal/payment"
	"github.com/utafrali/ordercore/internal/repository"
	"github.com/utafrali/ordercore/internal/repository/compensating"
	"github.com/utafrali/ordercore/internal/repository/memory"
	"github.com/utafrali/ordercore/internal/repository/postgres"
	redisrepo "github.com/utafrali/ordercore/internal/repository/redis"
	"github.com/utafrali/ordercore/internal/scheduler"
	"github.com/utafrali/ordercore/internal/service"
	"github.com/utafrali/ordercore/migrations"
	"github.com/utafrali/ordercore/pkg/database"
	"github.com/utafrali/ordercore/pkg/health"
	"github.com/utafrali/ordercore/pkg/httpclient"
	pkgkafka "github.com/utafrali/ordercore/pkg/kafka"
	"github.com/utafrali/ordercore/pkg/middleware"
	"github.com/utafrali/ordercore/pkg/tracing"
)

const (
	serviceName = "ordercore"

	orphanBatchSize     = 100
	idempotencyTTL      = 24 * time.Hour
	idempotencyKeyspace = "ordercore:kafka:processed"
)

// App wires together all dependencies and runs the order core service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	consumers      []*pkgkafka.Consumer
	relay          *outbox.Relay
	scheduler      *scheduler.AutoCancelScheduler
	orderService   *service.OrderService
	reconciler     *service.Reconciler
	tracerShutdown func(context.Context) error
	stopRouter     context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	// Select the store backend.
	var (
		pool  *pgxpool.Pool
		store repository.Store
		uow   repository.UnitOfWork
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err = openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		store = postgres.NewStore(pool)
		uow = postgres.NewUnitOfWork(pool, cfg.TxTimeout)
		healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	default:
		db, err := openMemory(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		store = db.Store()
		uow = compensating.New(store, cfg.TxTimeout, logger)
		logger.Warn("using in-memory store, data is lost on restart")
	}

	// Initialize Redis for carts, coupon locks, auto-cancel timers and consumer idempotency.
	redisCfg := database.DefaultRedisConfig()
	redisCfg.Host = cfg.RedisHost
	redisCfg.Port = cfg.RedisPort
	redisCfg.Password = cfg.RedisPassword
	redisCfg.DB = cfg.RedisDB
	redisClient, err := database.NewRedisClient(ctx, redisCfg, logger)
	if err != nil {
		closePool(pool)
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr()))
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	// Initialize Kafka producer with connection validation and retry.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// Build the dependency graph.
	carts := redisrepo.NewCartRepository(redisClient, cfg.CartTTL)
	orderService := service.NewOrderService(
		uow, store, carts, redisrepo.NewCouponLock(redisClient),
		service.StaticSettings(cfg.Settings()), cfg.TaxRules(), logger,
	)
	reconciler := service.NewReconciler(uow, store, gatewayRegistry(cfg, logger), logger)

	schedCfg := scheduler.DefaultConfig()
	schedCfg.PollInterval = cfg.SchedulerPollInterval
	autoCancel := scheduler.New(redisClient, schedCfg, logger)

	notifyClient := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("notification-service"),
		logger,
	)
	dispatcher := notification.NewDispatcher(notifyClient, cfg.NotificationURL, logger)
	sideEffects := service.NewSideEffects(orderService, autoCancel, dispatcher, logger)

	relayCfg := outbox.DefaultConfig()
	relayCfg.PollInterval = cfg.OutboxPollInterval
	relayCfg.BatchSize = cfg.OutboxBatchSize
	relayCfg.MaxAttempts = cfg.OutboxMaxAttempts
	relay := outbox.NewRelay(store.Outbox, relayCfg, logger)
	relay.Register("kafka", event.NewOutboxPublisher(producer, logger).Handle)
	relay.Register("auto_cancel", sideEffects.AutoCancelTimers)
	relay.Register("invoice", sideEffects.Invoices)
	relay.Register("notification", sideEffects.Notifications)

	// Set up Kafka consumers for payment events.
	idempotencyStore := pkgkafka.NewRedisIdempotencyStore(redisClient, idempotencyKeyspace, idempotencyTTL)
	paymentConsumer := event.NewPaymentConsumer(reconciler, logger)
	consumers := event.NewPaymentConsumers(
		cfg.KafkaBrokers,
		pkgkafka.IdempotentHandler(idempotencyStore, paymentConsumer.Handle, logger),
		logger,
	)

	// HTTP router.
	routerCtx, stopRouter := context.WithCancel(context.Background())
	router := handler.NewRouter(routerCtx, handler.Services{
		Orders:     orderService,
		Carts:      service.NewCartService(carts, store.Inventory, store.Coupons, logger),
		Inventory:  service.NewInventoryService(uow, store, logger),
		Reconciler: reconciler,
	}, middleware.NewJWTValidator(cfg.JWTSecret), healthHandler, handler.RouterConfig{
		WebhookRPS:     cfg.WebhookRPS,
		WebhookBurst:   cfg.WebhookBurst,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		consumers:      consumers,
		relay:          relay,
		scheduler:      autoCancel,
		orderService:   orderService,
		reconciler:     reconciler,
		tracerShutdown: tracerShutdown,
		stopRouter:     stopRouter,
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, serviceName)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}
	return pool, nil
}

func openMemory(seedFile string) (*memory.DB, error) {
	db := memory.NewDB()
	if seedFile == "" {
		return db, nil
	}
	f, err := os.Open(seedFile)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	if err := db.Load(f); err != nil {
		return nil, fmt.Errorf("load seed file %s: %w", seedFile, err)
	}
	return db, nil
}

// gatewayRegistry registers a verifier for every enabled gateway that has a
// webhook secret configured.
func gatewayRegistry(cfg *config.Config, logger *slog.Logger) *payment.Registry {
	var verifiers []payment.Verifier
	settings := cfg.Settings()
	if settings.EnabledGateways[domain.GatewayStripe] {
		if cfg.StripeWebhookSecret == "" {
			logger.Warn("stripe is enabled but STRIPE_WEBHOOK_SECRET is empty, webhooks will be rejected")
		} else {
			verifiers = append(verifiers, payment.NewStripeVerifier(cfg.StripeWebhookSecret, cfg.StripeTolerance))
		}
	}
	if settings.EnabledGateways[domain.GatewayRazorpay] {
		if cfg.RazorpayWebhookSecret == "" {
			logger.Warn("razorpay is enabled but RAZORPAY_WEBHOOK_SECRET is empty, webhooks will be rejected")
		} else {
			verifiers = append(verifiers, payment.NewRazorpayVerifier(cfg.RazorpayWebhookSecret))
		}
	}
	return payment.NewRegistry(verifiers...)
}

// Run starts the HTTP server, Kafka consumers, and background workers, then
// blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	// Consumers and workers stop before Shutdown closes the clients they use.
	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start Kafka consumers.
	for _, c := range a.consumers {
		go func() {
			if err := c.Start(workCtx); err != nil && workCtx.Err() == nil {
				errCh <- fmt.Errorf("payment consumer: %w", err)
			}
		}()
	}

	// Start background workers.
	stopWorkers := startWorkers(workCtx,
		a.relay.Run,
		func(ctx context.Context) { a.scheduler.Run(ctx, a.orderService) },
		a.runOrphanReconcile,
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("component failed, shutting down", slog.String("error", runErr.Error()))
	}

	cancelWork()
	stopWorkers()
	return errors.Join(runErr, a.Shutdown())
}

// startWorkers runs each worker in its own goroutine. The returned function
// cancels them and blocks until all have returned.
func startWorkers(ctx context.Context, workers ...func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w(ctx)
		}()
	}
	return func() {
		cancel()
		wg.Wait()
	}
}

// runOrphanReconcile periodically re-drives webhook events that arrived
// before their order existed.
func (a *App) runOrphanReconcile(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.OrphanReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolved, err := a.reconciler.ReconcileOrphans(ctx, orphanBatchSize)
			if err != nil {
				a.logger.Error("orphan webhook reconcile error", slog.String("error", err.Error()))
			} else if resolved > 0 {
				a.logger.Info("orphan webhooks resolved", slog.Int("resolved", resolved))
			}
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumers
// 4. Kafka producer
// 5. Redis client
// 6. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.stopRouter()

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka consumers.
	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("payment consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close Redis.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 6. Close PostgreSQL pool.
	closePool(a.pool)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if lastErr = producer.Ping(ctx); lastErr == nil {
			return nil
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
