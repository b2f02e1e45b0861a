package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/utafrali/ordercore/internal/domain"
	"github.com/utafrali/ordercore/internal/pricing"
	pkgconfig "github.com/utafrali/ordercore/pkg/config"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the order core service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"ORDER_HTTP_PORT" envDefault:"8004"`

	// Storage backend: postgres or memory
	Store string `env:"ORDER_STORE" envDefault:"postgres"`
	// Catalog seed loaded into the memory store at startup
	SeedFile string `env:"ORDER_SEED_FILE" envDefault:""`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"ORDER_DB_NAME" envDefault:"order_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis
	RedisHost     string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CartTTL       time.Duration `env:"CART_TTL" envDefault:"168h"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Auth
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`

	// Browser origins allowed to call the API
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Unit of work
	TxTimeout time.Duration `env:"ORDER_TX_TIMEOUT" envDefault:"10s"`

	// Checkout
	CODEnabled        bool          `env:"ORDER_COD_ENABLED" envDefault:"true"`
	EnabledGateways   []string      `env:"ORDER_ENABLED_GATEWAYS" envDefault:"stripe,razorpay" envSeparator:","`
	Currency          string        `env:"ORDER_CURRENCY" envDefault:"INR"`
	ShippingFlatRate  int64         `env:"ORDER_SHIPPING_FLAT_RATE" envDefault:"5000"`
	FreeShippingAbove int64         `env:"ORDER_FREE_SHIPPING_ABOVE" envDefault:"100000"`
	CODFee            int64         `env:"ORDER_COD_FEE" envDefault:"0"`
	CouponLockTTL     time.Duration `env:"ORDER_COUPON_LOCK_TTL" envDefault:"30s"`
	AutoCancelOnline  time.Duration `env:"ORDER_AUTO_CANCEL_ONLINE" envDefault:"30m"`
	AutoCancelCOD     time.Duration `env:"ORDER_AUTO_CANCEL_COD" envDefault:"48h"`

	// GST
	GSTOriginState    string           `env:"GST_ORIGIN_STATE" envDefault:"KA"`
	GSTDefaultRateBps int64            `env:"GST_DEFAULT_RATE_BPS" envDefault:"1800"`
	GSTHSNRates       map[string]int64 `env:"GST_HSN_RATES" envSeparator:"," envKeyValSeparator:":"`

	// Payment gateways
	StripeWebhookSecret   string        `env:"STRIPE_WEBHOOK_SECRET" envDefault:""`
	StripeTolerance       time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
	RazorpayWebhookSecret string        `env:"RAZORPAY_WEBHOOK_SECRET" envDefault:""`
	WebhookRPS            float64       `env:"WEBHOOK_RATE_LIMIT_RPS" envDefault:"50"`
	WebhookBurst          int           `env:"WEBHOOK_RATE_LIMIT_BURST" envDefault:"100"`

	// Background workers
	OutboxPollInterval      time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize         int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`
	OutboxMaxAttempts       int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"8"`
	SchedulerPollInterval   time.Duration `env:"AUTO_CANCEL_POLL_INTERVAL" envDefault:"5s"`
	OrphanReconcileInterval time.Duration `env:"ORPHAN_RECONCILE_INTERVAL" envDefault:"1m"`

	// Notification service
	NotificationURL string `env:"NOTIFICATION_SERVICE_URL" envDefault:"http://localhost:8009"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load order config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return fmt.Errorf("ORDER_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.Store == StorePostgres && c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("ORDER_TX_TIMEOUT must be > 0, got %s", c.TxTimeout)
	}
	if c.ShippingFlatRate < 0 || c.FreeShippingAbove < 0 || c.CODFee < 0 {
		return fmt.Errorf("shipping amounts must not be negative")
	}
	if c.CouponLockTTL <= 0 {
		return fmt.Errorf("ORDER_COUPON_LOCK_TTL must be > 0, got %s", c.CouponLockTTL)
	}
	if c.AutoCancelOnline < 0 || c.AutoCancelCOD < 0 {
		return fmt.Errorf("auto-cancel windows must not be negative")
	}
	if c.GSTDefaultRateBps < 0 || c.GSTDefaultRateBps > 10000 {
		return fmt.Errorf("GST_DEFAULT_RATE_BPS must be between 0 and 10000, got %d", c.GSTDefaultRateBps)
	}
	for hsn, rate := range c.GSTHSNRates {
		if rate < 0 || rate > 10000 {
			return fmt.Errorf("GST rate for HSN %s must be between 0 and 10000, got %d", hsn, rate)
		}
	}
	for _, gw := range c.EnabledGateways {
		switch gw {
		case domain.GatewayStripe, domain.GatewayRazorpay:
		default:
			return fmt.Errorf("unknown payment gateway %q in ORDER_ENABLED_GATEWAYS", gw)
		}
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE and OUTBOX_MAX_ATTEMPTS must be > 0")
	}
	if c.OutboxPollInterval <= 0 || c.SchedulerPollInterval <= 0 || c.OrphanReconcileInterval <= 0 {
		return fmt.Errorf("worker poll intervals must be > 0")
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

// RedisAddr returns the host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Settings returns the checkout settings snapshot.
func (c *Config) Settings() domain.Settings {
	gateways := make(map[string]bool, len(c.EnabledGateways))
	for _, gw := range c.EnabledGateways {
		gateways[strings.TrimSpace(gw)] = true
	}
	return domain.Settings{
		CODEnabled:      c.CODEnabled,
		EnabledGateways: gateways,
		Currency:        c.Currency,
		Shipping: domain.ShippingPolicy{
			FlatRate:          c.ShippingFlatRate,
			FreeShippingAbove: c.FreeShippingAbove,
			CODFee:            c.CODFee,
		},
		CouponLockTTL:    c.CouponLockTTL,
		AutoCancelOnline: c.AutoCancelOnline,
		AutoCancelCOD:    c.AutoCancelCOD,
	}
}

// TaxRules returns the GST slab configuration.
func (c *Config) TaxRules() pricing.TaxRules {
	return pricing.TaxRules{
		OriginState:    c.GSTOriginState,
		DefaultRateBps: c.GSTDefaultRateBps,
		HSNRates:       c.GSTHSNRates,
	}
}
