package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Payments     PaymentsConfig
	Square       SquareConfig
	Checkout     CheckoutConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MARKETPLACE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"MARKETPLACE_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, AppEnvProduction)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETPLACE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MARKETPLACE_DB_HOST"`
	Port     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	User     string `envconfig:"MARKETPLACE_DB_USER"`
	Password string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	Name     string `envconfig:"MARKETPLACE_DB_NAME"`
	SSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	TxMaxRetries int           `envconfig:"MARKETPLACE_DB_TX_MAX_RETRIES" default:"3"`
	TxRetryBase  time.Duration `envconfig:"MARKETPLACE_DB_TX_RETRY_BASE" default:"20ms"`

	// SlowQuery logs statements slower than this at warn; zero disables it.
	SlowQuery time.Duration `envconfig:"MARKETPLACE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`

	IdempotencyTTL  time.Duration `envconfig:"MARKETPLACE_IDEMPOTENCY_TTL" default:"24h"`
	WebhookEventTTL time.Duration `envconfig:"MARKETPLACE_WEBHOOK_EVENT_TTL" default:"720h"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" default:"60"`

	// Leeway tolerates clock skew between the issuer and this service.
	Leeway time.Duration `envconfig:"MARKETPLACE_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETPLACE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

// PaymentsConfig holds the provider-agnostic payment settings.
type PaymentsConfig struct {
	Provider      string `envconfig:"MARKETPLACE_PAYMENTS_PROVIDER" default:"square"`
	KeySecret     string `envconfig:"MARKETPLACE_PAYMENTS_KEY_SECRET" required:"true"`
	WebhookSecret string `envconfig:"MARKETPLACE_PAYMENTS_WEBHOOK_SECRET"`
	Currency      string `envconfig:"MARKETPLACE_PAYMENTS_CURRENCY" default:"USD"`
}

func (p PaymentsConfig) ProviderName() string {
	return strings.TrimSpace(strings.ToLower(p.Provider))
}

func (p PaymentsConfig) validate() error {
	switch p.ProviderName() {
	case PaymentProviderSquare, PaymentProviderLocal:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPaymentsProvider, PaymentProviderSquare, PaymentProviderLocal)
	}
}

type SquareConfig struct {
	AccessToken string `envconfig:"MARKETPLACE_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"MARKETPLACE_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"MARKETPLACE_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// CheckoutConfig drives the shipping/tax calculators and the unpaid order TTL.
type CheckoutConfig struct {
	FlatShipping    string        `envconfig:"MARKETPLACE_CHECKOUT_FLAT_SHIPPING" default:"0"`
	TaxRatePercent  string        `envconfig:"MARKETPLACE_CHECKOUT_TAX_RATE_PERCENT" default:"0"`
	PendingOrderTTL time.Duration `envconfig:"MARKETPLACE_CHECKOUT_PENDING_ORDER_TTL" default:"48h"`
}

func (c CheckoutConfig) ShippingAmount() decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(c.FlatShipping))
	if err != nil {
		return decimal.Zero
	}
	return v
}

func (c CheckoutConfig) TaxRate() decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(c.TaxRatePercent))
	if err != nil {
		return decimal.Zero
	}
	return v
}

func (c CheckoutConfig) validate() error {
	if _, err := decimal.NewFromString(strings.TrimSpace(c.FlatShipping)); err != nil {
		return fmt.Errorf("%s: %w", EnvCheckoutFlatShipping, err)
	}
	if _, err := decimal.NewFromString(strings.TrimSpace(c.TaxRatePercent)); err != nil {
		return fmt.Errorf("%s: %w", EnvCheckoutTaxRate, err)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MARKETPLACE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MARKETPLACE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"MARKETPLACE_PUBSUB_ORDERS_TOPIC" default:"marketplace-order-events"`
	DLQTopic    string `envconfig:"MARKETPLACE_PUBSUB_DLQ_TOPIC" default:"marketplace-order-events-dlq"`
}

type BigQueryConfig struct {
	Dataset              string `envconfig:"MARKETPLACE_BIGQUERY_DATASET" default:"marketplace"`
	FinanceSnapshotTable string `envconfig:"MARKETPLACE_BIGQUERY_FINANCE_TABLE" default:"finance_snapshots"`
	PayoutSnapshotTable  string `envconfig:"MARKETPLACE_BIGQUERY_PAYOUTS_TABLE" default:"payout_snapshots"`

	// AutoCreateTables creates missing snapshot tables from the row schema.
	AutoCreateTables bool `envconfig:"MARKETPLACE_BIGQUERY_AUTO_CREATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// RateLimitConfig throttles unauthenticated order placement and tracking.
type RateLimitConfig struct {
	GuestWindow     time.Duration `envconfig:"MARKETPLACE_GUEST_RATE_WINDOW" default:"10m"`
	GuestIPLimit    int           `envconfig:"MARKETPLACE_GUEST_RATE_IP_LIMIT" default:"30"`
	GuestEmailLimit int           `envconfig:"MARKETPLACE_GUEST_RATE_EMAIL_LIMIT" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"MARKETPLACE_CRON_INTERVAL" default:"1h"`
	LockTTL         time.Duration `envconfig:"MARKETPLACE_CRON_LOCK_TTL" default:"55m"`
	OutboxRetention time.Duration `envconfig:"MARKETPLACE_CRON_OUTBOX_RETENTION" default:"720h"`
	FinanceSnapshot bool          `envconfig:"MARKETPLACE_CRON_FINANCE_SNAPSHOT" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	discreteValues := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if discreteValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
