package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	pkgerrors "github.com/angelmondragon/marketsettle/pkg/errors"
	"github.com/angelmondragon/marketsettle/pkg/validate"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Scheduler    SchedulerConfig
	Courier      CourierConfig
	Checkout     CheckoutConfig
	Commission   CommissionConfig
	Notify       NotifyConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, describeInvalid(err)
	}
	return &cfg, nil
}

// describeInvalid folds per-field validation details into one message,
// e.g. "invalid config: Notify.MaxAttempts must be at least 1".
func describeInvalid(err error) error {
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if len(details) == 0 {
		return fmt.Errorf("invalid config: %w", err)
	}
	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = field + " " + details[field]
	}
	return fmt.Errorf("invalid config: %s", strings.Join(parts, "; "))
}

type AppConfig struct {
	Env          string `envconfig:"MARKETSETTLE_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"MARKETSETTLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETSETTLE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"MARKETSETTLE_LOG_FORMAT" default:"json" validate:"oneof=json console"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKETSETTLE_SERVICE_KIND" default:"cron-worker"`

	// MetricsAddr enables the Prometheus listener, e.g. ":9102".
	MetricsAddr string `envconfig:"MARKETSETTLE_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETSETTLE_DB_DSN"`
	Driver string `envconfig:"MARKETSETTLE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETSETTLE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETSETTLE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETSETTLE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETSETTLE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETSETTLE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETSETTLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETSETTLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETSETTLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETSETTLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETSETTLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQuery time.Duration `envconfig:"MARKETSETTLE_DB_SLOW_QUERY" default:"500ms"`
	// TxAttempts bounds retries of transactions aborted by a serialization
	// failure or deadlock.
	TxAttempts int `envconfig:"MARKETSETTLE_DB_TX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETSETTLE_REDIS_URL"`
	Address      string        `envconfig:"MARKETSETTLE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETSETTLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETSETTLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETSETTLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETSETTLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETSETTLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETSETTLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETSETTLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARKETSETTLE_AUTO_MIGRATE" default:"false"`
}

// SchedulerConfig drives the recurring billing sweep and the courier sync sweep.
type SchedulerConfig struct {
	Interval          time.Duration `envconfig:"MARKETSETTLE_SCHEDULER_INTERVAL" default:"1h"`
	RenewalBatchSize  int           `envconfig:"MARKETSETTLE_SCHEDULER_RENEWAL_BATCH_SIZE" default:"50" validate:"min=1"`
	CourierBatchSize  int           `envconfig:"MARKETSETTLE_SCHEDULER_COURIER_BATCH_SIZE" default:"100" validate:"min=1"`
	CourierSyncActive bool          `envconfig:"MARKETSETTLE_SCHEDULER_COURIER_SYNC" default:"true"`
	LockTTL           time.Duration `envconfig:"MARKETSETTLE_SCHEDULER_LOCK_TTL" default:"2h"`
}

// NotifyConfig drives outbox delivery to the notification webhook. An empty
// WebhookURL leaves events queued.
type NotifyConfig struct {
	WebhookURL     string `envconfig:"MARKETSETTLE_NOTIFY_WEBHOOK_URL" validate:"omitempty,url"`
	Token          string `envconfig:"MARKETSETTLE_NOTIFY_TOKEN"`
	TimeoutSeconds int    `envconfig:"MARKETSETTLE_NOTIFY_TIMEOUT_SECONDS" default:"10"`
	BatchSize      int    `envconfig:"MARKETSETTLE_NOTIFY_BATCH_SIZE" default:"50" validate:"min=1"`
	MaxAttempts    int    `envconfig:"MARKETSETTLE_NOTIFY_MAX_ATTEMPTS" default:"10" validate:"min=1"`
	RetentionDays  int    `envconfig:"MARKETSETTLE_NOTIFY_RETENTION_DAYS" default:"30" validate:"min=1"`
}

// CourierConfig seeds the courier settings when the settings row leaves them blank.
type CourierConfig struct {
	Enabled           bool    `envconfig:"MARKETSETTLE_COURIER_ENABLED" default:"false"`
	Provider          string  `envconfig:"MARKETSETTLE_COURIER_PROVIDER" default:"steadfast"`
	BaseURL           string  `envconfig:"MARKETSETTLE_COURIER_BASE_URL" validate:"omitempty,url"`
	ConsignmentPath   string  `envconfig:"MARKETSETTLE_COURIER_CONSIGNMENT_PATH" default:"/create_order"`
	TrackingPath      string  `envconfig:"MARKETSETTLE_COURIER_TRACKING_PATH" default:"/status_by_cid/{id}"`
	APIKey            string  `envconfig:"MARKETSETTLE_COURIER_API_KEY"`
	SecretKey         string  `envconfig:"MARKETSETTLE_COURIER_SECRET_KEY"`
	BearerToken       string  `envconfig:"MARKETSETTLE_COURIER_BEARER_TOKEN"`
	TimeoutSeconds    int     `envconfig:"MARKETSETTLE_COURIER_TIMEOUT_SECONDS" default:"12"`
	RequestsPerSecond float64 `envconfig:"MARKETSETTLE_COURIER_RPS" default:"5" validate:"gt=0"`
}

// CheckoutConfig tunes order placement.
type CheckoutConfig struct {
	OrderNumberPrefix string `envconfig:"MARKETSETTLE_ORDER_NUMBER_PREFIX" default:"ORD"`
	// BlockLowSuccessRate also refuses customers whose risk tier is
	// blacklisted only because fewer than 40% of their orders were
	// delivered. Accounts flagged blacklisted are refused regardless.
	BlockLowSuccessRate bool   `envconfig:"MARKETSETTLE_CHECKOUT_BLOCK_LOW_SUCCESS_RATE" default:"false"`
	Currency            string `envconfig:"MARKETSETTLE_CURRENCY" default:"BDT" validate:"len=3"`
}

// CommissionConfig is the global rule used until the settings row is configured.
type CommissionConfig struct {
	Type        string  `envconfig:"MARKETSETTLE_COMMISSION_TYPE" default:"percentage" validate:"oneof=percentage fixed hybrid"`
	Value       float64 `envconfig:"MARKETSETTLE_COMMISSION_VALUE" default:"10" validate:"gte=0"`
	FixedAmount float64 `envconfig:"MARKETSETTLE_COMMISSION_FIXED_AMOUNT" default:"0" validate:"gte=0"`
}

// Timeout returns the courier HTTP timeout, defaulting to 12s and never below 1s.
func (c CourierConfig) Timeout() time.Duration {
	seconds := c.TimeoutSeconds
	if seconds == 0 {
		seconds = DefaultCourierTimeoutSeconds
	}
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
