package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Stock        StockConfig
	Checkout     CheckoutConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	switch d := strings.ToLower(strings.TrimSpace(cfg.DB.Driver)); d {
	case DBDriverPostgres, DBDriverSQLite:
		cfg.DB.Driver = d
	default:
		return nil, fmt.Errorf("%s: unsupported driver %q", EnvDBDriver, cfg.DB.Driver)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Stock.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"POSLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"POSLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"POSLEDGER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"POSLEDGER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"POSLEDGER_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"POSLEDGER_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"POSLEDGER_DB_DSN"`
	Driver string `envconfig:"POSLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"POSLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"POSLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"POSLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"POSLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"POSLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"POSLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"POSLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"POSLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"POSLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POSLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	TxRetries          int           `envconfig:"POSLEDGER_DB_TX_RETRIES" default:"2"`
	SlowQueryThreshold time.Duration `envconfig:"POSLEDGER_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"POSLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"POSLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"POSLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"POSLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POSLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POSLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POSLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POSLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POSLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"POSLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"POSLEDGER_AUTO_MIGRATE" default:"false"`
}

type StockConfig struct {
	NotesMaxLength int `envconfig:"POSLEDGER_STOCK_NOTES_MAX_LENGTH" default:"500"`
}

func (s StockConfig) validate() error {
	if s.NotesMaxLength <= 0 {
		return fmt.Errorf("%s must be positive", EnvStockNotesMaxLength)
	}
	return nil
}

type CheckoutConfig struct {
	MaxLines       int           `envconfig:"POSLEDGER_CHECKOUT_MAX_LINES" default:"200"`
	IdempotencyTTL time.Duration `envconfig:"POSLEDGER_CHECKOUT_IDEMPOTENCY_TTL" default:"168h"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"POSLEDGER_CRON_INTERVAL" default:"15m"`
	LockTTL          time.Duration `envconfig:"POSLEDGER_CRON_LOCK_TTL" default:"10m"`
	LowStockAlertTTL time.Duration `envconfig:"POSLEDGER_CRON_LOW_STOCK_ALERT_TTL" default:"24h"`
	RepairDivergence bool          `envconfig:"POSLEDGER_CRON_REPAIR_DIVERGENCE" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"POSLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"POSLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"POSLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	InventoryTopic string `envconfig:"POSLEDGER_PUBSUB_INVENTORY_TOPIC" default:"posledger-inventory-events"`
	OrdersTopic    string `envconfig:"POSLEDGER_PUBSUB_ORDERS_TOPIC" default:"posledger-order-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"POSLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"POSLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"POSLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"POSLEDGER_OUTBOX_RETENTION" default:"720h"`
}

// PollInterval converts the configured poll interval into a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
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
