package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Payment       PaymentConfig
	Cache         CacheConfig
	Storage       StorageConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKET_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"MARKET_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	out := []string{}
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"MARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MARKET_DB_DSN"`
	Driver string `envconfig:"MARKET_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MARKET_DB_HOST"`
	Port     int    `envconfig:"MARKET_DB_PORT" default:"5432"`
	User     string `envconfig:"MARKET_DB_USER"`
	Password string `envconfig:"MARKET_DB_PASSWORD"`
	Name     string `envconfig:"MARKET_DB_NAME"`
	SSLMode  string `envconfig:"MARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"MARKET_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the local sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKET_REDIS_URL"`
	Address      string        `envconfig:"MARKET_REDIS_ADDR"`
	Password     string        `envconfig:"MARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"MARKET_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"MARKET_JWT_ISSUER" default:"marketplace"`
	ExpirationMinutes      int    `envconfig:"MARKET_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"MARKET_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MARKET_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MARKET_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MARKET_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MARKET_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MARKET_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"MARKET_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"MARKET_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"MARKET_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"MARKET_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"MARKET_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"MARKET_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate  bool `envconfig:"MARKET_AUTO_MIGRATE" default:"false"`
	ProductCache bool `envconfig:"MARKET_PRODUCT_CACHE" default:"true"`
}

type PaymentConfig struct {
	SimulatedDelay time.Duration `envconfig:"MARKET_PAYMENT_SIMULATED_DELAY" default:"2s"`
}

type CacheConfig struct {
	ProductListTTL time.Duration `envconfig:"MARKET_CACHE_PRODUCT_LIST_TTL" default:"5m"`
}

type StorageConfig struct {
	Driver        string `envconfig:"MARKET_STORAGE_DRIVER" default:"local"`
	LocalDir      string `envconfig:"MARKET_STORAGE_LOCAL_DIR" default:"uploads"`
	PublicBaseURL string `envconfig:"MARKET_STORAGE_PUBLIC_BASE_URL" default:"/uploads"`
	GCSBucket     string `envconfig:"MARKET_GCS_BUCKET_NAME"`
	MaxUploadMB   int    `envconfig:"MARKET_MAX_UPLOAD_MB" default:"10"`
	MaxImages     int    `envconfig:"MARKET_MAX_PRODUCT_IMAGES" default:"8"`
}

// UsesGCS reports whether product images go to Google Cloud Storage.
func (s StorageConfig) UsesGCS() bool {
	return strings.EqualFold(strings.TrimSpace(s.Driver), StorageDriverGCS)
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case StorageDriverLocal:
		if strings.TrimSpace(s.LocalDir) == "" {
			return fmt.Errorf("%s is required for local storage", EnvStorageLocalDir)
		}
	case StorageDriverGCS:
		if strings.TrimSpace(s.GCSBucket) == "" {
			return fmt.Errorf("%s is required for gcs storage", EnvGCSBucket)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", s.Driver)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MARKET_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic   string `envconfig:"MARKET_PUBSUB_ORDERS_TOPIC" default:"market-order-events"`
	ProductsTopic string `envconfig:"MARKET_PUBSUB_PRODUCTS_TOPIC" default:"market-product-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval               time.Duration `envconfig:"MARKET_CRON_INTERVAL" default:"1h"`
	PendingOrderTTL        time.Duration `envconfig:"MARKET_CRON_PENDING_ORDER_TTL" default:"48h"`
	NotificationRetainDays int           `envconfig:"MARKET_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
	OutboxRetainDays       int           `envconfig:"MARKET_CRON_OUTBOX_RETENTION_DAYS" default:"14"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:marketplace.db?cache=shared&_foreign_keys=on"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
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
