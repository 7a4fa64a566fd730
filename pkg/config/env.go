package config

const (
	EnvPrefix = "MARKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	StorageDriverLocal = "local"
	StorageDriverGCS   = "gcs"
)

const (
	EnvAppEnv          = "MARKET_APP_ENV"
	EnvPort            = "MARKET_APP_PORT"
	EnvDBDSN           = "MARKET_DB_DSN"
	EnvDBDriver        = "MARKET_DB_DRIVER"
	EnvDBHost          = "MARKET_DB_HOST"
	EnvDBUser          = "MARKET_DB_USER"
	EnvDBName          = "MARKET_DB_NAME"
	EnvRedisURL        = "MARKET_REDIS_URL"
	EnvJWTSecret       = "MARKET_JWT_SECRET"
	EnvJWTIssuer       = "MARKET_JWT_ISSUER"
	EnvJWTExpMins      = "MARKET_JWT_EXPIRATION_MINUTES"
	EnvStorageDriver   = "MARKET_STORAGE_DRIVER"
	EnvStorageLocalDir = "MARKET_STORAGE_LOCAL_DIR"
	EnvGCSBucket       = "MARKET_GCS_BUCKET_NAME"
	EnvPaymentDelay    = "MARKET_PAYMENT_SIMULATED_DELAY"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
