package config

const EnvPrefix = "POSLEDGER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "POSLEDGER_APP_ENV"
	EnvPort     = "POSLEDGER_APP_PORT"
	EnvLogLevel = "POSLEDGER_LOG_LEVEL"

	EnvDBDSN    = "POSLEDGER_DB_DSN"
	EnvDBDriver = "POSLEDGER_DB_DRIVER"
	EnvDBHost   = "POSLEDGER_DB_HOST"
	EnvDBUser   = "POSLEDGER_DB_USER"
	EnvDBName   = "POSLEDGER_DB_NAME"

	EnvRedisURL = "POSLEDGER_REDIS_URL"

	EnvStockNotesMaxLength = "POSLEDGER_STOCK_NOTES_MAX_LENGTH"
	EnvCronInterval        = "POSLEDGER_CRON_INTERVAL"
	EnvGCPProjectID        = "POSLEDGER_GCP_PROJECT_ID"
	EnvPubSubInventory     = "POSLEDGER_PUBSUB_INVENTORY_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
