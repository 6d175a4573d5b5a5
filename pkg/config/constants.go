package config

const (
	EnvPrefix = "MARKETSETTLE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "MARKETSETTLE_APP_ENV"
	EnvDBDSN    = "MARKETSETTLE_DB_DSN"
	EnvDBHost   = "MARKETSETTLE_DB_HOST"
	EnvDBUser   = "MARKETSETTLE_DB_USER"
	EnvDBName   = "MARKETSETTLE_DB_NAME"
	EnvDBPass   = "MARKETSETTLE_DB_PASSWORD"
	EnvRedisURL = "MARKETSETTLE_REDIS_URL"

	EnvSchedulerInterval  = "MARKETSETTLE_SCHEDULER_INTERVAL"
	EnvRenewalBatchSize   = "MARKETSETTLE_SCHEDULER_RENEWAL_BATCH_SIZE"
	EnvCourierBaseURL     = "MARKETSETTLE_COURIER_BASE_URL"
	EnvCourierTimeoutSecs = "MARKETSETTLE_COURIER_TIMEOUT_SECONDS"

	DefaultCourierTimeoutSeconds = 12
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
