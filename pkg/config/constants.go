package config

const EnvPrefix = "BETADOMOT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageDriverMemory = "memory"
	StorageDriverRedis  = "redis"
	StorageDriverSQL    = "sql"
)

const (
	SubmitModeSimulate = "simulate"
	SubmitModeRemote   = "remote"
)

const (
	EnvAppEnv   = "BETADOMOT_APP_ENV"
	EnvPort     = "BETADOMOT_APP_PORT"
	EnvLogLevel = "BETADOMOT_LOG_LEVEL"

	EnvStorageDriver = "BETADOMOT_STORAGE_DRIVER"

	EnvDBDSN  = "BETADOMOT_DB_DSN"
	EnvDBHost = "BETADOMOT_DB_HOST"
	EnvDBUser = "BETADOMOT_DB_USER"
	EnvDBName = "BETADOMOT_DB_NAME"

	EnvRedisURL  = "BETADOMOT_REDIS_URL"
	EnvRedisAddr = "BETADOMOT_REDIS_ADDR"

	EnvPricingThreshold = "BETADOMOT_PRICING_FREE_SHIPPING_THRESHOLD"
	EnvPricingTaxRate   = "BETADOMOT_PRICING_TAX_RATE"

	EnvCheckoutSubmitMode    = "BETADOMOT_CHECKOUT_SUBMIT_MODE"
	EnvCheckoutSubmitTimeout = "BETADOMOT_CHECKOUT_SUBMIT_TIMEOUT"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
