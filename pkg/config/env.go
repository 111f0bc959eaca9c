package config

// EnvPrefix is handed to envconfig; every field carries an explicit key so it is informational.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "STOREFRONT_APP_ENV"
	EnvPort      = "STOREFRONT_APP_PORT"
	EnvDBDSN     = "STOREFRONT_DB_DSN"
	EnvDBHost    = "STOREFRONT_DB_HOST"
	EnvDBUser    = "STOREFRONT_DB_USER"
	EnvDBName    = "STOREFRONT_DB_NAME"
	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvJWTSecret = "STOREFRONT_JWT_SECRET"

	EnvOrdersPermissiveStatus = "STOREFRONT_ORDERS_PERMISSIVE_STATUS"
	EnvRequireEmailConfirm    = "STOREFRONT_AUTH_REQUIRE_EMAIL_CONFIRMATION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
