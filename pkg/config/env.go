package config

const EnvPrefix = ""

const (
	AppEnvDev        = "dev"
	AppEnvProd       = "prod"
	AppEnvProduction = "production"

	PaymentProviderSquare = "square"
	PaymentProviderLocal  = "local"
)

const (
	EnvAppEnv               = "MARKETPLACE_APP_ENV"
	EnvPort                 = "MARKETPLACE_APP_PORT"
	EnvDBDSN                = "MARKETPLACE_DB_DSN"
	EnvDBHost               = "MARKETPLACE_DB_HOST"
	EnvDBUser               = "MARKETPLACE_DB_USER"
	EnvDBName               = "MARKETPLACE_DB_NAME"
	EnvRedisURL             = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret            = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer            = "MARKETPLACE_JWT_ISSUER"
	EnvJWTExpMins           = "MARKETPLACE_JWT_EXPIRATION_MINUTES"
	EnvPaymentsProvider     = "MARKETPLACE_PAYMENTS_PROVIDER"
	EnvPaymentsKeySecret    = "MARKETPLACE_PAYMENTS_KEY_SECRET"
	EnvPaymentsWebhook      = "MARKETPLACE_PAYMENTS_WEBHOOK_SECRET"
	EnvCheckoutFlatShipping = "MARKETPLACE_CHECKOUT_FLAT_SHIPPING"
	EnvCheckoutTaxRate      = "MARKETPLACE_CHECKOUT_TAX_RATE_PERCENT"
	EnvPubSubOrdersTopic    = "MARKETPLACE_PUBSUB_ORDERS_TOPIC"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
