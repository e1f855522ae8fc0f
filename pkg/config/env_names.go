package config

const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "CLINKAR_DB_DSN"
	EnvDBHost = "CLINKAR_DB_HOST"
	EnvDBUser = "CLINKAR_DB_USER"
	EnvDBName = "CLINKAR_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
