package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Escrow       EscrowConfig
	Stripe       StripeConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Escrow.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CLINKAR_APP_ENV" required:"true"`
	Port         string `envconfig:"CLINKAR_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"CLINKAR_APP_BASE_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"CLINKAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CLINKAR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CLINKAR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CLINKAR_DB_DSN"`
	Driver string `envconfig:"CLINKAR_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CLINKAR_DB_HOST"`
	Port     int    `envconfig:"CLINKAR_DB_PORT" default:"5432"`
	User     string `envconfig:"CLINKAR_DB_USER"`
	Password string `envconfig:"CLINKAR_DB_PASSWORD"`
	Name     string `envconfig:"CLINKAR_DB_NAME"`
	SSLMode  string `envconfig:"CLINKAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CLINKAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLINKAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLINKAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CLINKAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CLINKAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CLINKAR_REDIS_ADDR"`
	Password     string        `envconfig:"CLINKAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"CLINKAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CLINKAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CLINKAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CLINKAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLINKAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CLINKAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CLINKAR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CLINKAR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CLINKAR_JWT_EXPIRATION_MINUTES" default:"60"`
}

// EscrowConfig carries the vault workflow knobs.
type EscrowConfig struct {
	BuyerCommissionMXN string        `envconfig:"CLINKAR_ESCROW_BUYER_COMMISSION_MXN" default:"3448.00"`
	ReservationTTL     time.Duration `envconfig:"CLINKAR_ESCROW_RESERVATION_TTL" default:"30m"`
	WebhookEventTTL    time.Duration `envconfig:"CLINKAR_ESCROW_WEBHOOK_EVENT_TTL" default:"720h"`
	DemoBuyerID        string        `envconfig:"CLINKAR_ESCROW_DEMO_BUYER_ID"`

	commission decimal.Decimal
}

func (e *EscrowConfig) validate() error {
	commission, err := decimal.NewFromString(strings.TrimSpace(e.BuyerCommissionMXN))
	if err != nil {
		return fmt.Errorf("invalid buyer commission %q: %w", e.BuyerCommissionMXN, err)
	}
	if commission.IsNegative() {
		return fmt.Errorf("buyer commission must not be negative")
	}
	if e.ReservationTTL <= 0 {
		return fmt.Errorf("reservation ttl must be positive")
	}
	e.commission = commission
	return nil
}

// BuyerCommission returns the parsed fixed commission in MXN.
func (e EscrowConfig) BuyerCommission() decimal.Decimal {
	return e.commission
}

type StripeConfig struct {
	APIKey string `envconfig:"CLINKAR_STRIPE_API_KEY"`
	Secret string `envconfig:"CLINKAR_STRIPE_SECRET"`
	Env    string `envconfig:"CLINKAR_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type FeatureFlagsConfig struct {
	AutoMigrate     bool `envconfig:"CLINKAR_AUTO_MIGRATE" default:"false"`
	SimulatePayment bool `envconfig:"CLINKAR_SIMULATE_PAYMENT" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
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
