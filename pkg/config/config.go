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
	App      AppConfig
	Storage  StorageConfig
	DB       DBConfig
	Redis    RedisConfig
	Pricing  PricingConfig
	Backend  BackendConfig
	Checkout CheckoutConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	if cfg.Storage.Driver == StorageDriverSQL {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if cfg.Storage.Driver == StorageDriverRedis && cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("%s or %s is required for the redis storage driver", EnvRedisURL, EnvRedisAddr)
	}
	if _, err := cfg.Pricing.TaxRateDecimal(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BETADOMOT_APP_ENV" required:"true"`
	Port         string `envconfig:"BETADOMOT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BETADOMOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BETADOMOT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"BETADOMOT_LOG_FORMAT" default:"json"`

	CORSOrigins     []string      `envconfig:"BETADOMOT_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"BETADOMOT_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StorageConfig selects the key-value backend holding carts and wishlists.
type StorageConfig struct {
	Driver    string `envconfig:"BETADOMOT_STORAGE_DRIVER" default:"memory"`
	CacheSize int    `envconfig:"BETADOMOT_STORAGE_CACHE_SIZE" default:"10000"`
}

func (s *StorageConfig) validate() error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case StorageDriverMemory, StorageDriverRedis, StorageDriverSQL:
		return nil
	}
	return fmt.Errorf("%s must be one of %s, %s, %s", EnvStorageDriver, StorageDriverMemory, StorageDriverRedis, StorageDriverSQL)
}

type DBConfig struct {
	DSN    string `envconfig:"BETADOMOT_DB_DSN"`
	Driver string `envconfig:"BETADOMOT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BETADOMOT_DB_HOST"`
	Port     int    `envconfig:"BETADOMOT_DB_PORT" default:"5432"`
	User     string `envconfig:"BETADOMOT_DB_USER"`
	Password string `envconfig:"BETADOMOT_DB_PASSWORD"`
	Name     string `envconfig:"BETADOMOT_DB_NAME"`
	SSLMode  string `envconfig:"BETADOMOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BETADOMOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BETADOMOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BETADOMOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BETADOMOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"BETADOMOT_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BETADOMOT_REDIS_URL"`
	Address      string        `envconfig:"BETADOMOT_REDIS_ADDR"`
	Password     string        `envconfig:"BETADOMOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"BETADOMOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BETADOMOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BETADOMOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BETADOMOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BETADOMOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BETADOMOT_REDIS_WRITE_TIMEOUT" default:"5s"`

	// StateTTL expires idle carts and wishlists; zero keeps them forever.
	StateTTL time.Duration `envconfig:"BETADOMOT_REDIS_STATE_TTL" default:"720h"`
}

// Configured reports whether enough settings exist to dial redis.
func (r RedisConfig) Configured() bool {
	return r.URL != "" || r.Address != ""
}

// PricingConfig holds the business constants for totals. Amounts are minor currency units.
type PricingConfig struct {
	FreeShippingThreshold int64  `envconfig:"BETADOMOT_PRICING_FREE_SHIPPING_THRESHOLD" default:"5000000"`
	FlatShippingFee       int64  `envconfig:"BETADOMOT_PRICING_FLAT_SHIPPING_FEE" default:"500000"`
	TaxRate               string `envconfig:"BETADOMOT_PRICING_TAX_RATE" default:"0.075"`
	Currency              string `envconfig:"BETADOMOT_PRICING_CURRENCY" default:"NGN"`
}

// TaxRateDecimal parses the configured tax rate.
func (p PricingConfig) TaxRateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(p.TaxRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvPricingTaxRate, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvPricingTaxRate)
	}
	return rate, nil
}

type BackendConfig struct {
	BaseURL             string        `envconfig:"BETADOMOT_BACKEND_BASE_URL" default:"http://localhost:8080"`
	Timeout             time.Duration `envconfig:"BETADOMOT_BACKEND_TIMEOUT" default:"10s"`
	ProductRetries      uint64        `envconfig:"BETADOMOT_BACKEND_PRODUCT_RETRIES" default:"2"`
	RetryBase           time.Duration `envconfig:"BETADOMOT_BACKEND_RETRY_BASE" default:"100ms"`
	BreakerFailures     uint32        `envconfig:"BETADOMOT_BACKEND_BREAKER_FAILURES" default:"5"`
	BreakerOpenTimeout  time.Duration `envconfig:"BETADOMOT_BACKEND_BREAKER_OPEN_TIMEOUT" default:"30s"`
	BreakerHalfOpenReqs uint32        `envconfig:"BETADOMOT_BACKEND_BREAKER_HALF_OPEN_REQUESTS" default:"1"`
}

type CheckoutConfig struct {
	SubmitMode     string        `envconfig:"BETADOMOT_CHECKOUT_SUBMIT_MODE" default:"simulate"`
	SimulatedDelay time.Duration `envconfig:"BETADOMOT_CHECKOUT_SIMULATED_DELAY" default:"3s"`
	SubmitTimeout  time.Duration `envconfig:"BETADOMOT_CHECKOUT_SUBMIT_TIMEOUT" default:"15s"`
	DefaultCountry string        `envconfig:"BETADOMOT_CHECKOUT_DEFAULT_COUNTRY" default:"Nigeria"`
	DeliveryDays   int           `envconfig:"BETADOMOT_CHECKOUT_DELIVERY_DAYS" default:"7"`
	SessionTTL     time.Duration `envconfig:"BETADOMOT_CHECKOUT_SESSION_TTL" default:"2h"`
}

func (c *CheckoutConfig) validate() error {
	c.SubmitMode = strings.ToLower(strings.TrimSpace(c.SubmitMode))
	switch c.SubmitMode {
	case SubmitModeSimulate, SubmitModeRemote:
	default:
		return fmt.Errorf("%s must be %s or %s", EnvCheckoutSubmitMode, SubmitModeSimulate, SubmitModeRemote)
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutSubmitTimeout)
	}
	return nil
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
	for _, env := range splitDBEnvVars {
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
