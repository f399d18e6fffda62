package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
)

// Config is the storefront API configuration. Values come from STOREFRONT_*
// environment variables, flags and config.yaml.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (STOREFRONT_API_KEY_PEPPER)" flag:"api-key-pepper"`
	VoucherAPI   VoucherAPIConfig
	Orders       OrdersConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// VoucherAPIConfig points at the remote voucher catalog.
type VoucherAPIConfig struct {
	BaseURL       string        `usage:"Voucher catalog base URL" flag:"voucher-api-url"`
	Timeout       time.Duration `default:"10s" usage:"Voucher catalog request timeout"`
	ProbeInterval time.Duration `default:"15s" usage:"Voucher catalog connectivity probe interval"`
}

// OrdersConfig controls the order lifecycle.
type OrdersConfig struct {
	CancelProcessing bool `default:"true" usage:"Allow cancelling processing orders" flag:"cancel-processing"`
	CancelShipping   bool `default:"true" usage:"Allow cancelling shipping orders" flag:"cancel-shipping"`
}

// CancelPolicy returns the configured order cancel policy.
func (c OrdersConfig) CancelPolicy() order.CancelPolicy {
	return order.CancelPolicy{
		AllowProcessing: c.CancelProcessing,
		AllowShipping:   c.CancelShipping,
	}
}

// RateLimitConfig sets request budgets per client and window. Checkout has
// its own budget.
type RateLimitConfig struct {
	Max      int           `default:"100" usage:"Max requests per window"`
	Checkout int           `default:"10"  usage:"Max checkout attempts per window"`
	Window   time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig bounds the drain on shutdown.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads and validates the configuration.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if c.VoucherAPI.BaseURL == "" {
		return errors.New("voucher API URL is required: set STOREFRONT_VOUCHER_API_BASE_URL")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 || c.RateLimit.Checkout <= 0 {
		return errors.New("rate limit window and budgets must be positive")
	}
	return nil
}

// applyPlatformDefaults honors the bare DATABASE_URL and PORT variables set by
// hosting platforms when the prefixed ones are absent.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
