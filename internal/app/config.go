package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/sxxdgaf/antigravity-streetwear-sub000/internal/domain/pricing"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string        `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string        `usage:"HMAC pepper for admin API key hashing (STORE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	PromoRefresh time.Duration `default:"1m" usage:"Interval between promo code reloads" flag:"promo-refresh"`
	Pricing      PricingConfig
	Payment      PaymentConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig holds the shipping tiers and tax rate. Amounts are minor
// currency units.
type PricingConfig struct {
	Currency              string `default:"usd" usage:"ISO currency code of every amount"`
	StandardFee           int64  `default:"300" usage:"Standard shipping fee"`
	ExpressFee            int64  `default:"1000" usage:"Express shipping fee"`
	FreeShippingThreshold int64  `default:"10000" usage:"Subtotal at which standard shipping is free"`
	TaxRate               string `default:"0" usage:"Tax percentage applied after discount, e.g. 8.25"`
}

// Rules converts the config into pricing rules.
func (c PricingConfig) Rules() (pricing.Rules, error) {
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return pricing.Rules{}, errors.Wrapf(err, "parse tax rate %q", c.TaxRate)
	}
	if rate.IsNegative() {
		return pricing.Rules{}, errors.Errorf("tax rate %s is negative", rate)
	}
	if c.StandardFee < 0 || c.ExpressFee < 0 || c.FreeShippingThreshold < 0 {
		return pricing.Rules{}, errors.New("shipping fees and threshold must not be negative")
	}
	return pricing.Rules{
		StandardFee:           c.StandardFee,
		ExpressFee:            c.ExpressFee,
		FreeShippingThreshold: c.FreeShippingThreshold,
		TaxRate:               rate,
	}, nil
}

// PaymentConfig points at the card payment provider. Card checkout reports a
// provider failure while BaseURL is empty.
type PaymentConfig struct {
	BaseURL       string        `usage:"Payment provider API base URL" flag:"payment-base-url"`
	APIKey        string        `usage:"Payment provider secret key (STORE_PAYMENT_API_KEY)" flag:"payment-api-key"`
	Timeout       time.Duration `default:"10s" usage:"Payment provider request timeout"`
	WebhookSecret string        `usage:"Shared secret for payment callback signatures" flag:"payment-webhook-secret"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"5" usage:"Sustained requests per second per client"`
	Burst int     `default:"20" usage:"Burst size per client"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/antigravity/config.yaml"},
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
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if c.APIKeyPepper == "" {
		return errors.New("api key pepper is required: set STORE_API_KEY_PEPPER")
	}
	if c.PromoRefresh <= 0 {
		return errors.New("promo refresh interval must be positive")
	}
	if _, err := c.Pricing.Rules(); err != nil {
		return errors.Wrap(err, "pricing")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT onto the STORE_ configuration.
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
