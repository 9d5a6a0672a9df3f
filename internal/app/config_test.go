package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingConfig_Rules(t *testing.T) {
	rules, err := PricingConfig{StandardFee: 300, ExpressFee: 1000, FreeShippingThreshold: 10000, TaxRate: "8.25"}.Rules()
	require.NoError(t, err)
	assert.Equal(t, int64(300), rules.StandardFee)
	assert.True(t, rules.TaxRate.Equal(decimal.RequireFromString("8.25")))

	_, err = PricingConfig{TaxRate: "eight"}.Rules()
	assert.ErrorContains(t, err, "parse tax rate")

	_, err = PricingConfig{TaxRate: "-1"}.Rules()
	assert.ErrorContains(t, err, "negative")

	_, err = PricingConfig{TaxRate: "0", StandardFee: -1}.Rules()
	assert.Error(t, err)
}

func validConfig() Config {
	return Config{
		Addr:         "0.0.0.0:8080",
		DatabaseURL:  "postgres://localhost/store",
		APIKeyPepper: "pepper",
		PromoRefresh: time.Minute,
		Pricing:      PricingConfig{TaxRate: "0"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"Valid", func(*Config) {}, ""},
		{"NoDatabase", func(c *Config) { c.DatabaseURL = "" }, "database URL is required"},
		{"NoPepper", func(c *Config) { c.APIKeyPepper = "" }, "pepper is required"},
		{"NoRefresh", func(c *Config) { c.PromoRefresh = 0 }, "promo refresh"},
		{"BadTax", func(c *Config) { c.Pricing.TaxRate = "x" }, "pricing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestConfig_ApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg := validConfig()
	cfg.DatabaseURL = ""
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	cfg = validConfig()
	cfg.Addr = "127.0.0.1:7000"
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://localhost/store", cfg.DatabaseURL, "explicit value wins")
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}
