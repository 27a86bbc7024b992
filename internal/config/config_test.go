package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":             "postgres://localhost/checkout",
		"REDIS_URL":                "redis://localhost:6379/0",
		"PRICE_AUTHORITY_BASE_URL": "http://authority.internal",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "EUR", cfg.CurrencyCode)
	require.Equal(t, 1900, cfg.TaxRateBps)
	require.Equal(t, int64(7500), cfg.FreeShippingThresholdMinor)
	require.Equal(t, int64(750), cfg.StandardShippingFeeMinor)
	require.Equal(t, int64(1), cfg.PriceToleranceMinor)
	require.Equal(t, 500*time.Millisecond, cfg.ValidationDebounce)
	require.Equal(t, 5*time.Second, cfg.ValidationTimeout)
	require.Equal(t, 3, cfg.ValidationMaxAttempts)
	require.Equal(t, 72*time.Hour, cfg.GuestCartTTL)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
}

func TestLoadRequiresCoreSettings(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "PRICE_AUTHORITY_BASE_URL"} {
		env := baseEnv()
		env[key] = ""
		_, err := LoadForTests(env)
		require.Error(t, err, key)
	}
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "9090"
	env["CURRENCY_CODE"] = "USD"
	env["PRICE_TOLERANCE_MINOR"] = "0"
	env["VALIDATION_DEBOUNCE"] = "250ms"
	env["CORS_ALLOWED_ORIGINS"] = "https://shop.example, https://admin.example"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, "USD", cfg.CurrencyCode)
	require.Equal(t, int64(0), cfg.PriceToleranceMinor)
	require.Equal(t, 250*time.Millisecond, cfg.ValidationDebounce)
	require.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	env := baseEnv()
	env["PRICE_TOLERANCE_MINOR"] = "-1"
	_, err := LoadForTests(env)
	require.Error(t, err)

	env = baseEnv()
	env["PRICING_TAX_RATE_BPS"] = "10000"
	_, err = LoadForTests(env)
	require.Error(t, err)
}
