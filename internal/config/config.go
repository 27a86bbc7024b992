package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// Pricing rules. Business constants are injected, never hardcoded.
	CurrencyCode               string
	TaxRateBps                 int
	FreeShippingThresholdMinor int64
	StandardShippingFeeMinor   int64

	// Price validation authority.
	PriceAuthorityBaseURL string
	PriceToleranceMinor   int64
	ValidationDebounce    time.Duration
	ValidationTimeout     time.Duration
	ValidationMaxAttempts int

	// Storage lifetimes.
	CartTTL         time.Duration
	GuestCartTTL    time.Duration
	CatalogCacheTTL time.Duration
	IdempotencyTTL  time.Duration

	// Rate limiting for cart mutations.
	RateLimitPerMinute int

	LogFormat string
	LogLevel  string

	TracingEnabled       bool
	TracingEndpoint      string
	TracingSamplingRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CurrencyCode:               valueOrDefault(k.String("CURRENCY_CODE"), "EUR"),
		TaxRateBps:                 intOrDefault(k, "PRICING_TAX_RATE_BPS", 1900),
		FreeShippingThresholdMinor: int64OrDefault(k, "FREE_SHIPPING_THRESHOLD_MINOR", 7500),
		StandardShippingFeeMinor:   int64OrDefault(k, "STANDARD_SHIPPING_FEE_MINOR", 750),

		PriceAuthorityBaseURL: strings.TrimSpace(k.String("PRICE_AUTHORITY_BASE_URL")),
		PriceToleranceMinor:   int64OrDefault(k, "PRICE_TOLERANCE_MINOR", 1),
		ValidationDebounce:    parseDuration(k.String("VALIDATION_DEBOUNCE"), "500ms"),
		ValidationTimeout:     parseDuration(k.String("VALIDATION_TIMEOUT"), "5s"),
		ValidationMaxAttempts: intOrDefault(k, "VALIDATION_MAX_ATTEMPTS", 3),

		CartTTL:         parseDuration(k.String("CART_TTL"), "168h"),
		GuestCartTTL:    parseDuration(k.String("GUEST_CART_TTL"), "72h"),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		RateLimitPerMinute: intOrDefault(k, "RATE_LIMIT_PER_MINUTE", 120),

		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),

		TracingEnabled:       parseBool(k.String("TRACING_ENABLED")),
		TracingEndpoint:      strings.TrimSpace(k.String("TRACING_ENDPOINT")),
		TracingSamplingRatio: float64OrDefault(k, "TRACING_SAMPLING_RATIO", 1),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.PriceAuthorityBaseURL == "" {
		return nil, errors.New("PRICE_AUTHORITY_BASE_URL is required")
	}
	if cfg.PriceToleranceMinor < 0 {
		return nil, errors.New("PRICE_TOLERANCE_MINOR must not be negative")
	}
	if cfg.TaxRateBps < 0 || cfg.TaxRateBps >= 10000 {
		return nil, errors.New("PRICING_TAX_RATE_BPS must be in [0, 10000)")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(k *koanf.Koanf, key string, fallback int) int {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Int(key)
}

func int64OrDefault(k *koanf.Koanf, key string, fallback int64) int64 {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Int64(key)
}

func float64OrDefault(k *koanf.Koanf, key string, fallback float64) float64 {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Float64(key)
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
