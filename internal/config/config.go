// Package config loads service configuration from the environment. A local
// .env file is merged first when present, so development setups need no
// exported variables.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds everything cmd/server needs to wire the service.
type Config struct {
	Port         string
	DatabaseURL  string // empty → in-memory store
	RedisURL     string // empty → no cache, no event publishing
	EventChannel string

	// Default curve parameters for tokens created without explicit ones.
	BasePrice decimal.Decimal
	Slope     decimal.Decimal
}

// Load reads the environment (after merging a .env file if one exists)
// and returns the resolved configuration.
func Load() (*Config, error) {
	// Silently ignore a missing .env.
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		EventChannel: os.Getenv("EVENT_CHANNEL"),
	}

	var err error
	if cfg.BasePrice, err = getDecimal("BASE_PRICE", "1.0"); err != nil {
		return nil, err
	}
	if cfg.Slope, err = getDecimal("SLOPE", "0.0025"); err != nil {
		return nil, err
	}
	if cfg.BasePrice.LessThanOrEqual(decimal.Zero) || cfg.Slope.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("config: BASE_PRICE and SLOPE must be positive")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	raw := getEnv(key, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("config: %s=%q is not a decimal: %w", key, raw, err)
	}
	return d, nil
}
