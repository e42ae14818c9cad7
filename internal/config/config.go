// Package config loads the §6 recognized configuration options from the
// process environment, the way cmd/disposable-refresher reads its own
// env vars directly rather than through a framework.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of §6 "Configuration (recognized options)".
type Config struct {
	DatabaseURL      string
	CacheURL         string
	Port             int
	Env              string
	LogLevel         string
	DisposableListURL string
	GeocoderURL      string
	GeocoderKey      string
	VATRegistryURL   string
	OTPProviderURL   string
	OTPAPIKey        string
	RetentionDays    int
	RateLimitCount   int
	RateLimitBurst   int
	EncryptionKey    []byte // 32 raw bytes, decoded from 32-byte hex
	JWTSecret        string
	SessionSecret    string
	WebhookMaxAttempts int
	MetricsBackend   string // "log" (default) or "prometheus"
}

// Load reads every recognized option from the environment, applying the
// defaults the spec leaves implicit and validating the ones it doesn't
// (ENCRYPTION_KEY must decode to exactly 32 bytes).
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		CacheURL:           os.Getenv("CACHE_URL"),
		Port:               envInt("PORT", 8080),
		Env:                envString("ENV", "production"),
		LogLevel:           envString("LOG_LEVEL", "info"),
		DisposableListURL:  os.Getenv("DISPOSABLE_LIST_URL"),
		GeocoderURL:        os.Getenv("GEOCODER_URL"),
		GeocoderKey:        os.Getenv("GEOCODER_KEY"),
		VATRegistryURL:     os.Getenv("VAT_REGISTRY_URL"),
		OTPProviderURL:     os.Getenv("OTP_PROVIDER_URL"),
		OTPAPIKey:          os.Getenv("OTP_API_KEY"),
		RetentionDays:      envInt("RETENTION_DAYS", 90),
		RateLimitCount:     envInt("RATE_LIMIT_COUNT", 100),
		RateLimitBurst:     envInt("RATE_LIMIT_BURST", 20),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		WebhookMaxAttempts: envInt("WEBHOOK_MAX_ATTEMPTS", 5),
		MetricsBackend:     envString("METRICS_BACKEND", "log"),
	}

	if raw := strings.TrimSpace(os.Getenv("ENCRYPTION_KEY")); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil || len(key) != 32 {
			return Config{}, fmt.Errorf("config: ENCRYPTION_KEY must be 32-byte hex: %v", err)
		}
		cfg.EncryptionKey = key
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}
	if cfg.SessionSecret == "" {
		return Config{}, fmt.Errorf("config: SESSION_SECRET is required")
	}

	return cfg, nil
}

// RetentionDuration is RetentionDays expressed as a time.Duration for the
// event-log sweep scheduler.
func (c Config) RetentionDuration() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
