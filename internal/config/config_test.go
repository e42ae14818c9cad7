package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DATABASE_URL", "CACHE_URL", "PORT", "ENV", "LOG_LEVEL", "DISPOSABLE_LIST_URL",
		"GEOCODER_URL", "GEOCODER_KEY", "VAT_REGISTRY_URL", "OTP_PROVIDER_URL",
		"OTP_API_KEY", "RETENTION_DAYS", "RATE_LIMIT_COUNT", "RATE_LIMIT_BURST",
		"ENCRYPTION_KEY", "JWT_SECRET", "SESSION_SECRET", "WEBHOOK_MAX_ATTEMPTS",
	}
	for _, k := range keys {
		os.Unsetenv(k)
		t.Cleanup(func(k string) func() { return func() { os.Unsetenv(k) } }(k))
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/orbicheck")
	os.Setenv("JWT_SECRET", "jwt-secret")
	os.Setenv("SESSION_SECRET", "session-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Env != "production" {
		t.Errorf("Env = %q, want production", cfg.Env)
	}
	if cfg.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", cfg.RetentionDays)
	}
	if cfg.RateLimitCount != 100 || cfg.RateLimitBurst != 20 {
		t.Errorf("rate limit defaults = %d/%d, want 100/20", cfg.RateLimitCount, cfg.RateLimitBurst)
	}
	if cfg.WebhookMaxAttempts != 5 {
		t.Errorf("WebhookMaxAttempts = %d, want 5", cfg.WebhookMaxAttempts)
	}
	if len(cfg.EncryptionKey) != 0 {
		t.Errorf("expected no encryption key set, got %d bytes", len(cfg.EncryptionKey))
	}
}

func TestLoadRequiresCoreSecrets(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL/JWT_SECRET/SESSION_SECRET are unset")
	}

	os.Setenv("DATABASE_URL", "postgres://localhost/orbicheck")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when JWT_SECRET/SESSION_SECRET are unset")
	}
}

func TestLoadValidatesEncryptionKeyLength(t *testing.T) {
	clearEnv(t)
	os.Setenv("DATABASE_URL", "postgres://localhost/orbicheck")
	os.Setenv("JWT_SECRET", "jwt-secret")
	os.Setenv("SESSION_SECRET", "session-secret")
	os.Setenv("ENCRYPTION_KEY", "not-hex-and-too-short")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed ENCRYPTION_KEY")
	}

	os.Setenv("ENCRYPTION_KEY", "00112233445566778899001122334455667788990011223344556677889900112233") // 34 bytes, valid hex but wrong length
	if _, err := Load(); err == nil {
		t.Fatal("expected error for ENCRYPTION_KEY not decoding to exactly 32 bytes")
	}

	validHex := ""
	for i := 0; i < 32; i++ {
		validHex += "ab"
	}
	os.Setenv("ENCRYPTION_KEY", validHex)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with valid 32-byte hex key: %v", err)
	}
	if len(cfg.EncryptionKey) != 32 {
		t.Errorf("EncryptionKey len = %d, want 32", len(cfg.EncryptionKey))
	}
}

func TestRetentionDuration(t *testing.T) {
	cfg := Config{RetentionDays: 2}
	if got, want := cfg.RetentionDuration().Hours(), 48.0; got != want {
		t.Errorf("RetentionDuration = %v hours, want %v", got, want)
	}
}
