// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// isolate points the loader at an empty temp directory so no real config or
// .env file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	oldDotEnv := DotEnvPath
	DotEnvPath = filepath.Join(dir, ".env")
	t.Cleanup(func() { DotEnvPath = oldDotEnv })
	t.Setenv(ConfigPathEnvVar, filepath.Join(dir, "missing.yaml"))
	t.Setenv("JWT_SECRET", testSecret)
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 3001 {
		t.Errorf("Server.Port = %d, want 3001", cfg.Server.Port)
	}
	if cfg.Quote.CacheTTL != 60*time.Second {
		t.Errorf("Quote.CacheTTL = %v, want 60s", cfg.Quote.CacheTTL)
	}
	if cfg.Quote.Timeout != 10*time.Second {
		t.Errorf("Quote.Timeout = %v, want 10s", cfg.Quote.Timeout)
	}
	if cfg.Alerts.Interval != time.Minute {
		t.Errorf("Alerts.Interval = %v, want 1m", cfg.Alerts.Interval)
	}
	if cfg.Notifications.Retention != 50 {
		t.Errorf("Notifications.Retention = %d, want 50", cfg.Notifications.Retention)
	}
	if cfg.Security.TokenTTL != 24*time.Hour {
		t.Errorf("Security.TokenTTL = %v, want 24h", cfg.Security.TokenTTL)
	}
}

func TestLoadDefaultsWithSecret(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.JWTSecret != testSecret {
		t.Errorf("JWTSecret not taken from environment")
	}
	if cfg.Server.Addr() != "0.0.0.0:3001" {
		t.Errorf("Addr() = %q, want 0.0.0.0:3001", cfg.Server.Addr())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "8080")
	t.Setenv("FINNHUB_API_KEY", "fh-key")
	t.Setenv("ALERTS_INTERVAL", "30s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ADMIN_EMAILS", "ops@example.com")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Quote.APIKey != "fh-key" {
		t.Errorf("Quote.APIKey = %q, want fh-key", cfg.Quote.APIKey)
	}
	if cfg.Alerts.Interval != 30*time.Second {
		t.Errorf("Alerts.Interval = %v, want 30s", cfg.Alerts.Interval)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if len(cfg.Security.AdminEmails) != 1 || cfg.Security.AdminEmails[0] != "ops@example.com" {
		t.Errorf("AdminEmails = %v", cfg.Security.AdminEmails)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q, want console", cfg.Logging.Format)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	yaml := "quote:\n  cache_ttl: 2m\n  rate_burst: 9\nnotifications:\n  retention: 20\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("QUOTE_RATE_BURST", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Quote.CacheTTL != 2*time.Minute {
		t.Errorf("CacheTTL = %v, want 2m from file", cfg.Quote.CacheTTL)
	}
	if cfg.Notifications.Retention != 20 {
		t.Errorf("Retention = %d, want 20 from file", cfg.Notifications.Retention)
	}
	if cfg.Quote.RateBurst != 3 {
		t.Errorf("RateBurst = %d, want 3 (env beats file)", cfg.Quote.RateBurst)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SMTP_HOST=smtp.example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv writes into the process environment; register cleanup first.
	t.Setenv("SMTP_HOST", "")
	os.Unsetenv("SMTP_HOST")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Email.Host != "smtp.example.com" {
		t.Errorf("Email.Host = %q, want value from .env", cfg.Email.Host)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := defaultConfig()
		c.Security.JWTSecret = testSecret
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short secret", func(c *Config) { c.Security.JWTSecret = "short" }, "JWT_SECRET"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "PORT"},
		{"relative provider url", func(c *Config) { c.Quote.ProviderURL = "finnhub.io" }, "FINNHUB_API_URL"},
		{"zero ttl", func(c *Config) { c.Quote.CacheTTL = 0 }, "QUOTE_CACHE_TTL"},
		{"huge timeout", func(c *Config) { c.Quote.Timeout = 2 * time.Minute }, "QUOTE_TIMEOUT"},
		{"tiny interval", func(c *Config) { c.Alerts.Interval = time.Millisecond }, "ALERTS_INTERVAL"},
		{"disabled alerts ignore interval", func(c *Config) { c.Alerts.Enabled = false; c.Alerts.Interval = 0 }, ""},
		{"email without host", func(c *Config) { c.Email.Enabled = true }, "SMTP_HOST"},
		{"bcrypt cost", func(c *Config) { c.Security.BcryptCost = 99 }, "BCRYPT_COST"},
		{"no badger path", func(c *Config) { c.Database.Path = "" }, "BADGER_PATH"},
		{"in memory needs no path", func(c *Config) { c.Database.Path = ""; c.Database.InMemory = true }, ""},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
