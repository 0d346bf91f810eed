// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// minJWTSecretLength is the shortest HS256 secret accepted.
const minJWTSecretLength = 32

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateQuote(); err != nil {
		return err
	}
	if err := c.validateAlerts(); err != nil {
		return err
	}
	if err := c.validateEmail(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %v", c.Server.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateQuote() error {
	u, err := url.Parse(c.Quote.ProviderURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("FINNHUB_API_URL must be an absolute http(s) URL, got %q", c.Quote.ProviderURL)
	}
	if c.Quote.CacheTTL <= 0 {
		return fmt.Errorf("QUOTE_CACHE_TTL must be positive, got %v", c.Quote.CacheTTL)
	}
	if c.Quote.Timeout <= 0 || c.Quote.Timeout > time.Minute {
		return fmt.Errorf("QUOTE_TIMEOUT must be between 0 and 1m, got %v", c.Quote.Timeout)
	}
	if c.Quote.RateLimit <= 0 {
		return fmt.Errorf("QUOTE_RATE_LIMIT must be positive, got %v", c.Quote.RateLimit)
	}
	if c.Quote.RateBurst < 1 {
		return fmt.Errorf("QUOTE_RATE_BURST must be at least 1, got %d", c.Quote.RateBurst)
	}
	return nil
}

func (c *Config) validateAlerts() error {
	if c.Alerts.Enabled && c.Alerts.Interval < time.Second {
		return fmt.Errorf("ALERTS_INTERVAL must be at least 1s, got %v", c.Alerts.Interval)
	}
	if c.Notifications.Retention < 1 {
		return fmt.Errorf("NOTIFICATION_LIMIT must be at least 1, got %d", c.Notifications.Retention)
	}
	return nil
}

func (c *Config) validateEmail() error {
	if !c.Email.Enabled {
		return nil
	}
	if c.Email.Host == "" {
		return fmt.Errorf("SMTP_HOST is required when EMAIL_ENABLED=true")
	}
	if c.Email.Port < 1 || c.Email.Port > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535, got %d", c.Email.Port)
	}
	if !strings.Contains(c.Email.From, "@") {
		return fmt.Errorf("EMAIL_FROM must be an email address, got %q", c.Email.From)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %v", c.Security.TokenTTL)
	}
	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Security.BcryptCost)
	}
	if c.Security.RateLimitRequests < 1 || c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("BADGER_PATH is required unless BADGER_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}
