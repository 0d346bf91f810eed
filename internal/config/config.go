// PulseTrader - Watchlist Price Alerts and Live Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulsetrader

// Package config loads PulseTrader configuration from built-in defaults, an
// optional YAML file, a .env file, and environment variables, in increasing
// order of precedence.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Quote         QuoteConfig         `koanf:"quote"`
	Alerts        AlertsConfig        `koanf:"alerts"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Email         EmailConfig         `koanf:"email"`
	Security      SecurityConfig      `koanf:"security"`
	Database      DatabaseConfig      `koanf:"database"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// QuoteConfig configures the upstream quote provider (Finnhub).
type QuoteConfig struct {
	ProviderURL string        `koanf:"provider_url"`
	APIKey      string        `koanf:"api_key"`
	CacheTTL    time.Duration `koanf:"cache_ttl"`
	Timeout     time.Duration `koanf:"timeout"`

	// RateLimit is the sustained upstream request rate per second.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// AlertsConfig configures the evaluator schedule.
type AlertsConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// NotificationsConfig configures the per-user notification log.
type NotificationsConfig struct {
	Retention int `koanf:"retention"`
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"`
	UseTLS   bool          `koanf:"use_tls"`
	Timeout  time.Duration `koanf:"timeout"`

	// Workers bounds concurrent sends; QueueSize bounds emails waiting for one.
	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue_size"`
}

// SecurityConfig configures authentication and request limits.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	BcryptCost        int           `koanf:"bcrypt_cost"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	AdminEmails       []string      `koanf:"admin_emails"`

	// AuthzPolicyPath overrides the embedded casbin policy when set.
	AuthzPolicyPath string `koanf:"authz_policy_path"`
}

// DatabaseConfig configures the BadgerDB store.
type DatabaseConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// GCInterval is how often the value log is garbage collected.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig is the lowest-priority layer.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3001,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
		},
		Quote: QuoteConfig{
			ProviderURL: "https://finnhub.io/api/v1",
			CacheTTL:    60 * time.Second,
			Timeout:     10 * time.Second,
			RateLimit:   1,
			RateBurst:   5,
		},
		Alerts: AlertsConfig{
			Enabled:  true,
			Interval: 60 * time.Second,
		},
		Notifications: NotificationsConfig{
			Retention: 50,
		},
		Email: EmailConfig{
			Enabled:   false,
			Port:      587,
			From:      "alerts@pulsetrader.local",
			UseTLS:    true,
			Timeout:   15 * time.Second,
			Workers:   4,
			QueueSize: 256,
		},
		Security: SecurityConfig{
			TokenTTL:          24 * time.Hour,
			BcryptCost:        10,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			Path:       "./data/pulsetrader",
			GCInterval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
