// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

// Package config loads LeadChat configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence
// (env wins).
//
// Environment Variables:
//   - API_PORT, HTTP_HOST, ENVIRONMENT: listener and environment mode
//   - ALLOWED_ORIGINS: comma-separated CORS origins (default: *)
//   - WIDGET_CONFIG_API_KEY: shared key guarding dashboard writes
//   - DATABASE_URL or MYSQL_HOST/MYSQL_PORT/MYSQL_USER/MYSQL_PASSWORD/MYSQL_DATABASE
//   - REDIS_URL: optional widget-config cache
//   - STORAGE_DRIVER: mysql, file or auto (default: auto)
//   - LOG_LEVEL, LOG_FORMAT, LOG_CALLER
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Storage  StorageConfig  `koanf:"storage"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Widget   WidgetConfig   `koanf:"widget"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Environment     string        `koanf:"environment"` // development, staging, production
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// IsProduction reports whether the server runs in production mode.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// SecurityConfig holds API key, session and rate limiting settings.
type SecurityConfig struct {
	AllowedOrigins     []string `koanf:"allowed_origins"`
	WidgetConfigAPIKey string   `koanf:"widget_config_api_key"`

	// SessionSecret signs dashboard session tokens. A random secret is
	// generated at startup when empty, which invalidates sessions on restart.
	SessionSecret    string        `koanf:"session_secret"`
	SessionTTL       time.Duration `koanf:"session_ttl"`
	SessionStore     string        `koanf:"session_store"` // memory or badger
	SessionStorePath string        `koanf:"session_store_path"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// StorageConfig selects the persistence strategy.
type StorageConfig struct {
	// Driver is mysql, file or auto. Auto picks MySQL when a database is
	// configured and reachable, otherwise the JSON file store.
	Driver         string `koanf:"driver"`
	DataDir        string `koanf:"data_dir"`
	UploadDir      string `koanf:"upload_dir"`
	MaxUploadBytes int64  `koanf:"max_upload_bytes"`
}

// CacheConfig holds widget-config cache settings.
type CacheConfig struct {
	RedisURL        string        `koanf:"redis_url"`
	WidgetConfigTTL time.Duration `koanf:"widget_config_ttl"`
}

// WidgetConfig holds defaults for the widget runtime used by the CLI.
type WidgetConfig struct {
	APIBaseURL   string        `koanf:"api_base_url"`
	PollInterval time.Duration `koanf:"poll_interval"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	CacheWindow  time.Duration `koanf:"cache_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
