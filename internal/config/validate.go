// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// MinSessionSecretLength is the minimum length of SESSION_SECRET in production.
const MinSessionSecretLength = 32

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateWidget(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535, got: %d", c.Server.Port)
	}
	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, staging or production, got: %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security
	switch s.SessionStore {
	case "memory":
	case "badger":
		if s.SessionStorePath == "" {
			return fmt.Errorf("SESSION_STORE_PATH is required when SESSION_STORE=badger")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be memory or badger, got: %q", s.SessionStore)
	}
	if s.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if !s.RateLimitDisabled {
		if s.RateLimitReqs <= 0 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive")
		}
		if s.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	if len(s.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS must list at least one origin (use * to allow all)")
	}

	if c.Server.IsProduction() {
		if s.WidgetConfigAPIKey == "" {
			return fmt.Errorf("WIDGET_CONFIG_API_KEY is required in production")
		}
		if len(s.SessionSecret) < MinSessionSecretLength {
			return fmt.Errorf("SESSION_SECRET must be at least %d characters in production", MinSessionSecretLength)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case "auto", "file":
	case "mysql":
		if !c.Database.Configured() {
			return fmt.Errorf("STORAGE_DRIVER=mysql requires DATABASE_URL or MYSQL_HOST")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be mysql, file or auto, got: %q", c.Storage.Driver)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.Database.URL != "" {
		if _, err := c.Database.DSN(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.RedisURL == "" {
		return nil
	}
	u, err := url.Parse(c.Cache.RedisURL)
	if err != nil {
		return fmt.Errorf("REDIS_URL failed to parse: %w", err)
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return fmt.Errorf("REDIS_URL scheme must be redis or rediss, got: %q", u.Scheme)
	}
	return nil
}

func (c *Config) validateWidget() error {
	if err := validateHTTPURL(c.Widget.APIBaseURL, "WIDGET_API_BASE_URL"); err != nil {
		return err
	}
	if c.Widget.PollInterval <= 0 || c.Widget.FetchTimeout <= 0 || c.Widget.CacheWindow <= 0 {
		return fmt.Errorf("widget poll interval, fetch timeout and cache window must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL is invalid: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that rawURL is an http(s) base URL. A path is
// allowed because widget API bases are sometimes mounted under a prefix.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}
	return nil
}
