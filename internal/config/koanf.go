// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/leadchat/config.yaml",
	"/etc/leadchat/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            4000,
			Host:            "0.0.0.0",
			Environment:     "development",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins:    []string{"*"},
			SessionTTL:        24 * time.Hour,
			SessionStore:      "memory",
			SessionStorePath:  "./data/sessions",
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Storage: StorageConfig{
			Driver:         "auto",
			DataDir:        "./data",
			UploadDir:      "./data/uploads",
			MaxUploadBytes: 5 << 20,
		},
		Database: DatabaseConfig{
			Port:            3306,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Cache: CacheConfig{
			WidgetConfigTTL: 30 * time.Second,
		},
		Widget: WidgetConfig{
			APIBaseURL:   "http://localhost:4000",
			PollInterval: 5 * time.Second,
			FetchTimeout: 5 * time.Second,
			CacheWindow:  time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration with layered sources:
//  1. Defaults
//  2. Optional YAML config file
//  3. Environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.allowed_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored so unrelated environment never leaks into config.
var envMappings = map[string]string{
	// Server
	"api_port":         "server.port",
	"http_host":        "server.host",
	"environment":      "server.environment",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"shutdown_timeout": "server.shutdown_timeout",

	// Security
	"allowed_origins":       "security.allowed_origins",
	"widget_config_api_key": "security.widget_config_api_key",
	"session_secret":        "security.session_secret",
	"session_ttl":           "security.session_ttl",
	"session_store":         "security.session_store",
	"session_store_path":    "security.session_store_path",
	"rate_limit_requests":   "security.rate_limit_reqs",
	"rate_limit_window":     "security.rate_limit_window",
	"disable_rate_limit":    "security.rate_limit_disabled",

	// Storage
	"storage_driver":   "storage.driver",
	"data_dir":         "storage.data_dir",
	"upload_dir":       "storage.upload_dir",
	"max_upload_bytes": "storage.max_upload_bytes",

	// MySQL
	"database_url":            "database.url",
	"mysql_host":              "database.host",
	"mysql_port":              "database.port",
	"mysql_user":              "database.user",
	"mysql_password":          "database.password",
	"mysql_database":          "database.name",
	"mysql_max_open_conns":    "database.max_open_conns",
	"mysql_max_idle_conns":    "database.max_idle_conns",
	"mysql_conn_max_lifetime": "database.conn_max_lifetime",

	// Cache
	"redis_url":               "cache.redis_url",
	"widget_config_cache_ttl": "cache.widget_config_ttl",

	// Widget runtime
	"widget_api_base_url":  "widget.api_base_url",
	"widget_poll_interval": "widget.poll_interval",
	"widget_fetch_timeout": "widget.fetch_timeout",
	"widget_cache_window":  "widget.cache_window",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
