// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

// Package store persists widget configs, leads, chat sessions, events and
// dashboard users. One Store implementation is chosen at startup by Open:
// MySQL when configured and reachable, otherwise a JSON file. Widget config
// reads are cached in Redis or in process.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomtom215/leadchat/internal/config"
	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique constraint is violated.
	ErrConflict = errors.New("already exists")
)

// Store is the persistence boundary used by the API.
type Store interface {
	GetWidgetConfig(ctx context.Context, projectID string) (*models.WidgetConfig, error)
	SaveWidgetConfig(ctx context.Context, projectID string, theme models.ThemeConfig) (*models.WidgetConfig, error)

	CreateLead(ctx context.Context, lead *models.Lead) error
	ListLeads(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error)

	CreateChatSession(ctx context.Context, session *models.ChatSession) error
	ListChatSessions(ctx context.Context, filter models.ChatSessionFilter) ([]models.ChatSession, int, error)

	RecordEvent(ctx context.Context, event *models.Event) error
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// GetUserByLogin looks a user up by username or email.
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	// Backend names the implementation for logs and metrics.
	Backend() string
	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by STORAGE_DRIVER.
const (
	DriverAuto  = "auto"
	DriverMySQL = "mysql"
	DriverFile  = "file"
)

// Open selects the storage strategy once and wraps it with the widget
// config cache. With DriverAuto a configured but unreachable MySQL falls
// back to the file store.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	base, err := openBase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var configCache ConfigCache
	if cfg.Cache.RedisURL != "" {
		rc, err := NewRedisConfigCache(cfg.Cache.RedisURL, cfg.Cache.WidgetConfigTTL)
		if err != nil {
			_ = base.Close()
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			logging.Warn().Err(err).Msg("Redis unreachable, widget config cache falls back to in-process")
			_ = rc.Close()
			configCache = NewMemoryConfigCache(cfg.Cache.WidgetConfigTTL)
		} else {
			configCache = rc
		}
	} else {
		configCache = NewMemoryConfigCache(cfg.Cache.WidgetConfigTTL)
	}

	return NewCachedStore(base, configCache), nil
}

func openBase(ctx context.Context, cfg *config.Config) (Store, error) {
	driver := cfg.Storage.Driver
	if driver == "" {
		driver = DriverAuto
	}

	if driver == DriverMySQL || (driver == DriverAuto && cfg.Database.Configured()) {
		s, err := OpenMySQL(ctx, cfg.Database)
		if err == nil {
			logging.Info().Str("backend", s.Backend()).Msg("Storage initialized")
			return s, nil
		}
		if driver == DriverMySQL {
			return nil, fmt.Errorf("open mysql store: %w", err)
		}
		logging.Warn().Err(err).Msg("MySQL unavailable, falling back to file storage")
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s, err := OpenFile(filepath.Join(cfg.Storage.DataDir, "leadchat.json"))
	if err != nil {
		return nil, err
	}
	logging.Info().Str("backend", s.Backend()).Str("path", s.path).Msg("Storage initialized")
	return s, nil
}
