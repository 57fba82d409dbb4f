// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package store

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/leadchat/internal/cache"
	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/metrics"
	"github.com/tomtom215/leadchat/internal/models"
)

// ConfigCache holds widget configs keyed by project ID. A miss is reported
// with ok == false; errors are for backend failures only.
//
// Set always stores. Fill is the read-through path: it stores wc only when
// the cached entry is absent or has an older UpdatedAt, so a slow reader
// cannot put back a config that a concurrent save already replaced.
type ConfigCache interface {
	Get(ctx context.Context, projectID string) (wc *models.WidgetConfig, ok bool, err error)
	Set(ctx context.Context, wc *models.WidgetConfig) error
	Fill(ctx context.Context, wc *models.WidgetConfig) (stored bool, err error)
	Invalidate(ctx context.Context, projectID string) error
	Close() error
}

// MemoryConfigCache is the in-process ConfigCache.
type MemoryConfigCache struct {
	mu sync.Mutex // serializes Fill's compare-and-set against Set
	c  *cache.Cache[models.WidgetConfig]
}

// NewMemoryConfigCache creates a cache whose entries live for ttl.
func NewMemoryConfigCache(ttl time.Duration) *MemoryConfigCache {
	return &MemoryConfigCache{c: cache.New[models.WidgetConfig](ttl, cache.WithCleanupInterval(time.Minute))}
}

// Get implements ConfigCache.
func (m *MemoryConfigCache) Get(_ context.Context, projectID string) (*models.WidgetConfig, bool, error) {
	wc, ok := m.c.Get(projectID)
	if !ok {
		return nil, false, nil
	}
	wc.Theme = wc.Theme.Clone()
	return &wc, true, nil
}

// Set implements ConfigCache.
func (m *MemoryConfigCache) Set(_ context.Context, wc *models.WidgetConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(wc)
	return nil
}

// Fill implements ConfigCache.
func (m *MemoryConfigCache) Fill(_ context.Context, wc *models.WidgetConfig) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.c.Get(wc.ProjectID); ok && !wc.UpdatedAt.After(cur.UpdatedAt) {
		return false, nil
	}
	m.store(wc)
	return true, nil
}

func (m *MemoryConfigCache) store(wc *models.WidgetConfig) {
	v := *wc
	v.Theme = wc.Theme.Clone()
	m.c.Set(wc.ProjectID, v)
}

// Invalidate implements ConfigCache.
func (m *MemoryConfigCache) Invalidate(_ context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Delete(projectID)
	return nil
}

// Close implements ConfigCache.
func (m *MemoryConfigCache) Close() error {
	m.c.Close()
	return nil
}

// CachedStore is a read-through widget config cache in front of a Store.
// Saves write the new config into the cache; reads fill it through
// ConfigCache.Fill. Cache failures degrade to direct reads.
type CachedStore struct {
	Store
	cache ConfigCache
}

// NewCachedStore wraps base.
func NewCachedStore(base Store, c ConfigCache) *CachedStore {
	return &CachedStore{Store: base, cache: c}
}

// Unwrap returns the underlying store.
func (s *CachedStore) Unwrap() Store { return s.Store }

// GetWidgetConfig implements Store.
func (s *CachedStore) GetWidgetConfig(ctx context.Context, projectID string) (*models.WidgetConfig, error) {
	if wc, ok, err := s.cache.Get(ctx, projectID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("project_id", projectID).Msg("Widget config cache read failed")
	} else if ok {
		metrics.WidgetConfigLookups.WithLabelValues("cache").Inc()
		return wc, nil
	}

	wc, err := s.Store.GetWidgetConfig(ctx, projectID)
	if err != nil {
		return nil, err
	}
	metrics.WidgetConfigLookups.WithLabelValues("store").Inc()
	if _, err := s.cache.Fill(ctx, wc); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("project_id", projectID).Msg("Widget config cache write failed")
	}
	return wc, nil
}

// SaveWidgetConfig implements Store.
func (s *CachedStore) SaveWidgetConfig(ctx context.Context, projectID string, theme models.ThemeConfig) (*models.WidgetConfig, error) {
	wc, err := s.Store.SaveWidgetConfig(ctx, projectID, theme)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, wc); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("project_id", projectID).Msg("Widget config cache write failed, invalidating")
		if err := s.cache.Invalidate(ctx, projectID); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("project_id", projectID).Msg("Widget config cache invalidation failed")
		}
	}
	return wc, nil
}

// Close closes the cache and the underlying store.
func (s *CachedStore) Close() error {
	cerr := s.cache.Close()
	if err := s.Store.Close(); err != nil {
		return err
	}
	return cerr
}
