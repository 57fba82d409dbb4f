// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/leadchat/internal/config"
	"github.com/tomtom215/leadchat/internal/models"
)

type countingStore struct {
	*FileStore
	reads atomic.Int32
}

func (c *countingStore) GetWidgetConfig(ctx context.Context, projectID string) (*models.WidgetConfig, error) {
	c.reads.Add(1)
	return c.FileStore.GetWidgetConfig(ctx, projectID)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (*models.WidgetConfig, bool, error) {
	return nil, false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, *models.WidgetConfig) error { return errors.New("cache down") }
func (brokenCache) Fill(context.Context, *models.WidgetConfig) (bool, error) {
	return false, errors.New("cache down")
}
func (brokenCache) Invalidate(context.Context, string) error { return errors.New("cache down") }
func (brokenCache) Close() error                              { return nil }

// pausingStore holds the first GetWidgetConfig after it has read the store
// until release is closed.
type pausingStore struct {
	*FileStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) GetWidgetConfig(ctx context.Context, projectID string) (*models.WidgetConfig, error) {
	wc, err := p.FileStore.GetWidgetConfig(ctx, projectID)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return wc, err
}

func TestCachedStoreReadThroughAndInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := &countingStore{FileStore: newTestFileStore(t)}
	s := NewCachedStore(base, NewMemoryConfigCache(time.Minute))
	defer s.Close()

	if _, err := base.FileStore.SaveWidgetConfig(ctx, "p1", models.ThemeConfig{AgentName: "A"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		wc, err := s.GetWidgetConfig(ctx, "p1")
		if err != nil || wc.Theme.AgentName != "A" {
			t.Fatalf("GetWidgetConfig() = %+v, %v", wc, err)
		}
	}
	if n := base.reads.Load(); n != 1 {
		t.Errorf("base reads = %d, want 1", n)
	}

	if _, err := s.SaveWidgetConfig(ctx, "p1", models.ThemeConfig{AgentName: "B"}); err != nil {
		t.Fatal(err)
	}
	wc, _ := s.GetWidgetConfig(ctx, "p1")
	if wc.Theme.AgentName != "B" {
		t.Errorf("save must replace the cached config, got %q", wc.Theme.AgentName)
	}
	if n := base.reads.Load(); n != 1 {
		t.Errorf("base reads after save = %d, want 1", n)
	}
}

func TestCachedStoreSlowReadDoesNotRestoreOldConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := &pausingStore{FileStore: newTestFileStore(t), read: make(chan struct{}), release: make(chan struct{})}
	if _, err := base.FileStore.SaveWidgetConfig(ctx, "p1", models.ThemeConfig{AgentName: "Old"}); err != nil {
		t.Fatal(err)
	}
	s := NewCachedStore(base, NewMemoryConfigCache(time.Minute))
	defer s.Close()

	done := make(chan *models.WidgetConfig)
	go func() {
		wc, _ := s.GetWidgetConfig(ctx, "p1")
		done <- wc
	}()
	<-base.read
	// Keep the saved UpdatedAt strictly after the paused read's.
	time.Sleep(2 * time.Millisecond)
	if _, err := s.SaveWidgetConfig(ctx, "p1", models.ThemeConfig{AgentName: "New"}); err != nil {
		t.Fatal(err)
	}
	close(base.release)
	if wc := <-done; wc == nil || wc.Theme.AgentName != "Old" {
		t.Fatalf("paused read = %+v, want the old config", wc)
	}

	wc, err := s.GetWidgetConfig(ctx, "p1")
	if err != nil || wc.Theme.AgentName != "New" {
		t.Errorf("GetWidgetConfig() = %+v, %v; stale read overwrote the saved config", wc, err)
	}
}

func TestMemoryConfigCacheFillKeepsNewer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMemoryConfigCache(time.Minute)
	defer c.Close()
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	if ok, _ := c.Fill(ctx, &models.WidgetConfig{ProjectID: "p", UpdatedAt: t0}); !ok {
		t.Error("Fill into an empty cache should store")
	}
	_ = c.Set(ctx, &models.WidgetConfig{ProjectID: "p", Theme: models.ThemeConfig{AgentName: "New"}, UpdatedAt: t0.Add(time.Second)})
	for _, at := range []time.Time{t0, t0.Add(time.Second)} {
		if ok, _ := c.Fill(ctx, &models.WidgetConfig{ProjectID: "p", Theme: models.ThemeConfig{AgentName: "Old"}, UpdatedAt: at}); ok {
			t.Errorf("Fill(%v) replaced a config that is not older", at)
		}
	}
	if got, _, _ := c.Get(ctx, "p"); got.Theme.AgentName != "New" {
		t.Errorf("cached = %q, want New", got.Theme.AgentName)
	}
	if ok, _ := c.Fill(ctx, &models.WidgetConfig{ProjectID: "p", UpdatedAt: t0.Add(time.Minute)}); !ok {
		t.Error("Fill with a newer config should store")
	}
}

func TestCachedStoreMissesAreNotCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := &countingStore{FileStore: newTestFileStore(t)}
	s := NewCachedStore(base, NewMemoryConfigCache(time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := s.GetWidgetConfig(ctx, "none"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	}
	if n := base.reads.Load(); n != 2 {
		t.Errorf("base reads = %d, want 2", n)
	}
}

func TestCachedStoreDegradesWhenCacheFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewCachedStore(newTestFileStore(t), brokenCache{})

	if _, err := s.SaveWidgetConfig(ctx, "p1", models.ThemeConfig{AgentName: "A"}); err != nil {
		t.Fatalf("save should ignore cache failure: %v", err)
	}
	if wc, err := s.GetWidgetConfig(ctx, "p1"); err != nil || wc.Theme.AgentName != "A" {
		t.Errorf("GetWidgetConfig() = %+v, %v", wc, err)
	}
}

func TestMemoryConfigCacheReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewMemoryConfigCache(time.Minute)
	defer c.Close()

	_ = c.Set(ctx, &models.WidgetConfig{ProjectID: "p", Theme: models.ThemeConfig{PropertyInfo: map[string]string{"price": "1 Cr"}}})
	got, ok, _ := c.Get(ctx, "p")
	if !ok {
		t.Fatal("expected hit")
	}
	got.Theme.PropertyInfo["price"] = "mutated"
	again, _, _ := c.Get(ctx, "p")
	if again.Theme.PropertyInfo["price"] != "1 Cr" {
		t.Error("cached value must not alias caller copies")
	}
}

func TestOpenFallsBackToFileStore(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Storage.Driver = DriverAuto
	cfg.Storage.DataDir = t.TempDir()
	cfg.Cache.WidgetConfigTTL = time.Second

	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()
	if s.Backend() != DriverFile {
		t.Errorf("Backend() = %q, want file", s.Backend())
	}
}
