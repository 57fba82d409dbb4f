// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/leadchat/internal/cache"
	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/metrics"
	"github.com/tomtom215/leadchat/internal/models"
)

// Fetcher defaults.
const (
	DefaultCacheWindow  = time.Second
	DefaultFetchTimeout = 5 * time.Second

	breakerName         = "widget-config-fetch"
	breakerTripFailures = 5
	breakerOpenTimeout  = 30 * time.Second
	maxConfigBodyBytes  = 1 << 20
	configPathPrefix    = "/api/widget-config/"
	cacheBustQueryParam = "_t"
)

var (
	// errStatus marks a non-2xx config response.
	errStatus = errors.New("unexpected status")
	// errCallerGone marks a fetch abandoned by the caller's own context.
	// It never counts against the breaker.
	errCallerGone = errors.New("fetch abandoned by caller")
)

// Fetcher loads project themes from the API. Results are cached for a short
// window; failures are never cached and collapse to an empty ThemeConfig.
type Fetcher struct {
	client  *http.Client
	cache   *cache.Cache[models.ThemeConfig]
	timeout time.Duration
	window  time.Duration
	now     func() time.Time
	breaker *gobreaker.CircuitBreaker[models.ThemeConfig]
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the client used for config requests.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithCacheWindow sets how long a fetched theme is reused.
func WithCacheWindow(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.window = d }
}

// WithFetchTimeout bounds each request.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.timeout = d }
}

// WithFetcherClock replaces time.Now for the cache and the cache-busting parameter.
func WithFetcherClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) { f.now = now }
}

// NewFetcher creates a config fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:  &http.Client{},
		timeout: DefaultFetchTimeout,
		window:  DefaultCacheWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.cache = cache.New[models.ThemeConfig](f.window, cache.WithClock(f.now))

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	f.breaker = gobreaker.NewCircuitBreaker[models.ThemeConfig](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Widget config circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return f
}

// FetchTheme returns the theme of projectID served by baseURL, normalized
// to camelCase. forceRefresh discards any cached entry first. Any failure
// (network, timeout, non-2xx, malformed JSON, open breaker) yields the zero
// ThemeConfig.
func (f *Fetcher) FetchTheme(ctx context.Context, baseURL, projectID string, forceRefresh bool) models.ThemeConfig {
	if baseURL == "" || projectID == "" {
		return models.ThemeConfig{}
	}
	key := cache.Key(baseURL, projectID)
	if forceRefresh {
		f.cache.Delete(key)
	} else if theme, ok := f.cache.Get(key); ok {
		return theme.Clone()
	}

	if ctx.Err() != nil {
		return models.ThemeConfig{}
	}
	theme, err := f.breaker.Execute(func() (models.ThemeConfig, error) {
		theme, err := f.fetch(ctx, baseURL, projectID)
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", errCallerGone, err)
		}
		return theme, err
	})
	if err != nil {
		result := "failure"
		switch {
		case errors.Is(err, errCallerGone):
			result = "cancelled"
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			result = "rejected"
		}
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, result).Inc()
		logging.Debug().Err(err).Str("project_id", projectID).Msg("Widget config fetch failed, using empty config")
		return models.ThemeConfig{}
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()

	f.cache.Set(key, theme)
	return theme.Clone()
}

// ClearCache drops the cached theme for baseURL and projectID.
func (f *Fetcher) ClearCache(baseURL, projectID string) {
	f.cache.Delete(cache.Key(baseURL, projectID))
}

// Close releases the cache.
func (f *Fetcher) Close() {
	f.cache.Close()
}

func (f *Fetcher) fetch(ctx context.Context, baseURL, projectID string) (models.ThemeConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	endpoint := baseURL + configPathPrefix + url.PathEscape(projectID) +
		"?" + cacheBustQueryParam + "=" + strconv.FormatInt(f.now().UnixMilli(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return models.ThemeConfig{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return models.ThemeConfig{}, fmt.Errorf("fetch widget config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxConfigBodyBytes))
		return models.ThemeConfig{}, fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigBodyBytes))
	if err != nil {
		return models.ThemeConfig{}, fmt.Errorf("read widget config: %w", err)
	}
	return DecodeTheme(body)
}

// DecodeTheme parses a widget-config response body. Keys may be snake_case
// or camelCase and the object may be wrapped in {"data": {...}}.
func DecodeTheme(body []byte) (models.ThemeConfig, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.ThemeConfig{}, fmt.Errorf("decode widget config: %w", err)
	}
	if raw == nil {
		return models.ThemeConfig{}, errors.New("decode widget config: not an object")
	}
	if inner, ok := raw["data"].(map[string]any); ok {
		raw = inner
	}
	return models.ThemeFromMap(raw), nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
