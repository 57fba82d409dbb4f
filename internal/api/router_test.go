// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/leadchat/internal/config"
	"github.com/tomtom215/leadchat/internal/store"
)

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/health", nil)
	expectStatus(t, rec, http.StatusOK)
	var status HealthStatus
	decodeData(t, rec, &status)
	if status.Status != "healthy" || !status.StorageConnected || status.Storage != store.DriverFile {
		t.Errorf("health = %+v", status)
	}

	down := newTestEnv(t, withStore(func(s store.Store) store.Store { return failingStore{s} }))
	rec = down.do(http.MethodGet, "/api/health", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	decodeData(t, rec, &status)
	if status.Status != "degraded" || status.StorageConnected {
		t.Errorf("degraded health = %+v", status)
	}
}

func TestRouterEnvelopesAndHeaders(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/nope", nil)
	expectStatus(t, rec, http.StatusNotFound)
	if e := decodeEnvelope(t, rec).Error; e == nil || e.Code != ErrCodeNotFound {
		t.Errorf("404 error = %+v", e)
	}

	rec = env.do(http.MethodDelete, "/api/leads", nil, apiKey()...)
	expectStatus(t, rec, http.StatusMethodNotAllowed)

	rec = env.do(http.MethodGet, "/api/widget-config/sky", nil, "X-Request-ID", "req-123")
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing on API routes")
	}

	rec = env.do(http.MethodGet, "/api/leads", nil, "X-Request-ID", "req-456")
	if e := decodeEnvelope(t, rec).Error; e == nil || e.RequestID != "req-456" {
		t.Errorf("error request id = %+v", e)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/leads", nil)
	req.Header.Set("Origin", "https://sky.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	if rec.Code >= 300 {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") == "true" {
		t.Error("credentials must not be allowed")
	}
}

func TestRouterRateLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, withRateLimit(2))

	for range 2 {
		rec := env.do(http.MethodGet, "/api/widget-config/sky", nil)
		expectStatus(t, rec, http.StatusOK)
	}
	rec := env.do(http.MethodGet, "/api/widget-config/sky", nil)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if e := decodeEnvelope(t, rec).Error; e == nil || e.Code != ErrCodeTooManyRequests {
		t.Errorf("429 error = %+v", e)
	}
}

func TestRouterCompressesJSON(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/widget-config/sky", nil, "Accept-Encoding", "gzip")
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.do(http.MethodGet, "/api/widget-config/sky", nil)

	rec := env.do(http.MethodGet, "/metrics", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "leadchat_api_requests_total") {
		t.Error("metrics output lacks leadchat_api_requests_total")
	}
}

func TestRouterMetricsGzipDecodesOnce(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/metrics", nil, "Accept-Encoding", "gzip")
	expectStatus(t, rec, http.StatusOK)
	if got := rec.Header().Values("Content-Encoding"); len(got) != 1 || got[0] != "gzip" {
		t.Fatalf("Content-Encoding = %v, want [gzip]", got)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(body, []byte("# HELP")) {
		t.Errorf("metrics body after one gunzip starts with %q", body[:min(len(body), 8)])
	}
}

func TestChiMiddlewareConfigFrom(t *testing.T) {
	t.Parallel()

	c := ChiMiddlewareConfigFrom(config.SecurityConfig{})
	def := DefaultChiMiddlewareConfig()
	if c.RateLimitRequests != def.RateLimitRequests || c.RateLimitWindow != def.RateLimitWindow || c.CORSAllowedOrigins[0] != "*" {
		t.Errorf("zero security config should keep defaults: %+v", c)
	}

	c = ChiMiddlewareConfigFrom(config.SecurityConfig{
		AllowedOrigins:    []string{"https://dash.example"},
		RateLimitReqs:     7,
		RateLimitWindow:   30 * time.Second,
		RateLimitDisabled: true,
	})
	if c.CORSAllowedOrigins[0] != "https://dash.example" || c.RateLimitRequests != 7 || c.RateLimitWindow != 30*time.Second || !c.RateLimitDisabled {
		t.Errorf("config = %+v", c)
	}
}

func TestGetTimeParam(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/?d=2024-05-01&ts=2024-05-01T10:00:00Z&bad=soon", nil)

	start, err := getTimeParam(r, "d", false)
	if err != nil || !start.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v, %v", start, err)
	}
	end, err := getTimeParam(r, "d", true)
	if err != nil || !end.Equal(time.Date(2024, 5, 1, 23, 59, 59, 999999999, time.UTC)) {
		t.Errorf("end = %v, %v", end, err)
	}
	ts, err := getTimeParam(r, "ts", true)
	if err != nil || ts.Hour() != 10 {
		t.Errorf("ts = %v, %v", ts, err)
	}
	if _, err := getTimeParam(r, "bad", false); err == nil {
		t.Error("expected error for malformed date")
	}
	if missing, err := getTimeParam(r, "none", false); missing != nil || err != nil {
		t.Errorf("missing = %v, %v", missing, err)
	}
	if got := getIntParam(r, "bad", 7); got != 7 {
		t.Errorf("getIntParam fallback = %d", got)
	}
}
