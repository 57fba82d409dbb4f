// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/leadchat/internal/auth"
	"github.com/tomtom215/leadchat/internal/config"
	"github.com/tomtom215/leadchat/internal/models"
	"github.com/tomtom215/leadchat/internal/store"
	ws "github.com/tomtom215/leadchat/internal/websocket"
)

const testAPIKey = "test-api-key-0123456789"

// recordingHub captures broadcasts.
type recordingHub struct {
	mu   sync.Mutex
	sent []*models.WidgetConfig
}

func (h *recordingHub) BroadcastWidgetConfig(wc *models.WidgetConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, wc)
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent)
}

// failingStore breaks reads and pings of an otherwise working store.
type failingStore struct {
	store.Store
}

var errStoreDown = errors.New("store down")

func (f failingStore) GetWidgetConfig(context.Context, string) (*models.WidgetConfig, error) {
	return nil, errStoreDown
}

func (f failingStore) Ping(context.Context) error { return errStoreDown }

type brokenEvents struct {
	store.Store
}

func (b brokenEvents) RecordEvent(context.Context, *models.Event) error { return errStoreDown }

type testEnv struct {
	t       *testing.T
	cfg     *config.Config
	store   store.Store
	hub     *recordingHub
	handler *Handler
	server  http.Handler
}

type envOption func(*testEnv)

func withStore(wrap func(store.Store) store.Store) envOption {
	return func(e *testEnv) { e.store = wrap(e.store) }
}

func withRateLimit(requests int) envOption {
	return func(e *testEnv) {
		e.cfg.Security.RateLimitDisabled = false
		e.cfg.Security.RateLimitReqs = requests
		e.cfg.Security.RateLimitWindow = time.Minute
	}
}

func withMaxUpload(n int64) envOption {
	return func(e *testEnv) { e.cfg.Storage.MaxUploadBytes = n }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()

	fs, err := store.OpenFile(filepath.Join(dir, "leadchat.json"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{}
	cfg.Security.AllowedOrigins = []string{"*"}
	cfg.Security.WidgetConfigAPIKey = testAPIKey
	cfg.Security.RateLimitDisabled = true
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")

	env := &testEnv{t: t, cfg: cfg, store: fs, hub: &recordingHub{}}
	for _, opt := range opts {
		opt(env)
	}

	tokens, err := auth.NewTokenManager("test-session-secret")
	if err != nil {
		t.Fatal(err)
	}
	authn := auth.NewAuthenticator(cfg.Security.WidgetConfigAPIKey, tokens, auth.NewMemorySessionStore(), env.store, time.Hour)

	env.handler = NewHandler(env.store, authn, env.hub, cfg)
	env.server = NewRouter(env.handler, NewChiMiddleware(ChiMiddlewareConfigFrom(cfg.Security)), nil).SetupChi()
	return env
}

// withHub rebuilds the router around a running websocket hub and returns
// a live server for it.
func (e *testEnv) withHub(hub *ws.Hub) *httptest.Server {
	e.t.Helper()
	e.handler.hub = hub
	srv := httptest.NewServer(NewRouter(e.handler, NewChiMiddleware(ChiMiddlewareConfigFrom(e.cfg.Security)), hub).SetupChi())
	e.t.Cleanup(srv.Close)
	return srv
}

// do sends a request. headers are key, value pairs.
func (e *testEnv) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	case []byte:
		rdr = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			e.t.Fatal(err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func apiKey() []string { return []string{"X-API-Key", testAPIKey} }

func bearer(token string) []string { return []string{"Authorization", "Bearer " + token} }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v any) envelope {
	t.Helper()
	env := decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v\nbody: %s", err, rec.Body.String())
	}
	return env
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d\nbody: %s", rec.Code, want, rec.Body.String())
	}
}

// login creates a dashboard user and returns a session token.
func (e *testEnv) login(username, password string) string {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/users", map[string]string{"username": username, "password": password}, apiKey()...)
	expectStatus(e.t, rec, http.StatusCreated)

	rec = e.do(http.MethodPost, "/api/users/auth", map[string]string{"login": username, "password": password})
	expectStatus(e.t, rec, http.StatusOK)
	var resp LoginResponse
	decodeData(e.t, rec, &resp)
	if resp.Token == "" {
		e.t.Fatal("login returned no token")
	}
	return resp.Token
}
