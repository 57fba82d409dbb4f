// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

const testPageHTML = `<!doctype html>
<html><head><title>Sky Towers | Example Realty</title></head>
<body><h1>Sky Towers</h1><p class="price">Starting ₹ 1.2 Cr onwards</p></body></html>`

func newTestPage(t *testing.T, rawURL string, opts ...DocumentOption) *Page {
	t.Helper()
	doc, err := ParseDocumentString(testPageHTML, opts...)
	if err != nil {
		t.Fatal(err)
	}
	page, err := NewPage(rawURL, doc)
	if err != nil {
		t.Fatal(err)
	}
	return page
}

// configServer serves a mutable widget-config body and records requests.
type configServer struct {
	*httptest.Server
	body     atomic.Value // string
	status   atomic.Int32
	delay    atomic.Int64
	requests atomic.Int32

	mu      sync.Mutex
	last    *http.Request
	events  []EventPayload
	leads   []LeadRequest
	leadErr bool
}

func newConfigServer(t *testing.T, body string) *configServer {
	t.Helper()
	cs := &configServer{}
	cs.body.Store(body)
	cs.status.Store(http.StatusOK)
	cs.Server = httptest.NewServer(http.HandlerFunc(cs.serve))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *configServer) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/widget-config/"):
		cs.requests.Add(1)
		cs.mu.Lock()
		cs.last = r.Clone(r.Context())
		cs.mu.Unlock()
		if d := time.Duration(cs.delay.Load()); d > 0 {
			time.Sleep(d)
		}
		w.WriteHeader(int(cs.status.Load()))
		_, _ = io.WriteString(w, cs.body.Load().(string))
	case r.URL.Path == "/api/events":
		var ev EventPayload
		_ = json.NewDecoder(r.Body).Decode(&ev)
		cs.mu.Lock()
		cs.events = append(cs.events, ev)
		cs.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"accepted":true}`)
	case r.URL.Path == "/api/leads":
		var req LeadRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		cs.mu.Lock()
		cs.leads = append(cs.leads, req)
		fail := cs.leadErr
		cs.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"lead-1","phone":"9876543210"}`)
	default:
		http.NotFound(w, r)
	}
}

func (cs *configServer) lastRequest() *http.Request {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.last
}

func (cs *configServer) eventTypes() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	types := make([]string, 0, len(cs.events))
	for _, ev := range cs.events {
		types = append(types, ev.Type)
	}
	return types
}

// countingRenderer counts render passes.
type countingRenderer struct {
	n     atomic.Int32
	inner Renderer
}

func (c *countingRenderer) Render(w io.Writer, props RenderProps) error {
	c.n.Add(1)
	if c.inner == nil {
		return HTMLRenderer{}.Render(w, props)
	}
	return c.inner.Render(w, props)
}

func (c *countingRenderer) count() int { return int(c.n.Load()) }

// fakeTickers hands out manually driven tickers and tracks how many run.
type fakeTickers struct {
	mu      sync.Mutex
	active  int
	tickers []*fakeTicker
}

type fakeTicker struct {
	owner   *fakeTickers
	c       chan time.Time
	stopped bool
}

func (f *fakeTickers) factory(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{owner: f, c: make(chan time.Time)}
	f.active++
	f.tickers = append(f.tickers, t)
	return t
}

func (f *fakeTickers) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeTickers) latest() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers[len(f.tickers)-1]
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if !t.stopped {
		t.stopped = true
		t.owner.active--
	}
}

// tickAndSettle delivers a tick and then a second one, which can only be
// received after the first refresh has finished.
func (t *fakeTicker) tickAndSettle(tb testing.TB) {
	tb.Helper()
	for range 2 {
		select {
		case t.c <- time.Now():
		case <-time.After(2 * time.Second):
			tb.Fatal("poll loop did not receive tick")
		}
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
