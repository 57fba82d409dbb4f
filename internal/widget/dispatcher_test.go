// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"
)

func TestDispatcherPostsEvent(t *testing.T) {
	t.Parallel()
	srv := newConfigServer(t, `{}`)
	page := newTestPage(t, "http://localhost/listing")

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(srv.URL)
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "secret"}})

	var sawCookie bool
	client := &http.Client{Jar: jar, Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("Cookie") != "" {
			sawCookie = true
		}
		return http.DefaultTransport.RoundTrip(r)
	})}

	d := NewDispatcher(client, srv.URL, page, "sky", "sky.example")
	d.Dispatch("chat_opened", map[string]any{"stage": "preference"})
	d.SetProjectID("sky-2")
	d.Dispatch("bhk_selected", map[string]any{"bhk": 2})
	d.Wait()

	if sawCookie {
		t.Error("dispatcher sent cookies")
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.events) != 2 {
		t.Fatalf("events = %d, want 2", len(srv.events))
	}
	byType := map[string]EventPayload{}
	for _, ev := range srv.events {
		byType[ev.Type] = ev
	}
	opened := byType["chat_opened"]
	if opened.ProjectID != "sky" || opened.Microsite != "sky.example" || opened.Payload["stage"] != "preference" || opened.Timestamp.IsZero() {
		t.Errorf("chat_opened = %+v", opened)
	}
	if sel := byType["bhk_selected"]; sel.ProjectID != "sky-2" || sel.Payload["bhk"] != float64(2) {
		t.Errorf("bhk_selected = %+v", sel)
	}
}

func TestDispatcherSuppression(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pageURL string
		apiBase string
		enabled bool
	}{
		{"loopback api on public page", "https://sky.example/", "http://127.0.0.1:4000", false},
		{"loopback api on loopback page", "http://localhost/", "http://127.0.0.1:4000", true},
		{"public api on public page", "https://sky.example/", "https://api.example.com", true},
		{"no api", "https://sky.example/", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := NewDispatcher(nil, tt.apiBase, newTestPage(t, tt.pageURL), "p", "m")
			if d.Enabled() != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", d.Enabled(), tt.enabled)
			}
		})
	}
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	t.Parallel()
	page := newTestPage(t, "http://localhost/")
	d := NewDispatcher(nil, "http://127.0.0.1:1", page, "p", "m")
	d.Dispatch("chat_opened", nil)
	d.Wait()

	var nilDispatcher *Dispatcher
	nilDispatcher.Dispatch("chat_opened", nil)
	nilDispatcher.Wait()
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
