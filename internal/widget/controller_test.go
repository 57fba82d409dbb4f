// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/leadchat/internal/models"
)

func newTestController(renderer Renderer, tickers *fakeTickers) *Controller {
	opts := Options{Renderer: renderer, Fetcher: NewFetcher()}
	if tickers != nil {
		opts.TickerFactory = tickers.factory
	}
	return NewController(opts)
}

func TestConcurrentMountsCreateOneHost(t *testing.T) {
	t.Parallel()
	srv := newConfigServer(t, `{"agentName":"Riya"}`)
	srv.delay.Store(int64(30 * time.Millisecond))
	page := newTestPage(t, "http://localhost:8080/")
	renderer := &countingRenderer{}
	ctrl := newTestController(renderer, nil)

	const n = 25
	results := make([]*Instance, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i] = ctrl.Mount(context.Background(), page, MountConfig{ProjectID: "sky", APIBaseURL: srv.URL})
		}()
	}
	close(start)
	wg.Wait()

	if got := page.Document().CountMarkers(); got != 1 {
		t.Fatalf("marker hosts = %d, want 1", got)
	}
	for i, inst := range results {
		if inst != results[0] {
			t.Fatalf("Mount #%d returned a different instance", i)
		}
	}
	if results[0].State() != StateMounted {
		t.Errorf("state = %v", results[0].State())
	}
	if got := srv.requests.Load(); got != 1 {
		t.Errorf("config requests = %d, want 1", got)
	}
	if page.Registry().Current() != results[0] {
		t.Error("registry does not hold the mounted instance")
	}
	results[0].Dispatcher().Wait()
}

func TestMountRendersIntoShadowRoot(t *testing.T) {
	t.Parallel()
	srv := newConfigServer(t, `{"agent_name":"Asha","primary_color":"#ff0000"}`)
	page := newTestPage(t, "http://localhost/")
	ctrl := newTestController(nil, nil)

	inst := ctrl.Mount(context.Background(), page, MountConfig{ProjectID: "sky", APIBaseURL: srv.URL + "/api/"})
	defer inst.Destroy()

	if !inst.Isolated() {
		t.Error("expected shadow root isolation")
	}
	if inst.APIBase() != srv.URL {
		t.Errorf("APIBase() = %q, want %q", inst.APIBase(), srv.URL)
	}
	out := page.Document().String()
	for _, want := range []string{`id="leadchat-widget-root"`, `shadowrootmode="open"`, "Chat with Asha", "#ff0000"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered page missing %q", want)
		}
	}
	if inst.Microsite() != "localhost" {
		t.Errorf("Microsite() = %q, want page hostname", inst.Microsite())
	}
}

func TestMountFallsBackWithoutShadowDOM(t *testing.T) {
	t.Parallel()
	page := newTestPage(t, "https://sky.example/", WithoutShadowDOM())
	renderer := &countingRenderer{}
	ctrl := newTestController(renderer, nil)

	inst := ctrl.Mount(context.Background(), page, MountConfig{})
	if inst.State() != StateMounted {
		t.Fatalf("state = %v", inst.State())
	}
	if inst.Isolated() {
		t.Error("should not report isolation")
	}
	out := page.Document().String()
	if !strings.Contains(out, `data-leadchat-reset="true"`) || strings.Contains(out, "shadowrootmode") {
		t.Errorf("reset style fallback missing:\n%s", out)
	}

	inst.UpdateTheme(models.ThemeConfig{AgentName: "Neha"})
	if out := page.Document().String(); !strings.Contains(out, "data-leadchat-reset") {
		t.Error("re-render removed the reset style")
	}
}

func TestMountDetectedPropertyOverridesFetched(t *testing.T) {
	t.Parallel()
	srv := newConfigServer(t, `{"propertyInfo":{"propertyName":"Server Name","price":"1 Cr"}}`)
	page := newTestPage(t, "http://localhost/")
	ctrl := newTestController(nil, nil)

	inst := ctrl.Mount(context.Background(), page, MountConfig{ProjectID: "sky", APIBaseURL: srv.URL})
	defer inst.Destroy()

	info := inst.Theme().PropertyInfo
	if info[PropertyName] != "Sky Towers" {
		t.Errorf("propertyName = %q, want detected value", info[PropertyName])
	}
	if _, ok := info[PropertyLocation]; ok {
		t.Error("detected map should replace propertyInfo wholesale")
	}
}

func TestMountThemeOverlay(t *testing.T) {
	t.Parallel()
	srv := newConfigServer(t, `{"agentName":"Server"}`)
	page := newTestPage(t, "http://localhost/")
	ctrl := newTestController(nil, nil)

	inst := ctrl.Mount(context.Background(), page, MountConfig{
		ProjectID:  "sky",
		APIBaseURL: srv.URL,
		Theme:      models.ThemeConfig{AgentName: "Local", PrimaryColor: "#000000"},
	})
	defer inst.Destroy()

	got := inst.Theme()
	if got.AgentName != "Server" || got.PrimaryColor != "#000000" {
		t.Errorf("theme = %+v, want fetched over mount theme", got)
	}
	if got.WelcomeMessage != "" {
		t.Error("defaults must not be stored, only resolved at render")
	}
}

func TestMountSkipsForeignMarker(t *testing.T) {
	t.Parallel()
	doc, err := ParseDocumentString(`<html><body><div data-leadchat-widget="true"></div></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	page, err := NewPage("https://sky.example/", doc)
	if err != nil {
		t.Fatal(err)
	}
	inst := newTestController(nil, nil).Mount(context.Background(), page, MountConfig{ProjectID: "sky"})

	if inst.State() != StateFailed {
		t.Errorf("state = %v, want failed no-op", inst.State())
	}
	if doc.CountMarkers() != 1 {
		t.Errorf("markers = %d, want 1", doc.CountMarkers())
	}
	if page.Registry().Current() != nil {
		t.Error("no-op instance must not be registered")
	}
}

func TestFailedInstanceIsSafe(t *testing.T) {
	t.Parallel()
	doc, err := ParseDocumentString(`<html></html>`)
	if err != nil {
		t.Fatal(err)
	}
	// html.Parse always synthesizes a body; remove it to force ErrNoBody.
	doc.mu.Lock()
	if body := doc.body(); body != nil {
		detach(body)
	}
	doc.mu.Unlock()
	page, err := NewPage("https://sky.example/", doc)
	if err != nil {
		t.Fatal(err)
	}

	inst := newTestController(nil, nil).Mount(context.Background(), page, MountConfig{ProjectID: "sky"})
	if inst.State() != StateFailed {
		t.Fatalf("state = %v, want failed", inst.State())
	}
	if inst.UpdateTheme(models.ThemeConfig{AgentName: "x"}) || inst.UpdateProjectID("other") {
		t.Error("updates on a failed instance must be no-ops")
	}
	inst.StartConfigPolling()
	inst.StopConfigPolling()
	inst.Destroy()
	inst.Conversation().Open()
	if err := inst.Conversation().SubmitPhone(context.Background(), "9876543210"); err != nil {
		t.Errorf("SubmitPhone on nil conversation = %v", err)
	}
	inst.Dispatcher().Dispatch("x", nil)

	var nilPage *Page
	if got := newTestController(nil, nil).Mount(context.Background(), nilPage, MountConfig{}); got.State() != StateFailed {
		t.Error("nil page should give a no-op instance")
	}
}

func TestMountRecoversFromRendererPanic(t *testing.T) {
	t.Parallel()
	page := newTestPage(t, "https://sky.example/")
	ctrl := newTestController(RenderFunc(func(io.Writer, RenderProps) error { panic("boom") }), nil)

	inst := ctrl.Mount(context.Background(), page, MountConfig{})
	if inst.State() != StateFailed {
		t.Errorf("state = %v, want failed", inst.State())
	}
	if page.Document().HasMarker() {
		t.Error("failed mount left a host behind")
	}
	if page.Registry().Current() != nil {
		t.Error("failed mount registered an instance")
	}

	// The page is free for a later, working mount.
	ok := newTestController(nil, nil).Mount(context.Background(), page, MountConfig{})
	if ok.State() != StateMounted {
		t.Errorf("remount state = %v", ok.State())
	}
}

func TestMountRendererErrorFails(t *testing.T) {
	t.Parallel()
	page := newTestPage(t, "https://sky.example/")
	ctrl := newTestController(RenderFunc(func(io.Writer, RenderProps) error { return errors.New("bad template") }), nil)
	if inst := ctrl.Mount(context.Background(), page, MountConfig{}); inst.State() != StateFailed {
		t.Errorf("state = %v", inst.State())
	}
}

func TestUpdateThemeChangeDetection(t *testing.T) {
	t.Parallel()
	page := newTestPage(t, "https://sky.example/")
	renderer := &countingRenderer{}
	inst := newTestController(renderer, nil).Mount(context.Background(), page, MountConfig{})
	defer inst.Destroy()
	base := renderer.count()

	a := models.ThemeConfig{AgentName: "Riya", PropertyInfo: map[string]string{"price": "1 Cr", "location": ""}}
	b := models.ThemeConfig{AgentName: " Riya ", PropertyInfo: map[string]string{"price": "1 Cr"}}
	if !inst.UpdateTheme(a) {
		t.Fatal("first update should render")
	}
	if inst.UpdateTheme(b) {
		t.Error("deep-equal normalized update should not render")
	}
	if got := renderer.count() - base; got != 1 {
		t.Errorf("renders = %d, want 1", got)
	}
	if inst.UpdateTheme(models.ThemeConfig{AgentName: "Neha"}) != true {
		t.Error("changed theme should render")
	}
}

func TestRerenderErrorKeepsPreviousTheme(t *testing.T) {
	t.Parallel()
	page := newTestPage(t, "https://sky.example/")
	var failing atomic.Bool
	renderer := RenderFunc(func(w io.Writer, props RenderProps) error {
		if failing.Load() {
			return errors.New("bad template")
		}
		return HTMLRenderer{}.Render(w, props)
	})
	inst := newTestController(renderer, nil).Mount(context.Background(), page, MountConfig{ProjectID: "a", Theme: models.ThemeConfig{AgentName: "Riya"}})
	defer inst.Destroy()
	if inst.State() != StateMounted {
		t.Fatalf("state = %v", inst.State())
	}

	failing.Store(true)
	if inst.UpdateTheme(models.ThemeConfig{AgentName: "Neha"}) {
		t.Error("failed re-render should report no change")
	}
	if inst.Theme().AgentName != "Riya" || inst.State() != StateMounted {
		t.Errorf("theme = %q state = %v, want previous theme and mounted", inst.Theme().AgentName, inst.State())
	}
	if !inst.UpdateProjectID("b") || inst.ProjectID() != "b" {
		t.Error("project change is kept even when the re-render fails")
	}
	if !strings.Contains(page.Document().String(), "Riya") {
		t.Error("previous render was discarded")
	}
}

func TestUpdateProjectIDKeepsHostAndState(t *testing.T) {
	t.Parallel()
	page := newTestPage(t, "https://sky.example/")
	renderer := &countingRenderer{}
	inst := newTestController(renderer, nil).Mount(context.Background(), page, MountConfig{ProjectID: "a"})
	defer inst.Destroy()

	inst.Conversation().Open()
	before := inst.Conversation().State()
	theme := inst.Theme()

	if !inst.UpdateProjectID("b") {
		t.Fatal("UpdateProjectID should report a change")
	}
	if inst.UpdateProjectID("b") {
		t.Error("same ID should not re-render")
	}
	if inst.ProjectID() != "b" || !inst.Theme().Equal(theme) {
		t.Error("project change must not touch appearance")
	}
	if inst.Conversation().State() != before || !before.Snapshot().Open {
		t.Error("conversation state was not preserved")
	}
	if page.Document().CountMarkers() != 1 {
		t.Error("host was recreated")
	}
	if !strings.Contains(page.Document().String(), `data-project="b"`) {
		t.Error("new project not rendered")
	}
}

func TestMountExistingInstanceUpdatesInPlace(t *testing.T) {
	t.Parallel()
	page := newTestPage(t, "https://sky.example/")
	ctrl := newTestController(nil, nil)
	first := ctrl.Mount(context.Background(), page, MountConfig{ProjectID: "a"})
	defer first.Destroy()

	second := ctrl.Mount(context.Background(), page, MountConfig{ProjectID: "b", Theme: models.ThemeConfig{PrimaryColor: "#00ff00"}})
	if second != first {
		t.Fatal("second Mount returned a new instance")
	}
	if first.ProjectID() != "b" || first.Theme().PrimaryColor != "#00ff00" {
		t.Errorf("existing instance not updated: %q %+v", first.ProjectID(), first.Theme())
	}
	if page.Document().CountMarkers() != 1 {
		t.Error("second Mount created another host")
	}
}

func TestPollingEmptyFetchDoesNotRender(t *testing.T) {
	t.Parallel()
	srv := newConfigServer(t, `{"agentName":"Riya"}`)
	page := newTestPage(t, "http://localhost/")
	renderer := &countingRenderer{}
	tickers := &fakeTickers{}
	inst := newTestController(renderer, tickers).Mount(context.Background(), page, MountConfig{ProjectID: "sky", APIBaseURL: srv.URL})
	defer inst.Destroy()

	inst.StartConfigPolling()
	if !inst.Polling() {
		t.Fatal("polling not started")
	}
	base := renderer.count()

	srv.status.Store(503) // simulated failure: fetch yields {}
	tickers.latest().tickAndSettle(t)
	if got := renderer.count() - base; got != 0 {
		t.Errorf("renders after empty fetch = %d, want 0", got)
	}
	if inst.Theme().AgentName != "Riya" {
		t.Error("empty fetch replaced the theme")
	}

	srv.status.Store(200)
	srv.body.Store(`{"agentName":"Riya"}`)
	tickers.latest().tickAndSettle(t)
	if got := renderer.count() - base; got != 0 {
		t.Errorf("renders after identical fetch = %d, want 0", got)
	}

	srv.body.Store(`{"agent_name":"Neha"}`)
	tickers.latest().tickAndSettle(t)
	if got := renderer.count() - base; got != 1 {
		t.Errorf("renders after changed fetch = %d, want 1", got)
	}
	if inst.Theme().AgentName != "Neha" {
		t.Errorf("theme = %+v", inst.Theme())
	}
}

func TestConfigUpdatedEventRefreshesImmediately(t *testing.T) {
	t.Parallel()
	srv := newConfigServer(t, `{"agentName":"Riya"}`)
	page := newTestPage(t, "http://localhost/")
	tickers := &fakeTickers{}
	inst := newTestController(nil, tickers).Mount(context.Background(), page, MountConfig{ProjectID: "sky", APIBaseURL: srv.URL})
	defer inst.Destroy()
	inst.StartConfigPolling()

	srv.body.Store(`{"agentName":"Neha"}`)
	page.DispatchEvent(ConfigUpdatedEvent, "other-project")
	if inst.Theme().AgentName != "Riya" {
		t.Error("event for another project triggered a refresh")
	}
	page.DispatchEvent(ConfigUpdatedEvent, "sky")
	if inst.Theme().AgentName != "Neha" {
		t.Errorf("theme after event = %+v", inst.Theme())
	}
}

func TestDestroyThenMountLeavesOneTickerAndListener(t *testing.T) {
	t.Parallel()
	srv := newConfigServer(t, `{"agentName":"Riya"}`)
	page := newTestPage(t, "http://localhost/")
	tickers := &fakeTickers{}
	ctrl := newTestController(nil, tickers)
	cfg := MountConfig{ProjectID: "sky", APIBaseURL: srv.URL}

	first := ctrl.Mount(context.Background(), page, cfg)
	first.StartConfigPolling()
	first.StartConfigPolling()
	if tickers.activeCount() != 1 {
		t.Fatalf("active tickers after double start = %d", tickers.activeCount())
	}

	for range 3 {
		prev := page.Registry().Current()
		prev.Destroy()
		if prev.State() != StateDestroyed {
			t.Fatalf("state = %v", prev.State())
		}
		if page.Document().HasMarker() {
			t.Fatal("Destroy left the host in the page")
		}
		next := ctrl.Mount(context.Background(), page, cfg)
		if next == prev {
			t.Fatal("Mount after Destroy returned the destroyed instance")
		}
		next.StartConfigPolling()
	}

	if got := tickers.activeCount(); got != 1 {
		t.Errorf("active tickers = %d, want 1", got)
	}
	if got := page.ListenerCount(ConfigUpdatedEvent); got != 1 {
		t.Errorf("listeners = %d, want 1", got)
	}
	if page.Document().CountMarkers() != 1 {
		t.Errorf("markers = %d", page.Document().CountMarkers())
	}

	page.Registry().Current().Destroy()
	if tickers.activeCount() != 0 || page.ListenerCount(ConfigUpdatedEvent) != 0 {
		t.Error("final Destroy leaked a ticker or listener")
	}
}

func TestStartConfigPollingNeedsAPIBase(t *testing.T) {
	t.Parallel()
	page := newTestPage(t, "https://sky.example/")
	tickers := &fakeTickers{}
	// A loopback API on a public page is discarded, leaving the widget offline.
	inst := newTestController(nil, tickers).Mount(context.Background(), page, MountConfig{ProjectID: "sky", APIBaseURL: "http://localhost:4000"})
	defer inst.Destroy()

	if inst.APIBase() != "" {
		t.Errorf("APIBase() = %q, want discarded", inst.APIBase())
	}
	inst.StartConfigPolling()
	if inst.Polling() || tickers.activeCount() != 0 {
		t.Error("offline widget should not poll")
	}
}
