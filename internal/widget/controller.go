// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/models"
)

// DefaultPollInterval is how often a polling instance refetches its theme.
const DefaultPollInterval = 5 * time.Second

// State is the lifecycle state of an Instance.
type State int

// Instance states.
const (
	StateUninitialized State = iota
	StateMounting
	StateMounted
	StateUpdating
	StateDestroyed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateMounting:
		return "mounting"
	case StateMounted:
		return "mounted"
	case StateUpdating:
		return "updating"
	case StateDestroyed:
		return "destroyed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MountConfig is what the embedding page asks for. Theme may be partial.
type MountConfig struct {
	ProjectID  string
	APIBaseURL string
	Microsite  string
	Theme      models.ThemeConfig
}

// Options configures a Controller. Zero values get defaults.
type Options struct {
	Fetcher         *Fetcher
	Renderer        Renderer
	HTTPClient      *http.Client
	Submitter       LeadSubmitter // defaults to HTTPLeadSubmitter on the resolved API base
	TickerFactory   TickerFactory
	PollInterval    time.Duration
	FallbackAPIBase string
}

// Controller mounts widget instances onto pages.
type Controller struct {
	opts Options
}

// NewController creates a controller.
func NewController(opts Options) *Controller {
	if opts.Fetcher == nil {
		var fopts []FetcherOption
		if opts.HTTPClient != nil {
			fopts = append(fopts, WithHTTPClient(opts.HTTPClient))
		}
		opts.Fetcher = NewFetcher(fopts...)
	}
	if opts.Renderer == nil {
		opts.Renderer = HTMLRenderer{}
	}
	if opts.TickerFactory == nil {
		opts.TickerFactory = NewTicker
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Controller{opts: opts}
}

// Fetcher returns the controller's config fetcher.
func (c *Controller) Fetcher() *Fetcher { return c.opts.Fetcher }

// Mount returns the page's widget instance, creating it if needed. An
// existing instance is updated in place with cfg's project and theme. A
// call that arrives while another Mount is in progress waits for it and
// returns the same instance. Mount never panics; on failure it returns an
// instance in StateFailed whose methods do nothing.
func (c *Controller) Mount(ctx context.Context, page *Page, cfg MountConfig) *Instance {
	if page == nil {
		return newNoopInstance()
	}
	existing, attempt, owner := page.Registry().acquire()
	if existing != nil {
		existing.apply(cfg)
		return existing
	}
	if !owner {
		select {
		case <-attempt.done:
		case <-ctx.Done():
			return newNoopInstance()
		}
		inst := attempt.result
		inst.apply(cfg)
		return inst
	}
	return c.mount(ctx, page, cfg, attempt)
}

func (c *Controller) mount(ctx context.Context, page *Page, cfg MountConfig, attempt *mountAttempt) (inst *Instance) {
	log := logging.WithComponent("widget")
	inst = &Instance{ctrl: c, page: page, state: StateMounting}
	live := false
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("project_id", cfg.ProjectID).Msg("Widget mount panicked")
			inst.fail()
			live = false
		}
		page.Registry().complete(attempt, inst, live)
	}()

	if page.Document().HasMarker() {
		log.Warn().Str("page", page.URL().String()).Msg("Widget host already on page without a registry entry, not mounting")
		inst.fail()
		return inst
	}

	apiBase := ResolveAPIBase(cfg.APIBaseURL, page, c.opts.FallbackAPIBase)
	microsite := strings.TrimSpace(cfg.Microsite)
	if microsite == "" {
		microsite = page.Hostname()
	}
	projectID := strings.TrimSpace(cfg.ProjectID)

	var fetched models.ThemeConfig
	if apiBase != "" && projectID != "" {
		fetched = c.opts.Fetcher.FetchTheme(ctx, apiBase, projectID, false)
	}
	detected := page.Document().DetectProperty()

	inst.apiBase = apiBase
	inst.projectID = projectID
	inst.microsite = microsite
	inst.base = cfg.Theme.Normalize()
	inst.detected = detected
	inst.theme = deriveTheme(inst.base, fetched, detected)
	inst.conv = NewConversationState()
	inst.dispatcher = NewDispatcher(c.opts.HTTPClient, apiBase, page, projectID, microsite)
	submitter := c.opts.Submitter
	if submitter == nil && apiBase != "" {
		submitter = &HTTPLeadSubmitter{Client: c.opts.HTTPClient, APIBase: apiBase}
	}
	inst.conversation = newConversation(inst.conv, inst, submitter)

	if err := inst.attach(); err != nil {
		log.Error().Err(err).Str("project_id", projectID).Msg("Widget mount failed")
		inst.fail()
		return inst
	}

	inst.mu.Lock()
	inst.state = StateMounted
	inst.mu.Unlock()
	live = true

	log.Debug().
		Str("project_id", projectID).
		Str("microsite", microsite).
		Str("api_base", apiBase).
		Bool("isolated", inst.isolated).
		Msg("Widget mounted")
	inst.dispatch(models.EventWidgetLoaded, map[string]any{"propertyDetected": len(detected) > 0})
	return inst
}

// deriveTheme overlays the fetched theme on the mount theme. A non-empty
// detected property replaces propertyInfo wholesale.
func deriveTheme(base, fetched models.ThemeConfig, detected map[string]string) models.ThemeConfig {
	stored := base.Overlay(fetched)
	if len(detected) > 0 {
		stored.PropertyInfo = maps.Clone(detected)
	}
	return stored.Normalize()
}

// Instance is a mounted widget. All methods are safe for concurrent use and
// safe to call on a failed or destroyed instance.
type Instance struct {
	ctrl *Controller
	page *Page

	mu           sync.Mutex
	state        State
	host         *html.Node
	root         *html.Node
	isolated     bool
	apiBase      string
	projectID    string
	microsite    string
	base         models.ThemeConfig
	detected     map[string]string
	theme        models.ThemeConfig
	conv         *ConversationState
	conversation *Conversation
	dispatcher   *Dispatcher
	poll         *poller
	listener     ListenerID
}

func newNoopInstance() *Instance {
	return &Instance{state: StateFailed}
}

// State returns the lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Theme returns the current (unresolved) theme.
func (i *Instance) Theme() models.ThemeConfig {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.theme.Clone()
}

// ProjectID returns the lead attribution project.
func (i *Instance) ProjectID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.projectID
}

// Microsite returns the microsite leads are attributed to.
func (i *Instance) Microsite() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.microsite
}

// APIBase returns the API origin in use, "" when offline.
func (i *Instance) APIBase() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.apiBase
}

// Isolated reports whether the widget renders into a shadow root.
func (i *Instance) Isolated() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.isolated
}

// Polling reports whether config polling is active.
func (i *Instance) Polling() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.poll != nil
}

// Conversation returns the chat driver, nil for a failed instance.
func (i *Instance) Conversation() *Conversation {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == StateFailed {
		return nil
	}
	return i.conversation
}

// Dispatcher returns the event dispatcher, nil for a failed instance.
func (i *Instance) Dispatcher() *Dispatcher {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.dispatcher
}

// UpdateTheme re-renders with theme if it differs from the current theme
// after normalization. It reports whether a render happened.
func (i *Instance) UpdateTheme(theme models.ThemeConfig) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateMounted {
		return false
	}
	next := theme.Normalize()
	if next.Equal(i.theme) {
		return false
	}

	prev := i.theme
	i.state = StateUpdating
	i.theme = next
	if err := i.render(); err != nil {
		log := logging.WithComponent("widget")
		log.Error().Err(err).Msg("Widget re-render failed, keeping previous theme")
		i.theme = prev
		i.state = StateMounted
		return false
	}
	i.state = StateMounted
	return true
}

// UpdateProjectID changes lead attribution and re-renders. Appearance is
// unaffected. It reports whether the ID changed.
func (i *Instance) UpdateProjectID(id string) bool {
	id = strings.TrimSpace(id)
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateMounted || id == "" || id == i.projectID {
		return false
	}
	i.projectID = id
	i.dispatcher.SetProjectID(id)
	if err := i.render(); err != nil {
		log := logging.WithComponent("widget")
		log.Error().Err(err).Msg("Widget re-render failed after project change")
	}
	return true
}

// StartConfigPolling refetches the theme every poll interval and listens
// for ConfigUpdatedEvent on the page to refresh immediately. It is a no-op
// when already polling or when the widget has no API base or project.
func (i *Instance) StartConfigPolling() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateMounted || i.poll != nil || i.apiBase == "" || i.projectID == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{
		ticker: i.ctrl.opts.TickerFactory(i.ctrl.opts.PollInterval),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	i.poll = p
	i.listener = i.page.AddEventListener(ConfigUpdatedEvent, func(detail string) {
		i.onConfigUpdated(ctx, detail)
	})
	go p.run(ctx, i.refresh)
}

// StopConfigPolling stops the poll loop and removes the page listener. It
// returns after the loop has exited.
func (i *Instance) StopConfigPolling() {
	i.mu.Lock()
	p, id := i.poll, i.listener
	i.poll, i.listener = nil, 0
	i.mu.Unlock()

	if id != 0 {
		i.page.RemoveEventListener(ConfigUpdatedEvent, id)
	}
	if p != nil {
		p.stop()
	}
}

// Destroy stops polling, removes the widget from the page and frees the
// page's registry slot.
func (i *Instance) Destroy() {
	i.StopConfigPolling()

	i.mu.Lock()
	if i.state == StateDestroyed || i.state == StateFailed {
		i.mu.Unlock()
		return
	}
	if i.host != nil {
		doc := i.page.Document()
		doc.mu.Lock()
		clearRendered(i.root)
		detach(i.host)
		doc.mu.Unlock()
	}
	i.host, i.root = nil, nil
	i.state = StateDestroyed
	i.mu.Unlock()

	i.page.Registry().release(i)
	log := logging.WithComponent("widget")
	log.Debug().Str("project_id", i.ProjectID()).Msg("Widget destroyed")
}

// apply brings an existing instance in line with a later mount request.
func (i *Instance) apply(cfg MountConfig) {
	if cfg.ProjectID != "" {
		i.UpdateProjectID(cfg.ProjectID)
	}
	if cfg.Theme.IsEmpty() {
		return
	}
	i.mu.Lock()
	if i.state != StateMounted {
		i.mu.Unlock()
		return
	}
	i.base = i.base.Overlay(cfg.Theme)
	next := i.theme.Overlay(cfg.Theme)
	if len(i.detected) > 0 {
		next.PropertyInfo = maps.Clone(i.detected)
	}
	i.mu.Unlock()
	i.UpdateTheme(next)
}

func (i *Instance) refresh(ctx context.Context) {
	i.mu.Lock()
	base, projectID, ok := i.apiBase, i.projectID, i.state == StateMounted
	i.mu.Unlock()
	if !ok {
		return
	}

	fetched := i.ctrl.opts.Fetcher.FetchTheme(ctx, base, projectID, true)
	if fetched.IsEmpty() {
		return
	}

	i.mu.Lock()
	next := deriveTheme(i.base, fetched, i.detected)
	i.mu.Unlock()
	i.UpdateTheme(next)
}

func (i *Instance) onConfigUpdated(ctx context.Context, detail string) {
	i.mu.Lock()
	base, projectID := i.apiBase, i.projectID
	i.mu.Unlock()
	if detail != "" && detail != projectID {
		return
	}
	i.ctrl.opts.Fetcher.ClearCache(base, projectID)
	i.refresh(ctx)
}

// attach creates the host, isolates it and performs the first render.
func (i *Instance) attach() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	doc := i.page.Document()
	doc.mu.Lock()
	defer doc.mu.Unlock()

	host, err := doc.createHost()
	if err != nil {
		return err
	}
	root, err := doc.attachShadow(host)
	switch {
	case errors.Is(err, ErrShadowUnsupported):
		doc.injectResetStyle(host)
		root = host
	case err != nil:
		detach(host)
		return err
	default:
		i.isolated = true
	}
	i.host, i.root = host, root

	if err := i.renderInto(); err != nil {
		detach(host)
		i.host, i.root = nil, nil
		return err
	}
	return nil
}

// render re-renders into the existing root. i.mu must be held.
func (i *Instance) render() error {
	if i.root == nil {
		return nil
	}
	doc := i.page.Document()
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return i.renderInto()
}

// renderInto runs the renderer. i.mu and the document lock must be held.
func (i *Instance) renderInto() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panicked: %v", r)
		}
	}()
	nodes, err := renderNodes(i.ctrl.opts.Renderer, i.props())
	if err != nil {
		return err
	}
	replaceRendered(i.root, nodes)
	return nil
}

func (i *Instance) props() RenderProps {
	return RenderProps{
		Theme:     i.theme.Resolve(),
		ProjectID: i.projectID,
		Microsite: i.microsite,
		State:     i.conv,
	}
}

func (i *Instance) fail() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = StateFailed
	i.dispatcher = nil
	i.conversation = nil
}

// conversationHost implementation.

func (i *Instance) resolvedTheme() models.ThemeConfig {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.theme.Resolve()
}

func (i *Instance) attribution() (string, string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.projectID, i.microsite
}

func (i *Instance) dispatch(eventType string, extra map[string]any) {
	i.mu.Lock()
	d := i.dispatcher
	i.mu.Unlock()
	d.Dispatch(eventType, extra)
}

func (i *Instance) rerender() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateMounted {
		return
	}
	if err := i.render(); err != nil {
		log := logging.WithComponent("widget")
		log.Error().Err(err).Msg("Widget re-render failed")
	}
}

// poller owns one polling goroutine.
type poller struct {
	ticker Ticker
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *poller) run(ctx context.Context, refresh func(context.Context)) {
	defer close(p.done)
	defer p.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ticker.C():
			refresh(ctx)
		}
	}
}

func (p *poller) stop() {
	p.cancel()
	<-p.done
}
