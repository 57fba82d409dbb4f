// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ConfigUpdatedEvent is the page event that forces an immediate config
// refresh. Its detail is a project ID; an empty detail matches every project.
const ConfigUpdatedEvent = "leadchat-config-updated"

// ListenerID identifies a registered page event listener. The zero value
// means "no listener".
type ListenerID uint64

// Page is the hosting page: its URL, document, widget registry and event
// listeners.
type Page struct {
	url      *url.URL
	doc      *Document
	registry *Registry

	mu        sync.Mutex
	listeners map[string]map[ListenerID]func(detail string)
	nextID    ListenerID
}

// PageOption configures a Page.
type PageOption func(*Page)

// WithRegistry shares a registry between pages (e.g. frames of one tab).
func WithRegistry(r *Registry) PageOption {
	return func(p *Page) { p.registry = r }
}

// NewPage creates a page served from rawURL.
func NewPage(rawURL string, doc *Document, opts ...PageOption) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("page %s: nil document", rawURL)
	}
	p := &Page{
		url:       u,
		doc:       doc,
		listeners: make(map[string]map[ListenerID]func(string)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = NewRegistry()
	}
	return p, nil
}

// URL returns the page URL.
func (p *Page) URL() *url.URL { return p.url }

// Document returns the page document.
func (p *Page) Document() *Document { return p.doc }

// Registry returns the page's widget registry.
func (p *Page) Registry() *Registry { return p.registry }

// Hostname returns the page host without port.
func (p *Page) Hostname() string { return p.url.Hostname() }

// Secure reports whether the page was served over https.
func (p *Page) Secure() bool { return strings.EqualFold(p.url.Scheme, "https") }

// IsLoopback reports whether the page is served from a loopback host.
func (p *Page) IsLoopback() bool { return isLoopbackHost(p.Hostname()) }

// AddEventListener registers fn for event and returns its handle.
func (p *Page) AddEventListener(event string, fn func(detail string)) ListenerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	if p.listeners[event] == nil {
		p.listeners[event] = make(map[ListenerID]func(string))
	}
	p.listeners[event][p.nextID] = fn
	return p.nextID
}

// RemoveEventListener removes a listener. Unknown IDs are ignored.
func (p *Page) RemoveEventListener(event string, id ListenerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners[event], id)
	if len(p.listeners[event]) == 0 {
		delete(p.listeners, event)
	}
}

// ListenerCount returns the number of listeners for event.
func (p *Page) ListenerCount(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners[event])
}

// DispatchEvent calls every listener for event synchronously, in
// registration order. Listeners may add or remove listeners.
func (p *Page) DispatchEvent(event, detail string) {
	p.mu.Lock()
	ids := make([]ListenerID, 0, len(p.listeners[event]))
	fns := make(map[ListenerID]func(string), len(p.listeners[event]))
	for id, fn := range p.listeners[event] {
		ids = append(ids, id)
		fns[id] = fn
	}
	p.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fns[id](detail)
	}
}

func isLoopbackHost(host string) bool {
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}
