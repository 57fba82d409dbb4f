// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import "sync"

// Registry tracks the live widget instance of a page and any mount in
// progress. It is empty at page load, set by the first successful mount and
// cleared by Destroy.
type Registry struct {
	mu       sync.Mutex
	current  *Instance
	inflight *mountAttempt
}

// mountAttempt is closed (done) when the owning Mount finishes.
type mountAttempt struct {
	done   chan struct{}
	result *Instance
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns the live instance, or nil.
func (r *Registry) Current() *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// acquire returns the live instance if there is one. Otherwise it returns
// the in-flight attempt, with owner set when the caller has just started it
// and must complete it.
func (r *Registry) acquire() (existing *Instance, attempt *mountAttempt, owner bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return r.current, nil, false
	}
	if r.inflight != nil {
		return nil, r.inflight, false
	}
	r.inflight = &mountAttempt{done: make(chan struct{})}
	return nil, r.inflight, true
}

// complete publishes the result of attempt and wakes its waiters. A live
// instance becomes the page's current instance.
func (r *Registry) complete(attempt *mountAttempt, inst *Instance, live bool) {
	r.mu.Lock()
	attempt.result = inst
	if live {
		r.current = inst
	}
	if r.inflight == attempt {
		r.inflight = nil
	}
	r.mu.Unlock()
	close(attempt.done)
}

// release clears the entry if it still belongs to inst.
func (r *Registry) release(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == inst {
		r.current = nil
	}
}
