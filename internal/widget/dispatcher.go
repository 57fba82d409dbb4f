// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/leadchat/internal/logging"
)

const dispatchTimeout = 10 * time.Second

// EventPayload is the body posted to /api/events.
type EventPayload struct {
	Type      string         `json:"type"`
	ProjectID string         `json:"projectId,omitempty"`
	Microsite string         `json:"microsite,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Dispatcher sends analytics events fire-and-forget. It never sends
// cookies or credentials, and it is silent when the API is loopback but the
// page is not. A nil Dispatcher drops every event.
type Dispatcher struct {
	client    *http.Client
	apiBase   string
	microsite string
	enabled   bool
	verbose   bool

	mu        sync.Mutex
	projectID string

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher posting to apiBase for page. A nil
// client gets a default one without a cookie jar.
func NewDispatcher(client *http.Client, apiBase string, page *Page, projectID, microsite string) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: dispatchTimeout}
	} else if client.Jar != nil {
		c := *client
		c.Jar = nil
		client = &c
	}
	d := &Dispatcher{
		client:    client,
		apiBase:   apiBase,
		microsite: microsite,
		projectID: projectID,
		enabled:   apiBase != "",
	}
	if page != nil {
		d.verbose = page.IsLoopback()
		if u, err := url.Parse(apiBase); err == nil && isLoopbackHost(u.Hostname()) && !page.IsLoopback() {
			d.enabled = false
		}
	}
	return d
}

// Enabled reports whether events are being sent.
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.enabled
}

// SetProjectID changes the attribution of later events.
func (d *Dispatcher) SetProjectID(id string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.projectID = id
	d.mu.Unlock()
}

// Dispatch posts an event in the background. Failures are swallowed.
func (d *Dispatcher) Dispatch(eventType string, extra map[string]any) {
	if !d.Enabled() {
		return
	}
	d.mu.Lock()
	ev := EventPayload{
		Type:      eventType,
		ProjectID: d.projectID,
		Microsite: d.microsite,
		Payload:   extra,
		Timestamp: time.Now().UTC(),
	}
	d.mu.Unlock()

	body, err := json.Marshal(ev)
	if err != nil {
		d.debug(err, eventType)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.send(body); err != nil {
			d.debug(err, eventType)
		}
	}()
}

// Wait blocks until in-flight events have been sent.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) send(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiBase+"/api/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("events endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) debug(err error, eventType string) {
	if !d.verbose {
		return
	}
	logging.Debug().Err(err).Str("event_type", eventType).Msg("Widget event dispatch failed")
}
