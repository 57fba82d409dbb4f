// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

// Package websocket pushes widget config changes to mounted widgets. Each
// connection subscribes to one project; a client with no project receives
// every update (dashboards use this).
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/metrics"
	"github.com/tomtom215/leadchat/internal/models"
)

// Message types for WebSocket communication
const (
	MessageTypeWidgetConfigUpdated = "widget_config_updated"
	MessageTypePing                = "ping"
	MessageTypePong                = "pong"
)

// Message is the envelope for every frame.
type Message struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// WidgetConfigUpdate is the data of a widget_config_updated message.
type WidgetConfigUpdate struct {
	ProjectID string             `json:"projectId"`
	Theme     models.ThemeConfig `json:"theme"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run processes registrations and broadcasts until ctx is done, then
// closes every client. Lifecycle events are drained before broadcasts so a
// client registered before a broadcast always receives it.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error { return h.Run(ctx) }

// String names the service in supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Inc()
	logging.Debug().Str("project_id", c.projectID).Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		metrics.WSConnections.Dec()
		logging.Debug().Int("total_clients", n).Msg("websocket client disconnected")
	}
}

// sortedClients returns clients in ID order (must hold mu).
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for _, c := range h.sortedClients() {
		if !c.wants(msg.ProjectID) {
			continue
		}
		select {
		case c.send <- msg:
			metrics.WSMessagesSent.Inc()
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		close(c.send)
		delete(h.clients, c)
		metrics.WSConnections.Dec()
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := h.sortedClients()
	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
		metrics.WSConnections.Dec()
	}
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// BroadcastWidgetConfig notifies subscribers of projectID that its theme changed.
// It never blocks; when the queue is full the update is dropped and widgets
// pick it up on their next poll.
func (h *Hub) BroadcastWidgetConfig(wc *models.WidgetConfig) {
	data, err := json.Marshal(WidgetConfigUpdate{ProjectID: wc.ProjectID, Theme: wc.Theme, UpdatedAt: wc.UpdatedAt})
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode widget config update")
		return
	}
	msg := Message{Type: MessageTypeWidgetConfigUpdated, ProjectID: wc.ProjectID, Data: data}
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().Str("project_id", wc.ProjectID).Msg("broadcast channel full, dropping widget config update")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
