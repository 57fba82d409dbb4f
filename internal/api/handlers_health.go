// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status           string  `json:"status"` // healthy or degraded
	Storage          string  `json:"storage"`
	StorageConnected bool    `json:"storageConnected"`
	WebSocketClients int     `json:"websocketClients"`
	Uptime           float64 `json:"uptimeSeconds"`
}

type clientCounter interface {
	ClientCount() int
}

// Health answers GET /api/health. A failing store ping reports degraded
// with 503 so load balancers can act on it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:  "healthy",
		Storage: h.store.Backend(),
		Uptime:  time.Since(h.startTime).Seconds(),
	}
	status.StorageConnected = h.store.Ping(ctx) == nil
	if cc, ok := h.hub.(clientCounter); ok {
		status.WebSocketClients = cc.ClientCount()
	}

	rw := NewResponseWriter(w, r)
	if !status.StorageConnected {
		status.Status = "degraded"
		meta := rw.meta()
		rw.writeJSON(http.StatusServiceUnavailable, APIResponse{Success: false, Data: status, Error: &APIError{
			Code:      ErrCodeServiceUnavailable,
			Message:   "Storage unreachable",
			RequestID: meta.RequestID,
		}, Meta: meta})
		return
	}
	rw.Success(status)
}
