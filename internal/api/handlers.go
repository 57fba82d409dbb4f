// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"time"

	"github.com/tomtom215/leadchat/internal/auth"
	"github.com/tomtom215/leadchat/internal/config"
	"github.com/tomtom215/leadchat/internal/leads"
	"github.com/tomtom215/leadchat/internal/models"
	"github.com/tomtom215/leadchat/internal/store"
)

// ConfigBroadcaster pushes saved widget configs to live subscribers.
// *websocket.Hub implements it.
type ConfigBroadcaster interface {
	BroadcastWidgetConfig(wc *models.WidgetConfig)
}

// Handler holds the dependencies of the HTTP handlers.
//
// Handler methods are split across files:
//   - handlers_widget_config.go: widget theme read/save
//   - handlers_leads.go: lead intake and dashboard listings
//   - handlers_events.go: analytics event intake
//   - handlers_upload.go: profile picture upload
//   - handlers_users.go: dashboard users and sessions
//   - handlers_health.go: health check
type Handler struct {
	store     store.Store
	leads     *leads.Service
	auth      *auth.Authenticator
	hub       ConfigBroadcaster // optional
	config    *config.Config
	startTime time.Time
	now       func() time.Time
}

// NewHandler creates the API handler. hub may be nil.
func NewHandler(st store.Store, authn *auth.Authenticator, hub ConfigBroadcaster, cfg *config.Config) *Handler {
	return &Handler{
		store:     st,
		leads:     leads.NewService(st),
		auth:      authn,
		hub:       hub,
		config:    cfg,
		startTime: time.Now(),
		now:       time.Now,
	}
}
