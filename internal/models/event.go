// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package models

import (
	"strings"
	"time"
)

// Analytics event types emitted by the widget and the API.
const (
	EventWidgetLoaded     = "widget_loaded"
	EventChatOpened       = "chat_opened"
	EventChatClosed       = "chat_closed"
	EventBHKSelected      = "bhk_selected"
	EventPhoneSubmitted   = "phone_submitted"
	EventLeadSubmitted    = "lead_submitted"
	EventLeadSubmitFailed = "lead_submit_failed"
)

// Event is an analytics record. The payload is free-form.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Microsite string         `json:"microsite,omitempty"`
	ProjectID string         `json:"project_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventFilter selects events.
type EventFilter struct {
	Type      string
	Microsite string
	Limit     int
}

// Matches reports whether e satisfies the filter.
func (f EventFilter) Matches(e *Event) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return f.Microsite == "" || e.Microsite == f.Microsite
}

// WidgetConfig is the stored theme of one project.
type WidgetConfig struct {
	ProjectID string      `json:"project_id"`
	Theme     ThemeConfig `json:"theme"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
