// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

// Package models defines the records shared by the API, storage and the
// widget runtime.
package models

import "time"

// Pagination bounds for list endpoints.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// LeadStatusNew is the status of a freshly captured lead.
const LeadStatusNew = "new"

// BHKTypeUndecided is the bhk_type of a lead with no configuration preference.
const BHKTypeUndecided = "Yet to decide"

// Lead is a captured visitor contact.
type Lead struct {
	ID           string         `json:"id"`
	Phone        string         `json:"phone"`
	CountryCode  string         `json:"country_code,omitempty"`
	Name         string         `json:"name,omitempty"`
	BHK          *int           `json:"bhk"`
	BHKType      string         `json:"bhk_type"`
	Microsite    string         `json:"microsite"`
	ProjectID    string         `json:"project_id,omitempty"`
	Status       string         `json:"status"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Conversation []ChatMessage  `json:"conversation,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// LeadFilter selects leads for the dashboard listing.
type LeadFilter struct {
	Microsite string
	Search    string // substring match on phone, name or microsite
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Skip      int
}

// Normalize clamps the paging fields into range.
func (f LeadFilter) Normalize() LeadFilter {
	f.Limit, f.Skip = clampPage(f.Limit, f.Skip)
	return f
}

// Matches reports whether l satisfies the filter. Used by stores without a query engine.
func (f LeadFilter) Matches(l *Lead) bool {
	if f.Microsite != "" && l.Microsite != f.Microsite {
		return false
	}
	if f.StartDate != nil && l.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && l.CreatedAt.After(*f.EndDate) {
		return false
	}
	if f.Search != "" {
		return containsFold(l.Phone, f.Search) || containsFold(l.Name, f.Search) ||
			containsFold(l.Microsite, f.Search) || containsFold(l.BHKType, f.Search)
	}
	return true
}

// ChatMessage is one line of a widget conversation.
type ChatMessage struct {
	Role string    `json:"role"` // bot or user
	Text string    `json:"text"`
	At   time.Time `json:"at,omitempty"`
}

// Chat message roles.
const (
	RoleBot  = "bot"
	RoleUser = "user"
)

// ChatSession is the transcript saved alongside a lead.
type ChatSession struct {
	ID           string        `json:"id"`
	LeadID       string        `json:"lead_id,omitempty"`
	Microsite    string        `json:"microsite"`
	ProjectID    string        `json:"project_id,omitempty"`
	Conversation []ChatMessage `json:"conversation"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ChatSessionFilter selects chat sessions.
type ChatSessionFilter struct {
	Microsite string
	LeadID    string
	Limit     int
	Skip      int
}

// Normalize clamps the paging fields into range.
func (f ChatSessionFilter) Normalize() ChatSessionFilter {
	f.Limit, f.Skip = clampPage(f.Limit, f.Skip)
	return f
}

// Matches reports whether s satisfies the filter.
func (f ChatSessionFilter) Matches(s *ChatSession) bool {
	if f.Microsite != "" && s.Microsite != f.Microsite {
		return false
	}
	return f.LeadID == "" || s.LeadID == f.LeadID
}

func clampPage(limit, skip int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if skip < 0 {
		skip = 0
	}
	return limit, skip
}
