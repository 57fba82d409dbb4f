// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tomtom215/leadchat/internal/leads"
	"github.com/tomtom215/leadchat/internal/models"
	"github.com/tomtom215/leadchat/internal/validation"
)

// LeadCreate answers POST /api/leads.
func (h *Handler) LeadCreate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req leads.SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	lead, err := h.leads.Submit(r.Context(), &req)
	if err != nil {
		var verr *validation.RequestValidationError
		switch {
		case errors.As(err, &verr):
			apiErr := verr.ToAPIError()
			rw.ValidationError(apiErr.Message, apiErr.Details)
		case errors.Is(err, leads.ErrInvalidPhone):
			rw.ValidationError("Please provide a valid mobile number", map[string]any{"field": "phone"})
		case errors.Is(err, leads.ErrInvalidBHK):
			rw.ValidationError(fmt.Sprintf("Please choose a BHK preference: 1-%d BHK or %s", leads.MaxBHK, models.BHKTypeUndecided), map[string]any{"field": "bhkType", "options": leads.BHKOptions()})
		default:
			rw.DatabaseError(err)
		}
		return
	}
	rw.Created(lead)
}

// LeadList answers GET /api/leads for the dashboard.
func (h *Handler) LeadList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	start, err := getTimeParam(r, "startDate", false)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	end, err := getTimeParam(r, "endDate", true)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if start != nil && end != nil && end.Before(*start) {
		rw.BadRequest("endDate must not be before startDate")
		return
	}

	filter := models.LeadFilter{
		Microsite: strings.TrimSpace(q.Get("microsite")),
		Search:    strings.TrimSpace(q.Get("search")),
		StartDate: start,
		EndDate:   end,
		Limit:     getIntParam(r, "limit", 0),
		Skip:      getIntParam(r, "skip", 0),
	}.Normalize()

	out, total, err := h.store.ListLeads(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if out == nil {
		out = []models.Lead{}
	}
	rw.SuccessWithPagination(out, pagination(total, len(out), filter.Skip, filter.Limit))
}

// ChatSessionList answers GET /api/chat-sessions for the dashboard.
func (h *Handler) ChatSessionList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	filter := models.ChatSessionFilter{
		Microsite: strings.TrimSpace(q.Get("microsite")),
		LeadID:    strings.TrimSpace(q.Get("leadId")),
		Limit:     getIntParam(r, "limit", 0),
		Skip:      getIntParam(r, "skip", 0),
	}.Normalize()

	out, total, err := h.store.ListChatSessions(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if out == nil {
		out = []models.ChatSession{}
	}
	rw.SuccessWithPagination(out, pagination(total, len(out), filter.Skip, filter.Limit))
}
