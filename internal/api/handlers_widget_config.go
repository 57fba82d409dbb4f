// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/metrics"
	"github.com/tomtom215/leadchat/internal/models"
	"github.com/tomtom215/leadchat/internal/store"
	"github.com/tomtom215/leadchat/internal/validation"
)

// WidgetConfigGet answers GET /api/widget-config/{projectId} with the
// stored theme as bare camelCase JSON. Unknown projects and every failure
// answer 200 with the default theme so the widget never branches.
func (h *Handler) WidgetConfigGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	projectID := chi.URLParam(r, "projectId")

	if !validation.ValidateProjectID(projectID) {
		h.writeDefaultTheme(w)
		return
	}

	wc, err := h.store.GetWidgetConfig(r.Context(), projectID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Ctx(r.Context()).Warn().Err(err).Str("project_id", projectID).Msg("Widget config lookup failed, serving defaults")
		}
		h.writeDefaultTheme(w)
		return
	}
	writeJSON(w, http.StatusOK, wc.Theme)
}

func (h *Handler) writeDefaultTheme(w http.ResponseWriter) {
	metrics.WidgetConfigLookups.WithLabelValues("default").Inc()
	writeJSON(w, http.StatusOK, models.DefaultTheme())
}

// WidgetConfigSave answers POST /api/widget-config/{projectId}. The body
// may use snake_case or camelCase keys, bare or wrapped in "theme"; it is
// overlaid on the stored theme, saved and pushed to live subscribers.
func (h *Handler) WidgetConfigSave(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	projectID := chi.URLParam(r, "projectId")
	if !validation.ValidateProjectID(projectID) {
		rw.BadRequest("Invalid project id")
		return
	}

	var raw map[string]any
	if err := decodeJSON(w, r, &raw); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if raw == nil {
		rw.BadRequest("Request body must be a JSON object")
		return
	}
	if inner, ok := raw["theme"].(map[string]any); ok {
		raw = inner
	}
	update := models.ThemeFromMap(raw)
	if msg := checkTheme(update); msg != "" {
		rw.ValidationError(msg, nil)
		return
	}

	current := models.ThemeConfig{}
	existing, err := h.store.GetWidgetConfig(r.Context(), projectID)
	switch {
	case err == nil:
		current = existing.Theme
	case errors.Is(err, store.ErrNotFound):
	default:
		rw.DatabaseError(err)
		return
	}

	wc, err := h.store.SaveWidgetConfig(r.Context(), projectID, current.Overlay(update).Normalize())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if h.hub != nil {
		h.hub.BroadcastWidgetConfig(wc)
	}

	logging.Ctx(r.Context()).Info().Str("project_id", projectID).Msg("Widget config saved")
	writeJSON(w, http.StatusOK, wc)
}

// checkTheme returns a message for values the widget cannot render.
func checkTheme(t models.ThemeConfig) string {
	switch t.BubblePosition {
	case "", models.BubbleBottomRight, models.BubbleBottomLeft:
	default:
		return "bubblePosition must be bottom-right or bottom-left"
	}
	if t.AutoOpenDelayMs != nil && *t.AutoOpenDelayMs < 0 {
		return "autoOpenDelayMs must not be negative"
	}
	return ""
}
