// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/metrics"
	"github.com/tomtom215/leadchat/internal/models"
	"github.com/tomtom215/leadchat/internal/validation"
)

var eventTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

var knownEventTypes = map[string]bool{
	models.EventWidgetLoaded:     true,
	models.EventChatOpened:       true,
	models.EventChatClosed:       true,
	models.EventBHKSelected:      true,
	models.EventPhoneSubmitted:   true,
	models.EventLeadSubmitted:    true,
	models.EventLeadSubmitFailed: true,
}

// eventAccepted is the only answer POST /api/events gives.
var eventAccepted = map[string]bool{"accepted": true}

// EventIngest answers POST /api/events. It always answers 202; malformed
// events are dropped and storage failures are logged.
func (h *Handler) EventIngest(w http.ResponseWriter, r *http.Request) {
	defer writeJSON(w, http.StatusAccepted, eventAccepted)

	var raw map[string]any
	if err := decodeJSON(w, r, &raw); err != nil || raw == nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Dropping malformed event")
		return
	}
	event, ok := eventFromMap(models.NormalizeKeys(raw), h.now())
	if !ok {
		logging.Ctx(r.Context()).Debug().Msg("Dropping event without a valid type")
		return
	}

	label := event.Type
	if !knownEventTypes[label] {
		label = "other"
	}
	metrics.EventsIngested.WithLabelValues(label).Inc()

	if err := h.store.RecordEvent(r.Context(), event); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("type", event.Type).Msg("Failed to record event")
	}
}

func eventFromMap(m map[string]any, now time.Time) (*models.Event, bool) {
	typ, _ := m["type"].(string)
	typ = strings.TrimSpace(typ)
	if !eventTypePattern.MatchString(typ) {
		return nil, false
	}

	e := &models.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		CreatedAt: now.UTC(),
	}
	if s, ok := m["microsite"].(string); ok {
		e.Microsite = logging.TruncateString(strings.TrimSpace(s), 255)
	}
	if s, ok := m["projectId"].(string); ok && validation.ValidateProjectID(s) {
		e.ProjectID = s
	}
	if p, ok := m["payload"].(map[string]any); ok {
		e.Payload = p
	}
	if s, ok := m["timestamp"].(string); ok {
		// Client clocks are only trusted within a day of ours.
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil && ts.Sub(now).Abs() < 24*time.Hour {
			e.CreatedAt = ts.UTC()
		}
	}
	return e, true
}
