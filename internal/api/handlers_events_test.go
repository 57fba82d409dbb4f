// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/leadchat/internal/models"
)

func TestEventIngestAlwaysAccepts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	bodies := []any{
		map[string]any{"type": "chat_opened", "projectId": "sky", "microsite": "sky.example", "payload": map[string]any{"stage": "preference"}},
		map[string]any{"type": "bhk_selected", "project_id": "sky", "microsite": "sky.example"},
		map[string]any{"type": "Not A Type"},
		map[string]any{"microsite": "sky.example"},
		"{oops",
		"",
		"[]",
	}
	for _, body := range bodies {
		rec := env.do(http.MethodPost, "/api/events", body)
		expectStatus(t, rec, http.StatusAccepted)
		if strings.TrimSpace(rec.Body.String()) != `{"accepted":true}` {
			t.Errorf("body = %s", rec.Body.String())
		}
	}

	events, err := env.store.ListEvents(context.Background(), models.EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("stored events = %d, want 2", len(events))
	}
	byType := map[string]models.Event{}
	for _, e := range events {
		byType[e.Type] = e
	}
	if e := byType[models.EventChatOpened]; e.ProjectID != "sky" || e.Payload["stage"] != "preference" {
		t.Errorf("chat_opened = %+v", e)
	}
	if e := byType[models.EventBHKSelected]; e.ProjectID != "sky" {
		t.Errorf("snake_case project_id not accepted: %+v", e)
	}
}

func TestEventIngestStoreFailureStillAccepted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.handler.store = brokenEvents{env.store}

	rec := env.do(http.MethodPost, "/api/events", map[string]any{"type": "chat_opened"})
	expectStatus(t, rec, http.StatusAccepted)
}

func TestEventFromMapTimestamp(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	recent := now.Add(-time.Minute).Format(time.RFC3339Nano)
	e, ok := eventFromMap(map[string]any{"type": "chat_opened", "timestamp": recent}, now)
	if !ok || !e.CreatedAt.Equal(now.Add(-time.Minute)) {
		t.Errorf("recent timestamp not kept: %+v", e)
	}

	e, ok = eventFromMap(map[string]any{"type": "chat_opened", "timestamp": "1999-01-01T00:00:00Z"}, now)
	if !ok || !e.CreatedAt.Equal(now) {
		t.Errorf("skewed timestamp should be replaced: %+v", e)
	}

	e, _ = eventFromMap(map[string]any{"type": "chat_opened", "projectId": "../../etc"}, now)
	if e.ProjectID != "" {
		t.Errorf("invalid project id kept: %q", e.ProjectID)
	}
}
