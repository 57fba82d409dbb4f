// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/leadchat/internal/logging"
	wsproto "github.com/tomtom215/leadchat/internal/websocket"
)

const (
	liveInitialBackoff = time.Second
	liveMaxBackoff     = 30 * time.Second
)

// LiveUpdates follows the API's widget-config websocket and turns each
// widget_config_updated message into a ConfigUpdatedEvent on the page, so a
// polling instance refreshes immediately after a dashboard save.
type LiveUpdates struct {
	Page      *Page
	APIBase   string
	ProjectID string
	Dialer    *websocket.Dialer
	Origin    string // sent as the Origin header; defaults to the page origin
}

// Endpoint returns the websocket URL for the configured base and project.
func (l *LiveUpdates) Endpoint() (string, error) {
	u, err := url.Parse(l.APIBase)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid api base %q", l.APIBase)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported api base scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/widget-config"
	q := url.Values{}
	if l.ProjectID != "" {
		q.Set("projectId", l.ProjectID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run keeps a connection open until ctx is done, reconnecting with
// exponential backoff. It returns ctx.Err().
func (l *LiveUpdates) Run(ctx context.Context) error {
	endpoint, err := l.Endpoint()
	if err != nil {
		return err
	}
	backoff := liveInitialBackoff
	for {
		connected, err := l.session(ctx, endpoint)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = liveInitialBackoff
		}
		logging.Debug().Err(err).Str("endpoint", endpoint).Dur("retry_in", backoff).Msg("Widget live updates disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, liveMaxBackoff)
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (l *LiveUpdates) session(ctx context.Context, endpoint string) (connected bool, err error) {
	dialer := l.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	origin := l.Origin
	if origin == "" && l.Page != nil {
		origin = l.Page.URL().Scheme + "://" + l.Page.URL().Host
	}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg wsproto.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, nil
			}
			return true, err
		}
		if msg.Type != wsproto.MessageTypeWidgetConfigUpdated {
			continue
		}
		if l.ProjectID != "" && msg.ProjectID != "" && msg.ProjectID != l.ProjectID {
			continue
		}
		if l.Page != nil {
			l.Page.DispatchEvent(ConfigUpdatedEvent, msg.ProjectID)
		}
	}
}

// errNoPage is returned by Follow for an instance without a page.
var errNoPage = errors.New("instance is not mounted on a page")

// Follow starts LiveUpdates for a mounted, polling-capable instance and
// runs it until ctx is done.
func Follow(ctx context.Context, inst *Instance) error {
	inst.mu.Lock()
	page, base, projectID := inst.page, inst.apiBase, inst.projectID
	inst.mu.Unlock()
	if page == nil || base == "" {
		return errNoPage
	}
	live := &LiveUpdates{Page: page, APIBase: base, ProjectID: projectID}
	return live.Run(ctx)
}
