// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package services

import (
	"context"
	"time"

	"github.com/tomtom215/leadchat/internal/logging"
)

// SessionCleaner removes expired dashboard sessions. Satisfied by
// auth.SessionStore.
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// SessionCleanupService purges expired sessions on a fixed interval.
type SessionCleanupService struct {
	sessions SessionCleaner
	interval time.Duration
}

// NewSessionCleanupService returns a cleanup loop. A non-positive interval
// means hourly.
func NewSessionCleanupService(sessions SessionCleaner, interval time.Duration) *SessionCleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionCleanupService{sessions: sessions, interval: interval}
}

// Serve implements suture.Service. Cleanup errors are logged and retried
// on the next tick.
func (s *SessionCleanupService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.sessions.CleanupExpired(ctx)
			if err != nil {
				logging.Warn().Err(err).Msg("Session cleanup failed")
				continue
			}
			if n > 0 {
				logging.Debug().Int("removed", n).Msg("Expired sessions removed")
			}
		}
	}
}

// String names the service in supervisor logs.
func (s *SessionCleanupService) String() string { return "session-cleanup" }
