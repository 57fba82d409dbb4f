// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/tomtom215/leadchat/internal/models"
)

func TestUserLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/users", map[string]string{
		"username": "asha",
		"email":    "Asha@Example.com",
		"password": "s3cret-passphrase",
		"role":     "admin",
	}, apiKey()...)
	expectStatus(t, rec, http.StatusCreated)
	if strings.Contains(rec.Body.String(), "s3cret") || strings.Contains(strings.ToLower(rec.Body.String()), "password") {
		t.Errorf("response leaks the password: %s", rec.Body.String())
	}
	var created models.User
	decodeData(t, rec, &created)
	if created.Email != "asha@example.com" || created.Role != models.RoleAdmin {
		t.Errorf("created = %+v", created)
	}

	rec = env.do(http.MethodPost, "/api/users", map[string]string{"username": "asha", "password": "another-passphrase"}, apiKey()...)
	expectStatus(t, rec, http.StatusConflict)

	rec = env.do(http.MethodGet, "/api/users", nil, apiKey()...)
	expectStatus(t, rec, http.StatusOK)
	var users []models.User
	decodeData(t, rec, &users)
	if len(users) != 1 {
		t.Errorf("users = %d, want 1", len(users))
	}

	rec = env.do(http.MethodPost, "/api/users/auth", map[string]string{"email": "asha@example.com", "password": "wrong-password"})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(http.MethodPost, "/api/users/auth", map[string]string{"username": "nobody", "password": "whatever-pass"})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(http.MethodPost, "/api/users/auth", map[string]string{"email": "asha@example.com", "password": "s3cret-passphrase"})
	expectStatus(t, rec, http.StatusOK)
	var login LoginResponse
	decodeData(t, rec, &login)
	if login.Token == "" || login.User == nil || login.User.ID != created.ID || login.ExpiresAt.IsZero() {
		t.Fatalf("login = %+v", login)
	}

	rec = env.do(http.MethodGet, "/api/users/verify", nil, bearer(login.Token)...)
	expectStatus(t, rec, http.StatusOK)
	var info SessionInfo
	decodeData(t, rec, &info)
	if info.User == nil || info.User.Username != "asha" {
		t.Errorf("verify = %+v", info)
	}

	rec = env.do(http.MethodPost, "/api/users/logout", nil, bearer(login.Token)...)
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(http.MethodGet, "/api/users/verify", nil, bearer(login.Token)...)
	expectStatus(t, rec, http.StatusForbidden)

	rec = env.do(http.MethodPost, "/api/users/logout", nil, bearer(login.Token)...)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestUserEndpointsAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/users", nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(http.MethodPost, "/api/users", map[string]string{"username": "x1234", "password": "long-enough"}, "X-API-Key", "bad")
	expectStatus(t, rec, http.StatusForbidden)

	// A session token is not enough for user management.
	token := env.login("viewer1", "viewer-password")
	rec = env.do(http.MethodGet, "/api/users", nil, bearer(token)...)
	expectStatus(t, rec, http.StatusForbidden)

	// The API key is not a session.
	rec = env.do(http.MethodGet, "/api/users/verify", nil, apiKey()...)
	expectStatus(t, rec, http.StatusForbidden)

	rec = env.do(http.MethodGet, "/api/users/verify", nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(http.MethodPost, "/api/users/logout", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestUserCreateValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := map[string]map[string]string{
		"short password": {"username": "neha", "password": "short"},
		"bad username":   {"username": "ne ha!", "password": "long-enough-pass"},
		"bad email":      {"username": "neha", "email": "not-an-email", "password": "long-enough-pass"},
		"bad role":       {"username": "neha", "password": "long-enough-pass", "role": "root"},
		"missing fields": {},
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/users", body, apiKey()...)
			expectStatus(t, rec, http.StatusBadRequest)
			if e := decodeEnvelope(t, rec).Error; e == nil || e.Code != ErrCodeValidationFailed {
				t.Errorf("error = %+v", e)
			}
		})
	}

	rec := env.do(http.MethodPost, "/api/users/auth", map[string]string{"password": "whatever-pass"})
	expectStatus(t, rec, http.StatusBadRequest)
}
