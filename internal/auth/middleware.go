// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/leadchat/internal/logging"
)

type contextKey string

const principalContextKey contextKey = "auth_principal"

// ContextWithPrincipal attaches p to ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// RequireAPIKey admits only callers presenting the configured API key.
func (a *Authenticator) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.CheckAPIKey(Credential(r)); err != nil {
			writeAuthError(w, r, err)
			return
		}
		ctx := ContextWithPrincipal(r.Context(), &Principal{Method: MethodAPIKey})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireDashboard admits API key callers and logged-in users.
func (a *Authenticator) RequireDashboard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := a.Authenticate(r.Context(), Credential(r))
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// RequireSession admits only callers with a valid session token.
func (a *Authenticator) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := a.VerifySession(r.Context(), Credential(r))
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		p := &Principal{Method: MethodSession, Session: session}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

type authErrorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// StatusFor maps credential errors to 401 or 403.
func StatusFor(err error) int {
	if errors.Is(err, ErrMissingCredentials) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	var body authErrorBody
	switch status {
	case http.StatusUnauthorized:
		body.Error.Code, body.Error.Message = "UNAUTHORIZED", "Authentication required"
	case http.StatusForbidden:
		body.Error.Code, body.Error.Message = "FORBIDDEN", "Invalid credentials"
	default:
		body.Error.Code, body.Error.Message = "INTERNAL_ERROR", "Authentication failed"
		logging.Ctx(r.Context()).Error().Err(err).Msg("Authentication backend error")
	}
	body.Error.RequestID = logging.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	json.NewEncoder(w).Encode(&body)
}
