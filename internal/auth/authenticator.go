// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/models"
)

// Credential errors. Handlers map ErrMissingCredentials to 401 and
// ErrInvalidCredentials to 403, except on login where bad credentials are 401.
var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserLookup is the part of the store the authenticator needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
}

// Principal is the caller identity attached to authenticated requests.
type Principal struct {
	// Method is "api_key" or "session".
	Method  string
	Session *Session // nil for API key callers
}

// Authentication methods.
const (
	MethodAPIKey  = "api_key"
	MethodSession = "session"
)

// Authenticator checks API keys and session tokens.
type Authenticator struct {
	apiKey   []byte
	tokens   *TokenManager
	sessions SessionStore
	users    UserLookup
	ttl      time.Duration
}

// NewAuthenticator wires the credential checks. An empty apiKey disables
// API key authentication: every key is reported missing.
func NewAuthenticator(apiKey string, tokens *TokenManager, sessions SessionStore, users UserLookup, ttl time.Duration) *Authenticator {
	return &Authenticator{
		apiKey:   []byte(apiKey),
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		ttl:      ttl,
	}
}

// Credential extracts the caller credential from X-API-Key or a bearer
// Authorization header.
func Credential(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// CheckAPIKey compares key to the configured key in constant time.
func (a *Authenticator) CheckAPIKey(key string) error {
	if key == "" || len(a.apiKey) == 0 {
		return ErrMissingCredentials
	}
	if subtle.ConstantTimeCompare([]byte(key), a.apiKey) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// Login verifies a username or email and password and opens a session.
func (a *Authenticator) Login(ctx context.Context, login, password string) (string, *Session, *models.User, error) {
	user, err := a.users.GetUserByLogin(ctx, strings.TrimSpace(login))
	if err != nil || user == nil {
		CheckPassword(string(dummyHash), password)
		return "", nil, nil, ErrInvalidCredentials
	}
	if !CheckPassword(user.PasswordHash, password) {
		return "", nil, nil, ErrInvalidCredentials
	}

	session := NewSession(user.ID, user.Username, user.Role, a.ttl)
	if err := a.sessions.Create(ctx, session); err != nil {
		return "", nil, nil, fmt.Errorf("create session: %w", err)
	}
	token, err := a.tokens.Issue(session)
	if err != nil {
		_ = a.sessions.Delete(ctx, session.ID)
		return "", nil, nil, err
	}
	logging.Ctx(ctx).Info().Str("user_id", user.ID).Msg("Dashboard login")
	return token, session, user, nil
}

// VerifySession validates a token and its server-side session.
func (a *Authenticator) VerifySession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrMissingCredentials
	}
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	session, err := a.sessions.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if session.UserID != claims.Subject {
		return nil, ErrInvalidCredentials
	}
	return session, nil
}

// CurrentUser returns the user behind a session.
func (a *Authenticator) CurrentUser(ctx context.Context, session *Session) (*models.User, error) {
	return a.users.GetUserByID(ctx, session.UserID)
}

// Logout revokes the session behind token.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	session, err := a.VerifySession(ctx, token)
	if err != nil {
		return err
	}
	return a.sessions.Delete(ctx, session.ID)
}

// Authenticate accepts the API key or a session token. An API key
// mismatch falls through to session verification before failing.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	if credential == "" {
		return nil, ErrMissingCredentials
	}
	if a.CheckAPIKey(credential) == nil {
		return &Principal{Method: MethodAPIKey}, nil
	}
	session, err := a.VerifySession(ctx, credential)
	if err != nil {
		if errors.Is(err, ErrMissingCredentials) {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}
	return &Principal{Method: MethodSession, Session: session}, nil
}
