// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/leadchat/internal/auth"
	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/models"
	"github.com/tomtom215/leadchat/internal/store"
)

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Email    string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=admin viewer"`
}

// LoginRequest is the body of POST /api/users/auth. Login accepts a
// username or an email; the username and email fields are aliases.
type LoginRequest struct {
	Login    string `json:"login,omitempty" validate:"max=255"`
	Username string `json:"username,omitempty" validate:"max=255"`
	Email    string `json:"email,omitempty" validate:"max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

func (l *LoginRequest) identifier() string {
	for _, s := range []string{l.Login, l.Username, l.Email} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// SessionInfo is returned by verify.
type SessionInfo struct {
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// UserList answers GET /api/users.
func (h *Handler) UserList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	rw.Success(users)
}

// UserCreate answers POST /api/users.
func (h *Handler) UserCreate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !validateRequest(rw, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		rw.InternalError("Could not create user")
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleViewer
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    h.now().UTC(),
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			rw.Conflict("Username or email already in use")
			return
		}
		rw.DatabaseError(err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("user_id", user.ID).Str("role", user.Role).Msg("Dashboard user created")
	rw.Created(user)
}

// UserAuth answers POST /api/users/auth. Unknown users and wrong
// passwords both answer 401.
func (h *Handler) UserAuth(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if !validateRequest(rw, &req) {
		return
	}
	login := req.identifier()
	if login == "" {
		rw.ValidationError("login is required", map[string]any{"field": "login"})
		return
	}

	token, session, user, err := h.auth.Login(r.Context(), login, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			rw.Unauthorized("Invalid username or password")
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Login failed")
		rw.InternalError("Login failed")
		return
	}
	rw.Success(LoginResponse{Token: token, ExpiresAt: session.ExpiresAt, User: user})
}

// UserVerify answers GET /api/users/verify behind RequireSession.
func (h *Handler) UserVerify(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	p := auth.PrincipalFromContext(r.Context())
	if p == nil || p.Session == nil {
		rw.Unauthorized("Authentication required")
		return
	}
	user, err := h.auth.CurrentUser(r.Context(), p.Session)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.Unauthorized("User no longer exists")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(SessionInfo{User: user, ExpiresAt: p.Session.ExpiresAt})
}

// UserLogout answers POST /api/users/logout.
func (h *Handler) UserLogout(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.auth.Logout(r.Context(), auth.Credential(r)); err != nil {
		switch auth.StatusFor(err) {
		case http.StatusUnauthorized:
			rw.Unauthorized("Authentication required")
		case http.StatusForbidden:
			rw.Forbidden("Invalid or expired session")
		default:
			logging.Ctx(r.Context()).Error().Err(err).Msg("Logout failed")
			rw.InternalError("Logout failed")
		}
		return
	}
	rw.Success(map[string]bool{"loggedOut": true})
}
