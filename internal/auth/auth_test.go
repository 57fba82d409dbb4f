// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/leadchat/internal/models"
)

const testAPIKey = "test-api-key-0123456789"

type stubUsers map[string]*models.User

func (s stubUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	for _, u := range s {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, errors.New("not found")
}

func (s stubUsers) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	if u, ok := s[login]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

func newTestAuthenticator(t *testing.T) (*Authenticator, SessionStore) {
	t.Helper()
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatal(err)
	}
	users := stubUsers{"asha": {ID: "u1", Username: "asha", PasswordHash: hash, Role: models.RoleAdmin}}
	tokens, err := NewTokenManager("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}
	sessions := NewMemorySessionStore()
	return NewAuthenticator(testAPIKey, tokens, sessions, users, time.Hour), sessions
}

func TestCredential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"x-api-key", map[string]string{"X-API-Key": "k1"}, "k1"},
		{"bearer", map[string]string{"Authorization": "Bearer k2"}, "k2"},
		{"bearer lowercase", map[string]string{"Authorization": "bearer k3"}, "k3"},
		{"x-api-key wins", map[string]string{"X-API-Key": "a", "Authorization": "Bearer b"}, "a"},
		{"basic ignored", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := Credential(r); got != tt.want {
				t.Errorf("Credential() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckAPIKey(t *testing.T) {
	t.Parallel()
	a, _ := newTestAuthenticator(t)

	if err := a.CheckAPIKey(testAPIKey); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	if err := a.CheckAPIKey(""); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("empty key error = %v", err)
	}
	if err := a.CheckAPIKey("wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong key error = %v", err)
	}

	unset := NewAuthenticator("", nil, nil, nil, time.Hour)
	if err := unset.CheckAPIKey("anything"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("unconfigured key must report missing, got %v", err)
	}
}

func TestLoginVerifyLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := newTestAuthenticator(t)

	if _, _, _, err := a.Login(ctx, "asha", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad password error = %v", err)
	}
	if _, _, _, err := a.Login(ctx, "nobody", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user error = %v", err)
	}

	token, session, user, err := a.Login(ctx, " asha ", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.ID != "u1" || session.UserID != "u1" {
		t.Errorf("session bound to wrong user: %+v", session)
	}

	claims, err := a.tokens.Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.ID != session.ID {
		t.Errorf("jti = %q, want session id %q", claims.ID, session.ID)
	}

	got, err := a.VerifySession(ctx, token)
	if err != nil || got.ID != session.ID {
		t.Fatalf("VerifySession() = %v, %v", got, err)
	}

	if err := a.Logout(ctx, token); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := a.VerifySession(ctx, token); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("token must be revoked after logout, got %v", err)
	}
}

func TestTokenManagerRejectsForeignTokens(t *testing.T) {
	t.Parallel()

	m, _ := NewTokenManager("0123456789abcdef0123456789abcdef")
	other, _ := NewTokenManager("a-completely-different-secret-value")
	s := NewSession("u1", "asha", models.RoleAdmin, time.Hour)

	token, err := other.Issue(s)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Error("token signed with another secret must fail")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{ID: s.ID, Issuer: tokenIssuer}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := m.Parse(unsigned); err == nil {
		t.Error("alg=none token must fail")
	}

	expired := NewSession("u1", "asha", models.RoleAdmin, -time.Minute)
	expired.CreatedAt = time.Now().Add(-time.Hour)
	token, _ = m.Issue(expired)
	if _, err := m.Parse(token); err == nil {
		t.Error("expired token must fail")
	}

	if _, err := NewTokenManager(""); err == nil {
		t.Error("empty secret must be rejected")
	}
}

func TestMemorySessionStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemorySessionStore()

	live := NewSession("u1", "a", models.RoleAdmin, time.Hour)
	dead := NewSession("u1", "a", models.RoleAdmin, -time.Second)
	other := NewSession("u2", "b", models.RoleViewer, time.Hour)
	for _, sess := range []*Session{live, dead, other} {
		if err := s.Create(ctx, sess); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Get(ctx, dead.ID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Get(expired) error = %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
	if n, _ := s.CleanupExpired(ctx); n != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", n)
	}
	if err := s.Touch(ctx, live.ID, time.Now().Add(-time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, live.ID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Touch should move expiry, got %v", err)
	}
	if n, _ := s.DeleteByUserID(ctx, "u2"); n != 1 {
		t.Errorf("DeleteByUserID() = %d, want 1", n)
	}
}

func TestBadgerSessionStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := t.TempDir()

	s, err := OpenBadgerSessionStore(path)
	if err != nil {
		t.Fatalf("OpenBadgerSessionStore() error = %v", err)
	}
	sess := NewSession("u1", "asha", models.RoleAdmin, time.Hour)
	if err := s.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenBadgerSessionStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, sess.ID)
	if err != nil || got.Username != "asha" {
		t.Fatalf("session should survive reopen: %+v %v", got, err)
	}
	if n, err := reopened.DeleteByUserID(ctx, "u1"); err != nil || n != 1 {
		t.Errorf("DeleteByUserID() = %d, %v", n, err)
	}
	if _, err := reopened.Get(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after delete error = %v", err)
	}
}

func TestMiddlewareStatusCodes(t *testing.T) {
	t.Parallel()
	a, _ := newTestAuthenticator(t)
	token, _, _, err := a.Login(context.Background(), "asha", "correct-horse")
	if err != nil {
		t.Fatal(err)
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			t.Error("principal missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name string
		mw   func(http.Handler) http.Handler
		cred string
		want int
	}{
		{"api key missing", a.RequireAPIKey, "", http.StatusUnauthorized},
		{"api key wrong", a.RequireAPIKey, "nope", http.StatusForbidden},
		{"api key ok", a.RequireAPIKey, testAPIKey, http.StatusNoContent},
		{"api key route rejects session", a.RequireAPIKey, token, http.StatusForbidden},
		{"dashboard missing", a.RequireDashboard, "", http.StatusUnauthorized},
		{"dashboard api key", a.RequireDashboard, testAPIKey, http.StatusNoContent},
		{"dashboard session", a.RequireDashboard, token, http.StatusNoContent},
		{"dashboard garbage", a.RequireDashboard, "garbage", http.StatusForbidden},
		{"session route rejects api key", a.RequireSession, testAPIKey, http.StatusForbidden},
		{"session ok", a.RequireSession, token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/api/leads", nil)
			if tt.cred != "" {
				r.Header.Set("Authorization", "Bearer "+tt.cred)
			}
			w := httptest.NewRecorder()
			tt.mw(ok).ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Code >= 400 && !strings.Contains(w.Body.String(), `"success":false`) {
				t.Errorf("error body = %s", w.Body.String())
			}
		})
	}
}

func TestHashPassword(t *testing.T) {
	t.Parallel()

	if _, err := HashPassword("short"); err == nil {
		t.Error("short password must be rejected")
	}
	hash, err := HashPassword("long-enough")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(hash, "long-enough") || CheckPassword(hash, "long-enougH") {
		t.Error("CheckPassword mismatch")
	}
}
