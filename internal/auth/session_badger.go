// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/leadchat/internal/config"
)

// Key prefixes for BadgerDB storage
const (
	sessionKeyPrefix     = "session:"
	sessionUserKeyPrefix = "session_user:"
)

// BadgerSessionStore keeps sessions on disk so dashboard logins survive restarts.
// Entries carry a badger TTL matching the session expiry.
type BadgerSessionStore struct {
	db     *badger.DB
	ownsDB bool
}

// NewBadgerSessionStore wraps an open database. Close does not close db.
func NewBadgerSessionStore(db *badger.DB) *BadgerSessionStore {
	return &BadgerSessionStore{db: db}
}

// OpenBadgerSessionStore opens (or creates) a database at path.
func OpenBadgerSessionStore(path string) (*BadgerSessionStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &BadgerSessionStore{db: db, ownsDB: true}, nil
}

// NewSessionStore builds the store selected by cfg.SessionStore.
func NewSessionStore(cfg config.SecurityConfig) (SessionStore, error) {
	switch cfg.SessionStore {
	case "", "memory":
		return NewMemorySessionStore(), nil
	case "badger":
		return OpenBadgerSessionStore(cfg.SessionStorePath)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

func sessionEntry(key []byte, value []byte, expiresAt time.Time) *badger.Entry {
	e := badger.NewEntry(key, value)
	if ttl := time.Until(expiresAt); ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// Create implements SessionStore.
func (s *BadgerSessionStore) Create(_ context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(sessionEntry([]byte(sessionKeyPrefix+session.ID), data, session.ExpiresAt)); err != nil {
			return fmt.Errorf("set session: %w", err)
		}
		userKey := []byte(sessionUserKeyPrefix + session.UserID + ":" + session.ID)
		if err := txn.SetEntry(sessionEntry(userKey, []byte(session.ID), session.ExpiresAt)); err != nil {
			return fmt.Errorf("set user mapping: %w", err)
		}
		return nil
	})
}

func (s *BadgerSessionStore) load(txn *badger.Txn, id string) (*Session, error) {
	item, err := txn.Get([]byte(sessionKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var session Session
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &session) }); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Get implements SessionStore.
func (s *BadgerSessionStore) Get(_ context.Context, id string) (*Session, error) {
	var session *Session
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		session, err = s.load(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if session.IsExpired() {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// Delete implements SessionStore.
func (s *BadgerSessionStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		session, err := s.load(txn, id)
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete([]byte(sessionKeyPrefix + id)); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if err := txn.Delete([]byte(sessionUserKeyPrefix + session.UserID + ":" + id)); err != nil {
			return fmt.Errorf("delete user mapping: %w", err)
		}
		return nil
	})
}

// DeleteByUserID implements SessionStore.
func (s *BadgerSessionStore) DeleteByUserID(ctx context.Context, userID string) (int, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(sessionUserKeyPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}

	count := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

// Touch implements SessionStore.
func (s *BadgerSessionStore) Touch(_ context.Context, id string, newExpiry time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		session, err := s.load(txn, id)
		if err != nil {
			return err
		}
		session.LastAccessedAt = time.Now()
		session.ExpiresAt = newExpiry

		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		return txn.SetEntry(sessionEntry([]byte(sessionKeyPrefix+id), data, newExpiry))
	})
}

// CleanupExpired implements SessionStore. Badger drops TTL'd keys on its
// own; this also catches sessions whose expiry was shortened by Touch.
func (s *BadgerSessionStore) CleanupExpired(ctx context.Context) (int, error) {
	var expired []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var session Session
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &session) }); err != nil {
				continue
			}
			if session.IsExpired() {
				expired = append(expired, session.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}

	count := 0
	for _, id := range expired {
		if err := s.Delete(ctx, id); err == nil {
			count++
		}
	}
	return count, nil
}

// Close implements SessionStore.
func (s *BadgerSessionStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
