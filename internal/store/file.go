// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/leadchat/internal/metrics"
	"github.com/tomtom215/leadchat/internal/models"
)

// maxFileEvents bounds the events kept by the file store; the oldest are
// dropped first. The event log on disk is compacted back to this many lines
// once it holds twice as many.
const maxFileEvents = 20000

// fileUser keeps the password hash, which models.User hides from JSON.
type fileUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

type fileData struct {
	WidgetConfigs map[string]models.WidgetConfig `json:"widget_configs"`
	Leads         []models.Lead                  `json:"leads"`
	ChatSessions  []models.ChatSession           `json:"chat_sessions"`
	Events        []models.Event                 `json:"events,omitempty"` // read for older documents only
	Users         []fileUser                     `json:"users"`
}

// FileStore keeps everything but events in one JSON document, rewritten
// atomically on each change. Events go to an append-only JSON-lines file
// next to it (leadchat.events.jsonl), so ingestion does not rewrite the
// document. It serves single-instance deployments without MySQL.
type FileStore struct {
	mu   sync.RWMutex
	path string
	data fileData

	events     []models.Event
	maxEvents  int
	eventLog   *os.File // opened on first append
	eventLines int
}

var _ Store = (*FileStore)(nil)

// OpenFile loads path, creating an empty document when it does not exist.
func OpenFile(path string) (*FileStore, error) {
	return openFile(path, maxFileEvents)
}

func openFile(path string, maxEvents int) (*FileStore, error) {
	s := &FileStore{path: path, maxEvents: maxEvents}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	case len(raw) > 0:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if s.data.WidgetConfigs == nil {
		s.data.WidgetConfigs = make(map[string]models.WidgetConfig)
	}
	if err := s.loadEvents(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) eventLogPath() string {
	return strings.TrimSuffix(s.path, filepath.Ext(s.path)) + ".events.jsonl"
}

// loadEvents reads the event log. Events embedded in an older document are
// moved into the log. Unreadable lines, such as a torn last line from a crash,
// are dropped.
func (s *FileStore) loadEvents() error {
	legacy := s.data.Events
	s.data.Events = nil

	bad := 0
	f, err := os.Open(s.eventLogPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("open event log: %w", err)
	default:
		defer f.Close()
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
		for sc.Scan() {
			s.eventLines++
			var ev models.Event
			if json.Unmarshal(sc.Bytes(), &ev) != nil {
				bad++
				continue
			}
			s.events = append(s.events, ev)
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read event log: %w", err)
		}
	}

	if len(legacy) > 0 {
		s.events = append(legacy, s.events...)
	}
	s.trimEvents()
	// A torn line is rewritten away so the next append starts on a fresh line.
	if len(legacy) > 0 || bad > 0 || s.eventLines > 2*s.maxEvents {
		if err := s.compactEvents(); err != nil {
			return err
		}
		if len(legacy) > 0 {
			return s.persist("migrate_events")
		}
	}
	return nil
}

const maxEventLineBytes = 1 << 20

func (s *FileStore) trimEvents() {
	if over := len(s.events) - s.maxEvents; over > 0 {
		s.events = slices.Clone(s.events[over:])
	}
}

// compactEvents rewrites the event log with the retained events (must hold mu).
func (s *FileStore) compactEvents() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range s.events {
		if err := enc.Encode(&s.events[i]); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	if s.eventLog != nil {
		_ = s.eventLog.Close()
		s.eventLog = nil
	}
	if err := writeFileAtomic(s.eventLogPath(), buf.Bytes()); err != nil {
		return fmt.Errorf("compact event log: %w", err)
	}
	s.eventLines = len(s.events)
	return nil
}

// Backend implements Store.
func (s *FileStore) Backend() string { return DriverFile }

// Ping implements Store.
func (s *FileStore) Ping(_ context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	return err
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventLog == nil {
		return nil
	}
	err := s.eventLog.Close()
	s.eventLog = nil
	return err
}

// persist writes the document via a temp file and rename (must hold mu).
func (s *FileStore) persist(op string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(DriverFile, op, start, err) }()

	raw, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	return writeFileAtomic(s.path, raw)
}

func writeFileAtomic(path string, raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".leadchat-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

// GetWidgetConfig implements Store.
func (s *FileStore) GetWidgetConfig(_ context.Context, projectID string) (*models.WidgetConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wc, ok := s.data.WidgetConfigs[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	wc.Theme = wc.Theme.Clone()
	return &wc, nil
}

// SaveWidgetConfig implements Store.
func (s *FileStore) SaveWidgetConfig(_ context.Context, projectID string, theme models.ThemeConfig) (*models.WidgetConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.data.WidgetConfigs[projectID]
	wc := models.WidgetConfig{ProjectID: projectID, Theme: theme.Normalize(), UpdatedAt: time.Now().UTC()}
	s.data.WidgetConfigs[projectID] = wc
	if err := s.persist("save_widget_config"); err != nil {
		if existed {
			s.data.WidgetConfigs[projectID] = prev
		} else {
			delete(s.data.WidgetConfigs, projectID)
		}
		return nil, err
	}
	out := wc
	out.Theme = wc.Theme.Clone()
	return &out, nil
}

// CreateLead implements Store.
func (s *FileStore) CreateLead(_ context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Leads = append(s.data.Leads, *lead)
	if err := s.persist("create_lead"); err != nil {
		s.data.Leads = s.data.Leads[:len(s.data.Leads)-1]
		return err
	}
	return nil
}

// ListLeads implements Store. Results are newest first.
func (s *FileStore) ListLeads(_ context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Lead, 0)
	for i := len(s.data.Leads) - 1; i >= 0; i-- {
		if filter.Matches(&s.data.Leads[i]) {
			matched = append(matched, s.data.Leads[i])
		}
	}
	sortNewestFirst(matched, func(l models.Lead) time.Time { return l.CreatedAt })
	return page(matched, filter.Skip, filter.Limit), len(matched), nil
}

// CreateChatSession implements Store.
func (s *FileStore) CreateChatSession(_ context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ChatSessions = append(s.data.ChatSessions, *session)
	if err := s.persist("create_chat_session"); err != nil {
		s.data.ChatSessions = s.data.ChatSessions[:len(s.data.ChatSessions)-1]
		return err
	}
	return nil
}

// ListChatSessions implements Store. Results are newest first.
func (s *FileStore) ListChatSessions(_ context.Context, filter models.ChatSessionFilter) ([]models.ChatSession, int, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.ChatSession, 0)
	for i := len(s.data.ChatSessions) - 1; i >= 0; i-- {
		if filter.Matches(&s.data.ChatSessions[i]) {
			matched = append(matched, s.data.ChatSessions[i])
		}
	}
	sortNewestFirst(matched, func(c models.ChatSession) time.Time { return c.CreatedAt })
	return page(matched, filter.Skip, filter.Limit), len(matched), nil
}

// RecordEvent implements Store. It appends one line to the event log.
func (s *FileStore) RecordEvent(_ context.Context, event *models.Event) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOperation(DriverFile, "record_event", start, err) }()

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventLog == nil {
		f, err := os.OpenFile(s.eventLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		s.eventLog = f
	}
	if _, err := s.eventLog.Write(line); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	s.eventLines++
	s.events = append(s.events, *event)
	s.trimEvents()
	if s.eventLines > 2*s.maxEvents {
		return s.compactEvents()
	}
	return nil
}

// ListEvents implements Store. Results are newest first.
func (s *FileStore) ListEvents(_ context.Context, filter models.EventFilter) ([]models.Event, error) {
	limit := filter.Limit
	if limit <= 0 || limit > models.MaxPageSize {
		limit = models.MaxPageSize
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Event, 0)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if filter.Matches(&s.events[i]) {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// CreateUser implements Store. Usernames and emails are unique, case-insensitively.
func (s *FileStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.data.Users {
		if strings.EqualFold(u.Username, user.Username) ||
			(user.Email != "" && strings.EqualFold(u.Email, user.Email)) {
			return ErrConflict
		}
	}
	s.data.Users = append(s.data.Users, fileUser{User: *user, PasswordHash: user.PasswordHash})
	if err := s.persist("create_user"); err != nil {
		s.data.Users = s.data.Users[:len(s.data.Users)-1]
		return err
	}
	return nil
}

// GetUserByID implements Store.
func (s *FileStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	return s.findUser(func(u *fileUser) bool { return u.ID == id })
}

// GetUserByLogin implements Store.
func (s *FileStore) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	return s.findUser(func(u *fileUser) bool {
		return strings.EqualFold(u.Username, login) || (u.Email != "" && strings.EqualFold(u.Email, login))
	})
}

func (s *FileStore) findUser(match func(*fileUser) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.data.Users {
		if match(&s.data.Users[i]) {
			u := s.data.Users[i].User
			u.PasswordHash = s.data.Users[i].PasswordHash
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsers implements Store.
func (s *FileStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(s.data.Users))
	for _, u := range s.data.Users {
		out = append(out, u.User)
	}
	return out, nil
}

func sortNewestFirst[T any](items []T, at func(T) time.Time) {
	slices.SortStableFunc(items, func(a, b T) int {
		return at(b).Compare(at(a))
	})
}

func page[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return []T{}
	}
	end := skip + limit
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}
