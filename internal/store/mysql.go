// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/goccy/go-json"

	"github.com/tomtom215/leadchat/internal/config"
	"github.com/tomtom215/leadchat/internal/metrics"
	"github.com/tomtom215/leadchat/internal/models"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

var schema = []string{
	`CREATE TABLE IF NOT EXISTS widget_configs (
		project_id VARCHAR(64) NOT NULL PRIMARY KEY,
		theme JSON NOT NULL,
		updated_at DATETIME(3) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id CHAR(36) NOT NULL PRIMARY KEY,
		phone VARCHAR(32) NOT NULL,
		country_code VARCHAR(8) NOT NULL DEFAULT '',
		name VARCHAR(255) NOT NULL DEFAULT '',
		bhk INT NULL,
		bhk_type VARCHAR(32) NOT NULL,
		microsite VARCHAR(255) NOT NULL,
		project_id VARCHAR(64) NOT NULL DEFAULT '',
		status VARCHAR(32) NOT NULL,
		metadata JSON NULL,
		conversation JSON NULL,
		created_at DATETIME(3) NOT NULL,
		INDEX idx_leads_microsite (microsite),
		INDEX idx_leads_created_at (created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id CHAR(36) NOT NULL PRIMARY KEY,
		lead_id CHAR(36) NOT NULL DEFAULT '',
		microsite VARCHAR(255) NOT NULL,
		project_id VARCHAR(64) NOT NULL DEFAULT '',
		conversation JSON NOT NULL,
		created_at DATETIME(3) NOT NULL,
		INDEX idx_chat_sessions_lead (lead_id),
		INDEX idx_chat_sessions_created_at (created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id CHAR(36) NOT NULL PRIMARY KEY,
		type VARCHAR(64) NOT NULL,
		microsite VARCHAR(255) NOT NULL DEFAULT '',
		project_id VARCHAR(64) NOT NULL DEFAULT '',
		payload JSON NULL,
		created_at DATETIME(3) NOT NULL,
		INDEX idx_events_type (type),
		INDEX idx_events_created_at (created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id CHAR(36) NOT NULL PRIMARY KEY,
		username VARCHAR(64) NOT NULL UNIQUE,
		email VARCHAR(255) NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL,
		created_at DATETIME(3) NOT NULL
	)`,
}

// MySQLStore is the primary Store, backed by database/sql and the MySQL driver.
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore wraps an open handle. The schema is not touched; call Migrate.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// OpenMySQL connects using cfg, verifies the connection and applies the schema.
func OpenMySQL(ctx context.Context, cfg config.DatabaseConfig) (*MySQLStore, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := NewMySQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates missing tables. It is idempotent.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Backend implements Store.
func (s *MySQLStore) Backend() string { return DriverMySQL }

// Ping implements Store.
func (s *MySQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close implements Store.
func (s *MySQLStore) Close() error { return s.db.Close() }

func (s *MySQLStore) observe(op string, start time.Time, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	if errors.Is(e, ErrNotFound) {
		e = nil
	}
	metrics.RecordStoreOperation(DriverMySQL, op, start, e)
}

// GetWidgetConfig implements Store.
func (s *MySQLStore) GetWidgetConfig(ctx context.Context, projectID string) (wc *models.WidgetConfig, err error) {
	defer s.observe("get_widget_config", time.Now(), &err)

	var raw []byte
	out := &models.WidgetConfig{ProjectID: projectID}
	err = s.db.QueryRowContext(ctx,
		"SELECT theme, updated_at FROM widget_configs WHERE project_id = ?", projectID,
	).Scan(&raw, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query widget config: %w", err)
	}
	if err = json.Unmarshal(raw, &out.Theme); err != nil {
		return nil, fmt.Errorf("decode widget config: %w", err)
	}
	return out, nil
}

// SaveWidgetConfig implements Store.
func (s *MySQLStore) SaveWidgetConfig(ctx context.Context, projectID string, theme models.ThemeConfig) (wc *models.WidgetConfig, err error) {
	defer s.observe("save_widget_config", time.Now(), &err)

	out := &models.WidgetConfig{ProjectID: projectID, Theme: theme.Normalize(), UpdatedAt: time.Now().UTC()}
	raw, err := json.Marshal(out.Theme)
	if err != nil {
		return nil, fmt.Errorf("encode widget config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO widget_configs (project_id, theme, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE theme = VALUES(theme), updated_at = VALUES(updated_at)`,
		projectID, raw, out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert widget config: %w", err)
	}
	return out, nil
}

// CreateLead implements Store.
func (s *MySQLStore) CreateLead(ctx context.Context, lead *models.Lead) (err error) {
	defer s.observe("create_lead", time.Now(), &err)

	metadata, err := nullableJSON(lead.Metadata)
	if err != nil {
		return err
	}
	conversation, err := nullableJSON(lead.Conversation)
	if err != nil {
		return err
	}
	var bhk sql.NullInt64
	if lead.BHK != nil {
		bhk = sql.NullInt64{Int64: int64(*lead.BHK), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, phone, country_code, name, bhk, bhk_type, microsite, project_id, status, metadata, conversation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Phone, lead.CountryCode, lead.Name, bhk, lead.BHKType, lead.Microsite,
		lead.ProjectID, lead.Status, metadata, conversation, lead.CreatedAt)
	return mapExecError("insert lead", err)
}

// ListLeads implements Store.
func (s *MySQLStore) ListLeads(ctx context.Context, filter models.LeadFilter) (out []models.Lead, total int, err error) {
	defer s.observe("list_leads", time.Now(), &err)
	filter = filter.Normalize()

	var where []string
	var args []any
	if filter.Microsite != "" {
		where = append(where, "microsite = ?")
		args = append(args, filter.Microsite)
	}
	if filter.StartDate != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		where = append(where, "created_at <= ?")
		args = append(args, *filter.EndDate)
	}
	if filter.Search != "" {
		like := "%" + escapeLike(filter.Search) + "%"
		where = append(where, "(phone LIKE ? OR name LIKE ? OR microsite LIKE ? OR bhk_type LIKE ?)")
		args = append(args, like, like, like, like)
	}
	clause := whereClause(where)

	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM leads"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, country_code, name, bhk, bhk_type, microsite, project_id, status, metadata, conversation, created_at
		FROM leads`+clause+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query leads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out = make([]models.Lead, 0)
	for rows.Next() {
		var l models.Lead
		var bhk sql.NullInt64
		var metadata, conversation []byte
		if err = rows.Scan(&l.ID, &l.Phone, &l.CountryCode, &l.Name, &bhk, &l.BHKType, &l.Microsite,
			&l.ProjectID, &l.Status, &metadata, &conversation, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan lead: %w", err)
		}
		if bhk.Valid {
			n := int(bhk.Int64)
			l.BHK = &n
		}
		if err = decodeOptional(metadata, &l.Metadata); err != nil {
			return nil, 0, err
		}
		if err = decodeOptional(conversation, &l.Conversation); err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate leads: %w", err)
	}
	return out, total, nil
}

// CreateChatSession implements Store.
func (s *MySQLStore) CreateChatSession(ctx context.Context, session *models.ChatSession) (err error) {
	defer s.observe("create_chat_session", time.Now(), &err)

	conversation, err := json.Marshal(session.Conversation)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, lead_id, microsite, project_id, conversation, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.LeadID, session.Microsite, session.ProjectID, conversation, session.CreatedAt)
	return mapExecError("insert chat session", err)
}

// ListChatSessions implements Store.
func (s *MySQLStore) ListChatSessions(ctx context.Context, filter models.ChatSessionFilter) (out []models.ChatSession, total int, err error) {
	defer s.observe("list_chat_sessions", time.Now(), &err)
	filter = filter.Normalize()

	var where []string
	var args []any
	if filter.Microsite != "" {
		where = append(where, "microsite = ?")
		args = append(args, filter.Microsite)
	}
	if filter.LeadID != "" {
		where = append(where, "lead_id = ?")
		args = append(args, filter.LeadID)
	}
	clause := whereClause(where)

	if err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_sessions"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count chat sessions: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, microsite, project_id, conversation, created_at
		FROM chat_sessions`+clause+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Skip)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query chat sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out = make([]models.ChatSession, 0)
	for rows.Next() {
		var cs models.ChatSession
		var conversation []byte
		if err = rows.Scan(&cs.ID, &cs.LeadID, &cs.Microsite, &cs.ProjectID, &conversation, &cs.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan chat session: %w", err)
		}
		if err = decodeOptional(conversation, &cs.Conversation); err != nil {
			return nil, 0, err
		}
		out = append(out, cs)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate chat sessions: %w", err)
	}
	return out, total, nil
}

// RecordEvent implements Store.
func (s *MySQLStore) RecordEvent(ctx context.Context, event *models.Event) (err error) {
	defer s.observe("record_event", time.Now(), &err)

	payload, err := nullableJSON(event.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, type, microsite, project_id, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.Type, event.Microsite, event.ProjectID, payload, event.CreatedAt)
	return mapExecError("insert event", err)
}

// ListEvents implements Store.
func (s *MySQLStore) ListEvents(ctx context.Context, filter models.EventFilter) (out []models.Event, err error) {
	defer s.observe("list_events", time.Now(), &err)

	limit := filter.Limit
	if limit <= 0 || limit > models.MaxPageSize {
		limit = models.MaxPageSize
	}
	var where []string
	var args []any
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Microsite != "" {
		where = append(where, "microsite = ?")
		args = append(args, filter.Microsite)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, microsite, project_id, payload, created_at FROM events`+
			whereClause(where)+` ORDER BY created_at DESC LIMIT ?`,
		append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out = make([]models.Event, 0)
	for rows.Next() {
		var e models.Event
		var payload []byte
		if err = rows.Scan(&e.ID, &e.Type, &e.Microsite, &e.ProjectID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err = decodeOptional(payload, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// CreateUser implements Store.
func (s *MySQLStore) CreateUser(ctx context.Context, user *models.User) (err error) {
	defer s.observe("create_user", time.Now(), &err)

	email := sql.NullString{String: user.Email, Valid: user.Email != ""}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, email, user.PasswordHash, user.Role, user.CreatedAt)
	return mapExecError("insert user", err)
}

const userColumns = "id, username, email, password_hash, role, created_at"

// GetUserByID implements Store.
func (s *MySQLStore) GetUserByID(ctx context.Context, id string) (u *models.User, err error) {
	defer s.observe("get_user", time.Now(), &err)
	return scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetUserByLogin implements Store.
func (s *MySQLStore) GetUserByLogin(ctx context.Context, login string) (u *models.User, err error) {
	defer s.observe("get_user", time.Now(), &err)
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ? OR email = ? LIMIT 1", login, login))
}

// ListUsers implements Store. Password hashes are not loaded.
func (s *MySQLStore) ListUsers(ctx context.Context) (out []models.User, err error) {
	defer s.observe("list_users", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, "SELECT id, username, email, role, created_at FROM users ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out = make([]models.User, 0)
	for rows.Next() {
		var u models.User
		var email sql.NullString
		if err = rows.Scan(&u.ID, &u.Username, &email, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Email = email.String
		out = append(out, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var email sql.NullString
	err := row.Scan(&u.ID, &u.Username, &email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Email = email.String
	return &u, nil
}

func mapExecError(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// nullableJSON encodes v, mapping empty maps and slices to SQL NULL.
func nullableJSON[T any](v T) (any, error) {
	switch x := any(v).(type) {
	case map[string]any:
		if len(x) == 0 {
			return nil, nil
		}
	case []models.ChatMessage:
		if len(x) == 0 {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return raw, nil
}

func decodeOptional(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}
