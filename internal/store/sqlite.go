// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/mahakaal/internal/message"
)

// defaultListLimit caps ListSessions when no positive limit is given.
const defaultListLimit = 50

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes writers and keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chat_sessions_updated
			ON chat_sessions(updated_at);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT,
			tool_call_id TEXT,
			tool_calls TEXT,
			name TEXT,
			timestamp TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_chat_messages_session
			ON chat_messages(session_id, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateSession inserts a session. An empty title gets DefaultTitle.
func (s *SQLiteStore) CreateSession(ctx context.Context, title string) (*Session, error) {
	now := s.now()
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle(now)
	}

	stamp := formatTime(now)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (title, created_at, updated_at) VALUES (?, ?, ?)`,
		title, stamp, stamp,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading session id: %w", err)
	}

	s.logger.Debug("created session", "id", id, "title", title)
	return &Session{
		ID:        id,
		Title:     title,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// ListSessions returns sessions with message counts, most recently updated
// first. A non-positive limit uses the default of 50.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT s.id, s.title, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)
		FROM chat_sessions s
		ORDER BY s.updated_at DESC, s.id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	return sessions, nil
}

// GetSession retrieves a session by ID.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) GetSession(ctx context.Context, id int64) (*Session, error) {
	query := `
		SELECT s.id, s.title, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)
		FROM chat_sessions s
		WHERE s.id = ?
	`

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSessionMessages returns a session's messages in insertion order.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) GetSessionMessages(ctx context.Context, id int64) ([]message.Message, error) {
	if err := s.sessionExists(ctx, id); err != nil {
		return nil, err
	}

	query := `
		SELECT role, content, tool_call_id, tool_calls, name
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []message.Message{}
	for rows.Next() {
		var (
			msg                     message.Message
			role                    string
			content                 sql.NullString
			toolCallID, calls, name sql.NullString
		)

		if err := rows.Scan(&role, &content, &toolCallID, &calls, &name); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.Role = message.Role(role)
		if content.Valid {
			text := content.String
			msg.Content = &text
		}
		msg.ToolCallID = toolCallID.String
		msg.Name = name.String
		if calls.Valid && calls.String != "" {
			if err := json.Unmarshal([]byte(calls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls: %w", err)
			}
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// SaveMessage appends msg to a session and bumps its updated_at.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) SaveMessage(ctx context.Context, sessionID int64, msg message.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("saving message: invalid role %q", msg.Role)
	}

	var calls any
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encoding tool calls: %w", err)
		}
		calls = string(data)
	}

	var content any
	if msg.Content != nil {
		content = *msg.Content
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := formatTime(s.now())
	res, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		stamp, sessionID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content, tool_call_id, tool_calls, name, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		sessionID,
		string(msg.Role),
		content,
		nullString(msg.ToolCallID),
		calls,
		nullString(msg.Name),
		stamp,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("saved message", "session_id", sessionID, "role", msg.Role)
	return nil
}

// UpdateSessionTitle renames a session.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) UpdateSessionTitle(ctx context.Context, id int64, title string) (*Session, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return nil, fmt.Errorf("updating session title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetSession(ctx, id)
}

// DeleteSession removes a session and its messages.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted session", "id", id)
	return nil
}

func (s *SQLiteStore) sessionExists(ctx context.Context, id int64) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM chat_sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                 Session
		createdAt, updatedAt string
	)

	if err := row.Scan(&sess.ID, &sess.Title, &createdAt, &updatedAt, &sess.MessageCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session row: %w", err)
	}

	var err error
	sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &sess, nil
}

// formatTime renders t so that lexical order matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timeLayout is RFC 3339 with fixed-width nanoseconds.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
