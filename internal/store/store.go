// Package store persists relay state in SQLite: registered credentials and
// the durable copy of room history when the sqlite history backend is
// selected.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrUserNotFound is returned when no credential row exists for a username.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when registering an already-taken username.
var ErrUserExists = errors.New("user already exists")

// Store persists relay state in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite store opened", "path", path)
	return st, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room TEXT NOT NULL,
	sender TEXT NOT NULL,
	payload TEXT NOT NULL,
	iv TEXT NOT NULL,
	is_file INTEGER NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, ts, id);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run sqlite migrations: %w", err)
	}
	slog.Debug("sqlite migrations applied")
	return nil
}

// CreateUser inserts a credential row. The hash is produced by the auth
// collaborator; the store never sees plaintext secrets.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if passwordHash == "" {
		return fmt.Errorf("password hash is required")
	}

	const q = `INSERT INTO users (username, password_hash, created_at_unix_ms) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, username, passwordHash, time.Now().UnixMilli())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	slog.Debug("user created", "username", username)
	return nil
}

// UserHash returns the stored credential hash for a username.
func (s *Store) UserHash(ctx context.Context, username string) (string, error) {
	const q = `SELECT password_hash FROM users WHERE username = ?`
	var hash string
	err := s.db.QueryRowContext(ctx, q, username).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("query user: %w", err)
	}
	return hash, nil
}

// MessageRow is a persisted room message.
type MessageRow struct {
	ID      int64
	Room    string
	Sender  string
	Payload string
	IV      string
	IsFile  bool
	TS      int64
}

// InsertMessage persists one room message and returns the assigned ID.
func (s *Store) InsertMessage(ctx context.Context, m MessageRow) (int64, error) {
	const q = `INSERT INTO messages (room, sender, payload, iv, is_file, ts) VALUES (?, ?, ?, ?, ?, ?)`
	isFile := 0
	if m.IsFile {
		isFile = 1
	}
	result, err := s.db.ExecContext(ctx, q, m.Room, m.Sender, m.Payload, m.IV, isFile, m.TS)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, _ := result.LastInsertId()
	slog.Debug("message persisted", "msg_id", id, "room", m.Room, "sender", m.Sender)
	return id, nil
}

// RecentMessages returns the most recent messages for a room, oldest first.
func (s *Store) RecentMessages(ctx context.Context, room string, limit int) ([]MessageRow, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, room, sender, payload, iv, is_file, ts
FROM messages
WHERE room = ?
ORDER BY ts DESC, id DESC
LIMIT ?
`
	rows, err := s.db.QueryContext(ctx, q, room, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []MessageRow
	for rows.Next() {
		var m MessageRow
		var isFile int
		if err := rows.Scan(&m.ID, &m.Room, &m.Sender, &m.Payload, &m.IV, &isFile, &m.TS); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.IsFile = isFile != 0
		msgs = append(msgs, m)
	}
	// Reverse to oldest-first order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, rows.Err()
}

// PruneMessages deletes all but the newest keep rows for a room.
func (s *Store) PruneMessages(ctx context.Context, room string, keep int) error {
	if keep <= 0 {
		return nil
	}
	const q = `
DELETE FROM messages
WHERE room = ? AND id NOT IN (
	SELECT id FROM messages WHERE room = ? ORDER BY ts DESC, id DESC LIMIT ?
)
`
	_, err := s.db.ExecContext(ctx, q, room, room, keep)
	if err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	return nil
}
