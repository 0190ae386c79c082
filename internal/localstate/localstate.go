// Package localstate persists the small amount of state kept outside the
// content store: the credential, the editor draft and the session-scoped
// read cache.
package localstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Fixed keys in the kv table.
const (
	KeyCredential = "githubToken"
	KeyDraft      = "draft-content"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_cache (
	session   TEXT NOT NULL,
	key       TEXT NOT NULL,
	payload   BLOB NOT NULL,
	stored_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (session, key)
);
`

// DB wraps a sql.DB holding local state.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("localstate: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstate: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstate: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Get returns the value stored under key.
func (db *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("localstate: get %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores value under key.
func (db *DB) Set(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("localstate: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("localstate: delete %s: %w", key, err)
	}
	return nil
}

// Session opens the read cache for session id, dropping every other
// session's rows. An empty id starts a new session.
func (db *DB) Session(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM session_cache WHERE session <> ?`, id); err != nil {
		return nil, fmt.Errorf("localstate: purge sessions: %w", err)
	}
	return &Session{db: db, id: id}, nil
}

// Session is one session's slice of the read cache.
type Session struct {
	db *DB
	id string
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Get returns the payload cached under key.
func (s *Session) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT payload FROM session_cache WHERE session = ? AND key = ?`, s.id, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localstate: cache get: %w", err)
	}
	return payload, true, nil
}

// Put stores payload under key.
func (s *Session) Put(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO session_cache (session, key, payload, stored_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session, key) DO UPDATE SET
			payload   = excluded.payload,
			stored_at = excluded.stored_at
	`, s.id, key, payload)
	if err != nil {
		return fmt.Errorf("localstate: cache put: %w", err)
	}
	return nil
}

// Delete drops key.
func (s *Session) Delete(ctx context.Context, key string) error {
	_, err := s.db.conn.ExecContext(ctx, `DELETE FROM session_cache WHERE session = ? AND key = ?`, s.id, key)
	if err != nil {
		return fmt.Errorf("localstate: cache delete: %w", err)
	}
	return nil
}

// Len returns the number of cached rows for the session.
func (s *Session) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_cache WHERE session = ?`, s.id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("localstate: cache len: %w", err)
	}
	return n, nil
}
