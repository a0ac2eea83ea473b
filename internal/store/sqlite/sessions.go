// Package sqlite persists import sessions to a local SQLite file. It backs
// the CLI's offline mode: the in-memory store enforces the lane and version
// rules and every successful write is mirrored to disk.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/JonMunkholm/catalogimport/internal/core"
)

// SessionStore mirrors a core.MemorySessionStore into SQLite.
type SessionStore struct {
	*core.MemorySessionStore
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var _ core.SessionStore = (*SessionStore)(nil)

// Open opens (or creates) the database at path and loads stored sessions.
func Open(ctx context.Context, path string) (*SessionStore, error) {
	if path == "" {
		path = "catalogimport.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS import_sessions (
		id      TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	s := &SessionStore{MemorySessionStore: core.NewMemorySessionStore(), db: db, path: path}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SessionStore) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM import_sessions`)
	if err != nil {
		return fmt.Errorf("select sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var sess core.Session
		if err := json.Unmarshal(payload, &sess); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if err := s.MemorySessionStore.Create(ctx, &sess); err != nil {
			return fmt.Errorf("load session %s: %w", sess.ID, err)
		}
	}
	return rows.Err()
}

func (s *SessionStore) Create(ctx context.Context, sess *core.Session) error {
	if err := s.MemorySessionStore.Create(ctx, sess); err != nil {
		return err
	}
	return s.persist(ctx, sess)
}

func (s *SessionStore) Update(ctx context.Context, sess *core.Session) error {
	if err := s.MemorySessionStore.Update(ctx, sess); err != nil {
		return err
	}
	return s.persist(ctx, sess)
}

func (s *SessionStore) persist(ctx context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO import_sessions(id, payload) VALUES(?, ?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`,
		sess.ID, data); err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.ID, err)
	}
	return nil
}

// Close closes the database.
func (s *SessionStore) Close() error { return s.db.Close() }

// Path returns the database path.
func (s *SessionStore) Path() string { return s.path }
