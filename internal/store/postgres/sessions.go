// Package postgres implements core.SessionStore on PostgreSQL via pgx.
//
// The single-active-session rule is a partial unique index over
// (owner, scope, entity_type) for rows in an active status, so concurrent
// Creates for one lane race inside the database rather than in process
// memory. Updates are optimistic on the version column.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/catalogimport/internal/core"
)

const (
	activeLaneIndex = "import_sessions_active_lane"
	uniqueViolation = "23505"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS import_sessions (
	id          TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	scope       TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	status      TEXT NOT NULL,
	version     BIGINT NOT NULL DEFAULT 0,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ` + activeLaneIndex + `
	ON import_sessions (owner, scope, entity_type)
	WHERE status IN ('draft', 'validated');
CREATE INDEX IF NOT EXISTS import_sessions_scope_created_idx
	ON import_sessions (scope, created_at DESC);
`

// SessionStore persists sessions as JSONB payloads.
type SessionStore struct {
	pool *pgxpool.Pool
}

var _ core.SessionStore = (*SessionStore)(nil)

// NewSessionStore wraps an existing pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Migrate creates the sessions table and indexes if they do not exist.
func (s *SessionStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sessionSchema); err != nil {
		return fmt.Errorf("migrate import sessions: %w", err)
	}
	return nil
}

func (s *SessionStore) Create(ctx context.Context, sess *core.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_sessions (id, owner, scope, entity_type, status, version, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.Owner, sess.Scope, string(sess.EntityType), string(sess.Status()),
		sess.Version, payload, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		if isLaneConflict(err) {
			return s.laneConflict(ctx, sess)
		}
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	return nil
}

// laneConflict builds the error for a lost Create race, naming the session
// that holds the lane when it can still be found.
func (s *SessionStore) laneConflict(ctx context.Context, sess *core.Session) error {
	ce := &core.ConcurrencyError{
		SessionID: sess.ID,
		Reason:    "an import is already open for this lane",
		Err:       core.ErrActiveSessionExists,
	}
	var existing string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM import_sessions
		WHERE owner = $1 AND scope = $2 AND entity_type = $3 AND status IN ('draft', 'validated')`,
		sess.Owner, sess.Scope, string(sess.EntityType)).Scan(&existing)
	if err == nil {
		ce.ExistingSessionID = existing
	}
	return ce
}

func (s *SessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	var (
		payload []byte
		version int64
	)
	err := s.pool.QueryRow(ctx, `SELECT payload, version FROM import_sessions WHERE id = $1`, id).Scan(&payload, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return decode(payload, version)
}

func (s *SessionStore) Update(ctx context.Context, sess *core.Session) error {
	expected := sess.Version
	sess.Version++
	payload, err := json.Marshal(sess)
	if err != nil {
		sess.Version = expected
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE import_sessions
		SET status = $2, version = $3, payload = $4, updated_at = $5
		WHERE id = $1 AND version = $6`,
		sess.ID, string(sess.Status()), sess.Version, payload, sess.UpdatedAt, expected)
	if err != nil {
		sess.Version = expected
		if isLaneConflict(err) {
			return s.laneConflict(ctx, sess)
		}
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	sess.Version = expected
	var current int64
	err = s.pool.QueryRow(ctx, `SELECT version FROM import_sessions WHERE id = $1`, sess.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sess.ID, core.ErrSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("check session version %s: %w", sess.ID, err)
	}
	return &core.ConcurrencyError{
		SessionID: sess.ID,
		Reason:    fmt.Sprintf("expected version %d, found %d", expected, current),
		Err:       core.ErrVersionConflict,
	}
}

func (s *SessionStore) List(ctx context.Context, f core.SessionFilter) ([]*core.Session, error) {
	query, args := listQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*core.Session
	for rows.Next() {
		var (
			payload []byte
			version int64
		)
		if err := rows.Scan(&payload, &version); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess, err := decode(payload, version)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// listQuery builds the filtered SELECT for List, newest first.
func listQuery(f core.SessionFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Scope != "" {
		add("scope = $%d", f.Scope)
	}
	if f.Owner != "" {
		add("owner = $%d", f.Owner)
	}
	if f.EntityType != "" {
		add("entity_type = $%d", string(f.EntityType))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}

	var b strings.Builder
	b.WriteString("SELECT payload, version FROM import_sessions")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func isLaneConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeLaneIndex
}

// decode parses a payload; the version column is authoritative.
func decode(payload []byte, version int64) (*core.Session, error) {
	var sess core.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.Version = version
	return &sess, nil
}
