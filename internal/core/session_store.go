package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// SessionFilter narrows List results. Zero fields match everything.
type SessionFilter struct {
	Scope      string
	Owner      string
	EntityType catalog.EntityType
	Statuses   []Status
	Limit      int
}

// Matches reports whether s passes the filter.
func (f SessionFilter) Matches(s *Session) bool {
	if f.Scope != "" && s.Scope != f.Scope {
		return false
	}
	if f.Owner != "" && s.Owner != f.Owner {
		return false
	}
	if f.EntityType != "" && s.EntityType != f.EntityType {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, st := range f.Statuses {
			if s.Status() == st {
				return true
			}
		}
		return false
	}
	return true
}

// SessionStore persists import sessions.
//
// Create enforces the single-active-session rule atomically: it fails with a
// *ConcurrencyError wrapping ErrActiveSessionExists when the lane already
// holds a draft or validated session. Update is optimistic: the stored
// Version must equal s.Version, and is incremented on success; a mismatch
// yields a *ConcurrencyError wrapping ErrVersionConflict.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	List(ctx context.Context, f SessionFilter) ([]*Session, error)
}

// MemorySessionStore keeps serialized sessions in memory. Sessions are
// stored as JSON so callers never share mutable state with the store.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	active   map[Lane]string
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string][]byte),
		active:   make(map[Lane]string),
	}
}

func (m *MemorySessionStore) Create(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	if s.Status().IsActive() {
		if existing, ok := m.active[s.Lane()]; ok {
			return &ConcurrencyError{
				SessionID:         s.ID,
				ExistingSessionID: existing,
				Reason:            "an import is already open for this lane",
				Err:               ErrActiveSessionExists,
			}
		}
		m.active[s.Lane()] = s.ID
	}
	m.sessions[s.ID] = data
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	data, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return decodeSession(data)
}

func (m *MemorySessionStore) Update(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.sessions[s.ID]
	if !ok {
		return fmt.Errorf("session %s: %w", s.ID, ErrSessionNotFound)
	}
	stored, err := decodeSession(data)
	if err != nil {
		return err
	}
	if stored.Version != s.Version {
		return &ConcurrencyError{
			SessionID: s.ID,
			Reason:    fmt.Sprintf("expected version %d, found %d", s.Version, stored.Version),
			Err:       ErrVersionConflict,
		}
	}

	s.Version++
	next, err := json.Marshal(s)
	if err != nil {
		s.Version--
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	m.sessions[s.ID] = next

	lane := s.Lane()
	if s.Status().IsActive() {
		m.active[lane] = s.ID
	} else if m.active[lane] == s.ID {
		delete(m.active, lane)
	}
	return nil
}

// List returns matching sessions, newest first.
func (m *MemorySessionStore) List(ctx context.Context, f SessionFilter) ([]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	all := make([][]byte, 0, len(m.sessions))
	for _, data := range m.sessions {
		all = append(all, data)
	}
	m.mu.Unlock()

	var out []*Session
	for _, data := range all {
		s, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		if f.Matches(s) {
			out = append(out, s)
		}
	}
	SortSessions(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// SortSessions orders sessions newest first, then by id.
func SortSessions(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func decodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
