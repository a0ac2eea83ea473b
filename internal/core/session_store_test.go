package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

func newTestSession(id, owner string, et catalog.EntityType, created time.Time) *Session {
	return &Session{
		ID:         id,
		Owner:      owner,
		Scope:      testScope,
		EntityType: et,
		State:      DraftState{},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestMemorySessionStore_SingleActiveLane(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Create(ctx, newTestSession("s1", "alice", catalog.Item, now)); err != nil {
		t.Fatalf("Create(s1) error = %v", err)
	}

	err := store.Create(ctx, newTestSession("s2", "alice", catalog.Item, now))
	var ce *ConcurrencyError
	if !errors.As(err, &ce) || !errors.Is(err, ErrActiveSessionExists) {
		t.Fatalf("Create(s2) error = %v, want ConcurrencyError", err)
	}
	if ce.ExistingSessionID != "s1" {
		t.Errorf("ExistingSessionID = %q, want s1", ce.ExistingSessionID)
	}

	// Other lanes are independent.
	if err := store.Create(ctx, newTestSession("s3", "bob", catalog.Item, now)); err != nil {
		t.Errorf("Create(other owner) error = %v", err)
	}
	if err := store.Create(ctx, newTestSession("s4", "alice", catalog.Category, now)); err != nil {
		t.Errorf("Create(other type) error = %v", err)
	}

	// Discarding frees the lane.
	s1, _ := store.Get(ctx, "s1")
	s1.State = DraftState{}.Discard(now)
	if err := store.Update(ctx, s1); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := store.Create(ctx, newTestSession("s5", "alice", catalog.Item, now)); err != nil {
		t.Errorf("Create() after discard error = %v", err)
	}
}

func TestMemorySessionStore_OptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	if err := store.Create(ctx, newTestSession("s1", "alice", catalog.Item, time.Now())); err != nil {
		t.Fatal(err)
	}

	a, _ := store.Get(ctx, "s1")
	b, _ := store.Get(ctx, "s1")

	a.FileName = "first.csv"
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("Update(a) error = %v", err)
	}
	if a.Version != 1 {
		t.Errorf("Version = %d, want 1", a.Version)
	}

	b.FileName = "second.csv"
	err := store.Update(ctx, b)
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Update(b) error = %v, want ErrVersionConflict", err)
	}

	got, _ := store.Get(ctx, "s1")
	if got.FileName != "first.csv" {
		t.Errorf("FileName = %q, want first.csv", got.FileName)
	}
}

func TestMemorySessionStore_GetIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	s := newTestSession("s1", "alice", catalog.Item, time.Now())
	s.Draft = Draft{Columns: []string{"name"}, Records: []DraftRecord{{RowID: "r1", RowIndex: 1}}}
	if err := store.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get(ctx, "s1")
	got.Draft.Records[0].RowID = "mutated"

	again, _ := store.Get(ctx, "s1")
	if again.Draft.Records[0].RowID != "r1" {
		t.Error("mutating a fetched session changed the stored copy")
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemorySessionStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, spec := range []struct {
		id, owner string
		et        catalog.EntityType
	}{
		{"s1", "alice", catalog.Item},
		{"s2", "bob", catalog.Item},
		{"s3", "alice", catalog.Category},
	} {
		if err := store.Create(ctx, newTestSession(spec.id, spec.owner, spec.et, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter SessionFilter
		want   []string
	}{
		{"all newest first", SessionFilter{}, []string{"s3", "s2", "s1"}},
		{"by owner", SessionFilter{Owner: "alice"}, []string{"s3", "s1"}},
		{"by type", SessionFilter{EntityType: catalog.Item}, []string{"s2", "s1"}},
		{"by status", SessionFilter{Statuses: []Status{StatusConfirmed}}, nil},
		{"limit", SessionFilter{Limit: 1}, []string{"s3"}},
		{"other scope", SessionFilter{Scope: "elsewhere"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			var ids []string
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("List() = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("List() = %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}
}
