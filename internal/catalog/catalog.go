// Package catalog defines the contract between the import pipeline and the
// live menu catalog (categories, items, modifier groups, modifiers, sizes).
//
// The pipeline never reaches into catalog internals. It consumes three
// capabilities:
//
//   - [Reader]: existence lookups by natural key or by a unique field.
//   - [Writer]: upsert by natural key within a scope.
//   - [Transactor] or [Compensator]: the all-or-nothing boundary. Stores with
//     native transactions implement Transactor; stores without them expose
//     Compensator so the caller can reverse applied writes.
//
// Two implementations ship with the module: [PostgresCatalog] (pgx, native
// transactions plus a per-scope advisory lock) and [MemoryCatalog] (tests and
// local tooling, compensating writes).
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// EntityType names one kind of catalog entity.
type EntityType string

const (
	Category      EntityType = "category"
	Item          EntityType = "item"
	ModifierGroup EntityType = "modifier_group"
	Modifier      EntityType = "modifier"
	Size          EntityType = "size"
)

// AllEntityTypes returns every entity type in dependency order.
func AllEntityTypes() []EntityType {
	return []EntityType{Category, Item, ModifierGroup, Modifier, Size}
}

// ParseEntityType resolves a user-supplied name (case-insensitive, "-" or
// " " accepted in place of "_").
func ParseEntityType(s string) (EntityType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	for _, t := range AllEntityTypes() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// NaturalKey is the normalized business key of an entity within a scope.
// Composite keys are joined with "|".
type NaturalKey string

// KeySeparator joins the parts of a composite natural key.
const KeySeparator = "|"

// MakeKey normalizes each part and joins them into a NaturalKey.
// Returns "" if any part is blank after normalization.
func MakeKey(parts ...string) NaturalKey {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		n := NormalizeKeyPart(p)
		if n == "" {
			return ""
		}
		normalized[i] = n
	}
	return NaturalKey(strings.Join(normalized, KeySeparator))
}

// NormalizeKeyPart trims, lower-cases and collapses internal whitespace.
func NormalizeKeyPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Parts splits a key back into its normalized parts.
func (k NaturalKey) Parts() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), KeySeparator)
}

// Entity is a persisted catalog record as seen by the import pipeline.
type Entity struct {
	ID        string            `json:"id"`
	Scope     string            `json:"scope"`
	Type      EntityType        `json:"entity_type"`
	Key       NaturalKey        `json:"natural_key"`
	Active    bool              `json:"active"`
	Fields    map[string]any    `json:"fields,omitempty"`
	Refs      map[string]string `json:"refs,omitempty"` // reference name -> persisted entity ID
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of e.
func (e Entity) Clone() Entity {
	out := e
	if e.Fields != nil {
		out.Fields = make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			out.Fields[k] = v
		}
	}
	if e.Refs != nil {
		out.Refs = make(map[string]string, len(e.Refs))
		for k, v := range e.Refs {
			out.Refs[k] = v
		}
	}
	return out
}

// UpsertInput carries the values written for one natural key.
type UpsertInput struct {
	Key    NaturalKey
	Active bool
	Fields map[string]any
	Refs   map[string]string
}

// UpsertResult reports what an upsert did. Previous is set when an existing
// entity was updated and the store can return its prior state.
type UpsertResult struct {
	ID       string
	Created  bool
	Previous *Entity
}

// ErrNotFound is returned by Compensator operations on unknown entities.
var ErrNotFound = errors.New("catalog entity not found")

// Reader looks up persisted entities.
type Reader interface {
	FindByNaturalKey(ctx context.Context, scope string, t EntityType, key NaturalKey) (Entity, bool, error)
	FindByNaturalKeys(ctx context.Context, scope string, t EntityType, keys []NaturalKey) (map[NaturalKey]Entity, error)
	// FindByField returns entities whose string field equals value
	// (case-insensitive, whitespace-normalized).
	FindByField(ctx context.Context, scope string, t EntityType, field, value string) ([]Entity, error)
}

// Writer upserts entities by natural key.
type Writer interface {
	Reader
	Upsert(ctx context.Context, scope string, t EntityType, in UpsertInput) (UpsertResult, error)
}

// Tx is a transactional Writer.
type Tx interface {
	Writer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactor opens a transaction serialized against other transactions on
// the same scope.
type Transactor interface {
	Begin(ctx context.Context, scope string) (Tx, error)
}

// Compensator reverses writes on stores without transactions.
type Compensator interface {
	Writer
	Delete(ctx context.Context, scope string, t EntityType, id string) error
	Restore(ctx context.Context, e Entity) error
}
