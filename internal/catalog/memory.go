package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCatalog is an in-process catalog. Writes are applied immediately;
// callers needing atomicity reverse them through the Compensator methods.
type MemoryCatalog struct {
	mu       sync.RWMutex
	entities map[string]Entity // id -> entity
	byKey    map[string]string // scope/type/key -> id
	now      func() time.Time
}

var _ Compensator = (*MemoryCatalog)(nil)

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		entities: make(map[string]Entity),
		byKey:    make(map[string]string),
		now:      time.Now,
	}
}

func indexKey(scope string, t EntityType, key NaturalKey) string {
	return scope + "\x00" + string(t) + "\x00" + string(key)
}

// Seed inserts entities as-is, assigning IDs when missing. Intended for tests
// and fixtures.
func (c *MemoryCatalog) Seed(entities ...Entity) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		now := c.now()
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
		c.entities[e.ID] = e.Clone()
		c.byKey[indexKey(e.Scope, e.Type, e.Key)] = e.ID
		ids = append(ids, e.ID)
	}
	return ids
}

// Snapshot returns copies of all entities in a scope sorted by type then key.
func (c *MemoryCatalog) Snapshot(scope string) []Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Entity
	for _, e := range c.entities {
		if e.Scope == scope {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Count returns the number of entities of type t in scope.
func (c *MemoryCatalog) Count(scope string, t EntityType) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.entities {
		if e.Scope == scope && e.Type == t {
			n++
		}
	}
	return n
}

func (c *MemoryCatalog) FindByNaturalKey(ctx context.Context, scope string, t EntityType, key NaturalKey) (Entity, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.byKey[indexKey(scope, t, key)]
	if !ok {
		return Entity{}, false, nil
	}
	return c.entities[id].Clone(), true, nil
}

func (c *MemoryCatalog) FindByNaturalKeys(ctx context.Context, scope string, t EntityType, keys []NaturalKey) (map[NaturalKey]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[NaturalKey]Entity)
	for _, k := range keys {
		if id, ok := c.byKey[indexKey(scope, t, k)]; ok {
			out[k] = c.entities[id].Clone()
		}
	}
	return out, nil
}

func (c *MemoryCatalog) FindByField(ctx context.Context, scope string, t EntityType, field, value string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := NormalizeKeyPart(value)
	if want == "" {
		return nil, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Entity
	for _, e := range c.entities {
		if e.Scope != scope || e.Type != t {
			continue
		}
		s, ok := e.Fields[field].(string)
		if ok && NormalizeKeyPart(s) == want {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert creates or updates the entity identified by in.Key. The previous
// state of an updated entity is returned for compensation.
func (c *MemoryCatalog) Upsert(ctx context.Context, scope string, t EntityType, in UpsertInput) (UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return UpsertResult{}, err
	}
	if in.Key == "" {
		return UpsertResult{}, fmt.Errorf("upsert %s: empty natural key", t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ik := indexKey(scope, t, in.Key)
	if id, ok := c.byKey[ik]; ok {
		prev := c.entities[id].Clone()
		next := prev.Clone()
		next.Active = in.Active
		next.Fields = cloneFields(in.Fields)
		next.Refs = cloneRefs(in.Refs)
		next.UpdatedAt = now
		c.entities[id] = next
		return UpsertResult{ID: id, Previous: &prev}, nil
	}

	e := Entity{
		ID:        uuid.NewString(),
		Scope:     scope,
		Type:      t,
		Key:       in.Key,
		Active:    in.Active,
		Fields:    cloneFields(in.Fields),
		Refs:      cloneRefs(in.Refs),
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.entities[e.ID] = e
	c.byKey[ik] = e.ID
	return UpsertResult{ID: e.ID, Created: true}, nil
}

// Delete removes an entity created during a failed batch.
func (c *MemoryCatalog) Delete(ctx context.Context, scope string, t EntityType, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entities[id]
	if !ok || e.Scope != scope || e.Type != t {
		return fmt.Errorf("delete %s %s: %w", t, id, ErrNotFound)
	}
	delete(c.entities, id)
	delete(c.byKey, indexKey(e.Scope, e.Type, e.Key))
	return nil
}

// Restore puts back the prior state of an entity updated during a failed batch.
func (c *MemoryCatalog) Restore(ctx context.Context, e Entity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entities[e.ID]; !ok {
		return fmt.Errorf("restore %s %s: %w", e.Type, e.ID, ErrNotFound)
	}
	c.entities[e.ID] = e.Clone()
	c.byKey[indexKey(e.Scope, e.Type, e.Key)] = e.ID
	return nil
}

func cloneFields(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRefs(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
