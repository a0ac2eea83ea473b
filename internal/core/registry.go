package core

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

var (
	registry   = make(map[catalog.EntityType]EntitySchema)
	registryMu sync.RWMutex
)

// Register adds an entity schema to the registry.
// Panics if a schema for the same entity type is already registered.
func Register(schema EntitySchema) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[schema.Type]; exists {
		panic(fmt.Sprintf("schema already registered: %s", schema.Type))
	}
	registry[schema.Type] = schema
}

// Get returns the schema for an entity type.
// Returns false if not found.
func Get(t catalog.EntityType) (EntitySchema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	schema, ok := registry[t]
	return schema, ok
}

// All returns all registered schemas in dependency order.
func All() []EntitySchema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	rank := make(map[catalog.EntityType]int)
	for i, t := range catalog.AllEntityTypes() {
		rank[t] = i
	}

	result := make([]EntitySchema, 0, len(registry))
	for _, schema := range registry {
		result = append(result, schema)
	}
	sort.Slice(result, func(i, j int) bool {
		ri, iok := rank[result[i].Type]
		rj, jok := rank[result[j].Type]
		if iok != jok {
			return iok
		}
		if ri != rj {
			return ri < rj
		}
		return result[i].Type < result[j].Type
	})
	return result
}

// SchemaCount returns the number of registered schemas.
func SchemaCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered schemas.
// Primarily useful for testing; call RegisterBuiltins to restore.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[catalog.EntityType]EntitySchema)
}

// AliasOverrides extends the accepted column aliases per entity type and
// field: entity_type -> field -> aliases.
type AliasOverrides map[string]map[string][]string

// LoadAliasFile reads alias overrides from a YAML file:
//
//	item:
//	  price: [unit_price, cost]
//	category:
//	  name: [section]
func LoadAliasFile(path string) (AliasOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	var out AliasOverrides
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	return out, nil
}

// ApplyAliasOverrides appends the given aliases after each field's built-in
// aliases. Unknown entity types or fields are reported as one error and
// nothing is applied.
func ApplyAliasOverrides(overrides AliasOverrides) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	var problems []string
	updated := make(map[catalog.EntityType]EntitySchema)

	for typeName, fields := range overrides {
		t, ok := catalog.ParseEntityType(typeName)
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown entity type %q", typeName))
			continue
		}
		schema, ok := updated[t]
		if !ok {
			schema, ok = registry[t]
			if !ok {
				problems = append(problems, fmt.Sprintf("no schema registered for %q", t))
				continue
			}
			schema.Fields = append([]FieldSpec(nil), schema.Fields...)
		}

		for fieldName, aliases := range fields {
			pos := -1
			for i, f := range schema.Fields {
				if f.Name == fieldName {
					pos = i
					break
				}
			}
			if pos < 0 {
				problems = append(problems, fmt.Sprintf("%s has no field %q", t, fieldName))
				continue
			}
			f := schema.Fields[pos]
			f.Aliases = mergeAliases(f.Aliases, aliases)
			schema.Fields[pos] = f
		}
		updated[t] = schema
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("alias overrides: %s", strings.Join(problems, "; "))
	}
	for t, schema := range updated {
		registry[t] = schema
	}
	return nil
}

func mergeAliases(existing, extra []string) []string {
	out := append([]string(nil), existing...)
	seen := make(map[string]bool, len(existing)+len(extra))
	for _, a := range existing {
		seen[NormalizeHeader(a)] = true
	}
	for _, a := range extra {
		n := NormalizeHeader(a)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
