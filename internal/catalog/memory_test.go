package catalog

import (
	"context"
	"errors"
	"testing"
)

func TestMakeKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  NaturalKey
	}{
		{"single", []string{"Drinks"}, "drinks"},
		{"trim and collapse", []string{"  Hot   Drinks "}, "hot drinks"},
		{"composite", []string{"Drinks", "Latte"}, "drinks|latte"},
		{"blank part", []string{"Drinks", "  "}, ""},
		{"no parts", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MakeKey(tt.parts...)
			if tt.parts == nil {
				got = MakeKey()
				if got != "" && len(got.Parts()) != 0 {
					t.Errorf("MakeKey() = %q, want empty", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("MakeKey(%v) = %q, want %q", tt.parts, got, tt.want)
			}
		})
	}
}

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		in   string
		want EntityType
		ok   bool
	}{
		{"category", Category, true},
		{"Modifier-Group", ModifierGroup, true},
		{" modifier group ", ModifierGroup, true},
		{"SIZE", Size, true},
		{"widget", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseEntityType(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseEntityType(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMemoryCatalog_UpsertCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()

	first, err := c.Upsert(ctx, "store-1", Category, UpsertInput{
		Key:    MakeKey("Drinks"),
		Active: true,
		Fields: map[string]any{"name": "Drinks"},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !first.Created || first.Previous != nil {
		t.Fatalf("first upsert: Created=%v Previous=%v, want created with no previous", first.Created, first.Previous)
	}

	second, err := c.Upsert(ctx, "store-1", Category, UpsertInput{
		Key:    MakeKey("drinks"),
		Active: false,
		Fields: map[string]any{"name": "Drinks", "description": "cold"},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if second.Created {
		t.Error("second upsert reported Created")
	}
	if second.ID != first.ID {
		t.Errorf("second upsert ID = %s, want %s", second.ID, first.ID)
	}
	if second.Previous == nil || !second.Previous.Active {
		t.Errorf("Previous = %+v, want prior active state", second.Previous)
	}

	got, ok, err := c.FindByNaturalKey(ctx, "store-1", Category, "drinks")
	if err != nil || !ok {
		t.Fatalf("FindByNaturalKey() = %v, %v", ok, err)
	}
	if got.Active || got.Fields["description"] != "cold" {
		t.Errorf("entity not updated: %+v", got)
	}
	if n := c.Count("store-1", Category); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestMemoryCatalog_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()
	c.Seed(Entity{Scope: "a", Type: Category, Key: "drinks", Active: true})

	if _, ok, _ := c.FindByNaturalKey(ctx, "b", Category, "drinks"); ok {
		t.Error("entity visible from another scope")
	}
	got, err := c.FindByNaturalKeys(ctx, "a", Category, []NaturalKey{"drinks", "food"})
	if err != nil {
		t.Fatalf("FindByNaturalKeys() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("FindByNaturalKeys() returned %d entities, want 1", len(got))
	}
}

func TestMemoryCatalog_FindByField(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()
	c.Seed(
		Entity{Scope: "s", Type: Item, Key: "drinks|latte", Fields: map[string]any{"sku": "LAT-01"}},
		Entity{Scope: "s", Type: Item, Key: "drinks|mocha", Fields: map[string]any{"sku": "MOC-01"}},
	)

	got, err := c.FindByField(ctx, "s", Item, "sku", " lat-01 ")
	if err != nil {
		t.Fatalf("FindByField() error = %v", err)
	}
	if len(got) != 1 || got[0].Key != "drinks|latte" {
		t.Errorf("FindByField() = %+v, want the latte", got)
	}

	got, _ = c.FindByField(ctx, "s", Item, "sku", "")
	if len(got) != 0 {
		t.Errorf("blank value matched %d entities", len(got))
	}
}

func TestMemoryCatalog_Compensation(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog()
	c.Seed(Entity{Scope: "s", Type: Category, Key: "drinks", Active: true, Fields: map[string]any{"name": "Drinks"}})

	created, _ := c.Upsert(ctx, "s", Category, UpsertInput{Key: "food", Active: true})
	updated, _ := c.Upsert(ctx, "s", Category, UpsertInput{Key: "drinks", Active: false})

	if err := c.Delete(ctx, "s", Category, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := c.Restore(ctx, *updated.Previous); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	snap := c.Snapshot("s")
	if len(snap) != 1 {
		t.Fatalf("Snapshot() has %d entities, want 1", len(snap))
	}
	if !snap[0].Active || snap[0].Fields["name"] != "Drinks" {
		t.Errorf("restored entity = %+v", snap[0])
	}

	if err := c.Delete(ctx, "s", Category, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryCatalog_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewMemoryCatalog()
	if _, err := c.Upsert(ctx, "s", Category, UpsertInput{Key: "x"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Upsert() error = %v, want context.Canceled", err)
	}
}
