package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// resetRegistry restores the built-in schemas after a test mutates them.
func resetRegistry(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		Clear()
		RegisterBuiltins()
	})
}

func TestBuiltinSchemas(t *testing.T) {
	if got := SchemaCount(); got != len(catalog.AllEntityTypes()) {
		t.Fatalf("SchemaCount() = %d, want %d", got, len(catalog.AllEntityTypes()))
	}

	all := All()
	for i, want := range catalog.AllEntityTypes() {
		if all[i].Type != want {
			t.Errorf("All()[%d] = %s, want %s", i, all[i].Type, want)
		}
	}

	for _, schema := range all {
		t.Run(string(schema.Type), func(t *testing.T) {
			for _, key := range schema.KeyFields {
				f, ok := schema.Field(key)
				if !ok {
					t.Fatalf("key field %q not declared", key)
				}
				if !f.Required {
					t.Errorf("key field %q is not required", key)
				}
			}
			for _, ref := range schema.References {
				for _, name := range ref.Fields {
					if _, ok := schema.Field(name); !ok {
						t.Errorf("reference %s uses undeclared field %q", ref.Name, name)
					}
				}
			}
			for _, f := range schema.Fields {
				if len(f.Aliases) == 0 {
					t.Errorf("field %q has no aliases", f.Name)
				}
				for _, a := range f.Aliases {
					if NormalizeHeader(a) != a {
						t.Errorf("alias %q of %q is not in normalized form", a, f.Name)
					}
				}
			}
		})
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Register() of a duplicate schema did not panic")
		}
	}()
	schema, _ := Get(catalog.Category)
	Register(schema)
}

func TestApplyAliasOverrides(t *testing.T) {
	resetRegistry(t)

	err := ApplyAliasOverrides(AliasOverrides{
		"item":     {"price": {"Unit Price", "price"}},
		"Category": {"name": {"section"}},
	})
	if err != nil {
		t.Fatalf("ApplyAliasOverrides() error = %v", err)
	}

	item, _ := Get(catalog.Item)
	price, _ := item.Field("price")
	want := []string{"price", "base_price", "amount", "unit_price"}
	if strings.Join(price.Aliases, ",") != strings.Join(want, ",") {
		t.Errorf("price aliases = %v, want %v", price.Aliases, want)
	}

	cat, _ := Get(catalog.Category)
	name, _ := cat.Field("name")
	if name.Aliases[len(name.Aliases)-1] != "section" {
		t.Errorf("category name aliases = %v, want section appended", name.Aliases)
	}
}

func TestApplyAliasOverrides_RejectsUnknown(t *testing.T) {
	resetRegistry(t)

	err := ApplyAliasOverrides(AliasOverrides{
		"item":   {"price": {"cost"}, "colour": {"color"}},
		"widget": {"name": {"x"}},
	})
	if err == nil {
		t.Fatal("ApplyAliasOverrides() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "colour") || !strings.Contains(err.Error(), "widget") {
		t.Errorf("error %q does not name both problems", err)
	}

	item, _ := Get(catalog.Item)
	price, _ := item.Field("price")
	for _, a := range price.Aliases {
		if a == "cost" {
			t.Error("overrides were partially applied")
		}
	}
}

func TestLoadAliasFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	content := "item:\n  price: [unit_price, cost]\nmodifier:\n  group: [family]\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := LoadAliasFile(path)
	if err != nil {
		t.Fatalf("LoadAliasFile() error = %v", err)
	}
	if len(got["item"]["price"]) != 2 || got["modifier"]["group"][0] != "family" {
		t.Errorf("LoadAliasFile() = %v", got)
	}

	if _, err := LoadAliasFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadAliasFile() on missing file returned nil error")
	}
}

func TestSchemaInfoAndColumns(t *testing.T) {
	schema, _ := Get(catalog.Size)

	cols := schema.Columns()
	if cols[0] != "name" || cols[1] != "item" || cols[2] != "category" {
		t.Errorf("Columns() = %v", cols)
	}

	info := schema.Info()
	if info.EntityType != catalog.Size || len(info.Columns) != len(schema.Fields) {
		t.Errorf("Info() = %+v", info)
	}
	if strings.Join(info.NaturalKey, ",") != "category,item,name" {
		t.Errorf("NaturalKey = %v", info.NaturalKey)
	}
}
