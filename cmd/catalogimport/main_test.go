package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/core"
)

const scope = "store-1"

func testCLI(t *testing.T) *cli {
	t.Helper()
	cat := catalog.NewMemoryCatalog()
	cat.Seed(
		catalog.Entity{Scope: scope, Type: catalog.Category, Key: "drinks", Active: true},
		catalog.Entity{Scope: scope, Type: catalog.Category, Key: "food", Active: true},
	)
	svc := core.NewService(core.NewMemorySessionStore(), cat)
	c := &cli{}
	c.newService = func(context.Context) (*core.Service, func() error, error) {
		return svc, func() error { return nil }, nil
	}
	return c
}

func run(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(c)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--actor", "alice"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLI_Lifecycle(t *testing.T) {
	c := testCLI(t)
	file := writeFile(t, "items.csv", "name,category,price\nLatte,Drinks,4.50\nBagel,Bakery,3\n")

	out, err := run(t, c, "--json", "parse", "--scope", scope, "--type", "item", file)
	if err != nil {
		t.Fatalf("parse error = %v", err)
	}
	var parsed struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("parse output %q: %v", out, err)
	}

	out, err = run(t, c, "show", parsed.ID)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, "REF_NOT_FOUND") || !strings.Contains(out, "row 2") {
		t.Errorf("show output = %s", out)
	}

	if _, err := run(t, c, "commit", parsed.ID); err == nil {
		t.Error("commit of a draft with errors should fail")
	}

	if _, err := run(t, c, "edit", parsed.ID, "--set", "r2.category=Food"); err != nil {
		t.Fatalf("edit error = %v", err)
	}
	out, err = run(t, c, "validate", parsed.ID)
	if err != nil || !strings.Contains(out, "validated") {
		t.Fatalf("validate = %v, %s", err, out)
	}
	out, err = run(t, c, "commit", parsed.ID)
	if err != nil {
		t.Fatalf("commit error = %v", err)
	}
	if !strings.Contains(out, "confirmed") || !strings.Contains(out, "created") {
		t.Errorf("commit output = %s", out)
	}

	out, err = run(t, c, "report", parsed.ID)
	if err != nil || !strings.HasPrefix(out, "row_index,field,severity,code,message") {
		t.Errorf("report = %v, %q", err, out)
	}

	out, err = run(t, c, "list", "--status", "confirmed")
	if err != nil || !strings.Contains(out, parsed.ID) {
		t.Errorf("list = %v, %s", err, out)
	}
}

func TestCLI_SecondParseReportsOpenSession(t *testing.T) {
	c := testCLI(t)
	file := writeFile(t, "categories.csv", "name\nTea\n")

	if _, err := run(t, c, "parse", "--scope", scope, "--type", "category", file); err != nil {
		t.Fatal(err)
	}
	_, err := run(t, c, "parse", "--scope", scope, "--type", "category", file)
	if err == nil {
		t.Fatal("second parse should be rejected")
	}
	if got := describe(err); !strings.Contains(got, "IMP004") || !strings.Contains(got, "open session") {
		t.Errorf("describe() = %q", got)
	}
}

func TestCLI_Template(t *testing.T) {
	c := testCLI(t)
	out, err := run(t, c, "template", "item")
	if err != nil || !strings.HasPrefix(out, "name,category,price") {
		t.Errorf("template = %v, %q", err, out)
	}

	dest := filepath.Join(t.TempDir(), "size.csv")
	if _, err := run(t, c, "template", "size", "-o", dest); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("template file not written: %v", err)
	}

	if _, err := run(t, c, "template", "combo"); err == nil {
		t.Error("unknown entity type should fail")
	}
}

func TestBuildPatch(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		file    string
		sets    []string
		deletes []string
		want    core.DraftPatch
		wantErr bool
	}{
		{
			name: "set shortcuts group by row",
			sets: []string{"r2.category=Food", "r2.price=3.50", "r4.name=Tea"},
			want: core.DraftPatch{Updates: []core.RowUpdate{
				{RowID: "r2", Fields: map[string]string{"category": "Food", "price": "3.50"}},
				{RowID: "r4", Fields: map[string]string{"name": "Tea"}},
			}},
		},
		{
			name:    "stdin patch merged with delete",
			file:    "-",
			stdin:   `{"inserts":[{"name":"Mocha"}]}`,
			deletes: []string{"r1"},
			want: core.DraftPatch{
				Inserts: []map[string]string{{"name": "Mocha"}},
				Deletes: []string{"r1"},
			},
		},
		{name: "value may contain equals", sets: []string{"r1.description=a=b"}, want: core.DraftPatch{
			Updates: []core.RowUpdate{{RowID: "r1", Fields: map[string]string{"description": "a=b"}}},
		}},
		{name: "malformed set", sets: []string{"r2category=Food"}, wantErr: true},
		{name: "unknown patch key", file: "-", stdin: `{"upserts":[]}`, wantErr: true},
		{name: "empty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPatch(tt.file, strings.NewReader(tt.stdin), tt.sets, tt.deletes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildPatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildPatch() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
