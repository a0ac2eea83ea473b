package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// flakyCatalog fails the upsert of one natural key.
type flakyCatalog struct {
	*catalog.MemoryCatalog
	failOn catalog.NaturalKey
}

func (f *flakyCatalog) Upsert(ctx context.Context, scope string, t catalog.EntityType, in catalog.UpsertInput) (catalog.UpsertResult, error) {
	if in.Key == f.failOn {
		return catalog.UpsertResult{}, errors.New("disk full")
	}
	return f.MemoryCatalog.Upsert(ctx, scope, t, in)
}

func TestCommitEngine_OrdersParentsFirst(t *testing.T) {
	cat := catalog.NewMemoryCatalog()
	d := draftFromCSV(t, catalog.Category, "name,parent\nEspresso,Hot\nHot,Drinks\nDrinks,\n")

	res, err := NewCommitEngine(cat, nil).Apply(context.Background(), testScope, mustSchema(t, catalog.Category), d)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Created != 3 || res.Updated != 0 {
		t.Errorf("created=%d updated=%d, want 3 and 0", res.Created, res.Updated)
	}
	if len(res.Mapping) != 3 {
		t.Fatalf("Mapping = %v, want 3 entries", res.Mapping)
	}

	hot, ok, _ := cat.FindByNaturalKey(context.Background(), testScope, catalog.Category, "hot")
	if !ok {
		t.Fatal("hot not written")
	}
	if hot.Refs["parent"] != res.Mapping["r3"] {
		t.Errorf("hot parent = %q, want drinks id %q", hot.Refs["parent"], res.Mapping["r3"])
	}
	if hot.ID != res.Mapping["r2"] {
		t.Errorf("Mapping[r2] = %q, want %q", res.Mapping["r2"], hot.ID)
	}
}

func TestCommitEngine_UpsertByNaturalKey(t *testing.T) {
	cat := catalog.NewMemoryCatalog()
	ids := cat.Seed(
		catalog.Entity{Scope: testScope, Type: catalog.Category, Key: "drinks", Active: true},
		catalog.Entity{Scope: testScope, Type: catalog.Category, Key: "food", Active: true},
	)
	d := draftFromCSV(t, catalog.Item, "name,category,price,active\nLatte,Drinks,4.50,no\nBagel,food,$2,\n")

	engine := NewCommitEngine(cat, nil)
	res, err := engine.Apply(context.Background(), testScope, mustSchema(t, catalog.Item), d)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Created != 2 {
		t.Errorf("Created = %d, want 2", res.Created)
	}

	latte, _, _ := cat.FindByNaturalKey(context.Background(), testScope, catalog.Item, "drinks|latte")
	if latte.Active {
		t.Error("latte active = true, want false")
	}
	if latte.Fields["price"] != 4.5 || latte.Refs["category"] != ids[0] {
		t.Errorf("latte = %+v", latte)
	}

	// Retrying the same draft updates instead of duplicating.
	res, err = engine.Apply(context.Background(), testScope, mustSchema(t, catalog.Item), d)
	if err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if res.Created != 0 || res.Updated != 2 {
		t.Errorf("created=%d updated=%d, want 0 and 2", res.Created, res.Updated)
	}
	if n := cat.Count(testScope, catalog.Item); n != 2 {
		t.Errorf("item count = %d, want 2", n)
	}
}

func TestCommitEngine_CompensatesOnFailure(t *testing.T) {
	mem := catalog.NewMemoryCatalog()
	mem.Seed(catalog.Entity{Scope: testScope, Type: catalog.Category, Key: "drinks", Active: true,
		Fields: map[string]any{"name": "Drinks", "description": "old"}})
	before := mem.Snapshot(testScope)

	cat := &flakyCatalog{MemoryCatalog: mem, failOn: "tea"}
	d := draftFromCSV(t, catalog.Category, "name,description\nDrinks,new\nFood,\nTea,\n")

	_, err := NewCommitEngine(cat, nil).Apply(context.Background(), testScope, mustSchema(t, catalog.Category), d)

	var ce *CommitError
	if !errors.As(err, &ce) {
		t.Fatalf("Apply() error = %v, want *CommitError", err)
	}
	if ce.RowIndex != 3 {
		t.Errorf("RowIndex = %d, want 3", ce.RowIndex)
	}
	if after := mem.Snapshot(testScope); !reflect.DeepEqual(after, before) {
		t.Errorf("catalog changed after failed commit:\n got %+v\nwant %+v", after, before)
	}
}

func TestCommitEngine_DependencyCycle(t *testing.T) {
	cat := catalog.NewMemoryCatalog()
	d := draftFromCSV(t, catalog.Category, "name,parent\nA,B\nB,A\nC,\n")

	_, err := NewCommitEngine(cat, nil).Apply(context.Background(), testScope, mustSchema(t, catalog.Category), d)
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("Apply() error = %v, want ErrDependencyCycle", err)
	}
	if n := cat.Count(testScope, catalog.Category); n != 0 {
		t.Errorf("category count = %d, want 0", n)
	}
}

func TestCommitEngine_MissingReference(t *testing.T) {
	cat := catalog.NewMemoryCatalog()
	cat.Seed(catalog.Entity{Scope: testScope, Type: catalog.Category, Key: "drinks", Active: true})
	d := draftFromCSV(t, catalog.Item, "name,category,price\nLatte,Drinks,4\nSoup,Starters,6\n")

	_, err := NewCommitEngine(cat, nil).Apply(context.Background(), testScope, mustSchema(t, catalog.Item), d)

	var ce *CommitError
	if !errors.As(err, &ce) || ce.RowIndex != 2 {
		t.Fatalf("Apply() error = %v, want CommitError at row 2", err)
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Apply() error = %v, want wrapped ErrNotFound", err)
	}
	if n := cat.Count(testScope, catalog.Item); n != 0 {
		t.Errorf("item count = %d, want 0", n)
	}
}

func TestCommitEngine_ScopeLockBusy(t *testing.T) {
	locks := NewKeyedMutex()
	unlock, err := locks.Lock(context.Background(), "scope:"+testScope, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	engine := NewCommitEngine(catalog.NewMemoryCatalog(), locks)
	engine.LockWait = 10 * time.Millisecond

	d := draftFromCSV(t, catalog.Category, "name\nDrinks\n")
	_, err = engine.Apply(context.Background(), testScope, mustSchema(t, catalog.Category), d)

	var ce *ConcurrencyError
	if !errors.As(err, &ce) || !errors.Is(err, ErrLockTimeout) {
		t.Errorf("Apply() error = %v, want ConcurrencyError wrapping ErrLockTimeout", err)
	}
}

// recordingTransactor stages writes in a scratch catalog and records how the
// transaction ended.
type recordingTransactor struct {
	catalog.Reader
	failOn     catalog.NaturalKey
	committed  bool
	rolledBack bool
}

type recordingTx struct {
	*catalog.MemoryCatalog
	parent *recordingTransactor
}

func (r *recordingTransactor) Begin(context.Context, string) (catalog.Tx, error) {
	return &recordingTx{MemoryCatalog: catalog.NewMemoryCatalog(), parent: r}, nil
}

func (tx *recordingTx) Upsert(ctx context.Context, scope string, t catalog.EntityType, in catalog.UpsertInput) (catalog.UpsertResult, error) {
	if in.Key == tx.parent.failOn {
		return catalog.UpsertResult{}, errors.New("constraint violation")
	}
	return tx.MemoryCatalog.Upsert(ctx, scope, t, in)
}

func (tx *recordingTx) Commit(context.Context) error {
	tx.parent.committed = true
	return nil
}

func (tx *recordingTx) Rollback(context.Context) error {
	tx.parent.rolledBack = true
	return nil
}

func TestCommitEngine_Transactional(t *testing.T) {
	tests := []struct {
		name         string
		failOn       catalog.NaturalKey
		wantErr      bool
		wantCommit   bool
		wantRollback bool
	}{
		{name: "success commits", wantCommit: true},
		{name: "failure rolls back", failOn: "food", wantErr: true, wantRollback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &recordingTransactor{Reader: catalog.NewMemoryCatalog(), failOn: tt.failOn}
			d := draftFromCSV(t, catalog.Category, "name\nDrinks\nFood\n")

			res, err := NewCommitEngine(tr, nil).Apply(context.Background(), testScope, mustSchema(t, catalog.Category), d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tr.committed != tt.wantCommit || tr.rolledBack != tt.wantRollback {
				t.Errorf("committed=%v rolledBack=%v, want %v and %v", tr.committed, tr.rolledBack, tt.wantCommit, tt.wantRollback)
			}
			if !tt.wantErr && res.Created != 2 {
				t.Errorf("Created = %d, want 2", res.Created)
			}
		})
	}
}

func TestCommitEngine_Canceled(t *testing.T) {
	cat := catalog.NewMemoryCatalog()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := draftFromCSV(t, catalog.Category, "name\nDrinks\n")
	_, err := NewCommitEngine(cat, nil).Apply(ctx, testScope, mustSchema(t, catalog.Category), d)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Apply() error = %v, want context.Canceled", err)
	}
	if n := cat.Count(testScope, catalog.Category); n != 0 {
		t.Errorf("category count = %d, want 0", n)
	}
}
