package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/JonMunkholm/catalogimport/internal/blob"
)

var _ blob.Store = (*Store)(nil)

func TestStore_PutGetHead(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	info, err := store.Put(ctx, "imports/s/1/items.csv", bytes.NewBufferString("name\nLatte\n"),
		blob.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"owner": "alice"}})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Size != 11 || info.ContentType != "text/csv" {
		t.Errorf("Put() info = %+v", info)
	}

	_, rc, err := store.Get(ctx, "imports/s/1/items.csv")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "name\nLatte\n" {
		t.Errorf("body = %q", body)
	}

	head, err := store.Head(ctx, "imports/s/1/items.csv")
	if err != nil || head.Metadata["owner"] != "alice" {
		t.Errorf("Head() = %+v, %v", head, err)
	}
	head.Metadata["owner"] = "mallory"
	again, _ := store.Head(ctx, "imports/s/1/items.csv")
	if again.Metadata["owner"] != "alice" {
		t.Error("metadata shared with caller")
	}
}

func TestStore_PutExisting(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", bytes.NewBufferString("a"), blob.PutOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewBufferString("b"), blob.PutOptions{}); !errors.Is(err, blob.ErrExists) {
		t.Errorf("second Put() error = %v, want ErrExists", err)
	}
}

func TestStore_ListDeletePresign(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, k := range []string{"imports/b/2", "imports/a/1", "other/x"} {
		if _, err := store.Put(ctx, k, bytes.NewReader(nil), blob.PutOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := store.List(ctx, "imports/")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Key != "imports/a/1" || list[1].Key != "imports/b/2" {
		t.Errorf("List() = %+v", list)
	}

	if ok, _ := store.Delete(ctx, "imports/a/1"); !ok {
		t.Error("Delete(existing) = false")
	}
	if ok, _ := store.Delete(ctx, "imports/a/1"); ok {
		t.Error("Delete(missing) = true")
	}

	if _, err := store.PresignURL(ctx, "other/x", blob.SignedURLOptions{}); !errors.Is(err, blob.ErrUnsupported) {
		t.Errorf("PresignURL() error = %v, want ErrUnsupported", err)
	}
	if store.Driver() != blob.DriverMemory {
		t.Errorf("Driver() = %s", store.Driver())
	}
}
