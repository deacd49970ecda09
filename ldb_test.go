package ldb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/revtree/ldb"
)

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := ldb.Open(context.Background(), dbPath, ldb.StoreOptions{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if store == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestOpenPutAndReadRoundTrips(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := ldb.Open(ctx, dbPath, ldb.StoreOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	rev, err := store.PutRevision(ctx, "doc1", "", []byte(`{"x":1}`), false)
	if err != nil {
		t.Fatalf("PutRevision: %v", err)
	}

	got, err := store.GetDocument(ctx, "doc1", "")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.RevID != rev.RevID {
		t.Fatalf("expected rev id %q, got %q", rev.RevID, got.RevID)
	}
}
