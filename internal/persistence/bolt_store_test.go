package persistence

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "content.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreContentAssignsIncrementingIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id1, err := store.StoreContent(ctx, Content{Title: "a"})
	if err != nil {
		t.Fatalf("store content: %v", err)
	}
	id2, err := store.StoreContent(ctx, Content{Title: "b"})
	if err != nil {
		t.Fatalf("store content: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("expected increasing IDs, got %d then %d", id1, id2)
	}
}

func TestUpsertTagIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id1, err := store.UpsertTag(ctx, "golang")
	if err != nil {
		t.Fatalf("upsert tag: %v", err)
	}
	id2, err := store.UpsertTag(ctx, "golang")
	if err != nil {
		t.Fatalf("upsert tag: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same tag ID on repeat upsert, got %d and %d", id1, id2)
	}

	tags, err := store.ListExistingTags(ctx, 10)
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("expected 1 distinct tag, got %d", len(tags))
	}
}

func TestSetContentPublicRoundTrips(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.StoreContent(ctx, Content{Title: "note", IsPublic: false})
	if err != nil {
		t.Fatalf("store content: %v", err)
	}
	if err := store.SetContentPublic(ctx, id, true, "Public title", "Public description", time.Now()); err != nil {
		t.Fatalf("set public: %v", err)
	}

	var got Content
	if err := store.db.View(func(tx *bbolt.Tx) error {
		return json.Unmarshal(tx.Bucket(bucketContent).Get(idKey(id)), &got)
	}); err != nil {
		t.Fatalf("read back content: %v", err)
	}
	if !got.IsPublic || got.PublicTitle != "Public title" || got.PublicDescription != "Public description" {
		t.Fatalf("expected publication fields to round-trip, got %+v", got)
	}
}

func TestAssociateContentWithTag(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	contentID, _ := store.StoreContent(ctx, Content{Title: "note"})
	tagID, _ := store.UpsertTag(ctx, "ml")

	if err := store.Associate(ctx, contentID, tagID, 0.9); err != nil {
		t.Fatalf("associate: %v", err)
	}
}
