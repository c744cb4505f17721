package updater

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapetech/mjrindex/internal/schema"
	"github.com/snapetech/mjrindex/internal/store"
	"github.com/snapetech/mjrindex/internal/writelock"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath, store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := schema.NewMigrator(st)
	ctx := context.Background()
	if err := m.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	if err := m.EnsureIndexesAndTriggers(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return st
}

func insertBareAsset(t *testing.T, st *store.Store, path string) int64 {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := st.Execute(context.Background(), `
		INSERT INTO assets (filepath, filename, subfolder, source, kind, ext, size, mtime, indexed_at)
		VALUES (?, ?, '', 'output', 'image', '.png', 10, 1000, ?)`, path, filepath.Base(path), now)
	if err != nil {
		t.Fatalf("insert bare asset: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}

func TestUpdateAssetRatingClampsAndPersists(t *testing.T) {
	st := openTestStore(t)
	id := insertBareAsset(t, st, filepath.Join(t.TempDir(), "a.png"))
	u := New(st, nil, writelock.New())
	ctx := context.Background()

	if err := u.UpdateAssetRating(ctx, id, 9); err != nil {
		t.Fatalf("update rating: %v", err)
	}
	var rating int
	rows, err := st.Query(ctx, `SELECT rating FROM asset_metadata WHERE asset_id = ?`, id)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatalf("expected asset_metadata row")
	}
	if err := rows.Scan(&rating); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if rating != maxRating {
		t.Fatalf("expected clamped rating %d, got %d", maxRating, rating)
	}
}

func TestUpdateAssetTagsCanonicalizes(t *testing.T) {
	st := openTestStore(t)
	id := insertBareAsset(t, st, filepath.Join(t.TempDir(), "b.png"))
	u := New(st, nil, writelock.New())
	ctx := context.Background()

	if err := u.UpdateAssetTags(ctx, id, []string{" Cat ", "cat", "dog", ""}); err != nil {
		t.Fatalf("update tags: %v", err)
	}

	all, err := u.GetAllTags(ctx)
	if err != nil {
		t.Fatalf("get all tags: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 unique tags, got %v", all)
	}
}

func TestUpdateAssetRatingUnknownAssetFails(t *testing.T) {
	st := openTestStore(t)
	u := New(st, nil, writelock.New())
	if err := u.UpdateAssetRating(context.Background(), 999, 3); err == nil {
		t.Fatalf("expected foreign key error for unindexed asset id")
	}
}
