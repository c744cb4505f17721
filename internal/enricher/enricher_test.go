package enricher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapetech/mjrindex/internal/metadata"
	"github.com/snapetech/mjrindex/internal/probes"
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

func TestEnqueueDedupesAndDrains(t *testing.T) {
	st := openTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	if err := os.WriteFile(path, []byte("fake png bytes, PNG:Parameters absent"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	id := insertBareAsset(t, st, path)

	md := metadata.NewService(&probes.Router{}, nil, nil, metadata.Options{ExtractConcurrency: 2})
	e := New(st, md, writelock.New())

	e.Enqueue(context.Background(), []int64{id, id, id})

	// Ids leave the queue before their batch is written, so wait for the
	// drain loop itself to go idle, not just for the queue to empty.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		busy := len(e.queue) > 0 || e.running
		e.mu.Unlock()
		if !busy {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := e.Len(); n != 0 {
		t.Fatalf("expected queue drained, still have %d", n)
	}

	rows, err := st.Query(context.Background(), `SELECT metadata_quality FROM asset_metadata WHERE asset_id = ?`, id)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatalf("expected asset_metadata row to exist after enrichment")
	}
}

func TestEnqueueEmptyIsNoop(t *testing.T) {
	st := openTestStore(t)
	md := metadata.NewService(&probes.Router{}, nil, nil, metadata.Options{})
	e := New(st, md, writelock.New())
	e.Enqueue(context.Background(), nil)
	if e.Len() != 0 {
		t.Fatalf("expected no queued work")
	}
}
