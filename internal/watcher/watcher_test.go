package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapetech/mjrindex/internal/assetpaths"
	"github.com/snapetech/mjrindex/internal/scanner"
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

func TestShouldIgnore(t *testing.T) {
	cases := map[string]bool{
		"/root/out/a.png":          false,
		"/root/out/.hidden.png":    true,
		"/root/out/partial.tmp":    true,
		"/root/out/dl.crdownload":  true,
		"/root/out/lockfile.lock":  true,
		"/root/out/big.aria2":     true,
		"/root/out/sub/image.jpg": false,
	}
	for path, want := range cases {
		if got := shouldIgnore(path); got != want {
			t.Errorf("shouldIgnore(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWatcherIndexesNewFile(t *testing.T) {
	st := openTestStore(t)
	dir := t.TempDir()
	sc := scanner.New(st, nil)
	sc.Lock = writelock.New()

	w, err := New(sc, st, dir, assetpaths.SourceOutput, 50*time.Millisecond, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	path := filepath.Join(dir, "new.png")
	if err := os.WriteFile(path, []byte("fake png"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rows, err := st.Query(ctx, `SELECT COUNT(*) FROM assets WHERE filepath = ?`, path)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		var n int
		if rows.Next() {
			_ = rows.Scan(&n)
		}
		rows.Close()
		if n > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected watcher to index %s within deadline", path)
}
