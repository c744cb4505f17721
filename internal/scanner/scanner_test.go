package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/snapetech/mjrindex/internal/assetpaths"
	"github.com/snapetech/mjrindex/internal/schema"
	"github.com/snapetech/mjrindex/internal/store"
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

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return p
}

func TestScanDirectoryAddsAssetsFast(t *testing.T) {
	st := openTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.png", "not a real png but has the right extension")
	writeFile(t, dir, "b.jpg", "also not real")
	writeFile(t, dir, "ignore.txt", "not indexable")

	sc := New(st, nil)
	ctx := context.Background()
	stats, err := sc.ScanDirectory(ctx, dir, true, false, assetpaths.SourceOutput, "", true, true)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if stats.Added != 2 {
		t.Fatalf("expected 2 added, got %d (scanned=%d errors=%d)", stats.Added, stats.Scanned, stats.Errors)
	}
	if stats.Scanned != 2 {
		t.Fatalf("expected 2 scanned, got %d", stats.Scanned)
	}
	if len(stats.ToEnrich) != 2 {
		t.Fatalf("expected 2 queued for enrichment, got %d", len(stats.ToEnrich))
	}

	rows, err := st.Query(ctx, `SELECT COUNT(*) FROM assets`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			t.Fatalf("scan count: %v", err)
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 asset rows, got %d", count)
	}

	if _, had, err := st.GetKV(ctx, "last_scan_end"); err != nil || !had {
		t.Fatalf("expected last_scan_end to be set: had=%v err=%v", had, err)
	}
}

func TestScanDirectoryIncrementalSkipsUnchanged(t *testing.T) {
	st := openTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.png", "content")

	sc := New(st, nil)
	ctx := context.Background()

	if _, err := sc.ScanDirectory(ctx, dir, true, true, assetpaths.SourceOutput, "", true, false); err != nil {
		t.Fatalf("first scan: %v", err)
	}

	stats, err := sc.ScanDirectory(ctx, dir, true, true, assetpaths.SourceOutput, "", true, false)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if stats.Skipped != 1 {
		t.Fatalf("expected 1 skipped on incremental rescan, got %d (added=%d)", stats.Skipped, stats.Added)
	}
}

func TestIndexPathsDoesNotTouchLastScanEnd(t *testing.T) {
	st := openTestStore(t)
	dir := t.TempDir()
	p := writeFile(t, dir, "a.png", "content")

	sc := New(st, nil)
	ctx := context.Background()
	stats, err := sc.IndexPaths(ctx, []string{p}, dir, false, assetpaths.SourceOutput, "")
	if err != nil {
		t.Fatalf("index paths: %v", err)
	}
	if stats.Added != 1 {
		t.Fatalf("expected 1 added, got %d", stats.Added)
	}

	if _, had, err := st.GetKV(ctx, "last_scan_end"); err != nil || had {
		t.Fatalf("expected last_scan_end to be unset after index_paths: had=%v err=%v", had, err)
	}
}

func TestBatchSizeFor(t *testing.T) {
	cases := []struct {
		scanned int
		want    int
	}{
		{0, batchSizeSmall},
		{100, batchSizeSmall},
		{101, batchSizeMed},
		{1000, batchSizeMed},
		{1001, batchSizeLarge},
		{10000, batchSizeLarge},
		{10001, batchSizeXL},
	}
	for _, c := range cases {
		if got := batchSizeFor(c.scanned); got != c.want {
			t.Errorf("batchSizeFor(%d) = %d, want %d", c.scanned, got, c.want)
		}
	}
}
