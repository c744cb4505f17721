package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapetech/mjrindex/internal/assetpaths"
	"github.com/snapetech/mjrindex/internal/probes"
	"github.com/snapetech/mjrindex/internal/schema"
	"github.com/snapetech/mjrindex/internal/searcher"
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

func newTestOrchestrator(t *testing.T) *Orchestrator {
	st := openTestStore(t)
	return New(st, &probes.Router{}, nil, nil, Config{ExtractConcurrency: 2})
}

func TestNewWiresAllComponents(t *testing.T) {
	o := newTestOrchestrator(t)
	if o.Scanner == nil || o.Enricher == nil || o.Searcher == nil || o.Updater == nil {
		t.Fatalf("expected all components wired")
	}
	if o.Scanner.Lock != o.Lock {
		t.Fatalf("expected scanner to share the orchestrator's lock")
	}
	if o.Searcher.Lock != o.Lock {
		t.Fatalf("expected searcher to share the orchestrator's lock")
	}
}

func TestTryKickoffScanThrottles(t *testing.T) {
	o := newTestOrchestrator(t)
	if !o.TryKickoffScan(assetpaths.SourceOutput, "", "/data/output", 200*time.Millisecond) {
		t.Fatalf("expected first kickoff to be allowed")
	}
	if o.TryKickoffScan(assetpaths.SourceOutput, "", "/data/output", 200*time.Millisecond) {
		t.Fatalf("expected immediate second kickoff to be throttled")
	}
	time.Sleep(250 * time.Millisecond)
	if !o.TryKickoffScan(assetpaths.SourceOutput, "", "/data/output", 200*time.Millisecond) {
		t.Fatalf("expected kickoff to be allowed again after the throttle interval")
	}
}

func TestTryKickoffScanIndependentPerKey(t *testing.T) {
	o := newTestOrchestrator(t)
	if !o.TryKickoffScan(assetpaths.SourceOutput, "", "/data/output/a", time.Second) {
		t.Fatalf("expected kickoff for dir a")
	}
	if !o.TryKickoffScan(assetpaths.SourceOutput, "", "/data/output/b", time.Second) {
		t.Fatalf("expected independent kickoff for dir b")
	}
}

func TestSearchAndEnqueueEnrichCountMetrics(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Search(ctx, "*", 10, 0, searcher.Filters{}, false); err != nil {
		t.Fatalf("search: %v", err)
	}
	o.EnqueueEnrich(ctx, nil) // no-op, must not panic or count
	o.EnqueueEnrich(ctx, []int64{1})

	deadline := time.Now().Add(time.Second)
	for o.Enricher.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	counter := func(name string) float64 {
		mfs, err := o.Metrics.Registry.Gather()
		if err != nil {
			t.Fatalf("gather: %v", err)
		}
		for _, mf := range mfs {
			if mf.GetName() == name {
				return mf.GetMetric()[0].GetCounter().GetValue()
			}
		}
		return 0
	}
	if got := counter("mjrindex_searches_total"); got != 1 {
		t.Fatalf("searches_total = %v, want 1", got)
	}
	if got := counter("mjrindex_enrich_batches_total"); got != 1 {
		t.Fatalf("enrich_batches_total = %v, want 1", got)
	}
}

func TestRunScanWithCancellationReturnsResult(t *testing.T) {
	o := newTestOrchestrator(t)
	err := o.RunScanWithCancellation(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
