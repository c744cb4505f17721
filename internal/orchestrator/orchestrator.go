// Package orchestrator wires together the scanner, enricher, searcher,
// updater and watcher around one shared scan write lock, and hosts the
// concerns that only make sense at the whole-engine level: background-scan
// throttling per (source, root_id, directory), a bounded pending-jobs map,
// cancellation propagation, and process-local metrics (spec §4.12, §5).
//
// Grounded on the teacher's cmd/plex-tuner/main.go wiring style (flat
// construction, no DI container) and internal/supervisor's
// cancellation-via-context propagation.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/snapetech/mjrindex/internal/assetpaths"
	"github.com/snapetech/mjrindex/internal/enricher"
	"github.com/snapetech/mjrindex/internal/metadata"
	"github.com/snapetech/mjrindex/internal/probes"
	"github.com/snapetech/mjrindex/internal/scanner"
	"github.com/snapetech/mjrindex/internal/searcher"
	"github.com/snapetech/mjrindex/internal/store"
	"github.com/snapetech/mjrindex/internal/updater"
	"github.com/snapetech/mjrindex/internal/watcher"
	"github.com/snapetech/mjrindex/internal/writelock"
)

const (
	maxPendingJobs  = 64
	defaultThrottle = 10 * time.Second
)

// Metrics are the process-local counters/gauges the orchestrator exposes.
// No HTTP exposition is wired up here (spec §1: transport is out of
// scope) — the Registry itself is handed to the embedding caller, which
// decides whether and how to serve /metrics.
type Metrics struct {
	Registry    *prometheus.Registry
	ScansTotal  prometheus.Counter
	SearchTotal prometheus.Counter
	EnrichTotal prometheus.Counter
	PendingJobs prometheus.Gauge
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry:    reg,
		ScansTotal:  prometheus.NewCounter(prometheus.CounterOpts{Name: "mjrindex_scans_total", Help: "Total scan_directory/index_paths calls."}),
		SearchTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "mjrindex_searches_total", Help: "Total search/search_scoped calls."}),
		EnrichTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "mjrindex_enrich_batches_total", Help: "Total non-empty id batches handed to the enricher."}),
		PendingJobs: prometheus.NewGauge(prometheus.GaugeOpts{Name: "mjrindex_pending_scan_jobs", Help: "Background scan jobs currently queued."}),
	}
	reg.MustRegister(m.ScansTotal, m.SearchTotal, m.EnrichTotal, m.PendingJobs)
	return m
}

// Orchestrator is the C12 service.
type Orchestrator struct {
	Store    *store.Store
	Scanner  *scanner.Scanner
	Enricher *enricher.Enricher
	Searcher *searcher.Searcher
	Updater  *updater.Updater
	Metadata *metadata.Service
	Lock     *writelock.Lock
	Metrics  *Metrics

	watchers     []*watcher.Watcher
	scanThrottle time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	pending  map[string]struct{}
}

// Config bundles what Orchestrator needs beyond the store itself. Probe
// timeouts are baked into the TagReader/MediaProbe passed to New, not
// configured here.
type Config struct {
	ExtractConcurrency int64
	ScanThrottle       time.Duration
}

func New(st *store.Store, router *probes.Router, tagReader *probes.TagReader, mediaProbe *probes.MediaProbe, cfg Config) *Orchestrator {
	lock := writelock.New()
	md := metadata.NewService(router, tagReader, mediaProbe, metadata.Options{ExtractConcurrency: cfg.ExtractConcurrency})

	sc := scanner.New(st, md)
	sc.Lock = lock

	o := &Orchestrator{
		Store:        st,
		Scanner:      sc,
		Enricher:     enricher.New(st, md, lock),
		Searcher:     searcher.New(st, md),
		Updater:      updater.New(st, tagReader, lock),
		Metadata:     md,
		Lock:         lock,
		Metrics:      newMetrics(),
		scanThrottle: cfg.ScanThrottle,
		limiters:     map[string]*rate.Limiter{},
		pending:      map[string]struct{}{},
	}
	o.Searcher.Lock = lock
	return o
}

// Search runs a query through the shared Searcher and counts it.
func (o *Orchestrator) Search(ctx context.Context, query string, limit, offset int, filters searcher.Filters, includeTotal bool) (*searcher.Page, error) {
	o.Metrics.SearchTotal.Inc()
	return o.Searcher.Search(ctx, query, limit, offset, filters, includeTotal)
}

// EnqueueEnrich hands asset ids to the shared Enricher and counts the call.
func (o *Orchestrator) EnqueueEnrich(ctx context.Context, ids []int64) {
	if len(ids) == 0 {
		return
	}
	o.Metrics.EnrichTotal.Inc()
	o.Enricher.Enqueue(ctx, ids)
}

// AddWatcher registers a watcher on root/source, sharing this
// orchestrator's scanner and lock, and starts it.
func (o *Orchestrator) AddWatcher(ctx context.Context, root string, source assetpaths.Source, debounce, settleDelay time.Duration) error {
	w, err := watcher.New(o.Scanner, o.Store, root, source, debounce, settleDelay)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	o.watchers = append(o.watchers, w)
	return nil
}

// Close tears down every watcher this orchestrator started.
func (o *Orchestrator) Close() error {
	var firstErr error
	for _, w := range o.watchers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TryKickoffScan reports whether a background scan of (source, rootID,
// directory) may start now, throttling repeats to at most one per
// ScanThrottle interval and bounding the number of distinct keys tracked
// to maxPendingJobs (spec §4.12: "kick-off of background scans is
// coalesced ... per-pending jobs map bounded to ~64 entries").
func (o *Orchestrator) TryKickoffScan(source assetpaths.Source, rootID, directory string, throttle time.Duration) bool {
	if throttle <= 0 {
		throttle = o.scanThrottle
	}
	if throttle <= 0 {
		throttle = defaultThrottle
	}
	key := string(source) + "|" + rootID + "|" + directory

	o.mu.Lock()
	defer o.mu.Unlock()

	lim, ok := o.limiters[key]
	if !ok {
		if len(o.limiters) >= maxPendingJobs {
			o.evictOldestLocked()
		}
		lim = rate.NewLimiter(rate.Every(throttle), 1)
		o.limiters[key] = lim
	}
	if !o.markPendingLocked(key) {
		return false
	}
	allow := lim.Allow()
	o.clearPendingLocked(key)
	if allow {
		o.Metrics.ScansTotal.Inc()
	}
	return allow
}

func (o *Orchestrator) markPendingLocked(key string) bool {
	if _, busy := o.pending[key]; busy {
		return false
	}
	o.pending[key] = struct{}{}
	o.Metrics.PendingJobs.Set(float64(len(o.pending)))
	return true
}

func (o *Orchestrator) clearPendingLocked(key string) {
	delete(o.pending, key)
	o.Metrics.PendingJobs.Set(float64(len(o.pending)))
}

// evictOldestLocked drops one throttle key once the bound is hit (whichever
// key map iteration yields first, not necessarily the oldest), so a
// long-running process watching many directories doesn't grow this map
// without limit (spec §4.12: "bounded to ~64 entries").
func (o *Orchestrator) evictOldestLocked() {
	for key := range o.limiters {
		delete(o.limiters, key)
		return
	}
}

// RunScanWithCancellation wraps a scan call with a bounded drain timeout:
// if ctx is canceled mid-scan, the walk already stops (the scanner selects
// on ctx.Done internally); this just guarantees the caller doesn't hang
// past drainTimeout waiting for a slow final batch to flush (spec §4.12:
// "the consumer drains with a bounded timeout").
func (o *Orchestrator) RunScanWithCancellation(parent context.Context, drainTimeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-parent.Done():
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(drainTimeout):
			log.Printf("orchestrator: scan did not drain within %s after cancellation", drainTimeout)
			return parent.Err()
		}
	}
}
