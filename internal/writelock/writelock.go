// Package writelock provides the single process-wide write lock that
// serializes writes to assets, asset_metadata, scan_journal, and
// metadata_cache across the scanner, enricher, updater, and watcher (spec
// §4.12, §5: "Writers ... MUST hold the scan lock for the duration of each
// logical batch"). It is deliberately a plain mutex, not a RWMutex — the
// spec calls for single-writer-at-a-time semantics, not reader/writer
// fairness; readers rely on the store's own WAL semantics instead.
//
// Kept as its own tiny leaf package (rather than living on
// internal/orchestrator) so internal/scanner, internal/enricher,
// internal/updater, and internal/searcher can all accept a *Lock without
// importing internal/orchestrator, which in turn imports all four.
package writelock

import "sync"

// Lock is the scan lock. The zero value is usable.
type Lock struct {
	mu sync.Mutex
}

// New returns a ready-to-use Lock.
func New() *Lock { return &Lock{} }

func (l *Lock) Lock() {
	if l == nil {
		return
	}
	l.mu.Lock()
}

func (l *Lock) Unlock() {
	if l == nil {
		return
	}
	l.mu.Unlock()
}
