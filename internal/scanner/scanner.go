package scanner

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/snapetech/mjrindex/internal/assetpaths"
	"github.com/snapetech/mjrindex/internal/metadata"
	"github.com/snapetech/mjrindex/internal/store"
	"github.com/snapetech/mjrindex/internal/writelock"
)

// Scanner is the C7 service.
type Scanner struct {
	Store    *store.Store
	Metadata *metadata.Service

	// Lock is the shared scan write lock (spec §4.12, §5): when set (by the
	// orchestrator wiring scanner/enricher/updater/watcher together), every
	// batch write and single-path remove holds it for the duration of the
	// write. Nil in standalone/unit-test use, where no concurrent writer
	// exists to serialize against.
	Lock *writelock.Lock
}

func New(st *store.Store, md *metadata.Service) *Scanner {
	return &Scanner{Store: st, Metadata: md}
}

// ScanDirectory walks directory and indexes every file under it whose
// extension maps to a known kind (spec §4.7). fast skips metadata
// extraction entirely (technical fields only, queued for the enricher);
// backgroundMetadata controls whether the ids of the rows a fast scan adds
// are appended to Stats.ToEnrich for the caller to hand to the enricher.
func (s *Scanner) ScanDirectory(ctx context.Context, directory string, recursive, incremental bool, source assetpaths.Source, rootID string, fast, backgroundMetadata bool) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	ch := make(chan walkCandidate, channelCapacity())
	stop := make(chan struct{})
	go walkDirectory(ctx, directory, recursive, ch, stop)

	p := &pipeline{s: s, source: source, rootID: rootID, incremental: incremental, fast: fast, backgroundMetadata: backgroundMetadata}

	drainBatches(ch, func(batch []walkCandidate) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		p.run(ctx, batch, stats)
		return true
	})

	stats.EndTime = time.Now()
	if err := s.Store.SetKV(ctx, "last_scan_end", stats.EndTime.Format(time.RFC3339)); err != nil {
		return stats, err
	}
	return stats, nil
}

// IndexPaths indexes an explicit path list, without walking the filesystem
// and without touching last_scan_end (spec §4.7). Each path is indexed as
// given; baseDir is not used to resolve or filter them.
func (s *Scanner) IndexPaths(ctx context.Context, paths []string, baseDir string, incremental bool, source assetpaths.Source, rootID string) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	candidates := make([]walkCandidate, 0, len(paths))
	for _, p := range paths {
		ext := strings.ToLower(filepath.Ext(p))
		kind := assetpaths.KindOfExt(ext)
		if kind == assetpaths.KindUnknown {
			continue
		}
		candidates = append(candidates, walkCandidate{path: p, kind: kind, ext: ext})
	}

	p := &pipeline{s: s, source: source, rootID: rootID, incremental: incremental, fast: false, backgroundMetadata: false}

	for start := 0; start < len(candidates); {
		size := batchSizeFor(start)
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}
		p.run(ctx, candidates[start:end], stats)
		start = end
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// RemovePath deletes the asset row (and cascading asset_metadata) for a
// single filepath, plus its journal/cache rows, inside one IMMEDIATE
// transaction. Used by the watcher's remove action (spec §4.11) — the
// watcher itself never writes, it only calls through to the scanner.
func (s *Scanner) RemovePath(ctx context.Context, path string) error {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	return s.Store.WithTx(ctx, store.TxImmediate, func(ctx context.Context) error {
		if _, err := s.Store.Execute(ctx, `DELETE FROM assets WHERE filepath = ?`, path); err != nil {
			return err
		}
		if _, err := s.Store.Execute(ctx, `DELETE FROM scan_journal WHERE filepath = ?`, path); err != nil {
			return err
		}
		if _, err := s.Store.Execute(ctx, `DELETE FROM metadata_cache WHERE filepath = ?`, path); err != nil {
			return err
		}
		return nil
	})
}
