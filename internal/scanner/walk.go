package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/snapetech/mjrindex/internal/assetpaths"
)

// walkCandidate is one filesystem entry the walker decided is worth
// indexing (extension maps to a known Kind).
type walkCandidate struct {
	path string
	kind assetpaths.Kind
	ext  string
}

// walkDirectory runs on its own goroutine, pushing indexable files into out
// until the tree is exhausted, ctx is cancelled, or stop is closed. The
// walker never runs concurrently across directories — spec §4.7 and
// §9 call for a single dedicated walker to keep the enumerator's lifecycle
// simple and avoid saturating the filesystem.
func walkDirectory(ctx context.Context, root string, recursive bool, out chan<- walkCandidate, stop <-chan struct{}) {
	defer close(out)

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return filepath.SkipAll
		default:
		}
		if err != nil {
			return nil // best-effort: skip unreadable entries, keep walking
		}
		if d.IsDir() {
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		kind := assetpaths.KindOfExt(ext)
		if kind == assetpaths.KindUnknown {
			return nil
		}
		select {
		case out <- walkCandidate{path: path, kind: kind, ext: ext}:
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return filepath.SkipAll
		}
		return nil
	})
}

// drainBatches reads from in, grouping items into batches whose size grows
// per batchSizeFor as more items are consumed overall, and sends each batch
// to the yield function. It stops early if yield returns false.
func drainBatches(in <-chan walkCandidate, yield func(batch []walkCandidate) bool) {
	scannedSoFar := 0
	for {
		size := batchSizeFor(scannedSoFar)
		batch := make([]walkCandidate, 0, size)
		for item := range in {
			batch = append(batch, item)
			if len(batch) >= size {
				break
			}
		}
		if len(batch) == 0 {
			return
		}
		scannedSoFar += len(batch)
		if !yield(batch) {
			return
		}
		if len(batch) < size {
			return // channel closed mid-batch: last batch
		}
	}
}
