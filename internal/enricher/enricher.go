// Package enricher runs the background metadata fill-in for assets that
// were indexed in "fast" mode (spec §4.8). A fast scan returns the ids of
// the rows it added in scanner.Stats.ToEnrich and the caller enqueues them
// here; this worker drains them in bounded chunks, re-probing
// each file's metadata and writing width/height/duration plus the
// metadata flags and metadata_raw blob under the shared scan write lock.
//
// Grounded on the teacher's internal/supervisor.Run goroutine-plus-channel
// shape (a single worker goroutine woken by a signal channel, draining
// until idle) rather than a fixed worker pool — enrichment is I/O bound
// on external probes, and a single drain loop keeps ordering simple and
// the write lock uncontended.
package enricher

import (
	"context"
	"log"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/snapetech/mjrindex/internal/metadata"
	"github.com/snapetech/mjrindex/internal/store"
	"github.com/snapetech/mjrindex/internal/writelock"
)

const chunkSize = 64

// Enricher is the C8 background worker.
type Enricher struct {
	Store    *store.Store
	Metadata *metadata.Service
	Lock     *writelock.Lock

	mu      sync.Mutex
	queue   []int64
	queued  map[int64]bool
	running bool
	wake    chan struct{}
}

func New(st *store.Store, md *metadata.Service, lock *writelock.Lock) *Enricher {
	return &Enricher{
		Store:    st,
		Metadata: md,
		Lock:     lock,
		queued:   map[int64]bool{},
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue adds asset ids to the work queue, deduplicated, and starts the
// drain goroutine if it isn't already running.
func (e *Enricher) Enqueue(ctx context.Context, ids []int64) {
	if len(ids) == 0 {
		return
	}
	e.mu.Lock()
	added := 0
	for _, id := range ids {
		if e.queued[id] {
			continue
		}
		e.queued[id] = true
		e.queue = append(e.queue, id)
		added++
	}
	start := added > 0 && !e.running
	if start {
		e.running = true
	}
	e.mu.Unlock()

	if start {
		go e.drainLoop(ctx)
	} else if added > 0 {
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
}

// Len reports how many asset ids are currently queued, for tests and
// orchestrator bookkeeping.
func (e *Enricher) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Enricher) drainLoop(ctx context.Context) {
	for {
		batch := e.takeChunk()
		if len(batch) == 0 {
			e.mu.Lock()
			if len(e.queue) == 0 {
				e.running = false
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			continue
		}
		e.processBatch(ctx, batch)
		if ctx.Err() != nil {
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			return
		}
	}
}

func (e *Enricher) takeChunk() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.queue)
	if n == 0 {
		return nil
	}
	if n > chunkSize {
		n = chunkSize
	}
	batch := make([]int64, n)
	copy(batch, e.queue[:n])
	e.queue = e.queue[n:]
	for _, id := range batch {
		delete(e.queued, id)
	}
	return batch
}

func (e *Enricher) processBatch(ctx context.Context, ids []int64) {
	paths, err := e.lookupPaths(ctx, ids)
	if err != nil {
		log.Printf("enricher: lookup paths for %d ids: %v", len(ids), err)
		return
	}
	if len(paths) == 0 {
		return
	}

	plainPaths := make([]string, 0, len(paths))
	for _, p := range paths {
		plainPaths = append(plainPaths, p)
	}
	results := e.Metadata.GetMetadataBatch(ctx, plainPaths)

	var bytesSeen int64
	written := 0
	e.Lock.Lock()
	for id, path := range paths {
		outcome := results[path]
		if outcome == nil {
			continue
		}
		if err := e.writeOutcome(ctx, id, path, outcome); err != nil {
			log.Printf("enricher: write asset %d (%s): %v", id, path, err)
			continue
		}
		written++
		if outcome.Record != nil {
			bytesSeen += sizeOf(outcome.Record.Width, outcome.Record.Height)
		}
	}
	e.Lock.Unlock()

	log.Printf("enricher: enriched %d/%d assets (%s)", written, len(ids), humanize.Comma(bytesSeen))
}

func sizeOf(w, h *int) int64 {
	if w == nil || h == nil {
		return 0
	}
	return int64(*w) * int64(*h)
}

func (e *Enricher) lookupPaths(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := e.Store.Query(ctx, `SELECT id, filepath FROM assets WHERE id IN (`+join(placeholders)+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		out[id] = path
	}
	return out, rows.Err()
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
