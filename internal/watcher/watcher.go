// Package watcher turns OS filesystem change notifications into scanner
// calls (spec §4.11): fsnotify events are filtered (directories, dotfiles,
// temp-suffix files ignored), debounced per path, move events decomposed
// into remove+add, and add events delayed by a settle window before
// calling Scanner.IndexPaths. Watch scope is persisted in KeyValueMetadata
// and restricted to the output root.
//
// Grounded on the teacher's internal/supervisor single-goroutine-plus-chan
// event loop; fsnotify replaces the teacher's exec.Cmd output pump as the
// event source.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/snapetech/mjrindex/internal/assetpaths"
	"github.com/snapetech/mjrindex/internal/scanner"
	"github.com/snapetech/mjrindex/internal/store"
)

var ignoredSuffixes = []string{".tmp", ".crdownload", ".part", ".lock", ".aria2"}

// Watcher is the C11 service.
type Watcher struct {
	Scanner *scanner.Scanner
	Store   *store.Store
	Root    string // directory watched; persisted to KeyValueMetadata
	Source  assetpaths.Source

	Debounce    time.Duration
	SettleDelay time.Duration

	fsw *fsnotify.Watcher

	mu        sync.Mutex
	debounced map[string]*time.Timer
}

func New(sc *scanner.Scanner, st *store.Store, root string, source assetpaths.Source, debounce, settleDelay time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = time.Second
	}
	if settleDelay <= 0 {
		settleDelay = 500 * time.Millisecond
	}
	return &Watcher{
		Scanner:     sc,
		Store:       st,
		Root:        root,
		Source:      source,
		Debounce:    debounce,
		SettleDelay: settleDelay,
		fsw:         fsw,
		debounced:   map[string]*time.Timer{},
	}, nil
}

// Start recursively registers watches under Root (fsnotify has no native
// recursive mode on Linux, so every subdirectory is added explicitly),
// records the scope in KeyValueMetadata, and runs the event loop until ctx
// is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.Root); err != nil {
		return err
	}
	if w.Store != nil {
		_ = w.Store.SetKV(ctx, "watcher_scope", w.Root)
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort; a single unreadable subdirectory shouldn't abort the whole watch
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				log.Printf("watcher: add %s: %v", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if shouldIgnore(ev.Name) {
		return
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			if err := w.fsw.Add(ev.Name); err != nil {
				log.Printf("watcher: add new dir %s: %v", ev.Name, err)
			}
		}
		return
	}

	switch {
	case ev.Op&fsnotify.Remove != 0:
		w.debounce(ev.Name, func() { w.doRemove(ctx, ev.Name) })
	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports a move as Rename on the source path; the
		// corresponding Create on the destination path arrives separately.
		w.debounce(ev.Name, func() { w.doRemove(ctx, ev.Name) })
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.debounce(ev.Name, func() { w.doAdd(ctx, ev.Name) })
	}
}

// debounce collapses repeat events on the same path within the debounce
// window into one action (spec §4.11).
func (w *Watcher) debounce(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounced[path]; ok {
		t.Stop()
	}
	w.debounced[path] = time.AfterFunc(w.Debounce, func() {
		w.mu.Lock()
		delete(w.debounced, path)
		w.mu.Unlock()
		fn()
	})
}

func (w *Watcher) doRemove(ctx context.Context, path string) {
	jobID := uuid.NewString()
	if err := w.Scanner.RemovePath(ctx, path); err != nil {
		log.Printf("watcher[%s]: remove %s: %v", jobID, path, err)
	}
}

func (w *Watcher) doAdd(ctx context.Context, path string) {
	jobID := uuid.NewString()
	time.Sleep(w.SettleDelay) // allow the writer to finish before reading the file
	if _, err := os.Stat(path); err != nil {
		return // gone again before settle elapsed; nothing to index
	}
	if _, err := w.Scanner.IndexPaths(ctx, []string{path}, w.Root, true, w.Source, ""); err != nil {
		log.Printf("watcher[%s]: index %s: %v", jobID, path, err)
	}
}

func shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	lower := strings.ToLower(base)
	for _, suf := range ignoredSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}
