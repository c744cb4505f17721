// Package customroots manages the small JSON-backed registry of custom
// scan roots persisted at <output_root>/_mjr_index/custom_roots.json
// (spec §3, §6). The load/merge/atomic-save shape mirrors
// internal/dvbdb.Load/Save from the teacher: start from whatever's on disk,
// apply mutations in memory, and persist via temp-file-then-rename.
package customroots

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snapetech/mjrindex/internal/assetpaths"
)

// Root is one registered custom scan root.
type Root struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

type document struct {
	Version int    `json:"version"`
	Roots   []Root `json:"roots"`
}

// Registry is the in-memory, mutex-guarded view of custom_roots.json.
type Registry struct {
	mu   sync.RWMutex
	path string
	doc  document
}

// Load reads the registry from path, returning an empty registry (version 1,
// no roots) if the file does not yet exist.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, doc: document{Version: 1}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("customroots: read %s: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("customroots: parse %s: %w", path, err)
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	r.doc = doc
	return r, nil
}

// Save persists the registry atomically (temp file + rename), matching
// dvbdb.Save's crash-safety pattern.
func (r *Registry) Save() error {
	r.mu.RLock()
	data, err := json.MarshalIndent(r.doc, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("customroots: marshal: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("customroots: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".custom_roots-*.json.tmp")
	if err != nil {
		return fmt.Errorf("customroots: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return writeErr
		}
		return closeErr
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("customroots: rename: %w", err)
	}
	return nil
}

// Add canonicalizes path, registers a new Root with a fresh id, and returns
// it. Caller must call Save() to persist.
func (r *Registry) Add(path, label string) (Root, error) {
	canon, err := assetpaths.Canonicalize(path)
	if err != nil {
		return Root{}, fmt.Errorf("customroots: canonicalize %s: %w", path, err)
	}
	root := Root{
		ID:        uuid.NewString(),
		Path:      canon,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.doc.Roots = append(r.doc.Roots, root)
	r.mu.Unlock()
	return root, nil
}

// Remove deletes the root with the given id. Caller must call Save().
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, root := range r.doc.Roots {
		if root.ID == id {
			r.doc.Roots = append(r.doc.Roots[:i], r.doc.Roots[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a snapshot of all registered roots.
func (r *Registry) List() []Root {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Root, len(r.doc.Roots))
	copy(out, r.doc.Roots)
	return out
}

// Get resolves a root by id.
func (r *Registry) Get(id string) (Root, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, root := range r.doc.Roots {
		if root.ID == id {
			return root, true
		}
	}
	return Root{}, false
}

// IsRegistered reports whether id resolves to a known root (used to
// validate the source=custom ⇒ root_id invariant from spec §3).
func (r *Registry) IsRegistered(id string) bool {
	_, ok := r.Get(id)
	return ok
}
