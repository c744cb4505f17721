// Package updater implements the rating/tag mutation surface (spec §4.10):
// update_asset_rating, update_asset_tags, get_all_tags, plus a background
// tag-writer worker that mirrors both back into the file's own EXIF/XMP
// tags via the tag-reader probe, coalesced per filepath so a burst of UI
// edits costs one external-tool invocation instead of many.
//
// Grounded on the teacher's internal/supervisor goroutine-plus-channel
// worker shape, the same pattern internal/enricher already reuses for its
// drain loop.
package updater

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/snapetech/mjrindex/internal/apperr"
	"github.com/snapetech/mjrindex/internal/extractors"
	"github.com/snapetech/mjrindex/internal/probes"
	"github.com/snapetech/mjrindex/internal/store"
	"github.com/snapetech/mjrindex/internal/writelock"
)

const (
	minRating = 0
	maxRating = 5
)

// Updater is the C10 service.
type Updater struct {
	Store     *store.Store
	TagReader *probes.TagReader
	Lock      *writelock.Lock

	mu      sync.Mutex
	pending map[string]tagJob // keyed by filepath, coalesced
	queue   []string
	running bool
}

type tagJob struct {
	rating int
	tags   []string
}

func New(st *store.Store, tagReader *probes.TagReader, lock *writelock.Lock) *Updater {
	return &Updater{
		Store:     st,
		TagReader: tagReader,
		Lock:      lock,
		pending:   map[string]tagJob{},
	}
}

// UpdateAssetRating clamps rating to [0,5] and upserts the asset_metadata
// row, then enqueues a best-effort tag-writer job.
func (u *Updater) UpdateAssetRating(ctx context.Context, id int64, rating int) error {
	if rating < minRating {
		rating = minRating
	}
	if rating > maxRating {
		rating = maxRating
	}

	u.Lock.Lock()
	err := u.Store.WithTx(ctx, store.TxImmediate, func(ctx context.Context) error {
		_, err := u.Store.Execute(ctx, `
			INSERT INTO asset_metadata (asset_id, rating, tags, tags_text, workflow_hash, has_workflow, has_generation_data, metadata_quality, metadata_raw)
			VALUES (?, ?, '[]', '', '', 0, 0, 'none', '{}')
			ON CONFLICT(asset_id) DO UPDATE SET rating = excluded.rating`,
			id, rating)
		return err
	})
	u.Lock.Unlock()
	if err != nil {
		return err
	}

	path, tags, err := u.currentFilepathAndTags(ctx, id)
	if err != nil || path == "" {
		return nil // row write already succeeded; the mirror job is best-effort
	}
	u.enqueueTagJob(ctx, path, rating, tags)
	return nil
}

// UpdateAssetTags canonicalizes tags and upserts them, then enqueues a
// best-effort tag-writer job.
func (u *Updater) UpdateAssetTags(ctx context.Context, id int64, tags []string) error {
	canon := extractors.CanonicalizeTags(tags)
	tagsJSON := marshalTags(canon)
	tagsText := extractors.TagsText(canon)

	u.Lock.Lock()
	err := u.Store.WithTx(ctx, store.TxImmediate, func(ctx context.Context) error {
		_, err := u.Store.Execute(ctx, `
			INSERT INTO asset_metadata (asset_id, rating, tags, tags_text, workflow_hash, has_workflow, has_generation_data, metadata_quality, metadata_raw)
			VALUES (?, 0, ?, ?, '', 0, 0, 'none', '{}')
			ON CONFLICT(asset_id) DO UPDATE SET tags = excluded.tags, tags_text = excluded.tags_text`,
			id, tagsJSON, tagsText)
		return err
	})
	u.Lock.Unlock()
	if err != nil {
		return err
	}

	path, rating, err := u.currentFilepathAndRating(ctx, id)
	if err != nil || path == "" {
		return nil
	}
	u.enqueueTagJob(ctx, path, rating, canon)
	return nil
}

// GetAllTags returns every tag used by any asset, deduplicated and sorted
// (spec §4.10).
func (u *Updater) GetAllTags(ctx context.Context) ([]string, error) {
	rows, err := u.Store.Query(ctx, `SELECT tags FROM asset_metadata WHERE tags != '[]'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		all = append(all, unmarshalTags(raw)...)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return extractors.SortedUnique(all), nil
}

func (u *Updater) currentFilepathAndTags(ctx context.Context, id int64) (string, []string, error) {
	rows, err := u.Store.Query(ctx, `SELECT a.filepath, COALESCE(am.tags,'[]') FROM assets a LEFT JOIN asset_metadata am ON am.asset_id = a.id WHERE a.id = ?`, id)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", nil, apperr.New(apperr.CodeNotFound, "asset not found")
	}
	var path, raw string
	if err := rows.Scan(&path, &raw); err != nil {
		return "", nil, err
	}
	return path, unmarshalTags(raw), nil
}

func (u *Updater) currentFilepathAndRating(ctx context.Context, id int64) (string, int, error) {
	rows, err := u.Store.Query(ctx, `SELECT a.filepath, COALESCE(am.rating,0) FROM assets a LEFT JOIN asset_metadata am ON am.asset_id = a.id WHERE a.id = ?`, id)
	if err != nil {
		return "", 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", 0, apperr.New(apperr.CodeNotFound, "asset not found")
	}
	var path string
	var rating int
	if err := rows.Scan(&path, &rating); err != nil {
		return "", 0, err
	}
	return path, rating, nil
}

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Pending reports the number of coalesced tag jobs awaiting write-back, for
// tests and orchestrator bookkeeping.
func (u *Updater) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

func (u *Updater) enqueueTagJob(ctx context.Context, path string, rating int, tags []string) {
	if u.TagReader == nil {
		return
	}
	u.mu.Lock()
	_, existed := u.pending[path]
	u.pending[path] = tagJob{rating: rating, tags: tags}
	if !existed {
		u.queue = append(u.queue, path)
	}
	start := !u.running
	if start {
		u.running = true
	}
	u.mu.Unlock()

	if start {
		go u.drainLoop(ctx)
	}
}

func (u *Updater) drainLoop(ctx context.Context) {
	for {
		path, job, ok := u.takeOne()
		if !ok {
			u.mu.Lock()
			if len(u.queue) == 0 {
				u.running = false
				u.mu.Unlock()
				return
			}
			u.mu.Unlock()
			continue
		}
		u.writeBack(ctx, path, job)
	}
}

func (u *Updater) takeOne() (string, tagJob, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.queue) == 0 {
		return "", tagJob{}, false
	}
	path := u.queue[0]
	u.queue = u.queue[1:]
	job, ok := u.pending[path]
	delete(u.pending, path)
	return path, job, ok
}

// writeBack mirrors rating/tags into the file's own tags across the
// XMP/IPTC/Windows namespaces for cross-OS reader compatibility, then
// restores the file's mtime so the write doesn't trip the scanner's
// state-hash change detection. Never raises; failures are logged only
// (spec §4.10: "never raises").
func (u *Updater) writeBack(ctx context.Context, path string, job tagJob) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return
	}
	mtime := info.ModTime()

	fields := map[string]string{
		"XMP-xmp:Rating":              strconv.Itoa(job.rating),
		"XMP-microsoft:RatingPercent": strconv.Itoa(starsToPercent(job.rating)),
	}
	if len(job.tags) > 0 {
		joined := extractors.TagsText(job.tags)
		fields["XMP-dc:Subject"] = joined
		fields["IPTC:Keywords"] = joined
		fields["XPKeywords"] = joined
	}

	if err := u.TagReader.Write(ctx, path, fields, true); err != nil {
		log.Printf("updater: tag write-back for %s: %v", path, err)
		return
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		log.Printf("updater: restore mtime for %s: %v", path, err)
	}
}

func starsToPercent(stars int) int {
	switch stars {
	case 5:
		return 99
	case 4:
		return 75
	case 3:
		return 50
	case 2:
		return 25
	case 1:
		return 1
	default:
		return 0
	}
}

func unmarshalTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}
