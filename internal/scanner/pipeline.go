package scanner

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/snapetech/mjrindex/internal/assetpaths"
	"github.com/snapetech/mjrindex/internal/metadata"
	"github.com/snapetech/mjrindex/internal/statehash"
	"github.com/snapetech/mjrindex/internal/store"
)

type action int

const (
	actionSkippedJournal action = iota
	actionSkipped
	actionAdd
	actionUpdate
	actionRefresh
	actionError
)

// planEntry is one file's decision plus whatever data the write phase needs.
type planEntry struct {
	candidate walkCandidate
	action    action
	err       error

	size      int64
	mtimeSec  int64
	stateHash string

	existingAssetID int64
	hasAssetMetaRow bool

	outcome *metadata.Outcome
}

// pipeline processes one scanner.run invocation's state.
type pipeline struct {
	s                  *Scanner
	source             assetpaths.Source
	rootID             string
	incremental        bool
	fast               bool
	backgroundMetadata bool
}

func (p *pipeline) run(ctx context.Context, batch []walkCandidate, stats *Stats) {
	stats.Scanned += len(batch)

	paths := make([]string, len(batch))
	for i, c := range batch {
		paths[i] = c.path
	}

	journal, err := p.prefetchJournal(ctx, paths)
	if err != nil {
		p.failAll(batch, stats)
		return
	}
	assets, err := p.prefetchAssets(ctx, paths)
	if err != nil {
		p.failAll(batch, stats)
		return
	}
	cache, err := p.prefetchCache(ctx, paths)
	if err != nil {
		p.failAll(batch, stats)
		return
	}
	assetMetaIDs, err := p.prefetchAssetMetadataIDs(ctx, assets)
	if err != nil {
		p.failAll(batch, stats)
		return
	}

	plan := make([]*planEntry, 0, len(batch))
	var needsMetadata []string
	needsMetadataIdx := map[string]int{}

	for _, c := range batch {
		entry := &planEntry{candidate: c}
		info, statErr := statWithRetry(c.path)
		if statErr != nil {
			entry.action = actionError
			entry.err = statErr
			plan = append(plan, entry)
			continue
		}
		entry.size = info.Size()
		entry.mtimeSec = info.ModTime().Unix()
		entry.stateHash = statehash.Compute(c.path, info.ModTime().UnixNano(), entry.size)

		if p.incremental {
			if j, ok := journal[c.path]; ok && j.StateHash == entry.stateHash {
				entry.action = actionSkippedJournal
				plan = append(plan, entry)
				continue
			}
		}

		if a, ok := assets[c.path]; ok {
			entry.existingAssetID = a.ID
			entry.hasAssetMetaRow = assetMetaIDs[a.ID]
			if a.MTime == entry.mtimeSec {
				if cr, ok := cache[c.path]; ok && cr.StateHash == entry.stateHash {
					entry.action = actionRefresh
					plan = append(plan, entry)
					continue
				}
				if entry.hasAssetMetaRow {
					entry.action = actionSkipped
					plan = append(plan, entry)
					continue
				}
			} else {
				entry.action = actionUpdate
			}
		} else {
			entry.action = actionAdd
		}

		if p.fast {
			plan = append(plan, entry)
			continue
		}
		needsMetadataIdx[c.path] = len(plan)
		needsMetadata = append(needsMetadata, c.path)
		plan = append(plan, entry)
	}

	if len(needsMetadata) > 0 && p.s.Metadata != nil {
		results := p.s.Metadata.GetMetadataBatch(ctx, needsMetadata)
		for path, idx := range needsMetadataIdx {
			plan[idx].outcome = results[path]
		}
	}

	p.s.Lock.Lock()
	defer p.s.Lock.Unlock()

	if err := p.writeBatch(ctx, plan); err != nil {
		p.writePerEntry(ctx, plan, stats)
	} else {
		tally(plan, stats, p.fast, p.backgroundMetadata)
	}
}

func tally(plan []*planEntry, stats *Stats, fast, background bool) {
	for _, e := range plan {
		switch e.action {
		case actionAdd:
			stats.Added++
			if fast && background {
				stats.ToEnrich = append(stats.ToEnrich, e.existingAssetID)
			}
		case actionUpdate, actionRefresh:
			stats.Updated++
		case actionSkipped, actionSkippedJournal:
			stats.Skipped++
		case actionError:
			stats.Errors++
		}
	}
}

func (p *pipeline) failAll(batch []walkCandidate, stats *Stats) {
	stats.Errors += len(batch)
}

// statWithRetry stats path up to statRetryAttempts times with a short
// backoff, absorbing transient OS errors (spec §4.7 step 2).
func statWithRetry(path string) (os.FileInfo, error) {
	var lastErr error
	for attempt := 0; attempt < statRetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 20 * time.Millisecond)
		}
		info, err := os.Stat(path)
		if err == nil {
			return info, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *pipeline) prefetchJournal(ctx context.Context, paths []string) (map[string]store.ScanJournalRow, error) {
	out := map[string]store.ScanJournalRow{}
	if len(paths) == 0 {
		return out, nil
	}
	query, args := inQuery(`SELECT filepath, dir_path, state_hash, mtime, size FROM scan_journal WHERE filepath IN (%s)`, paths)
	rows, err := p.s.Store.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var j store.ScanJournalRow
		if err := rows.Scan(&j.Filepath, &j.DirPath, &j.StateHash, &j.MTime, &j.Size); err != nil {
			return nil, err
		}
		out[j.Filepath] = j
	}
	return out, nil
}

func (p *pipeline) prefetchAssets(ctx context.Context, paths []string) (map[string]store.Asset, error) {
	out := map[string]store.Asset{}
	if len(paths) == 0 {
		return out, nil
	}
	query, args := inQuery(`SELECT id, filepath, mtime FROM assets WHERE filepath IN (%s) AND source = ?`, paths)
	args = append(args, string(p.source))
	rows, err := p.s.Store.Query(ctx, query+` `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a store.Asset
		if err := rows.Scan(&a.ID, &a.Filepath, &a.MTime); err != nil {
			return nil, err
		}
		out[a.Filepath] = a
	}
	return out, nil
}

func (p *pipeline) prefetchCache(ctx context.Context, paths []string) (map[string]store.MetadataCacheRow, error) {
	out := map[string]store.MetadataCacheRow{}
	if len(paths) == 0 {
		return out, nil
	}
	query, args := inQuery(`SELECT filepath, state_hash, metadata_hash, metadata_raw FROM metadata_cache WHERE filepath IN (%s)`, paths)
	rows, err := p.s.Store.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c store.MetadataCacheRow
		if err := rows.Scan(&c.Filepath, &c.StateHash, &c.MetadataHash, &c.MetadataRaw); err != nil {
			return nil, err
		}
		out[c.Filepath] = c
	}
	return out, nil
}

func (p *pipeline) prefetchAssetMetadataIDs(ctx context.Context, assets map[string]store.Asset) (map[int64]bool, error) {
	out := map[int64]bool{}
	if len(assets) == 0 {
		return out, nil
	}
	ids := make([]any, 0, len(assets))
	placeholders := make([]string, 0, len(assets))
	for _, a := range assets {
		ids = append(ids, a.ID)
		placeholders = append(placeholders, "?")
	}
	query := `SELECT asset_id FROM asset_metadata WHERE asset_id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := p.s.Store.Query(ctx, query, ids...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, nil
}

func inQuery(template string, paths []string) (string, []any) {
	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = "?"
		args[i] = p
	}
	return sprintfIn(template, placeholders), args
}

func sprintfIn(template string, placeholders []string) string {
	return replaceOnce(template, "%s", strings.Join(placeholders, ","))
}

func replaceOnce(s, old, new string) string {
	idx := strings.Index(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

// recordToJSON serializes whatever of an extraction outcome is present into
// the opaque metadata_raw document.
func recordToJSON(o *metadata.Outcome) string {
	if o == nil {
		return "{}"
	}
	payload := map[string]any{}
	if o.Record != nil {
		payload["exif"] = o.Record.Exif
		payload["ffprobe"] = o.Record.FFProbe
		payload["workflow"] = o.Record.Workflow
		payload["prompt"] = o.Record.Prompt
		payload["parameters"] = o.Record.Parameters
	}
	if o.GenInfo != nil {
		payload["geninfo"] = o.GenInfo
	}
	if o.GenInfoStatus != nil {
		payload["geninfo_status"] = o.GenInfoStatus
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func hasWorkflowOrPrompt(o *metadata.Outcome) (bool, bool) {
	if o == nil || o.Record == nil {
		return false, false
	}
	return o.Record.Workflow != nil, (o.GenInfo != nil || o.GenInfoStatus != nil)
}

