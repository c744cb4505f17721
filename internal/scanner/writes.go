package scanner

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/snapetech/mjrindex/internal/apperr"
	"github.com/snapetech/mjrindex/internal/extractors"
	"github.com/snapetech/mjrindex/internal/store"
)

// writeBatch applies every plan entry inside one IMMEDIATE transaction
// (spec §4.7 step 7). Entries needing no DB work (actionSkippedJournal,
// actionError) are skipped.
func (p *pipeline) writeBatch(ctx context.Context, plan []*planEntry) error {
	return p.s.Store.WithTx(ctx, store.TxImmediate, func(ctx context.Context) error {
		for _, e := range plan {
			if err := p.applyEntry(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// writePerEntry falls back to one transaction per entry after a batch
// transaction failed, bounding the blast radius of a single poisonous row
// (spec §4.7 step 8).
func (p *pipeline) writePerEntry(ctx context.Context, plan []*planEntry, stats *Stats) {
	for _, e := range plan {
		err := p.s.Store.WithTx(ctx, store.TxImmediate, func(ctx context.Context) error {
			return p.applyEntry(ctx, e)
		})
		if err != nil {
			e.action = actionError
			e.err = err
		}
		tally([]*planEntry{e}, stats, p.fast, p.backgroundMetadata)
	}
}

func (p *pipeline) applyEntry(ctx context.Context, e *planEntry) error {
	switch e.action {
	case actionSkippedJournal:
		return nil
	case actionError:
		return nil
	case actionSkipped:
		return p.writeJournal(ctx, e)
	case actionRefresh:
		if err := p.writeJournal(ctx, e); err != nil {
			return err
		}
		return p.refreshFromCache(ctx, e)
	case actionAdd:
		id, err := p.insertAsset(ctx, e)
		if err != nil {
			return err
		}
		e.existingAssetID = id
		if err := p.writeAssetMetadata(ctx, e); err != nil {
			return err
		}
		if err := p.writeJournal(ctx, e); err != nil {
			return err
		}
		return p.writeCache(ctx, e)
	case actionUpdate:
		if err := p.updateAsset(ctx, e); err != nil {
			return err
		}
		if err := p.writeAssetMetadata(ctx, e); err != nil {
			return err
		}
		if err := p.writeJournal(ctx, e); err != nil {
			return err
		}
		return p.writeCache(ctx, e)
	}
	return nil
}

func (p *pipeline) insertAsset(ctx context.Context, e *planEntry) (int64, error) {
	c := e.candidate
	filename := filepath.Base(c.path)
	subfolder := ""
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var width, height any
	var duration any
	if e.outcome != nil && e.outcome.Record != nil {
		if e.outcome.Record.Width != nil {
			width = *e.outcome.Record.Width
		}
		if e.outcome.Record.Height != nil {
			height = *e.outcome.Record.Height
		}
		if e.outcome.Record.Duration != nil {
			duration = *e.outcome.Record.Duration
		}
	}

	res, err := p.s.Store.Execute(ctx, `
		INSERT INTO assets (filepath, filename, subfolder, source, root_id, kind, ext, size, mtime, width, height, duration, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.path, filename, subfolder, string(p.source), nullableRootID(p.rootID), string(c.kind), c.ext, e.size, e.mtimeSec, width, height, duration, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (p *pipeline) updateAsset(ctx context.Context, e *planEntry) error {
	var width, height any
	var duration any
	if e.outcome != nil && e.outcome.Record != nil {
		if e.outcome.Record.Width != nil {
			width = *e.outcome.Record.Width
		}
		if e.outcome.Record.Height != nil {
			height = *e.outcome.Record.Height
		}
		if e.outcome.Record.Duration != nil {
			duration = *e.outcome.Record.Duration
		}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := p.s.Store.Execute(ctx, `
		UPDATE assets SET
			width = COALESCE(?, width),
			height = COALESCE(?, height),
			duration = COALESCE(?, duration),
			size = ?, mtime = ?, source = ?, root_id = ?, indexed_at = ?
		WHERE id = ?`,
		width, height, duration, e.size, e.mtimeSec, string(p.source), nullableRootID(p.rootID), now, e.existingAssetID,
	)
	return err
}

func (p *pipeline) writeAssetMetadata(ctx context.Context, e *planEntry) error {
	rating := 0
	var tags []string
	hasWorkflow, hasGen := hasWorkflowOrPrompt(e.outcome)
	quality := string(extractors.QualityNone)
	rawJSON := "{}"

	if e.outcome != nil {
		rawJSON = recordToJSON(e.outcome)
		if e.outcome.Record != nil {
			quality = string(e.outcome.Record.Quality)
			if e.outcome.Record.Rating != nil {
				rating = *e.outcome.Record.Rating
			}
			tags = e.outcome.Record.Tags
		}
	}
	tagsJSON, _ := json.Marshal(tags)
	tagsText := extractors.TagsText(tags)

	_, err := p.s.Store.Execute(ctx, `
		INSERT INTO asset_metadata (asset_id, rating, tags, tags_text, workflow_hash, has_workflow, has_generation_data, metadata_quality, metadata_raw)
		VALUES (?, ?, ?, ?, '', ?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			rating = CASE WHEN asset_metadata.rating = 0 THEN excluded.rating ELSE asset_metadata.rating END,
			tags = CASE WHEN asset_metadata.tags = '[]' THEN excluded.tags ELSE asset_metadata.tags END,
			tags_text = CASE WHEN asset_metadata.tags_text = '' THEN excluded.tags_text ELSE asset_metadata.tags_text END,
			has_workflow = excluded.has_workflow,
			has_generation_data = excluded.has_generation_data,
			metadata_quality = excluded.metadata_quality,
			metadata_raw = excluded.metadata_raw`,
		e.existingAssetID, rating, string(tagsJSON), tagsText, boolToInt(hasWorkflow), boolToInt(hasGen), quality, rawJSON,
	)
	return err
}

func (p *pipeline) writeJournal(ctx context.Context, e *planEntry) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := p.s.Store.Execute(ctx, `
		INSERT INTO scan_journal (filepath, dir_path, state_hash, mtime, size, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(filepath) DO UPDATE SET
			dir_path = excluded.dir_path, state_hash = excluded.state_hash,
			mtime = excluded.mtime, size = excluded.size, last_seen = excluded.last_seen`,
		e.candidate.path, filepath.Dir(e.candidate.path), e.stateHash, e.mtimeSec, e.size, now,
	)
	return err
}

func (p *pipeline) writeCache(ctx context.Context, e *planEntry) error {
	if e.outcome == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rawJSON := recordToJSON(e.outcome)
	metaHash := e.stateHash // content-addressed by the same file-state tuple
	_, err := p.s.Store.Execute(ctx, `
		INSERT INTO metadata_cache (filepath, state_hash, metadata_hash, metadata_raw, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(filepath) DO UPDATE SET
			state_hash = excluded.state_hash, metadata_hash = excluded.metadata_hash,
			metadata_raw = excluded.metadata_raw, last_updated = excluded.last_updated`,
		e.candidate.path, e.stateHash, metaHash, rawJSON, now,
	)
	return err
}

// refreshFromCache re-applies a cached record's metadata flags to an
// existing asset_metadata row, only when they would materially change it
// (spec §4.7 step 5): a cache hit on an already-fully-enriched row is a
// pure no-op write of the same values.
func (p *pipeline) refreshFromCache(ctx context.Context, e *planEntry) error {
	rows, err := p.s.Store.Query(ctx, `SELECT metadata_raw FROM metadata_cache WHERE filepath = ?`, e.candidate.path)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil
	}
	var raw string
	if err := rows.Scan(&raw); err != nil {
		return classifyScanErr(err)
	}

	var cached struct {
		Workflow      map[string]any `json:"workflow"`
		Prompt        map[string]any `json:"prompt"`
		GenInfo       map[string]any `json:"geninfo"`
		GenInfoStatus map[string]any `json:"geninfo_status"`
	}
	if json.Unmarshal([]byte(raw), &cached) != nil {
		return nil
	}
	hasWorkflow := cached.Workflow != nil
	hasGen := cached.GenInfo != nil || cached.GenInfoStatus != nil

	res, err := p.s.Store.Execute(ctx, `
		UPDATE asset_metadata SET has_workflow = ?, has_generation_data = ?, metadata_raw = ?
		WHERE asset_id = ? AND (has_workflow != ? OR has_generation_data != ?)`,
		boolToInt(hasWorkflow), boolToInt(hasGen), raw, e.existingAssetID, boolToInt(hasWorkflow), boolToInt(hasGen),
	)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}

func nullableRootID(rootID string) any {
	if rootID == "" {
		return nil
	}
	return rootID
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func classifyScanErr(err error) error {
	if err == sql.ErrNoRows {
		return nil
	}
	return apperr.Wrap(apperr.CodeDBError, "scan row read failed", err)
}
