package enricher

import (
	"context"
	"encoding/json"

	"github.com/snapetech/mjrindex/internal/extractors"
	"github.com/snapetech/mjrindex/internal/metadata"
)

// writeOutcome applies one probe outcome to an already-indexed asset row.
// Caller must hold the scan write lock.
func (e *Enricher) writeOutcome(ctx context.Context, assetID int64, path string, outcome *metadata.Outcome) error {
	var width, height any
	var duration any
	quality := string(extractors.QualityNone)
	var rating int
	var tags []string

	if outcome.Record != nil {
		if outcome.Record.Width != nil {
			width = *outcome.Record.Width
		}
		if outcome.Record.Height != nil {
			height = *outcome.Record.Height
		}
		if outcome.Record.Duration != nil {
			duration = *outcome.Record.Duration
		}
		quality = string(outcome.Record.Quality)
		if outcome.Record.Rating != nil {
			rating = *outcome.Record.Rating
		}
		tags = outcome.Record.Tags
	}

	if _, err := e.Store.Execute(ctx, `
		UPDATE assets SET width = COALESCE(?, width), height = COALESCE(?, height), duration = COALESCE(?, duration)
		WHERE id = ?`, width, height, duration, assetID); err != nil {
		return err
	}

	hasWorkflow := outcome.Record != nil && outcome.Record.Workflow != nil
	hasGen := outcome.GenInfo != nil || outcome.GenInfoStatus != nil
	rawJSON := toJSON(outcome)
	tagsJSON, _ := json.Marshal(tags)
	tagsText := extractors.TagsText(tags)

	_, err := e.Store.Execute(ctx, `
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
		assetID, rating, string(tagsJSON), tagsText, boolToInt(hasWorkflow), boolToInt(hasGen), quality, rawJSON,
	)
	return err
}

func toJSON(o *metadata.Outcome) string {
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
