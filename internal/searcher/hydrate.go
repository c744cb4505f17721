package searcher

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"

	"github.com/snapetech/mjrindex/internal/apperr"
	"github.com/snapetech/mjrindex/internal/geninfo"
	"github.com/snapetech/mjrindex/internal/store"
)

// GetAsset hydrates one asset row, opportunistically self-healing its
// geninfo/generation-data before returning (spec §4.9).
func (s *Searcher) GetAsset(ctx context.Context, id int64) (*store.AssetRow, error) {
	row, raw, ok, err := s.fetchOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	s.selfHeal(ctx, &row, raw)
	return &row, nil
}

// GetAssets fetches many rows, returned in the same order as ids (missing
// ids are simply absent from the result).
func (s *Searcher) GetAssets(ctx context.Context, ids []int64) ([]store.AssetRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > maxIDBatch {
		return nil, apperr.New(apperr.CodeInvalidInput, "too many ids requested")
	}
	placeholders, args := idPlaceholders(ids)
	rows, err := s.Store.Query(ctx, `SELECT `+assetColumns+`
		FROM assets a LEFT JOIN asset_metadata am ON am.asset_id = a.id
		WHERE a.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := map[int64]store.AssetRow{}
	for rows.Next() {
		row, err := scanOneAssetRow(rows)
		if err != nil {
			return nil, err
		}
		byID[row.ID] = row
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]store.AssetRow, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// LookupAssetsByFilepaths fetches rows keyed by filepath.
func (s *Searcher) LookupAssetsByFilepaths(ctx context.Context, paths []string) (map[string]store.AssetRow, error) {
	out := map[string]store.AssetRow{}
	if len(paths) == 0 {
		return out, nil
	}
	if len(paths) > maxPathsBatch {
		return nil, apperr.New(apperr.CodeInvalidInput, "too many filepaths requested")
	}
	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = "?"
		args[i] = p
	}
	rows, err := s.Store.Query(ctx, `SELECT `+assetColumns+`
		FROM assets a LEFT JOIN asset_metadata am ON am.asset_id = a.id
		WHERE a.filepath IN (`+joinPlaceholders(placeholders)+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		row, err := scanOneAssetRow(rows)
		if err != nil {
			return nil, err
		}
		out[row.Filepath] = row
	}
	return out, rows.Err()
}

func (s *Searcher) fetchOne(ctx context.Context, id int64) (store.AssetRow, string, bool, error) {
	rows, err := s.Store.Query(ctx, `SELECT `+assetColumns+`, COALESCE(am.metadata_raw,'{}')
		FROM assets a LEFT JOIN asset_metadata am ON am.asset_id = a.id
		WHERE a.id = ?`, id)
	if err != nil {
		return store.AssetRow{}, "", false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return store.AssetRow{}, "", false, rows.Err()
	}
	row, raw, err := scanRowWithRaw(rows)
	return row, raw, true, err
}

func idPlaceholders(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return joinPlaceholders(placeholders), args
}

func joinPlaceholders(p []string) string {
	out := ""
	for i, s := range p {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// selfHeal implements spec §4.9's two opportunistic repairs: re-running
// geninfo on a present prompt graph when the stored geninfo is missing or
// low-quality, and a targeted single-file re-extraction when the row has
// neither workflow nor generation-data flags set but the file still exists.
func (s *Searcher) selfHeal(ctx context.Context, row *store.AssetRow, raw string) {
	if gi := s.healGenInfo(ctx, row, raw); gi != nil {
		row.GenInfo = gi
		return // re-extraction below is redundant once geninfo heals
	}
	if !row.HasWorkflow && !row.HasGenerationData && s.Metadata != nil {
		if _, err := os.Stat(row.Filepath); err == nil {
			s.healByReextraction(ctx, row)
		}
	}
}

func (s *Searcher) healGenInfo(ctx context.Context, row *store.AssetRow, raw string) *geninfo.GenInfo {
	promptMap, ok := row.Prompt.(map[string]any)
	if !ok || promptMap == nil {
		return nil
	}
	if scoreGenInfoMap(row.GenInfo) >= 2 {
		return nil // already good enough, nothing to heal
	}
	payload, err := json.Marshal(promptMap)
	if err != nil {
		return nil
	}
	gi, err := geninfo.Parse(payload)
	if err != nil || gi == nil || gi.Status != nil {
		return nil
	}
	if scoreGenInfo(gi) <= scoreGenInfoMap(row.GenInfo) {
		return nil
	}
	if err := s.writeBackGenInfo(ctx, row.ID, raw, gi); err != nil {
		return nil
	}
	return gi
}

// scoreGenInfoMap scores the loosely-typed geninfo blob decoded off
// metadata_raw (a map[string]any, or nil) by presence of its headline
// fields — the same signal scoreGenInfo uses on a freshly parsed *GenInfo.
func scoreGenInfoMap(v any) int {
	m, ok := v.(map[string]any)
	if !ok {
		return -1
	}
	score := 0
	for _, k := range []string{"positive", "negative", "checkpoint", "sampler"} {
		if m[k] != nil {
			score++
		}
	}
	return score
}

func scoreGenInfo(gi *geninfo.GenInfo) int {
	score := 0
	if gi.Positive != nil {
		score++
	}
	if gi.Negative != nil {
		score++
	}
	if gi.Checkpoint != nil {
		score++
	}
	if gi.Sampler != nil {
		score++
	}
	return score
}

func (s *Searcher) writeBackGenInfo(ctx context.Context, assetID int64, raw string, gi *geninfo.GenInfo) error {
	doc := map[string]any{}
	_ = json.Unmarshal([]byte(raw), &doc)
	doc["geninfo"] = gi
	delete(doc, "geninfo_status")
	updated, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.Lock.Lock()
	defer s.Lock.Unlock()
	_, err = s.Store.Execute(ctx, `UPDATE asset_metadata SET has_generation_data = 1, metadata_raw = ? WHERE asset_id = ?`, string(updated), assetID)
	return err
}

func (s *Searcher) healByReextraction(ctx context.Context, row *store.AssetRow) {
	outcome := s.Metadata.GetMetadata(ctx, row.Filepath)
	if outcome == nil || outcome.Record == nil {
		return
	}
	doc := map[string]any{
		"exif":       outcome.Record.Exif,
		"ffprobe":    outcome.Record.FFProbe,
		"workflow":   outcome.Record.Workflow,
		"prompt":     outcome.Record.Prompt,
		"parameters": outcome.Record.Parameters,
	}
	if outcome.GenInfo != nil {
		doc["geninfo"] = outcome.GenInfo
	}
	if outcome.GenInfoStatus != nil {
		doc["geninfo_status"] = outcome.GenInfoStatus
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	hasWorkflow := outcome.Record.Workflow != nil
	hasGen := outcome.GenInfo != nil || outcome.GenInfoStatus != nil
	if !hasWorkflow && !hasGen {
		return // nothing new to report; avoid a pointless write
	}

	s.Lock.Lock()
	defer s.Lock.Unlock()
	var width, height any
	if outcome.Record.Width != nil {
		width = *outcome.Record.Width
	}
	if outcome.Record.Height != nil {
		height = *outcome.Record.Height
	}
	var duration any
	if outcome.Record.Duration != nil {
		duration = *outcome.Record.Duration
	}
	_, _ = s.Store.Execute(ctx, `UPDATE assets SET width = COALESCE(?, width), height = COALESCE(?, height), duration = COALESCE(?, duration) WHERE id = ?`,
		width, height, duration, row.ID)
	_, err = s.Store.Execute(ctx, `UPDATE asset_metadata SET has_workflow = ?, has_generation_data = ?, metadata_raw = ?, metadata_quality = ? WHERE asset_id = ?`,
		boolToInt(hasWorkflow), boolToInt(hasGen), string(raw), string(outcome.Record.Quality), row.ID)
	if err != nil {
		return
	}
	row.HasWorkflow = hasWorkflow
	row.HasGenerationData = hasGen
	row.MetadataQuality = string(outcome.Record.Quality)
	hydrateRaw(row, string(raw))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanRowWithRaw is scanOneAssetRow plus one trailing metadata_raw column,
// used by fetchOne which needs the raw JSON document for write-back.
func scanRowWithRaw(rows *sql.Rows) (store.AssetRow, string, error) {
	var row store.AssetRow
	var rootID, contentHash, phash, hashState sql.NullString
	var width, height sql.NullInt64
	var duration sql.NullFloat64
	var createdAt, updatedAt, indexedAt string
	var tagsJSON, metadataRaw, rawAgain string

	err := rows.Scan(
		&row.ID, &row.Filepath, &row.Filename, &row.Subfolder, &row.Source, &rootID, &row.Kind, &row.Ext,
		&row.Size, &row.MTime, &width, &height, &duration, &contentHash, &phash, &hashState,
		&createdAt, &updatedAt, &indexedAt,
		&row.Rating, &tagsJSON, &row.HasWorkflow, &row.HasGenerationData, &row.MetadataQuality, &metadataRaw,
		&rawAgain,
	)
	if err != nil {
		return row, "", err
	}
	row.RootID = rootID.String
	row.ContentHash = contentHash.String
	row.Phash = phash.String
	row.HashState = hashState.String
	if width.Valid {
		w := int(width.Int64)
		row.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		row.Height = &h
	}
	if duration.Valid {
		row.Duration = &duration.Float64
	}
	row.CreatedAt = parseTimestamp(createdAt)
	row.UpdatedAt = parseTimestamp(updatedAt)
	row.IndexedAt = parseTimestamp(indexedAt)

	var tags []string
	_ = json.Unmarshal([]byte(tagsJSON), &tags)
	row.Tags = tags

	hydrateRaw(&row, rawAgain)
	return row, rawAgain, nil
}
