package searcher

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/snapetech/mjrindex/internal/store"
)

// scanAssetRows reads rows produced by queryBuilder's column list (assets
// joined with asset_metadata) into hydrated AssetRows.
func scanAssetRows(rows *sql.Rows) ([]store.AssetRow, error) {
	var out []store.AssetRow
	for rows.Next() {
		row, err := scanOneAssetRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanOneAssetRow(rows *sql.Rows) (store.AssetRow, error) {
	var row store.AssetRow
	var rootID, contentHash, phash, hashState sql.NullString
	var width, height sql.NullInt64
	var duration sql.NullFloat64
	var createdAt, updatedAt, indexedAt string
	var tagsJSON, metadataRaw string

	err := rows.Scan(
		&row.ID, &row.Filepath, &row.Filename, &row.Subfolder, &row.Source, &rootID, &row.Kind, &row.Ext,
		&row.Size, &row.MTime, &width, &height, &duration, &contentHash, &phash, &hashState,
		&createdAt, &updatedAt, &indexedAt,
		&row.Rating, &tagsJSON, &row.HasWorkflow, &row.HasGenerationData, &row.MetadataQuality, &metadataRaw,
	)
	if err != nil {
		return row, err
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

	hydrateRaw(&row, metadataRaw)
	return row, nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999Z", s); err == nil {
		return t
	}
	return time.Time{}
}

// hydrateRaw parses metadata_raw and exposes prompt/workflow/exif/geninfo
// at the top of the row (spec §4.9 "Hydration in get_asset").
func hydrateRaw(row *store.AssetRow, raw string) {
	if raw == "" || raw == "{}" {
		return
	}
	var doc struct {
		Prompt   any `json:"prompt"`
		Workflow any `json:"workflow"`
		Exif     any `json:"exif"`
		GenInfo  any `json:"geninfo"`
	}
	if json.Unmarshal([]byte(raw), &doc) != nil {
		return
	}
	row.Prompt = doc.Prompt
	row.Workflow = doc.Workflow
	row.Exif = doc.Exif
	row.GenInfo = doc.GenInfo
}
