// Package extractors produces a normalized metadata record for one asset
// file: technical info lifted from the tag-reader/media-probe raw blobs,
// plus any embedded generation-pipeline payload (workflow/prompt graph or
// Auto1111 parameter text) recognized by a shape-strict scanner (spec
// §4.5, §4.6 fallback cases, §4.13).
//
// Grounded on the classify-and-normalize style of the teacher's
// internal/indexer/fetch package: every extractor takes raw tool output and
// returns a plain struct, never partially-filled globals, and never panics
// on a malformed tag value — a bad value is simply absent from the record.
package extractors

// Quality tracks how much of a record could be filled in. It only ever
// moves forward (none -> partial -> full) as more fields are populated,
// per spec §4.4.
type Quality string

const (
	QualityNone    Quality = "none"
	QualityPartial Quality = "partial"
	QualityFull    Quality = "full"
)

// Promote returns the higher of q and other, where full > partial > none.
func (q Quality) Promote(other Quality) Quality {
	rank := map[Quality]int{QualityNone: 0, QualityPartial: 1, QualityFull: 2}
	if rank[other] > rank[q] {
		return other
	}
	return q
}

// FileInfo is the technical envelope every record carries regardless of
// kind.
type FileInfo struct {
	Size int64
	MTime int64
	CTime int64
	Kind  string
	Ext   string
}

// Record is the normalized output of one extractor run (spec §4.4's
// "record" shape). GenInfo/GenInfoStatus are populated by the caller
// (internal/metadata), not by the extractor itself — extractors only
// surface the raw workflow/prompt graph payload and Auto1111 parameters.
type Record struct {
	FileInfo FileInfo

	Exif    map[string]any
	FFProbe map[string]any

	Workflow   map[string]any // LiteGraph workflow shape, if found
	Prompt     map[string]any // prompt-graph shape, if found
	Parameters string         // raw Auto1111 parameter text, if found

	Width    *int
	Height   *int
	Duration *float64

	Rating *int
	Tags   []string

	GenerationTime string
	Lyrics         string

	Quality Quality
}

func (r *Record) promote(q Quality) {
	r.Quality = r.Quality.Promote(q)
}
