package store

import "time"

// Asset is one indexed file (spec §3).
type Asset struct {
	ID         int64
	Filepath   string
	Filename   string
	Subfolder  string
	Source     string // output | input | custom
	RootID     string // set iff Source == "custom"
	Kind       string // image | video | audio | model3d | unknown
	Ext        string
	Size       int64
	MTime      int64 // unix seconds
	Width      *int
	Height     *int
	Duration   *float64
	ContentHash string
	Phash       string
	HashState   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	IndexedAt  time.Time
}

// AssetMetadata is the slow/optional part of an asset (spec §3).
type AssetMetadata struct {
	AssetID           int64
	Rating            int
	Tags              []string
	TagsText          string
	WorkflowHash      string
	HasWorkflow       bool
	HasGenerationData bool
	MetadataQuality   string // full | partial | degraded | none
	MetadataRaw       string // opaque JSON document
}

// ScanJournalRow is the last-processed snapshot for one path (spec §3).
type ScanJournalRow struct {
	Filepath  string
	DirPath   string
	StateHash string
	MTime     int64
	Size      int64
	LastSeen  time.Time
}

// MetadataCacheRow is the content-addressed extraction cache (spec §3).
type MetadataCacheRow struct {
	Filepath     string
	StateHash    string
	MetadataHash string
	MetadataRaw  string
	LastUpdated  time.Time
}

// AssetRow is the fully hydrated read-side view the searcher returns:
// Asset plus the bits of AssetMetadata a caller actually wants to see.
type AssetRow struct {
	Asset
	Rating            int
	Tags              []string
	HasWorkflow       bool
	HasGenerationData bool
	MetadataQuality   string
	Prompt            any
	Workflow          any
	Exif              any
	GenInfo           any
}
