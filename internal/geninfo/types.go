// Package geninfo deterministically interprets an embedded node-graph
// (a ComfyUI-style "prompt graph" or its LiteGraph "workflow" export shape)
// as a generation pipeline, producing structured {value, confidence,
// source} fields for sampler settings, prompts, model chain, and so on
// (spec §4.6). It never guesses: absent signal in the graph means an absent
// field, not a fabricated default.
//
// The graph walk is grounded on the iterative, cycle-safe, cached-after-
// first-pass traversal style of other_examples' agentic-research-mache
// internal/graph/sqlite_graph.go (build an adjacency structure once, then
// walk it with explicit visited sets — never recursion over untrusted
// edges, per spec §9).
package geninfo

const ParserVersion = "1.0"

// Confidence levels for extracted fields.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Field is the generic {value, confidence, source} shape spec §4.6 requires
// for every extracted scalar.
type Field struct {
	Value      any    `json:"value"`
	Confidence string `json:"confidence"`
	Source     string `json:"source"`
}

// NamedField is a Field whose "value" is itself a name (sampler, scheduler,
// checkpoint, clip, vae) — exposed as .Name so callers can write
// geninfo.sampler.name the way spec §8's scenarios do.
type NamedField struct {
	Name       string `json:"name"`
	Confidence string `json:"confidence"`
	Source     string `json:"source"`
}

// SizeField is the resolved latent/image size.
type SizeField struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Confidence string `json:"confidence"`
	Source     string `json:"source"`
}

// InputFile is one loader-node-derived input media reference (spec §4.6 step 11).
type InputFile struct {
	Filename string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
	NodeID    string `json:"node_id"`
	Role      string `json:"role"`
}

// ModelsField is the resolved model chain: checkpoint/unet plus LoRAs.
type ModelsField struct {
	Checkpoint *NamedField  `json:"checkpoint,omitempty"`
	LoRAs      []NamedField `json:"loras,omitempty"`
}

// EngineInfo records which parser version/selection path produced a result,
// for diagnostics (spec §4.6).
type EngineInfo struct {
	ParserVersion string `json:"parser_version"`
	SinkClass     string `json:"sink_class"`
	SamplerMode   string `json:"sampler_mode"` // primary | advanced | global
}

// GenInfo is the full structured result of parsing one prompt graph.
type GenInfo struct {
	Positive   *Field       `json:"positive,omitempty"`
	Negative   *Field       `json:"negative,omitempty"`
	Steps      *Field       `json:"steps,omitempty"`
	CFG        *Field       `json:"cfg,omitempty"`
	Seed       *Field       `json:"seed,omitempty"`
	Denoise    *Field       `json:"denoise,omitempty"`
	Sampler    *NamedField  `json:"sampler,omitempty"`
	Scheduler  *NamedField  `json:"scheduler,omitempty"`
	Checkpoint *NamedField  `json:"checkpoint,omitempty"`
	CLIP       *NamedField  `json:"clip,omitempty"`
	VAE        *NamedField  `json:"vae,omitempty"`
	Size       *SizeField   `json:"size,omitempty"`
	Models     *ModelsField `json:"models,omitempty"`

	InputFiles []InputFile `json:"input_files,omitempty"`

	WorkflowType string `json:"workflow_type,omitempty"`

	AllPositivePrompts []string `json:"all_positive_prompts,omitempty"`
	AllNegativePrompts []string `json:"all_negative_prompts,omitempty"`

	// Status set when the graph is recognizably a media-only pipeline (no
	// sampler): {kind: "media_pipeline", reason: "no_sampler"} (spec §4.4).
	Status map[string]string `json:"geninfo_status,omitempty"`

	// Metadata carries workflow.extra's title/author/version/description
	// when no sampler-bearing path could be resolved at all.
	Metadata map[string]any `json:"metadata,omitempty"`

	Engine EngineInfo `json:"engine"`
}

const (
	maxGraphNodes = 5000
	maxGraphDepth = 100
	maxLocalNodes = 200
	maxLocalDepth = 32
)
