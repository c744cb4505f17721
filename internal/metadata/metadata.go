// Package metadata orchestrates per-asset metadata extraction: routes to a
// per-kind extractor, runs the configured probes under a bounded
// concurrency semaphore, and invokes the generation-info parser on
// whatever prompt graph (or Auto1111 text) the extractor turned up (spec
// §4.4). Every entry point returns an Outcome rather than an error — the
// service never raises, matching the teacher's probe/fetch packages, which
// always hand back a classified result instead of propagating a panic.
package metadata

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/snapetech/mjrindex/internal/apperr"
	"github.com/snapetech/mjrindex/internal/assetpaths"
	"github.com/snapetech/mjrindex/internal/extractors"
	"github.com/snapetech/mjrindex/internal/geninfo"
	"github.com/snapetech/mjrindex/internal/probes"
)

// Outcome is the normalized result of one get_metadata call. Err is set on
// failure, but Record/Quality are still populated with whatever was
// recovered before the failure, per spec §4.4's "degraded" quality rule.
type Outcome struct {
	Record        *extractors.Record
	GenInfo       *geninfo.GenInfo
	GenInfoStatus map[string]string
	Err           error
}

// WorkflowOnlyOutcome is the fast drag-and-drop path: workflow/prompt only,
// no media probe, no geninfo, no cache write.
type WorkflowOnlyOutcome struct {
	Workflow map[string]any
	Prompt   map[string]any
	Quality  extractors.Quality
	Err      error
}

// RatingTagsOutcome is the narrow tag-set fast path.
type RatingTagsOutcome struct {
	Rating *int
	Tags   []string
	Err    error
}

// Service is the C4 MetadataService.
type Service struct {
	Router     *probes.Router
	TagReader  *probes.TagReader
	MediaProbe *probes.MediaProbe
	sem        *semaphore.Weighted
}

// Options configures extraction concurrency.
type Options struct {
	ExtractConcurrency int64
}

func (o Options) withDefaults() Options {
	if o.ExtractConcurrency < 1 {
		o.ExtractConcurrency = 1
	}
	return o
}

func NewService(router *probes.Router, tagReader *probes.TagReader, mediaProbe *probes.MediaProbe, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		Router:     router,
		TagReader:  tagReader,
		MediaProbe: mediaProbe,
		sem:        semaphore.NewWeighted(opts.ExtractConcurrency),
	}
}

// GetMetadata extracts a full record for path, classified by kind.
func (s *Service) GetMetadata(ctx context.Context, path string) *Outcome {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return &Outcome{Record: &extractors.Record{Quality: extractors.QualityNone}, Err: apperr.Wrap(apperr.CodeTimeout, "extract semaphore", err)}
	}
	defer s.sem.Release(1)
	return s.extract(ctx, path)
}

// GetMetadataBatch runs GetMetadata for each path, each still bounded by
// the shared semaphore, returning a map keyed by path.
func (s *Service) GetMetadataBatch(ctx context.Context, paths []string) map[string]*Outcome {
	out := make(map[string]*Outcome, len(paths))
	results := make(chan struct {
		path string
		o    *Outcome
	}, len(paths))
	for _, p := range paths {
		p := p
		go func() {
			results <- struct {
				path string
				o    *Outcome
			}{p, s.GetMetadata(ctx, p)}
		}()
	}
	for range paths {
		r := <-results
		out[r.path] = r.o
	}
	return out
}

func (s *Service) extract(ctx context.Context, path string) *Outcome {
	ext := strings.ToLower(filepath.Ext(path))
	kind := assetpaths.KindOfExt(ext)
	if kind == assetpaths.KindUnknown {
		return &Outcome{Record: &extractors.Record{Quality: extractors.QualityNone}, Err: apperr.New(apperr.CodeUnsupported, "unsupported kind for "+ext)}
	}

	plan := s.Router.PlanFor(kind)

	var exif map[string]any
	if plan.UseTagReader && s.TagReader != nil {
		if v, err := s.TagReader.Read(ctx, path, nil); err == nil {
			exif = v
		}
	}
	var probeResult *probes.ProbeResult
	if plan.UseMediaProbe && s.MediaProbe != nil {
		if v, err := s.MediaProbe.Read(ctx, path); err == nil {
			probeResult = v
		}
	}
	if exif == nil {
		exif = map[string]any{}
	}

	var rec *extractors.Record
	switch kind {
	case assetpaths.KindImage:
		rec = extractors.ExtractImage(exif, ext)
	case assetpaths.KindVideo:
		rec = extractors.ExtractVideo(exif, probeResult)
	case assetpaths.KindAudio:
		rec = extractors.ExtractAudio(exif, probeResult)
	default:
		return &Outcome{Record: &extractors.Record{Quality: extractors.QualityNone}, Err: apperr.New(apperr.CodeUnsupported, "no extractor for kind")}
	}

	out := &Outcome{Record: rec}
	s.resolveGenInfo(rec, out)
	if out.GenInfo != nil || out.GenInfoStatus != nil {
		rec.Quality = rec.Quality.Promote(extractors.QualityFull)
	}
	return out
}

// resolveGenInfo implements the geninfo-vs-Auto1111-vs-media-pipeline
// decision tree from spec §4.4: a prompt graph always takes priority over
// Auto1111 text, and a graph with no sampler is reported as a status, not
// treated as empty output.
func (s *Service) resolveGenInfo(rec *extractors.Record, out *Outcome) {
	if rec.Prompt != nil {
		raw, err := json.Marshal(rec.Prompt)
		if err != nil {
			return
		}
		gi, err := geninfo.Parse(raw)
		if err != nil || gi == nil {
			return
		}
		if gi.Status != nil {
			out.GenInfoStatus = gi.Status
			return
		}
		out.GenInfo = gi
		return
	}
	if rec.Workflow != nil {
		gi, err := extractors.ReconstructFromWorkflow(rec.Workflow)
		if err != nil || gi == nil {
			return
		}
		if gi.Status != nil {
			out.GenInfoStatus = gi.Status
			return
		}
		out.GenInfo = gi
		return
	}
	if rec.Parameters != "" {
		out.GenInfo = genInfoFromAuto1111(extractors.ParseAuto1111(rec.Parameters))
	}
}

// genInfoFromAuto1111 wraps a parsed Auto1111 parameter blob in the same
// {value, confidence, source} shape GenInfoParser produces, per spec §4.4:
// "fields become {value, confidence:'high', source:'parameters'}".
func genInfoFromAuto1111(p extractors.Auto1111Params) *geninfo.GenInfo {
	const src = "parameters"
	gi := &geninfo.GenInfo{Engine: geninfo.EngineInfo{ParserVersion: geninfo.ParserVersion, SamplerMode: "primary", SinkClass: "parameters"}}
	if p.Prompt != "" {
		gi.Positive = &geninfo.Field{Value: p.Prompt, Confidence: geninfo.ConfidenceHigh, Source: src}
	}
	if p.NegativePrompt != "" {
		gi.Negative = &geninfo.Field{Value: p.NegativePrompt, Confidence: geninfo.ConfidenceHigh, Source: src}
	}
	if p.Steps != nil {
		gi.Steps = &geninfo.Field{Value: float64(*p.Steps), Confidence: geninfo.ConfidenceHigh, Source: src}
	}
	if p.CFG != nil {
		gi.CFG = &geninfo.Field{Value: *p.CFG, Confidence: geninfo.ConfidenceHigh, Source: src}
	}
	if p.Seed != nil {
		gi.Seed = &geninfo.Field{Value: float64(*p.Seed), Confidence: geninfo.ConfidenceHigh, Source: src}
	}
	if p.Sampler != "" {
		gi.Sampler = &geninfo.NamedField{Name: p.Sampler, Confidence: geninfo.ConfidenceHigh, Source: src}
	}
	if p.Model != "" {
		gi.Checkpoint = &geninfo.NamedField{Name: geninfo.StripModelExt(p.Model), Confidence: geninfo.ConfidenceHigh, Source: src}
		gi.Models = &geninfo.ModelsField{Checkpoint: gi.Checkpoint}
	}
	if p.Width != nil && p.Height != nil {
		gi.Size = &geninfo.SizeField{Width: *p.Width, Height: *p.Height, Confidence: geninfo.ConfidenceHigh, Source: src}
	}
	gi.WorkflowType = "T2I"
	return gi
}

// GetWorkflowOnly is the fast drag-and-drop path: tag-reader only, no media
// probe, no geninfo computation, no cache write (spec §4.4).
func (s *Service) GetWorkflowOnly(ctx context.Context, path string) *WorkflowOnlyOutcome {
	if s.TagReader == nil || !s.TagReader.IsAvailable() {
		return &WorkflowOnlyOutcome{Quality: extractors.QualityNone, Err: apperr.New(apperr.CodeToolMissing, "tag reader unavailable")}
	}
	exif, err := s.TagReader.Read(ctx, path, nil)
	if err != nil {
		return &WorkflowOnlyOutcome{Quality: extractors.QualityNone, Err: err}
	}
	wf, pr := extractors.ScanTagsForGraphs(exif)
	if wf == nil && pr == nil && lookupString(exif, "PNG:Parameters") != "" {
		return &WorkflowOnlyOutcome{Quality: extractors.QualityPartial}
	}
	q := extractors.QualityNone
	if wf != nil || pr != nil {
		q = extractors.QualityPartial
	}
	return &WorkflowOnlyOutcome{Workflow: wf, Prompt: pr, Quality: q}
}

func lookupString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ExtractRatingTagsOnly reads only rating/tag tags, skipping everything
// else (spec §4.4's narrow fast path).
func (s *Service) ExtractRatingTagsOnly(ctx context.Context, path string) *RatingTagsOutcome {
	if s.TagReader == nil || !s.TagReader.IsAvailable() {
		return &RatingTagsOutcome{Err: apperr.New(apperr.CodeToolMissing, "tag reader unavailable")}
	}
	exif, err := s.TagReader.Read(ctx, path, nil)
	if err != nil {
		return &RatingTagsOutcome{Err: err}
	}
	out := &RatingTagsOutcome{Tags: extractors.ExtractTags(exif)}
	if r, ok := extractors.ExtractRating(exif); ok {
		out.Rating = &r
	}
	return out
}
