package extractors

import "github.com/snapetech/mjrindex/internal/probes"

// ExtractVideo builds a Record for a video file. It prefers
// QuickTime:Workflow/QuickTime:Prompt tag-reader keys, falls back to a
// generic tag scan, then scans the media probe's format/stream tags.
// Description/comment tags are also checked for Auto1111-style text (spec
// §4.5).
func ExtractVideo(exif map[string]any, probe *probes.ProbeResult) *Record {
	rec := &Record{Exif: exif, Quality: QualityNone}

	if s := stringTag(exif, "QuickTime:Workflow"); s != "" {
		if wf, _ := ScanValueForGraphs(s); wf != nil {
			rec.Workflow = wf
		}
	}
	if s := stringTag(exif, "QuickTime:Prompt"); s != "" {
		if _, pr := ScanValueForGraphs(s); pr != nil {
			rec.Prompt = pr
		}
	}
	if rec.Workflow == nil && rec.Prompt == nil {
		wf, pr := ScanTagsForGraphs(exif)
		rec.Workflow, rec.Prompt = wf, pr
	}

	for _, key := range []string{"QuickTime:Description", "QuickTime:Comment", "Description", "Comment"} {
		if s := stringTag(exif, key); s != "" {
			if rec.Parameters == "" {
				rec.Parameters = s
			}
		}
	}

	if probe != nil {
		if rec.Workflow == nil && rec.Prompt == nil && probe.Format.Tags != nil {
			wf, pr := ScanTagsForGraphs(probe.Format.Tags)
			if wf != nil {
				rec.Workflow = wf
			}
			if pr != nil {
				rec.Prompt = pr
			}
		}
		for _, s := range probe.Streams {
			if rec.Workflow != nil && rec.Prompt != nil {
				break
			}
			if s.Tags == nil {
				continue
			}
			wf, pr := ScanTagsForGraphs(s.Tags)
			if rec.Workflow == nil {
				rec.Workflow = wf
			}
			if rec.Prompt == nil {
				rec.Prompt = pr
			}
		}
		if probe.VideoStream != nil {
			rec.Width, rec.Height = intPtr(probe.VideoStream.Width), intPtr(probe.VideoStream.Height)
		}
		if d, ok := toFloat(probe.Format.Duration); ok {
			rec.Duration = &d
		}
		rec.FFProbe = map[string]any{"format": probe.Format, "streams": probe.Streams}
		rec.promote(QualityPartial)
	}

	if rec.Workflow != nil || rec.Prompt != nil || rec.Parameters != "" {
		rec.promote(QualityPartial)
	}

	if rating, ok := ExtractRating(exif); ok {
		rec.Rating = &rating
	}
	rec.Tags = ExtractTags(exif)
	rec.GenerationTime = ExtractGenerationTime(exif)

	return rec
}

func intPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
