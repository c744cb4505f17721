package extractors

import "strings"

// ExtractImage builds a Record for an image file from its tag-reader
// payload. PNG's PNG:Parameters is treated as Auto1111 text; WEBP's
// workflow/prompt JSON may live in EXIF:Make/EXIF:Model/description tags,
// either directly or wrapped as {"workflow":..., "prompt":...} (spec §4.5).
func ExtractImage(exif map[string]any, ext string) *Record {
	rec := &Record{Exif: exif, Quality: QualityNone}
	ext = strings.ToLower(ext)

	switch ext {
	case ".png":
		if s := stringTag(exif, "PNG:Parameters"); s != "" {
			rec.Parameters = s
			rec.promote(QualityPartial)
		}
	case ".webp":
		for _, key := range []string{"EXIF:Make", "EXIF:Model", "Description", "XMP:Description"} {
			s := stringTag(exif, key)
			if s == "" {
				continue
			}
			if wf, pr := tryWrapper(s); wf != nil || pr != nil {
				if rec.Workflow == nil {
					rec.Workflow = wf
				}
				if rec.Prompt == nil {
					rec.Prompt = pr
				}
				continue
			}
			if wf, pr := ScanValueForGraphs(s); wf != nil || pr != nil {
				if rec.Workflow == nil {
					rec.Workflow = wf
				}
				if rec.Prompt == nil {
					rec.Prompt = pr
				}
			}
		}
	}

	if rec.Workflow == nil && rec.Prompt == nil {
		wf, pr := ScanTagsForGraphs(exif)
		rec.Workflow, rec.Prompt = wf, pr
	}
	if rec.Workflow != nil || rec.Prompt != nil || rec.Parameters != "" {
		rec.promote(QualityPartial)
	}

	if w, h, ok := extractDims(exif); ok {
		rec.Width, rec.Height = &w, &h
		rec.promote(QualityPartial)
	}

	if rating, ok := ExtractRating(exif); ok {
		rec.Rating = &rating
	}
	rec.Tags = ExtractTags(exif)
	rec.GenerationTime = ExtractGenerationTime(exif)

	return rec
}
