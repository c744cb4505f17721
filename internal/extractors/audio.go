package extractors

import "github.com/snapetech/mjrindex/internal/probes"

// ExtractAudio builds a Record for an audio file: technical info from the
// media probe, embedded workflow/prompt/parameters recognized via the same
// shape checks as other kinds, and lyrics pulled from any text-encode-style
// node found in the prompt graph (spec §4.5).
func ExtractAudio(exif map[string]any, probe *probes.ProbeResult) *Record {
	rec := &Record{Exif: exif, Quality: QualityNone}

	wf, pr := ScanTagsForGraphs(exif)
	rec.Workflow, rec.Prompt = wf, pr

	if probe != nil {
		if rec.Workflow == nil && rec.Prompt == nil && probe.Format.Tags != nil {
			wf, pr := ScanTagsForGraphs(probe.Format.Tags)
			rec.Workflow, rec.Prompt = wf, pr
		}
		if probe.AudioStream != nil {
			rec.FFProbe = map[string]any{
				"format":       probe.Format,
				"codec_name":   probe.AudioStream.CodecName,
				"duration":     probe.AudioStream.Duration,
			}
		}
		if d, ok := toFloat(probe.Format.Duration); ok {
			rec.Duration = &d
		}
		rec.promote(QualityPartial)
	}

	for _, key := range []string{"Description", "Comment", "Lyrics", "ID3:Lyrics"} {
		if s := stringTag(exif, key); s != "" && rec.Parameters == "" {
			rec.Parameters = s
		}
	}

	if rec.Prompt != nil {
		rec.Lyrics = findLyrics(rec.Prompt)
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

// findLyrics scans a prompt graph's nodes for a text-encode-style node
// carrying a "lyrics" input, common to audio-generation workflows.
func findLyrics(prompt map[string]any) string {
	for _, v := range prompt {
		node, ok := v.(map[string]any)
		if !ok {
			continue
		}
		inputs, ok := node["inputs"].(map[string]any)
		if !ok {
			continue
		}
		if lyrics, ok := inputs["lyrics"].(string); ok && lyrics != "" {
			return lyrics
		}
	}
	return ""
}
