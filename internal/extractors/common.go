package extractors

import "encoding/json"

// dimensionKeyPairs lists (width-key, height-key) pairs consulted, in
// priority order, for an image/video's pixel dimensions.
var dimensionKeyPairs = [][2]string{
	{"EXIF:ImageWidth", "EXIF:ImageHeight"},
	{"File:ImageWidth", "File:ImageHeight"},
	{"PNG:ImageWidth", "PNG:ImageHeight"},
	{"ImageWidth", "ImageHeight"},
}

func extractDims(tags map[string]any) (width, height int, ok bool) {
	for _, pair := range dimensionKeyPairs {
		wv, wok := tags[pair[0]]
		hv, hok := tags[pair[1]]
		if !wok || !hok {
			continue
		}
		w, wok2 := toInt(wv)
		h, hok2 := toInt(hv)
		if wok2 && hok2 && w > 0 && h > 0 {
			return w, h, true
		}
	}
	return 0, 0, false
}

// tryWrapper accepts a single-tag {"workflow":..., "prompt":...} wrapper
// payload, used by WEBP exports that bundle both under one tag (spec §4.5).
func tryWrapper(s string) (workflow, prompt map[string]any) {
	raw, ok := decodeCandidate(s)
	if !ok {
		return nil, nil
	}
	var wrapper struct {
		Workflow map[string]any `json:"workflow"`
		Prompt   map[string]any `json:"prompt"`
	}
	if json.Unmarshal(raw, &wrapper) != nil {
		return nil, nil
	}
	return wrapper.Workflow, wrapper.Prompt
}

// stringTag reads a string-valued tag, returning "" if absent or not a string.
func stringTag(tags map[string]any, key string) string {
	if v, ok := tags[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
