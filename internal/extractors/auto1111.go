package extractors

import (
	"regexp"
	"strconv"
	"strings"
)

// Auto1111Params is the parsed form of an Automatic1111-style "parameters"
// text blob (spec §4.5).
type Auto1111Params struct {
	Prompt         string
	NegativePrompt string
	Steps          *int
	Sampler        string
	CFG            *float64
	Seed           *int64
	Width, Height  *int
	Model          string
}

var (
	stepsLineRE = regexp.MustCompile(`(?m)^.*\bSteps:\s*\d+.*$`)
	kvPairRE    = regexp.MustCompile(`([A-Za-z][A-Za-z0-9 _]*?):\s*("[^"]*"|[^,]+)`)
	sizeRE      = regexp.MustCompile(`^(\d+)x(\d+)$`)
)

// ParseAuto1111 parses an Automatic1111-style text blob into its component
// fields. It never errors: a blob with no recognizable parameter line still
// yields whatever prompt text precedes it.
func ParseAuto1111(text string) Auto1111Params {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var params Auto1111Params

	loc := stepsLineRE.FindStringIndex(text)
	var body, tail string
	if loc != nil {
		body = text[:loc[0]]
		tail = text[loc[0]:]
	} else {
		body = text
	}

	negIdx := strings.Index(body, "Negative prompt:")
	if negIdx >= 0 {
		params.Prompt = strings.TrimSpace(body[:negIdx])
		params.NegativePrompt = strings.TrimSpace(body[negIdx+len("Negative prompt:"):])
	} else {
		params.Prompt = strings.TrimSpace(body)
	}

	if tail == "" {
		return params
	}
	for _, m := range kvPairRE.FindAllStringSubmatch(tail, -1) {
		key := strings.TrimSpace(m[1])
		val := strings.Trim(strings.TrimSpace(m[2]), `"`)
		switch key {
		case "Steps":
			if n, err := strconv.Atoi(val); err == nil {
				params.Steps = &n
			}
		case "Sampler":
			params.Sampler = val
		case "CFG scale", "CFG":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				params.CFG = &f
			}
		case "Seed":
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				params.Seed = &n
			}
		case "Size":
			if sm := sizeRE.FindStringSubmatch(val); sm != nil {
				w, _ := strconv.Atoi(sm[1])
				h, _ := strconv.Atoi(sm[2])
				params.Width, params.Height = &w, &h
			}
		case "Model":
			params.Model = val
		}
	}
	return params
}
