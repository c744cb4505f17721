package extractors

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"io"
	"regexp"
	"strings"
)

// maxDecompressedBytes bounds how much a single candidate payload may
// expand to once decoded/decompressed (spec §4.5: "hard cap on decompressed
// size to prevent bombs").
const maxDecompressedBytes = 10 * 1024 * 1024

var promptKeyRE = regexp.MustCompile(`^[0-9]+(:[0-9]+)?$`)

// decodeCandidate tries, in order: raw JSON, base64-wrapped JSON,
// base64-wrapped zlib-compressed JSON. It returns the decoded bytes only if
// they parse as a JSON object — anything else is not a candidate.
func decodeCandidate(raw string) ([]byte, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if b, ok := tryJSONObject([]byte(raw)); ok {
		return b, true
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(raw)
	}
	if err != nil {
		return nil, false
	}
	if b, ok := tryJSONObject(decoded); ok {
		return b, true
	}

	zr, err := zlib.NewReader(bytes.NewReader(decoded))
	if err != nil {
		return nil, false
	}
	defer zr.Close()
	limited := io.LimitReader(zr, maxDecompressedBytes+1)
	out, err := io.ReadAll(limited)
	if err != nil || len(out) > maxDecompressedBytes {
		return nil, false
	}
	return tryJSONObject(out)
}

func tryJSONObject(b []byte) ([]byte, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return nil, false
	}
	return b, true
}

// isWorkflowShape reports whether raw decodes as a LiteGraph workflow
// export: an object with a "nodes" array whose entries carry "type"/"id".
func isWorkflowShape(raw []byte) bool {
	var probe struct {
		Nodes []map[string]any `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || len(probe.Nodes) == 0 {
		return false
	}
	for _, n := range probe.Nodes {
		_, hasType := n["type"]
		_, hasID := n["id"]
		if !hasType || !hasID {
			return false
		}
	}
	return true
}

// isPromptGraphShape reports whether raw decodes as a runtime prompt graph:
// an object keyed by stringified numeric ids (optionally colon-delimited),
// each value carrying class_type + inputs.
func isPromptGraphShape(raw []byte) bool {
	var probe map[string]map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil || len(probe) == 0 {
		return false
	}
	for k, n := range probe {
		if !promptKeyRE.MatchString(k) {
			return false
		}
		if _, ok := n["class_type"]; !ok {
			return false
		}
		if _, ok := n["inputs"]; !ok {
			return false
		}
	}
	return true
}

// ScanTagsForGraphs scans every string-valued tag for embedded JSON and
// classifies it as a workflow export, a prompt graph, or neither — no
// "maybe it's a workflow" guessing: a candidate that fails both shape
// checks is simply dropped (spec §4.5).
func ScanTagsForGraphs(tags map[string]any) (workflow, prompt map[string]any) {
	for _, v := range tags {
		s, ok := v.(string)
		if !ok {
			continue
		}
		raw, ok := decodeCandidate(s)
		if !ok {
			continue
		}
		if workflow == nil && isWorkflowShape(raw) {
			var m map[string]any
			if json.Unmarshal(raw, &m) == nil {
				workflow = m
			}
		}
		if prompt == nil && isPromptGraphShape(raw) {
			var m map[string]any
			if json.Unmarshal(raw, &m) == nil {
				prompt = m
			}
		}
	}
	return workflow, prompt
}

// ScanValueForGraphs checks a single tag value (e.g. one already known to
// be the right tag, like QuickTime:Workflow) for an embedded graph.
func ScanValueForGraphs(v any) (workflow, prompt map[string]any) {
	return ScanTagsForGraphs(map[string]any{"_": v})
}
