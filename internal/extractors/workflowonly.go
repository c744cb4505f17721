package extractors

import (
	"encoding/json"

	"github.com/snapetech/mjrindex/internal/geninfo"
)

// ReconstructFromWorkflow handles the workflow-only fallback (spec §4.5):
// a file that carries a LiteGraph workflow export but no runtime prompt
// graph still gets a best-effort geninfo by walking the workflow's own
// node/link/widget data, which geninfo.Parse already normalizes into the
// prompt-graph shape before running its sampler/prompt walk.
func ReconstructFromWorkflow(workflow map[string]any) (*geninfo.GenInfo, error) {
	raw, err := json.Marshal(workflow)
	if err != nil {
		return nil, err
	}
	return geninfo.Parse(raw)
}
