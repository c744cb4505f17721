package geninfo

import "fmt"

// Parse interprets raw (a prompt-graph or LiteGraph workflow JSON payload)
// and produces a GenInfo. It never returns an error for a graph that merely
// lacks a recognizable sampler — that is reported via Status, not failure;
// Parse only errors when raw isn't a graph at all or has more than
// maxGraphNodes nodes (spec §4.6, §4.4).
func Parse(raw []byte) (*GenInfo, error) {
	g, err := ParseGraph(raw)
	if err != nil {
		return nil, err
	}
	if g.NodeCount() == 0 {
		return nil, nil
	}
	if g.NodeCount() > maxGraphNodes {
		return nil, fmt.Errorf("geninfo: graph too large (%d nodes)", g.NodeCount())
	}

	gi := &GenInfo{Engine: EngineInfo{ParserVersion: ParserVersion}}

	sinkID := primarySink(g)
	if sinkID == "" {
		return mediaPipelineResult(g, gi), nil
	}
	sinkNode := g.Nodes[sinkID]
	gi.Engine.SinkClass = sinkNode.ClassType

	find := findSampler(g, sinkID)
	if find == nil {
		return mediaPipelineResult(g, gi), nil
	}

	extractSamplerFields(g, gi, find)

	samplerNode := find.primary
	if samplerNode == nil && len(find.orchestra) > 0 {
		samplerNode = find.orchestra[0]
	}
	if samplerNode != nil {
		if f := promptFromInput(g, samplerNode, "positive"); f != nil {
			gi.Positive = f
		}
		if f := promptFromInput(g, samplerNode, "negative"); f != nil {
			gi.Negative = f
		}
		gi.Models = resolveModelChain(g, samplerNode)
		if gi.Models != nil {
			gi.Checkpoint = gi.Models.Checkpoint
		}
		gi.CLIP = resolveCLIP(g, samplerNode)
		gi.Size = resolveSize(g, samplerNode)
	}
	gi.VAE = resolveVAE(g, sinkNode)

	gi.InputFiles = collectInputFiles(g)
	gi.AllPositivePrompts, gi.AllNegativePrompts = collectAllPrompts(g)

	gi.WorkflowType = classifyWorkflowType(g, sinkNode.ClassType, len(gi.InputFiles) > 0, gi.Denoise)

	return gi, nil
}

// mediaPipelineResult is returned when the graph has no sink (nothing ever
// saves/previews output) or no recognizable sampler anywhere — a graph that
// only resizes, converts, or otherwise transforms media without generating
// anything. spec §4.4 calls this a "media pipeline" rather than a parse
// failure, and still surfaces whatever title/author metadata the workflow's
// extra block carries.
func mediaPipelineResult(g *Graph, gi *GenInfo) *GenInfo {
	if g.Extra != nil {
		meta := map[string]any{}
		for _, key := range []string{"title", "author", "version", "description"} {
			if v, ok := g.Extra[key]; ok {
				meta[key] = v
			}
		}
		if len(meta) > 0 {
			// Workflow extra metadata takes priority over the bare
			// media-pipeline status: spec §4.4/§8 require exactly
			// {metadata: ...} here, not a status alongside it.
			return &GenInfo{Engine: gi.Engine, Metadata: meta}
		}
	}
	gi.Status = map[string]string{"kind": "media_pipeline", "reason": "no_sampler"}
	gi.InputFiles = collectInputFiles(g)
	return gi
}
