package geninfo

import "strings"

var primarySamplerClasses = map[string]bool{
	"KSampler":         true,
	"KSamplerAdvanced": true,
	"SamplerCustom":    true,
}

// advancedOrchestratorClasses are the split-node sampling rigs where
// steps/scheduler/sampler/cfg live on separate nodes feeding a guider,
// rather than on one KSampler-shaped node.
var advancedOrchestratorClasses = map[string]bool{
	"SamplerCustomAdvanced": true,
	"KSamplerSelect":        true,
	"BasicScheduler":        true,
	"BasicGuider":           true,
	"CFGGuider":             true,
}

func looksLikeSampler(classType string) bool {
	return strings.Contains(classType, "Sampler") || strings.Contains(classType, "Guider")
}

// samplerFind is the outcome of locating a sampler-bearing node (or set of
// nodes, for the advanced orchestrator path) along with how it was found.
type samplerFind struct {
	primary    *Node // set when mode == "primary" or "global"
	orchestra  []*Node
	mode       string // primary | advanced | global
}

// findSampler implements spec §4.6 step 4: search upstream from the primary
// sink for a recognizable sampler node, falling back to the advanced
// orchestrator shape, and finally to a graph-global scan if the sink-scoped
// walk finds nothing at all (a disconnected or unusually wired graph).
func findSampler(g *Graph, sinkID string) *samplerFind {
	if sinkID != "" {
		var primary *Node
		var orchestra []*Node
		g.walkUpstream(sinkID, func(n *Node, depth int) bool {
			if primarySamplerClasses[n.ClassType] && primary == nil {
				primary = n
			}
			if advancedOrchestratorClasses[n.ClassType] {
				orchestra = append(orchestra, n)
			}
			return true
		})
		if primary != nil {
			return &samplerFind{primary: primary, mode: "primary"}
		}
		// Relaxed match: one orchestrator node with linked guider+sigmas is
		// enough; noise/sampler links are not required.
		for _, n := range orchestra {
			_, hasGuider := asLink(n.Inputs["guider"])
			_, hasSigmas := asLink(n.Inputs["sigmas"])
			if hasGuider && hasSigmas {
				return &samplerFind{orchestra: orchestra, mode: "advanced"}
			}
		}
	}

	// Global fallback: scan every node in the graph, preferring a primary
	// class over a generic "Sampler"-ish one, and the earliest in g.Order
	// (sorted node ids) as the tie-break.
	var globalPrimary, globalAny *Node
	for _, id := range g.Order {
		n := g.Nodes[id]
		if primarySamplerClasses[n.ClassType] && globalPrimary == nil {
			globalPrimary = n
		}
		if looksLikeSampler(n.ClassType) && globalAny == nil {
			globalAny = n
		}
	}
	if globalPrimary != nil {
		return &samplerFind{primary: globalPrimary, mode: "global"}
	}
	if globalAny != nil {
		return &samplerFind{primary: globalAny, mode: "global"}
	}
	return nil
}

// resolveFieldFromNode reads a named scalar input off n. If the input is a
// literal, confidence is high; if it is wired to an upstream node, the
// function follows one hop and reports medium confidence (the value came
// from a primitive/reroute node rather than being authored directly on the
// sampler); anything else yields no field.
func resolveFieldFromNode(g *Graph, n *Node, inputName string) (*Field, bool) {
	v, ok := n.Inputs[inputName]
	if !ok {
		return nil, false
	}
	source := n.ClassType + ":" + n.ID + ":" + inputName
	if link, isLink := asLink(v); isLink {
		upstream, ok := g.Nodes[link.NodeID]
		if !ok {
			return nil, false
		}
		// Primitive/reroute-style nodes carry their literal in a "value"
		// or single positional input.
		for _, candidate := range []string{"value", "text", "int", "float", "Value"} {
			if lv, ok := upstream.Inputs[candidate]; ok {
				if _, isLink := asLink(lv); !isLink {
					return &Field{Value: lv, Confidence: ConfidenceMedium, Source: source}, true
				}
			}
		}
		return nil, false
	}
	return &Field{Value: v, Confidence: ConfidenceHigh, Source: source}, true
}

func resolveNamedFieldFromNode(g *Graph, n *Node, inputName string) (*NamedField, bool) {
	f, ok := resolveFieldFromNode(g, n, inputName)
	if !ok {
		return nil, false
	}
	name, ok := literalString(f.Value)
	if !ok {
		return nil, false
	}
	return &NamedField{Name: name, Confidence: f.Confidence, Source: f.Source}, true
}

// extractSamplerFields populates the sampler-related GenInfo fields from a
// samplerFind, handling both the single-node primary/global shape and the
// multi-node advanced orchestrator shape.
func extractSamplerFields(g *Graph, gi *GenInfo, find *samplerFind) {
	if find == nil {
		return
	}
	gi.Engine.SamplerMode = find.mode

	if find.primary != nil {
		n := find.primary
		gi.Steps, _ = resolveFieldFromNode(g, n, "steps")
		gi.CFG, _ = resolveFieldFromNode(g, n, "cfg")
		gi.Seed, _ = resolveFieldFromNode(g, n, "seed")
		if gi.Seed == nil {
			gi.Seed, _ = resolveFieldFromNode(g, n, "noise_seed")
		}
		gi.Denoise, _ = resolveFieldFromNode(g, n, "denoise")
		gi.Sampler, _ = resolveNamedFieldFromNode(g, n, "sampler_name")
		gi.Scheduler, _ = resolveNamedFieldFromNode(g, n, "scheduler")
		return
	}

	// Advanced orchestrator: fields are scattered across several nodes by
	// class, each contributing whichever piece it owns.
	for _, n := range find.orchestra {
		switch n.ClassType {
		case "KSamplerSelect":
			if gi.Sampler == nil {
				gi.Sampler, _ = resolveNamedFieldFromNode(g, n, "sampler_name")
			}
		case "BasicScheduler":
			if gi.Scheduler == nil {
				gi.Scheduler, _ = resolveNamedFieldFromNode(g, n, "scheduler")
			}
			if gi.Steps == nil {
				gi.Steps, _ = resolveFieldFromNode(g, n, "steps")
			}
			if gi.Denoise == nil {
				gi.Denoise, _ = resolveFieldFromNode(g, n, "denoise")
			}
		case "BasicGuider", "CFGGuider":
			if gi.CFG == nil {
				gi.CFG, _ = resolveFieldFromNode(g, n, "cfg")
			}
		}
		if gi.Engine.SinkClass == "" {
			gi.Engine.SinkClass = n.ClassType
		}
	}
}
