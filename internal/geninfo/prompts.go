package geninfo

import "strings"

// textEncodeClasses are leaf nodes that actually hold prompt text.
var textEncodeClasses = map[string]bool{
	"CLIPTextEncode":         true,
	"CLIPTextEncodeSDXL":     true,
	"CLIPTextEncodeFlux":     true,
	"BNK_CLIPTextEncodeAdvanced": true,
	"smZ CLIPTextEncode":     true,
}

// conditioningCombineClasses merge multiple upstream conditionings without
// themselves holding text; the walk passes straight through them.
var conditioningCombineClasses = map[string]bool{
	"ConditioningCombine":          true,
	"ConditioningConcat":           true,
	"ConditioningAverage":          true,
	"ConditioningSetTimestepRange": true,
	"ConditioningSetArea":          true,
}

// promptFromInput resolves sourceNode's inputName (expected "positive" or
// "negative") by walking upstream through conditioning-combine nodes until
// it reaches one or more text-encode leaves, then joins their text values.
// A single leaf yields high confidence; a combine of several yields medium.
func promptFromInput(g *Graph, sourceNode *Node, inputName string) *Field {
	v, ok := sourceNode.Inputs[inputName]
	if !ok {
		return nil
	}
	link, ok := asLink(v)
	if !ok {
		return nil
	}

	var texts []string
	var sources []string
	// walkUpstream ends the whole walk when visit returns false, so nodes
	// upstream of a leaf or of a non-combiner are marked here and ignored.
	pruned := map[string]bool{}
	g.walkUpstream(link.NodeID, func(n *Node, depth int) bool {
		leaf := textEncodeClasses[n.ClassType]
		if leaf && !pruned[n.ID] {
			if t, ok := literalString(n.Inputs["text"]); ok && strings.TrimSpace(t) != "" {
				texts = append(texts, t)
				sources = append(sources, n.ClassType+":"+n.ID+":text")
			}
		}
		if pruned[n.ID] || leaf || !(conditioningCombineClasses[n.ClassType] || n.ID == link.NodeID) {
			for _, in := range n.Inputs {
				if l, ok := asLink(in); ok {
					pruned[l.NodeID] = true
				}
			}
		}
		return true
	})

	if len(texts) == 0 {
		return nil
	}
	confidence := ConfidenceHigh
	if len(texts) > 1 {
		confidence = ConfidenceMedium
	}
	return &Field{
		Value:      strings.Join(texts, ", "),
		Confidence: confidence,
		Source:     strings.Join(sources, "+"),
	}
}

// samplerLikeNodesWithConditioning returns every node in the graph that
// accepts "positive"/"negative" conditioning inputs, used for the
// multi-sink all_positive_prompts/all_negative_prompts collection (spec
// §4.6 step 13: a batch/A-B graph can carry more than one independent
// sampler, and all of their prompts are worth surfacing even though only
// the primary sink's prompt becomes the headline field).
func samplerLikeNodesWithConditioning(g *Graph) []*Node {
	var out []*Node
	for _, id := range g.Order {
		n := g.Nodes[id]
		if _, ok := n.Inputs["positive"]; ok {
			out = append(out, n)
			continue
		}
		if _, ok := n.Inputs["negative"]; ok {
			out = append(out, n)
		}
	}
	return out
}

func collectAllPrompts(g *Graph) (positives, negatives []string) {
	seenPos := map[string]bool{}
	seenNeg := map[string]bool{}
	for _, n := range samplerLikeNodesWithConditioning(g) {
		if f := promptFromInput(g, n, "positive"); f != nil {
			if s, ok := f.Value.(string); ok && !seenPos[s] {
				seenPos[s] = true
				positives = append(positives, s)
			}
		}
		if f := promptFromInput(g, n, "negative"); f != nil {
			if s, ok := f.Value.(string); ok && !seenNeg[s] {
				seenNeg[s] = true
				negatives = append(negatives, s)
			}
		}
	}
	return positives, negatives
}
