package geninfo

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Node is one prompt-graph node in normalized form: a class name and a set
// of named inputs, each either a literal value or a Link to an upstream
// node's output slot.
type Node struct {
	ID        string
	ClassType string
	Title     string
	Inputs    map[string]any // literal value, or Link
}

// Link is an unresolved edge: the upstream node id and its output slot.
type Link struct {
	NodeID string
	Slot   int
}

// Graph is a normalized prompt graph plus a reverse adjacency index
// (which nodes consume a given node's output) built once up front so walks
// never need to rescan the whole node set.
type Graph struct {
	Nodes    map[string]*Node
	Order    []string // node ids sorted lexically, for deterministic tie-breaking
	consumes map[string][]string
	Extra    map[string]any
}

func (l Link) isLink() {}

// asLink reports whether v is a two-element [nodeID, slot] array, the
// ComfyUI convention for "this input is wired to another node's output".
func asLink(v any) (Link, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) < 2 {
		return Link{}, false
	}
	var nodeID string
	switch id := arr[0].(type) {
	case string:
		nodeID = id
	case float64:
		nodeID = fmt.Sprintf("%d", int64(id))
	default:
		return Link{}, false
	}
	slotF, ok := arr[1].(float64)
	if !ok {
		return Link{}, false
	}
	return Link{NodeID: nodeID, Slot: int(slotF)}, true
}

// rawPromptNode mirrors a ComfyUI "prompt" API export: a flat map of node id
// to {class_type, inputs, _meta:{title}}.
type rawPromptNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      struct {
		Title string `json:"title"`
	} `json:"_meta"`
}

// rawWorkflow mirrors a LiteGraph "workflow" export: nodes + links arrays,
// with widget values positional rather than named.
type rawWorkflow struct {
	Nodes []struct {
		ID     json.Number `json:"id"`
		Type   string      `json:"type"`
		Title  string      `json:"title"`
		Inputs []struct {
			Name string `json:"name"`
			Link *int   `json:"link"`
		} `json:"inputs"`
		WidgetsValues []any          `json:"widgets_values"`
		Properties    map[string]any `json:"properties"`
	} `json:"nodes"`
	Links [][]json.Number `json:"links"`
	Extra map[string]any  `json:"extra"`
}

// ParseGraph detects which of the two shapes raw is and normalizes it into
// a Graph. An ambiguous payload (neither shape recognizable) is rejected
// rather than guessed at, per spec §4.6's "reject ambiguous shapes" rule.
func ParseGraph(raw []byte) (*Graph, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("geninfo: not a JSON object: %w", err)
	}

	_, hasNodes := probe["nodes"]
	_, hasLinks := probe["links"]
	if hasNodes && hasLinks {
		var wf rawWorkflow
		if err := json.Unmarshal(raw, &wf); err != nil {
			return nil, fmt.Errorf("geninfo: malformed workflow shape: %w", err)
		}
		return normalizeWorkflow(&wf), nil
	}

	// An empty top-level object carries no content to judge either shape
	// against — it's a valid, trivially empty prompt graph, not an
	// unrecognized payload (spec.md:389 requires parse_geninfo_from_prompt({})
	// to succeed with nothing found, never to error).
	if len(probe) == 0 {
		return &Graph{Nodes: map[string]*Node{}}, nil
	}

	// Prompt-graph shape: every top-level value must itself be an object
	// carrying class_type, or this isn't a recognizable graph at all.
	looksLikePromptGraph := true
	var promptNodes map[string]rawPromptNode
	if err := json.Unmarshal(raw, &promptNodes); err == nil {
		for _, n := range promptNodes {
			if n.ClassType == "" {
				looksLikePromptGraph = false
				break
			}
		}
	} else {
		looksLikePromptGraph = false
	}
	if !looksLikePromptGraph {
		return nil, fmt.Errorf("geninfo: unrecognized graph shape")
	}
	return normalizePromptGraph(promptNodes), nil
}

func normalizePromptGraph(raw map[string]rawPromptNode) *Graph {
	g := &Graph{Nodes: make(map[string]*Node, len(raw))}
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n := raw[id]
		g.Nodes[id] = &Node{ID: id, ClassType: n.ClassType, Title: n.Meta.Title, Inputs: n.Inputs}
		g.Order = append(g.Order, id)
	}
	g.buildReverseIndex()
	return g
}

// canonical widget order for node classes whose named inputs are absent
// because the export is LiteGraph-shaped and values live positionally in
// widgets_values (spec §4.6 step 5 fallback).
var canonicalWidgetOrder = map[string][]string{
	"KSampler":              {"seed", "control_after_generate", "steps", "cfg", "sampler_name", "scheduler", "denoise"},
	"KSamplerAdvanced":      {"add_noise", "seed", "control_after_generate", "steps", "cfg", "sampler_name", "scheduler", "start_at_step", "end_at_step", "return_with_leftover_noise"},
	"CheckpointLoaderSimple": {"ckpt_name"},
	"LoraLoader":            {"lora_name", "strength_model", "strength_clip"},
	"EmptyLatentImage":      {"width", "height", "batch_size"},
	"CLIPTextEncode":        {"text"},
}

func normalizeWorkflow(wf *rawWorkflow) *Graph {
	g := &Graph{Nodes: make(map[string]*Node, len(wf.Nodes)), Extra: wf.Extra}

	linkSrc := make(map[int]Link, len(wf.Links))
	for _, l := range wf.Links {
		if len(l) < 6 {
			continue
		}
		linkID, _ := l[0].Int64()
		srcNode, _ := l[1].Int64()
		srcSlot, _ := l[2].Int64()
		linkSrc[int(linkID)] = Link{NodeID: fmt.Sprintf("%d", srcNode), Slot: int(srcSlot)}
	}

	for _, n := range wf.Nodes {
		id := n.ID.String()
		node := &Node{ID: id, ClassType: n.Type, Title: n.Title, Inputs: map[string]any{}}

		named := make(map[string]bool)
		for _, in := range n.Inputs {
			if in.Link == nil {
				continue
			}
			if src, ok := linkSrc[*in.Link]; ok {
				named[in.Name] = true
				node.Inputs[in.Name] = []any{src.NodeID, float64(src.Slot)}
			}
		}

		if order, ok := canonicalWidgetOrder[n.Type]; ok {
			for i, name := range order {
				if named[name] {
					continue // already wired to an upstream node
				}
				if i < len(n.WidgetsValues) {
					node.Inputs[name] = n.WidgetsValues[i]
				}
			}
		}

		g.Nodes[id] = node
		g.Order = append(g.Order, id)
	}
	sort.Strings(g.Order)
	g.buildReverseIndex()
	return g
}

func (g *Graph) buildReverseIndex() {
	g.consumes = make(map[string][]string)
	for _, id := range g.Order {
		n := g.Nodes[id]
		for _, v := range n.Inputs {
			if link, ok := asLink(v); ok {
				g.consumes[link.NodeID] = append(g.consumes[link.NodeID], id)
			}
		}
	}
}

// Resolve follows a single input value: if it is a link, returns the
// upstream node and true; otherwise the input is a literal.
func (g *Graph) Resolve(v any) (*Node, bool) {
	link, ok := asLink(v)
	if !ok {
		return nil, false
	}
	n, ok := g.Nodes[link.NodeID]
	return n, ok
}

// NodeCount reports the graph size for guard checks against spec §4.6's
// max_nodes bound.
func (g *Graph) NodeCount() int { return len(g.Nodes) }
