package geninfo

import "strings"

// modelExts are the file extensions spec.md:210 requires stripped from model
// identifiers (checkpoint/unet/LoRA names, and the Auto1111 `Model:` field).
var modelExts = []string{".safetensors", ".ckpt", ".pt", ".pth", ".bin", ".gguf", ".json"}

// StripModelExt trims any path prefix and a trailing known model-file
// extension from a raw model identifier, so "loras/style.safetensors"
// becomes "style" and "sd_xl_base.safetensors" becomes "sd_xl_base" (spec
// §4.6 step 8, literal E2E scenario 1's geninfo.checkpoint.name).
func StripModelExt(s string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	lower := strings.ToLower(s)
	for _, ext := range modelExts {
		if strings.HasSuffix(lower, ext) {
			return s[:len(s)-len(ext)]
		}
	}
	return s
}

var loraClasses = map[string]bool{
	"LoraLoader":          true,
	"LoraLoaderModelOnly": true,
	"LoraLoader|pysssss":  true,
}

var checkpointClasses = map[string]bool{
	"CheckpointLoaderSimple": true,
	"CheckpointLoader":       true,
	"UNETLoader":             true,
	"UnetLoaderGGUF":         true,
}

var clipLoaderClasses = map[string]bool{
	"CLIPLoader":             true,
	"DualCLIPLoader":         true,
	"CheckpointLoaderSimple": true,
}

var vaeLoaderClasses = map[string]bool{
	"VAELoader":              true,
	"CheckpointLoaderSimple": true,
}

// resolveModelChain walks upstream from a sampler's "model" input through
// any LoRA loaders to the checkpoint/unet loader at the root, collecting
// each LoRA applied along the way in application order (closest to the
// checkpoint first, matching ComfyUI's own chaining convention).
func resolveModelChain(g *Graph, samplerNode *Node) *ModelsField {
	v, ok := samplerNode.Inputs["model"]
	if !ok {
		return nil
	}
	link, ok := asLink(v)
	if !ok {
		return nil
	}

	mf := &ModelsField{}
	var loras []NamedField
	g.walkUpstream(link.NodeID, func(n *Node, depth int) bool {
		if isLoraNode(n) {
			loras = append(loras, collectLoraEntries(n)...)
			return true
		}
		if checkpointClasses[n.ClassType] {
			if name, ok := literalString(n.Inputs["ckpt_name"]); ok {
				mf.Checkpoint = &NamedField{Name: StripModelExt(name), Confidence: ConfidenceHigh, Source: n.ClassType + ":" + n.ID + ":ckpt_name"}
			} else if name, ok := literalString(n.Inputs["unet_name"]); ok {
				mf.Checkpoint = &NamedField{Name: StripModelExt(name), Confidence: ConfidenceHigh, Source: n.ClassType + ":" + n.ID + ":unet_name"}
			}
			return false
		}
		return true
	})
	// reverse so the LoRA closest to the checkpoint comes first
	for i, j := 0, len(loras)-1; i < j; i, j = i+1, j-1 {
		loras[i], loras[j] = loras[j], loras[i]
	}
	mf.LoRAs = loras
	if mf.Checkpoint == nil && len(mf.LoRAs) == 0 {
		return nil
	}
	return mf
}

// isLoraNode reports whether n is a LoRA loader: either a known class, a
// class whose name contains "lora", or a custom node exposing a flat
// `lora_name` plus a linked `model` input (spec §4.6 step 8: "direct and
// rgthree 'Power Lora Loader' style multi-entry nodes").
func isLoraNode(n *Node) bool {
	if loraClasses[n.ClassType] {
		return true
	}
	if strings.Contains(strings.ToLower(n.ClassType), "lora") {
		return true
	}
	if _, ok := n.Inputs["lora_name"]; ok {
		if _, isLink := asLink(n.Inputs["model"]); isLink {
			return true
		}
	}
	return false
}

// collectLoraEntries extracts every LoRA applied by a LoRA-ish node: a flat
// `lora_name` input (the common single-LoRA loader shape) plus any
// `lora_1`/`lora_2`/... sub-object entries rgthree's "Power Lora Loader"
// stores multiple LoRAs under.
func collectLoraEntries(n *Node) []NamedField {
	var out []NamedField
	for k, v := range n.Inputs {
		if !strings.HasPrefix(strings.ToLower(k), "lora_") {
			continue
		}
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if on, ok := entry["on"].(bool); ok && !on {
			continue
		}
		name := firstNonEmptyString(entry["lora"], entry["lora_name"], entry["name"])
		if name == "" {
			continue
		}
		out = append(out, NamedField{
			Name:       StripModelExt(name),
			Confidence: ConfidenceHigh,
			Source:     n.ClassType + ":" + n.ID + ":" + k,
		})
	}
	if name, ok := literalString(n.Inputs["lora_name"]); ok && name != "" {
		out = append(out, NamedField{
			Name:       StripModelExt(name),
			Confidence: ConfidenceHigh,
			Source:     n.ClassType + ":" + n.ID + ":lora_name",
		})
	}
	return out
}

func firstNonEmptyString(vs ...any) string {
	for _, v := range vs {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func resolveCLIP(g *Graph, samplerNode *Node) *NamedField {
	v, ok := samplerNode.Inputs["positive"]
	if !ok {
		v, ok = samplerNode.Inputs["negative"]
	}
	if !ok {
		return nil
	}
	link, ok := asLink(v)
	if !ok {
		return nil
	}
	var found *NamedField
	g.walkUpstream(link.NodeID, func(n *Node, depth int) bool {
		if clipLoaderClasses[n.ClassType] {
			if name, ok := literalString(n.Inputs["clip_name"]); ok {
				found = &NamedField{Name: name, Confidence: ConfidenceMedium, Source: n.ClassType + ":" + n.ID + ":clip_name"}
				return false
			}
			if name, ok := literalString(n.Inputs["ckpt_name"]); ok {
				found = &NamedField{Name: name, Confidence: ConfidenceMedium, Source: n.ClassType + ":" + n.ID + ":ckpt_name"}
				return false
			}
		}
		return true
	})
	return found
}

func resolveVAE(g *Graph, sinkNode *Node) *NamedField {
	v, ok := sinkNode.Inputs["vae"]
	if !ok {
		return nil
	}
	link, ok := asLink(v)
	if !ok {
		return nil
	}
	var found *NamedField
	g.walkUpstream(link.NodeID, func(n *Node, depth int) bool {
		if vaeLoaderClasses[n.ClassType] {
			if name, ok := literalString(n.Inputs["vae_name"]); ok {
				found = &NamedField{Name: name, Confidence: ConfidenceMedium, Source: n.ClassType + ":" + n.ID + ":vae_name"}
				return false
			}
			if name, ok := literalString(n.Inputs["ckpt_name"]); ok {
				found = &NamedField{Name: name, Confidence: ConfidenceMedium, Source: n.ClassType + ":" + n.ID + ":ckpt_name"}
				return false
			}
		}
		return true
	})
	return found
}

func resolveSize(g *Graph, samplerNode *Node) *SizeField {
	v, ok := samplerNode.Inputs["latent_image"]
	if !ok {
		return nil
	}
	link, ok := asLink(v)
	if !ok {
		return nil
	}
	var size *SizeField
	g.walkUpstream(link.NodeID, func(n *Node, depth int) bool {
		switch n.ClassType {
		case "EmptyLatentImage", "EmptySD3LatentImage", "EmptyLatentAudio":
			w, wok := literalInt(n.Inputs["width"])
			h, hok := literalInt(n.Inputs["height"])
			if wok && hok {
				size = &SizeField{Width: w, Height: h, Confidence: ConfidenceHigh, Source: n.ClassType + ":" + n.ID}
				return false
			}
		case "LatentUpscale", "LatentUpscaleBy":
			w, wok := literalInt(n.Inputs["width"])
			h, hok := literalInt(n.Inputs["height"])
			if wok && hok && size == nil {
				size = &SizeField{Width: w, Height: h, Confidence: ConfidenceMedium, Source: n.ClassType + ":" + n.ID}
			}
		}
		return true
	})
	return size
}

var loaderClassRoles = map[string]string{
	"LoadImage":         "reference_image",
	"LoadImageMask":      "mask",
	"VHS_LoadVideo":      "source_video",
	"LoadVideo":          "source_video",
	"LoadAudio":          "source_audio",
	"LoadImageFromURL":   "reference_image",
}

var roleOverrideByConsumer = map[string]string{
	"ControlNetApply":       "controlnet",
	"ControlNetApplyAdvanced": "controlnet",
	"IPAdapterApply":        "style_reference",
	"IPAdapter":             "style_reference",
	"VAEEncode":             "image_to_image",
	"VAEEncodeForInpaint":   "inpaint_source",
}

// collectInputFiles scans the whole graph for loader nodes and infers each
// one's role from whatever downstream node actually consumes its output,
// rather than from the loader's class alone (a LoadImage feeding
// VAEEncode is an img2img source; the same class feeding ControlNetApply
// is a control reference).
func collectInputFiles(g *Graph) []InputFile {
	var out []InputFile
	for _, id := range g.Order {
		n := g.Nodes[id]
		role, isLoader := loaderClassRoles[n.ClassType]
		if !isLoader {
			continue
		}
		filename, _ := literalString(n.Inputs["image"])
		if filename == "" {
			filename, _ = literalString(n.Inputs["video"])
		}
		if filename == "" {
			filename, _ = literalString(n.Inputs["audio"])
		}
		if filename == "" {
			continue
		}

		g.walkDownstream(id, func(consumer *Node, depth int) bool {
			if depth == 0 {
				return true
			}
			if override, ok := roleOverrideByConsumer[consumer.ClassType]; ok {
				role = override
				return false
			}
			return depth < 2
		})

		out = append(out, InputFile{
			Filename: filename,
			NodeID:   id,
			Type:     "input",
			Role:     role,
		})
	}
	return out
}

// classifyWorkflowType assigns a short workflow-type code (spec §4.6 step
// 14) from the resolved shape of the graph: whether any loader-derived
// input file was found (image, video or audio), whether its primary sink is
// video/audio, and so on.
func classifyWorkflowType(g *Graph, sinkClass string, hasInputImage bool, denoise *Field) string {
	isVideo := sinkClass == "VHS_VideoCombine" || sinkClass == "VHS_SaveVideo" || sinkClass == "SaveVideo"
	isAudio := sinkClass == "SaveAudio" || sinkClass == "SaveAudioMP3" || sinkClass == "VAEDecodeAudio"

	partialDenoise := false
	if denoise != nil {
		if f, ok := literalFloat(denoise.Value); ok && f < 1.0 && f > 0 {
			partialDenoise = true
		}
	}

	switch {
	case isVideo && hasInputImage:
		return "I2V"
	case isVideo:
		return "T2V"
	case isAudio:
		return "T2A"
	case hasInputImage && partialDenoise:
		return "I2I"
	case hasInputImage:
		return "I2I"
	default:
		return "T2I"
	}
}
