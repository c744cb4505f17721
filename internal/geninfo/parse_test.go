package geninfo

import (
	"encoding/json"
	"testing"
)

func simplePromptGraph() []byte {
	graph := map[string]any{
		"1": map[string]any{
			"class_type": "CheckpointLoaderSimple",
			"inputs":     map[string]any{"ckpt_name": "sd_xl_base.safetensors"},
		},
		"2": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "a cat on a rug", "clip": []any{"1", 1}},
		},
		"3": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "blurry, low quality", "clip": []any{"1", 1}},
		},
		"4": map[string]any{
			"class_type": "EmptyLatentImage",
			"inputs":     map[string]any{"width": float64(512), "height": float64(768), "batch_size": float64(1)},
		},
		"5": map[string]any{
			"class_type": "KSampler",
			"inputs": map[string]any{
				"model":        []any{"1", 0},
				"positive":     []any{"2", 0},
				"negative":     []any{"3", 0},
				"latent_image": []any{"4", 0},
				"seed":         float64(12345),
				"steps":        float64(20),
				"cfg":          float64(7.5),
				"sampler_name": "euler",
				"scheduler":    "normal",
				"denoise":      float64(1.0),
			},
		},
		"6": map[string]any{
			"class_type": "VAEDecode",
			"inputs":     map[string]any{"samples": []any{"5", 0}, "vae": []any{"1", 2}},
		},
		"7": map[string]any{
			"class_type": "SaveImage",
			"inputs":     map[string]any{"images": []any{"6", 0}},
		},
	}
	b, _ := json.Marshal(graph)
	return b
}

func TestParseSimplePromptGraph(t *testing.T) {
	gi, err := Parse(simplePromptGraph())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if gi.Positive == nil || gi.Positive.Value != "a cat on a rug" {
		t.Fatalf("positive = %+v", gi.Positive)
	}
	if gi.Negative == nil || gi.Negative.Value != "blurry, low quality" {
		t.Fatalf("negative = %+v", gi.Negative)
	}
	if gi.Sampler == nil || gi.Sampler.Name != "euler" {
		t.Fatalf("sampler = %+v", gi.Sampler)
	}
	if gi.Steps == nil || gi.Steps.Value != float64(20) {
		t.Fatalf("steps = %+v", gi.Steps)
	}
	if gi.Size == nil || gi.Size.Width != 512 || gi.Size.Height != 768 {
		t.Fatalf("size = %+v", gi.Size)
	}
	if gi.Checkpoint == nil || gi.Checkpoint.Name != "sd_xl_base" {
		t.Fatalf("checkpoint = %+v", gi.Checkpoint)
	}
	if gi.WorkflowType != "T2I" {
		t.Fatalf("workflow type = %q", gi.WorkflowType)
	}
	if gi.Status != nil {
		t.Fatalf("expected no status, got %+v", gi.Status)
	}
}

func TestParseMediaPipelineNoSampler(t *testing.T) {
	graph := map[string]any{
		"1": map[string]any{
			"class_type": "LoadImage",
			"inputs":     map[string]any{"image": "input.png"},
		},
		"2": map[string]any{
			"class_type": "ImageScale",
			"inputs":     map[string]any{"image": []any{"1", 0}, "width": float64(1024), "height": float64(1024)},
		},
		"3": map[string]any{
			"class_type": "SaveImage",
			"inputs":     map[string]any{"images": []any{"2", 0}},
		},
	}
	b, _ := json.Marshal(graph)
	gi, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if gi.Status == nil || gi.Status["kind"] != "media_pipeline" {
		t.Fatalf("expected media_pipeline status, got %+v", gi.Status)
	}
	if len(gi.InputFiles) != 1 || gi.InputFiles[0].Filename != "input.png" {
		t.Fatalf("input files = %+v", gi.InputFiles)
	}
}

func TestParseRejectsAmbiguousShape(t *testing.T) {
	b := []byte(`{"foo": "bar", "baz": 1}`)
	if _, err := Parse(b); err == nil {
		t.Fatalf("expected error for unrecognized shape")
	}
}

func TestParseLoraChain(t *testing.T) {
	graph := map[string]any{
		"1": map[string]any{
			"class_type": "CheckpointLoaderSimple",
			"inputs":     map[string]any{"ckpt_name": "base.safetensors"},
		},
		"2": map[string]any{
			"class_type": "LoraLoader",
			"inputs":     map[string]any{"model": []any{"1", 0}, "clip": []any{"1", 1}, "lora_name": "style.safetensors", "strength_model": float64(0.8), "strength_clip": float64(0.8)},
		},
		"3": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "portrait", "clip": []any{"2", 1}},
		},
		"4": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "", "clip": []any{"2", 1}},
		},
		"5": map[string]any{
			"class_type": "EmptyLatentImage",
			"inputs":     map[string]any{"width": float64(1024), "height": float64(1024)},
		},
		"6": map[string]any{
			"class_type": "KSampler",
			"inputs": map[string]any{
				"model": []any{"2", 0}, "positive": []any{"3", 0}, "negative": []any{"4", 0},
				"latent_image": []any{"5", 0}, "seed": float64(1), "steps": float64(30),
				"cfg": float64(6), "sampler_name": "dpmpp_2m", "scheduler": "karras", "denoise": float64(1),
			},
		},
		"7": map[string]any{
			"class_type": "VAEDecode",
			"inputs":     map[string]any{"samples": []any{"6", 0}, "vae": []any{"1", 2}},
		},
		"8": map[string]any{
			"class_type": "SaveImage",
			"inputs":     map[string]any{"images": []any{"7", 0}},
		},
	}
	b, _ := json.Marshal(graph)
	gi, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if gi.Models == nil || gi.Models.Checkpoint == nil || gi.Models.Checkpoint.Name != "base" {
		t.Fatalf("models.checkpoint = %+v", gi.Models)
	}
	if len(gi.Models.LoRAs) != 1 || gi.Models.LoRAs[0].Name != "style" {
		t.Fatalf("models.loras = %+v", gi.Models.LoRAs)
	}
}

func TestParseEmptyObjectReturnsNil(t *testing.T) {
	gi, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse({}): unexpected error %v", err)
	}
	if gi != nil {
		t.Fatalf("Parse({}) = %+v, want nil (Ok(None))", gi)
	}
}

func TestParseMediaPipelineWorkflowMetadataTakesPriority(t *testing.T) {
	graph := map[string]any{
		"nodes": []any{
			map[string]any{"id": float64(1), "type": "LoadImage", "inputs": []any{}},
			map[string]any{"id": float64(2), "type": "SaveImage", "inputs": []any{
				map[string]any{"name": "images", "link": float64(1)},
			}},
		},
		"links": []any{
			[]any{float64(1), float64(1), float64(0), float64(2), float64(0), float64(0)},
		},
		"extra": map[string]any{"title": "my workflow", "author": "someone"},
	}
	b, _ := json.Marshal(graph)
	gi, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if gi.Status != nil {
		t.Fatalf("expected no status when workflow extra metadata is present, got %+v", gi.Status)
	}
	if gi.Metadata == nil || gi.Metadata["title"] != "my workflow" || gi.Metadata["author"] != "someone" {
		t.Fatalf("metadata = %+v", gi.Metadata)
	}
}

func TestParseRgthreePowerLoraLoader(t *testing.T) {
	graph := map[string]any{
		"1": map[string]any{
			"class_type": "CheckpointLoaderSimple",
			"inputs":     map[string]any{"ckpt_name": "base.safetensors"},
		},
		"2": map[string]any{
			"class_type": "Power Lora Loader (rgthree)",
			"inputs": map[string]any{
				"model": []any{"1", 0}, "clip": []any{"1", 1},
				"lora_1": map[string]any{"on": true, "lora": "first.safetensors", "strength": float64(0.9)},
				"lora_2": map[string]any{"on": false, "lora": "disabled.safetensors"},
				"lora_3": map[string]any{"on": true, "lora": "second.safetensors", "strength": float64(0.5)},
			},
		},
		"3": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "portrait", "clip": []any{"2", 1}},
		},
		"4": map[string]any{
			"class_type": "CLIPTextEncode",
			"inputs":     map[string]any{"text": "", "clip": []any{"2", 1}},
		},
		"5": map[string]any{
			"class_type": "EmptyLatentImage",
			"inputs":     map[string]any{"width": float64(1024), "height": float64(1024)},
		},
		"6": map[string]any{
			"class_type": "KSampler",
			"inputs": map[string]any{
				"model": []any{"2", 0}, "positive": []any{"3", 0}, "negative": []any{"4", 0},
				"latent_image": []any{"5", 0}, "seed": float64(1), "steps": float64(30),
				"cfg": float64(6), "sampler_name": "dpmpp_2m", "scheduler": "karras", "denoise": float64(1),
			},
		},
		"7": map[string]any{
			"class_type": "VAEDecode",
			"inputs":     map[string]any{"samples": []any{"6", 0}, "vae": []any{"1", 2}},
		},
		"8": map[string]any{
			"class_type": "SaveImage",
			"inputs":     map[string]any{"images": []any{"7", 0}},
		},
	}
	b, _ := json.Marshal(graph)
	gi, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if gi.Models == nil {
		t.Fatalf("models = nil")
	}
	var names []string
	for _, l := range gi.Models.LoRAs {
		names = append(names, l.Name)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 enabled loras, got %+v", names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	if !seen["first"] || !seen["second"] {
		t.Fatalf("expected first/second loras, got %+v", names)
	}
	if seen["disabled"] {
		t.Fatalf("disabled lora entry must be skipped, got %+v", names)
	}
}
