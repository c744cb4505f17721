package metadata

import (
	"testing"

	"github.com/snapetech/mjrindex/internal/extractors"
)

func TestGenInfoFromAuto1111(t *testing.T) {
	steps := 20
	cfg := 7.0
	seed := int64(1234567890)
	width, height := 512, 512
	p := extractors.Auto1111Params{
		Prompt:         "a cat",
		NegativePrompt: "lowres",
		Steps:          &steps,
		Sampler:        "Euler a",
		CFG:            &cfg,
		Seed:           &seed,
		Width:          &width,
		Height:         &height,
		Model:          "sd_xl_base",
	}
	gi := genInfoFromAuto1111(p)
	if gi.Positive == nil || gi.Positive.Value != "a cat" {
		t.Fatalf("positive = %+v", gi.Positive)
	}
	if gi.Negative == nil || gi.Negative.Value != "lowres" {
		t.Fatalf("negative = %+v", gi.Negative)
	}
	if gi.Sampler == nil || gi.Sampler.Name != "Euler a" {
		t.Fatalf("sampler = %+v", gi.Sampler)
	}
	if gi.Steps == nil || gi.Steps.Value != float64(20) {
		t.Fatalf("steps = %+v", gi.Steps)
	}
	if gi.CFG == nil || gi.CFG.Value != 7.0 {
		t.Fatalf("cfg = %+v", gi.CFG)
	}
	if gi.Seed == nil || gi.Seed.Value != float64(1234567890) {
		t.Fatalf("seed = %+v", gi.Seed)
	}
	if gi.Size == nil || gi.Size.Width != 512 || gi.Size.Height != 512 {
		t.Fatalf("size = %+v", gi.Size)
	}
	if gi.Checkpoint == nil || gi.Checkpoint.Name != "sd_xl_base" {
		t.Fatalf("checkpoint = %+v", gi.Checkpoint)
	}
	if gi.Positive.Confidence != "high" || gi.Positive.Source != "parameters" {
		t.Fatalf("positive confidence/source = %q/%q", gi.Positive.Confidence, gi.Positive.Source)
	}
}
