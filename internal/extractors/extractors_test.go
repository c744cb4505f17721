package extractors

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"strings"
	"testing"
)

func TestParseAuto1111(t *testing.T) {
	text := "a cat\nNegative prompt: lowres\nSteps: 20, Sampler: Euler a, CFG scale: 7.0, Seed: 1234567890, Size: 512x512, Model: sd_xl_base"
	p := ParseAuto1111(text)
	if p.Prompt != "a cat" {
		t.Fatalf("prompt = %q", p.Prompt)
	}
	if p.NegativePrompt != "lowres" {
		t.Fatalf("negative = %q", p.NegativePrompt)
	}
	if p.Steps == nil || *p.Steps != 20 {
		t.Fatalf("steps = %+v", p.Steps)
	}
	if p.Sampler != "Euler a" {
		t.Fatalf("sampler = %q", p.Sampler)
	}
	if p.CFG == nil || *p.CFG != 7.0 {
		t.Fatalf("cfg = %+v", p.CFG)
	}
	if p.Seed == nil || *p.Seed != 1234567890 {
		t.Fatalf("seed = %+v", p.Seed)
	}
	if p.Width == nil || *p.Width != 512 || p.Height == nil || *p.Height != 512 {
		t.Fatalf("size = %+v/%+v", p.Width, p.Height)
	}
	if p.Model != "sd_xl_base" {
		t.Fatalf("model = %q", p.Model)
	}
}

func TestCanonicalizeTags(t *testing.T) {
	in := []string{"Cat", "cat", "  Dog ", "", "x"}
	for i := 0; i < 110; i++ {
		in = append(in, "pad")
	}
	longTag := ""
	for i := 0; i < 101; i++ {
		longTag += "a"
	}
	in = append(in, longTag)

	out := CanonicalizeTags(in)
	if len(out) > maxTagCount {
		t.Fatalf("expected cap at %d, got %d", maxTagCount, len(out))
	}
	seen := map[string]bool{}
	for _, tg := range out {
		lower := strings.ToLower(tg)
		if seen[lower] {
			t.Fatalf("duplicate tag %q", tg)
		}
		seen[lower] = true
		if len(tg) > maxTagLength {
			t.Fatalf("tag over length limit: %q", tg)
		}
	}
}

func TestExtractRatingPercent(t *testing.T) {
	tags := map[string]any{"XMP-microsoft:RatingPercent": float64(90)}
	r, ok := ExtractRating(tags)
	if !ok || r != 5 {
		t.Fatalf("rating = %d, ok=%v", r, ok)
	}
}

func TestExtractRatingThresholds(t *testing.T) {
	cases := map[float64]int{99: 5, 88: 5, 70: 4, 63: 4, 50: 3, 38: 3, 20: 2, 13: 2, 5: 1, 0: 0}
	for pct, want := range cases {
		got := percentToStars(pct)
		if got != want {
			t.Fatalf("percentToStars(%v) = %d, want %d", pct, got, want)
		}
	}
}

func TestDecodeCandidatePlainJSON(t *testing.T) {
	raw, ok := decodeCandidate(`{"a":1}`)
	if !ok || string(raw) != `{"a":1}` {
		t.Fatalf("decodeCandidate plain failed: %v %v", raw, ok)
	}
}

func TestDecodeCandidateBase64(t *testing.T) {
	payload := `{"nodes":[{"id":1,"type":"KSampler"}],"links":[]}`
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	raw, ok := decodeCandidate(encoded)
	if !ok {
		t.Fatalf("expected base64 payload to decode")
	}
	if !isWorkflowShape(raw) {
		t.Fatalf("expected workflow shape")
	}
}

func TestDecodeCandidateZlib(t *testing.T) {
	payload := []byte(`{"1":{"class_type":"KSampler","inputs":{}}}`)
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(payload)
	zw.Close()
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	raw, ok := decodeCandidate(encoded)
	if !ok {
		t.Fatalf("expected zlib payload to decode")
	}
	if !isPromptGraphShape(raw) {
		t.Fatalf("expected prompt graph shape")
	}
}

func TestScanTagsForGraphsRejectsAmbiguous(t *testing.T) {
	tags := map[string]any{"Foo": `{"bar": 1}`}
	wf, pr := ScanTagsForGraphs(tags)
	if wf != nil || pr != nil {
		t.Fatalf("expected no shape match, got wf=%v pr=%v", wf, pr)
	}
}

func TestExtractImagePNGParameters(t *testing.T) {
	exif := map[string]any{
		"PNG:Parameters":  "a cat\nNegative prompt: lowres\nSteps: 20, Sampler: Euler a, CFG scale: 7.0, Seed: 1234567890, Size: 512x512, Model: sd_xl_base",
		"EXIF:ImageWidth":  float64(512),
		"EXIF:ImageHeight": float64(512),
	}
	rec := ExtractImage(exif, ".png")
	if rec.Parameters == "" {
		t.Fatalf("expected parameters to be captured")
	}
	if rec.Width == nil || *rec.Width != 512 {
		t.Fatalf("width = %+v", rec.Width)
	}
	if rec.Quality != QualityPartial {
		t.Fatalf("quality = %v", rec.Quality)
	}
}
