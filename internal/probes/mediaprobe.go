package probes

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/snapetech/mjrindex/internal/apperr"
)

// Stream is one media stream as reported by the prober.
type Stream struct {
	CodecType string         `json:"codec_type"`
	CodecName string         `json:"codec_name"`
	Width     int            `json:"width,omitempty"`
	Height    int            `json:"height,omitempty"`
	Duration  string         `json:"duration,omitempty"`
	Tags      map[string]any `json:"tags,omitempty"`
}

// Format is the container-level info block.
type Format struct {
	Duration string         `json:"duration,omitempty"`
	BitRate  string         `json:"bit_rate,omitempty"`
	Tags     map[string]any `json:"tags,omitempty"`
}

// ProbeResult is a normalized view of a media probe response (spec §6).
type ProbeResult struct {
	Format      Format   `json:"format"`
	Streams     []Stream `json:"streams"`
	VideoStream *Stream  `json:"-"`
	AudioStream *Stream  `json:"-"`
}

func (p *ProbeResult) resolveStreams() {
	for i := range p.Streams {
		s := &p.Streams[i]
		switch s.CodecType {
		case "video":
			if p.VideoStream == nil {
				p.VideoStream = s
			}
		case "audio":
			if p.AudioStream == nil {
				p.AudioStream = s
			}
		}
	}
}

// MediaProbe adapts an ffprobe-like external tool.
type MediaProbe struct {
	Binary  string // default "ffprobe"
	Timeout time.Duration
}

func NewMediaProbe(timeout time.Duration) *MediaProbe {
	return &MediaProbe{Binary: "ffprobe", Timeout: timeout}
}

func (p *MediaProbe) binary() string {
	if p.Binary == "" {
		return "ffprobe"
	}
	return p.Binary
}

func (p *MediaProbe) IsAvailable() bool {
	_, err := exec.LookPath(p.binary())
	return err == nil
}

// Read probes path and returns format + stream info.
func (p *MediaProbe) Read(ctx context.Context, path string) (*ProbeResult, error) {
	out, err := runTool(ctx, p.Timeout, p.binary(),
		"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	if err != nil {
		return nil, err
	}
	var res ProbeResult
	if err := decodeJSON(out, &res); err != nil {
		return nil, err
	}
	res.resolveStreams()
	return &res, nil
}

// ReadBatch probes many paths concurrently, at most batchSemaphoreWeight at
// a time within one call (ffprobe has no native multi-file batch mode).
func (p *MediaProbe) ReadBatch(ctx context.Context, paths []string) map[string]Result[*ProbeResult] {
	return runBatch(ctx, paths, func(ctx context.Context, path string) (*ProbeResult, error) {
		return p.Read(ctx, path)
	})
}

// GetDuration is a convenience accessor over Read.
func (p *MediaProbe) GetDuration(ctx context.Context, path string) (float64, error) {
	res, err := p.Read(ctx, path)
	if err != nil {
		return 0, err
	}
	return parseFloat(res.Format.Duration), nil
}

// GetResolution is a convenience accessor over Read.
func (p *MediaProbe) GetResolution(ctx context.Context, path string) (width, height int, err error) {
	res, err := p.Read(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	if res.VideoStream == nil {
		return 0, 0, apperr.New(apperr.CodeNotFound, "no video stream")
	}
	return res.VideoStream.Width, res.VideoStream.Height, nil
}

func parseFloat(s string) float64 {
	var f float64
	if s == "" {
		return 0
	}
	_, _ = fmt.Sscanf(s, "%g", &f)
	return f
}
