package probes

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/snapetech/mjrindex/internal/apperr"
)

// TagReader adapts an exiftool-like external tool: read embedded tags
// (EXIF/XMP/IPTC-ish key-value pairs) and write a small set of fields back.
type TagReader struct {
	Binary  string // default "exiftool"
	Timeout time.Duration
}

func NewTagReader(timeout time.Duration) *TagReader {
	return &TagReader{Binary: "exiftool", Timeout: timeout}
}

// IsAvailable reports whether the tag-reader binary is on PATH.
func (r *TagReader) IsAvailable() bool {
	_, err := exec.LookPath(r.binary())
	return err == nil
}

func (r *TagReader) binary() string {
	if r.Binary == "" {
		return "exiftool"
	}
	return r.Binary
}

// Read returns all tags for path, or only the requested tags if non-empty.
func (r *TagReader) Read(ctx context.Context, path string, tags []string) (map[string]any, error) {
	args := []string{"-json", "-G1", "-n"}
	for _, t := range tags {
		args = append(args, "-"+t)
	}
	args = append(args, path)
	out, err := runTool(ctx, r.Timeout, r.binary(), args...)
	if err != nil {
		return nil, err
	}
	var arr []map[string]any
	if err := decodeJSON(out, &arr); err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return nil, apperr.New(apperr.CodeParseError, "exiftool returned no entries")
	}
	return arr[0], nil
}

// ReadBatch reads tags for many paths, using exiftool's native multi-file
// support (a single invocation returns one JSON object per file) rather than
// the bounded parallel executor, since exiftool batches natively.
func (r *TagReader) ReadBatch(ctx context.Context, paths []string, tags []string) map[string]Result[map[string]any] {
	out := make(map[string]Result[map[string]any], len(paths))
	if len(paths) == 0 {
		return out
	}
	args := []string{"-json", "-G1", "-n"}
	for _, t := range tags {
		args = append(args, "-"+t)
	}
	args = append(args, paths...)
	data, err := runTool(ctx, r.Timeout, r.binary(), args...)
	if err != nil {
		for _, p := range paths {
			out[p] = Result[map[string]any]{Err: err}
		}
		return out
	}
	var arr []map[string]any
	if err := decodeJSON(data, &arr); err != nil {
		for _, p := range paths {
			out[p] = Result[map[string]any]{Err: err}
		}
		return out
	}
	byFile := make(map[string]map[string]any, len(arr))
	for _, entry := range arr {
		if sf, ok := entry["SourceFile"].(string); ok {
			byFile[sf] = entry
		}
	}
	for _, p := range paths {
		if entry, ok := byFile[p]; ok {
			out[p] = Result[map[string]any]{Value: entry}
		} else {
			out[p] = Result[map[string]any]{Err: apperr.New(apperr.CodeParseError, "no entry for "+p)}
		}
	}
	return out
}

// Write writes fields back to path's tags with -overwrite_original, naming
// only the given fields. preserveWorkflow does not change the invocation:
// the same arguments are passed whether it is true or false.
func (r *TagReader) Write(ctx context.Context, path string, fields map[string]string, preserveWorkflow bool) error {
	args := []string{"-overwrite_original"}
	for k, v := range fields {
		args = append(args, fmt.Sprintf("-%s=%s", k, v))
	}
	args = append(args, path)
	_, err := runTool(ctx, r.Timeout, r.binary(), args...)
	return err
}
