// Package probes adapts two external command-line tools — an EXIF-like tag
// reader and a media container/stream prober — as black-box collaborators
// (spec §4.3, §6). Every call has a timeout and is classified into
// TOOL_MISSING / TIMEOUT / PARSE_ERROR / *_ERROR, mirroring the
// classify-by-outcome shape of internal/indexer/fetch/fetcher.go and
// internal/probe/probe.go in the teacher (HEAD-then-sniff, never panic on a
// weird response — just classify and move on).
package probes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/snapetech/mjrindex/internal/apperr"
)

// batchSemaphoreWeight bounds how many probe subprocesses run concurrently
// when a tool has no native batch mode (spec §4.3: "bounded parallel
// executor (≤4 concurrent probes)").
const batchSemaphoreWeight = 4

// runTool execs name with args, enforcing timeout, and classifies failures.
// stdout is returned on success; PARSE_ERROR is the caller's job once it
// tries to decode stdout.
func runTool(ctx context.Context, timeout time.Duration, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, apperr.Wrap(apperr.CodeToolMissing, name+" not found on PATH", err)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return nil, apperr.Wrap(apperr.CodeTimeout, name+" timed out", cctx.Err())
	}
	if err != nil {
		return nil, apperr.Wrap(codeForTool(name), fmt.Sprintf("%s failed: %s", name, stderr.String()), err)
	}
	return stdout.Bytes(), nil
}

func codeForTool(name string) apperr.Code {
	switch name {
	case "exiftool":
		return apperr.CodeExifToolErr
	case "ffprobe":
		return apperr.CodeFFProbeErr
	default:
		return apperr.CodeDBError // unreachable for the two known tools
	}
}

func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Wrap(apperr.CodeParseError, "malformed tool output", err)
	}
	return nil
}

// runBatch executes fn(path) for each path, bounded to batchSemaphoreWeight
// concurrent invocations, collecting a result per path. Used by adapters
// whose underlying tool has no native batch mode.
func runBatch[T any](ctx context.Context, paths []string, fn func(ctx context.Context, path string) (T, error)) map[string]Result[T] {
	out := make(map[string]Result[T], len(paths))
	sem := semaphore.NewWeighted(batchSemaphoreWeight)
	results := make(chan struct {
		path string
		res  Result[T]
	}, len(paths))

	for _, p := range paths {
		p := p
		if err := sem.Acquire(ctx, 1); err != nil {
			results <- struct {
				path string
				res  Result[T]
			}{p, Result[T]{Err: apperr.Wrap(apperr.CodeTimeout, "batch probe cancelled", err)}}
			continue
		}
		go func() {
			defer sem.Release(1)
			v, err := fn(ctx, p)
			results <- struct {
				path string
				res  Result[T]
			}{p, Result[T]{Value: v, Err: err}}
		}()
	}
	for range paths {
		r := <-results
		out[r.path] = r.res
	}
	return out
}

// Result is a per-path outcome in a batch call.
type Result[T any] struct {
	Value T
	Err   error
}
