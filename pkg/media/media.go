// Package media wraps the ffmpeg and ffprobe command line tools behind a
// small operation set: audio extraction, duration probing, silence
// trimming, tempo adjustment, timeline mixing and subtitle burn-in.
//
// Every operation goes through a Runner so tests can substitute a fake
// and assert on the exact argument vectors.
package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Log *slog.Logger
}

var _ Runner = (*ExecRunner)(nil)

// Run executes the command and returns its stdout. On failure the error
// carries the tail of stderr, which is where ffmpeg reports diagnostics.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.Log != nil {
		r.Log.Debug("exec", "cmd", name, "args", strings.Join(args, " "))
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), 1000))
	}
	return stdout.Bytes(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// FFmpeg is the handle for all media operations.
type FFmpeg struct {
	// FFmpegBin and FFprobeBin default to "ffmpeg" and "ffprobe" on PATH.
	FFmpegBin  string
	FFprobeBin string
	Runner     Runner
	Log        *slog.Logger
}

// New returns an FFmpeg bound to the system binaries.
func New(log *slog.Logger) *FFmpeg {
	if log == nil {
		log = slog.Default()
	}
	return &FFmpeg{
		FFmpegBin:  "ffmpeg",
		FFprobeBin: "ffprobe",
		Runner:     &ExecRunner{Log: log},
		Log:        log,
	}
}

func (f *FFmpeg) ffmpeg(ctx context.Context, args ...string) error {
	_, err := f.Runner.Run(ctx, f.FFmpegBin, args...)
	return err
}
