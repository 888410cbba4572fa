package phases

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dubflow/dubflow/pkg/media"
	"github.com/dubflow/dubflow/pkg/pipeline"
)

// Demux extracts the episode's audio track as 16 kHz mono PCM.
type Demux struct {
	Media *media.FFmpeg
	Log   *slog.Logger
}

func (p *Demux) Name() string       { return NameDemux }
func (p *Demux) Version() string    { return "1.0" }
func (p *Demux) Requires() []string { return nil }
func (p *Demux) Provides() []string { return []string{"demux.audio"} }

func (p *Demux) Run(ctx context.Context, rc *pipeline.RunContext, _ map[string]pipeline.Artifact, outputs pipeline.Outputs) (*pipeline.Result, error) {
	video := rc.Config.VideoPath
	if video == "" {
		return nil, fmt.Errorf("no video path configured")
	}
	if _, err := os.Stat(video); err != nil {
		return nil, fmt.Errorf("video file: %w", err)
	}

	outPath, err := outputs.Path("demux.audio")
	if err != nil {
		return nil, err
	}
	if err := p.Media.ExtractAudio(ctx, video, outPath); err != nil {
		return nil, err
	}

	fi, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("demux output: %w", err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("demux produced an empty audio file")
	}

	durMs, err := p.Media.ProbeDurationMs(ctx, outPath)
	if err != nil {
		return nil, err
	}
	if durMs == 0 {
		return nil, fmt.Errorf("demux output has no measurable duration")
	}

	return &pipeline.Result{
		Outputs: []string{"demux.audio"},
		Metrics: map[string]any{"duration_ms": durMs, "size_bytes": fi.Size()},
	}, nil
}
