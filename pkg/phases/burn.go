package phases

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dubflow/dubflow/pkg/media"
	"github.com/dubflow/dubflow/pkg/pipeline"
)

// Burn renders the deliverable: original video frames, the mixed English
// track, and the English subtitles burned in.
type Burn struct {
	Media *media.FFmpeg
	Log   *slog.Logger
}

func (p *Burn) Name() string       { return NameBurn }
func (p *Burn) Version() string    { return "1.0" }
func (p *Burn) Requires() []string { return []string{"mix.audio", "align.en_srt"} }
func (p *Burn) Provides() []string { return []string{"burn.video"} }

func (p *Burn) Run(ctx context.Context, rc *pipeline.RunContext, inputs map[string]pipeline.Artifact, outputs pipeline.Outputs) (*pipeline.Result, error) {
	mixPath, err := inputPath(rc, inputs, "mix.audio")
	if err != nil {
		return nil, err
	}
	srtPath, err := inputPath(rc, inputs, "align.en_srt")
	if err != nil {
		return nil, err
	}

	outPath, err := outputs.Path("burn.video")
	if err != nil {
		return nil, err
	}
	if err := p.Media.Burn(ctx, rc.Config.VideoPath, mixPath, srtPath, outPath); err != nil {
		return nil, err
	}

	fi, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("burn output: %w", err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("burn produced an empty video")
	}

	return &pipeline.Result{
		Outputs: []string{"burn.video"},
		Metrics: map[string]any{"size_bytes": fi.Size()},
	}, nil
}
