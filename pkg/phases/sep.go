package phases

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/dubflow/dubflow/pkg/pipeline"
	"github.com/dubflow/dubflow/pkg/sep"
)

// Sep separates the demuxed audio into vocal and accompaniment stems.
type Sep struct {
	Separator *sep.Separator
	Log       *slog.Logger
}

func (p *Sep) Name() string       { return NameSep }
func (p *Sep) Version() string    { return "1.0" }
func (p *Sep) Requires() []string { return []string{"demux.audio"} }
func (p *Sep) Provides() []string { return []string{"sep.vocals", "sep.accompaniment"} }

func (p *Sep) Run(ctx context.Context, rc *pipeline.RunContext, inputs map[string]pipeline.Artifact, outputs pipeline.Outputs) (*pipeline.Result, error) {
	audioPath, err := inputPath(rc, inputs, "demux.audio")
	if err != nil {
		return nil, err
	}

	if model := rc.Config.Str(NameSep, "model", ""); model != "" {
		p.Separator.Model = model
	}

	// The separator lays its stems under its own model/stem hierarchy;
	// the published artifacts are flat copies at stable paths.
	workDir := filepath.Join(rc.Workspace, "audio", "separated")
	vocals, accomp, err := p.Separator.Separate(ctx, audioPath, workDir)
	if err != nil {
		return nil, err
	}

	vocalsOut, err := outputs.Path("sep.vocals")
	if err != nil {
		return nil, err
	}
	accompOut, err := outputs.Path("sep.accompaniment")
	if err != nil {
		return nil, err
	}
	if err := pipeline.AtomicCopy(vocals, vocalsOut); err != nil {
		return nil, err
	}
	if err := pipeline.AtomicCopy(accomp, accompOut); err != nil {
		return nil, err
	}

	return &pipeline.Result{
		Outputs: []string{"sep.vocals", "sep.accompaniment"},
		Metrics: map[string]any{"model": p.Separator.Model},
	}, nil
}
