package phases

import (
	"context"
	"log/slog"

	"github.com/dubflow/dubflow/pkg/dub"
	"github.com/dubflow/dubflow/pkg/mt"
	"github.com/dubflow/dubflow/pkg/pipeline"
	"github.com/dubflow/dubflow/pkg/subtitle"
)

// Align maps the English translations onto the subtitle model's time
// skeleton and commits the dubbing manifest.
type Align struct {
	Log *slog.Logger
}

func (p *Align) Name() string       { return NameAlign }
func (p *Align) Version() string    { return "1.0" }
func (p *Align) Requires() []string { return []string{"sub.subtitle_model", "mt.mt_output"} }
func (p *Align) Provides() []string {
	return []string{"align.subtitle_align", "align.en_srt", "align.dub_model"}
}

func (p *Align) Run(ctx context.Context, rc *pipeline.RunContext, inputs map[string]pipeline.Artifact, outputs pipeline.Outputs) (*pipeline.Result, error) {
	modelPath, err := inputPath(rc, inputs, "sub.subtitle_model")
	if err != nil {
		return nil, err
	}
	model, err := subtitle.Load(modelPath)
	if err != nil {
		return nil, err
	}

	mtPath, err := inputPath(rc, inputs, "mt.mt_output")
	if err != nil {
		return nil, err
	}
	records, err := mt.ReadOutputs(mtPath)
	if err != nil {
		return nil, err
	}

	durMs := 0
	if model.Audio != nil {
		durMs = model.Audio.DurationMs
	}
	if durMs == 0 && len(model.Utterances) > 0 {
		durMs = model.Utterances[len(model.Utterances)-1].EndMs
	}

	cfg := dub.DefaultAlignConfig()
	cfg.TargetWPS = rc.Config.Float(NameAlign, "target_wps", cfg.TargetWPS)
	cfg.MaxRate = rc.Config.Float(NameAlign, "max_rate", cfg.MaxRate)
	cfg.AllowExtendMs = rc.Config.Int(NameAlign, "allow_extend_ms", cfg.AllowExtendMs)
	cfg.MinTTSWindowMs = rc.Config.Int(NameAlign, "min_tts_window_ms", cfg.MinTTSWindowMs)

	res, err := dub.Align(model, records, durMs, cfg, p.Log)
	if err != nil {
		return nil, err
	}

	alignPath, err := outputs.Path("align.subtitle_align")
	if err != nil {
		return nil, err
	}
	if err := pipeline.AtomicWriteJSON(res.Aligned, alignPath); err != nil {
		return nil, err
	}

	srtPath, err := outputs.Path("align.en_srt")
	if err != nil {
		return nil, err
	}
	if err := pipeline.AtomicWrite([]byte(subtitle.ModelSRT(res.Aligned)), srtPath); err != nil {
		return nil, err
	}

	dubPath, err := outputs.Path("align.dub_model")
	if err != nil {
		return nil, err
	}
	if err := res.Manifest.Save(dubPath); err != nil {
		return nil, err
	}

	return &pipeline.Result{
		Outputs:  []string{"align.subtitle_align", "align.en_srt", "align.dub_model"},
		Metrics:  map[string]any{"utterances": len(res.Manifest.Utterances)},
		Warnings: res.Warnings,
	}, nil
}
