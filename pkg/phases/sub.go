package phases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dubflow/dubflow/pkg/media"
	"github.com/dubflow/dubflow/pkg/pipeline"
	"github.com/dubflow/dubflow/pkg/subtitle"
)

// Sub rebuilds the Subtitle Model from the raw ASR response. The model is
// the single source of truth for the episode's speech timeline; every
// downstream phase reads it and only this phase writes it.
type Sub struct {
	Media *media.FFmpeg
	Log   *slog.Logger
}

func (p *Sub) Name() string       { return NameSub }
func (p *Sub) Version() string    { return "1.0" }
func (p *Sub) Requires() []string { return []string{"asr.raw_response", "demux.audio"} }
func (p *Sub) Provides() []string { return []string{"sub.subtitle_model", "sub.zh_srt"} }

func (p *Sub) Run(ctx context.Context, rc *pipeline.RunContext, inputs map[string]pipeline.Artifact, outputs pipeline.Outputs) (*pipeline.Result, error) {
	rawPath, err := inputPath(rc, inputs, "asr.raw_response")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(rawPath)
	if err != nil {
		return nil, fmt.Errorf("read raw response: %w", err)
	}
	var raw subtitle.RawResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse raw response: %w", err)
	}

	audioPath, err := inputPath(rc, inputs, "demux.audio")
	if err != nil {
		return nil, err
	}
	durMs, err := p.Media.ProbeDurationMs(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	cfg := subtitle.DefaultBuildConfig()
	cfg.SourceLang = rc.Config.Str(NameSub, "source_lang", cfg.SourceLang)
	cfg.AudioDurationMs = durMs

	model, err := subtitle.Build(&raw, cfg)
	if err != nil {
		return nil, err
	}
	if len(model.Utterances) == 0 {
		return nil, fmt.Errorf("raw response produced no utterances")
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("built model invalid: %w", err)
	}

	modelPath, err := outputs.Path("sub.subtitle_model")
	if err != nil {
		return nil, err
	}
	if err := pipeline.AtomicWriteJSON(model, modelPath); err != nil {
		return nil, err
	}

	srtPath, err := outputs.Path("sub.zh_srt")
	if err != nil {
		return nil, err
	}
	if err := pipeline.AtomicWrite([]byte(subtitle.ModelSRT(model)), srtPath); err != nil {
		return nil, err
	}

	cues := 0
	for i := range model.Utterances {
		cues += len(model.Utterances[i].Cues)
	}
	return &pipeline.Result{
		Outputs: []string{"sub.subtitle_model", "sub.zh_srt"},
		Metrics: map[string]any{"utterances": len(model.Utterances), "cues": cues},
	}, nil
}
