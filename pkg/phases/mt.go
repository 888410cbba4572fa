package phases

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dubflow/dubflow/pkg/mt"
	"github.com/dubflow/dubflow/pkg/pipeline"
	"github.com/dubflow/dubflow/pkg/subtitle"
)

// MT translates the subtitle model utterance by utterance under each
// utterance's time budget. The name dictionary persists across runs as the
// translation-context artifact so renderings stay stable within a series.
type MT struct {
	Log *slog.Logger
}

func (p *MT) Name() string       { return NameMT }
func (p *MT) Version() string    { return "1.0" }
func (p *MT) Requires() []string { return []string{"sub.subtitle_model"} }
func (p *MT) Provides() []string {
	return []string{"mt.mt_input", "mt.mt_output", "mt.translation_context"}
}

func (p *MT) Run(ctx context.Context, rc *pipeline.RunContext, inputs map[string]pipeline.Artifact, outputs pipeline.Outputs) (*pipeline.Result, error) {
	modelPath, err := inputPath(rc, inputs, "sub.subtitle_model")
	if err != nil {
		return nil, err
	}
	model, err := subtitle.Load(modelPath)
	if err != nil {
		return nil, err
	}

	fn, err := mt.NewTranslateFunc(ctx, mt.ClientConfig{
		Engine:      rc.Config.Str(NameMT, "engine", ""),
		Model:       rc.Config.Str(NameMT, "model", "gpt-4o"),
		Temperature: rc.Config.Float(NameMT, "temperature", 0.3),
	})
	if err != nil {
		return nil, err
	}

	ctxPath, err := outputs.Path("mt.translation_context")
	if err != nil {
		return nil, err
	}
	names := mt.LoadNameMap(ctxPath)
	guard := mt.NewNameGuard(names.Names())
	for _, n := range splitList(rc.Config.Str(NameMT, "names", "")) {
		guard.AddName(n)
	}

	var glossary *mt.Glossary
	if gp := rc.Config.Str(NameMT, "glossary_path", ""); gp != "" {
		glossary, err = mt.LoadGlossary(gp)
		if err != nil {
			return nil, err
		}
	} else {
		glossary = mt.NewGlossary(rc.Config.StrMap(NameMT, "glossary"))
	}

	var episode strings.Builder
	for i := range model.Utterances {
		episode.WriteString(model.Utterances[i].Text())
		episode.WriteString("\n")
	}

	tr := &mt.Translator{
		Fn:       fn,
		Names:    names,
		Guard:    guard,
		Glossary: glossary,
		Context: mt.PromptContext{
			EpisodeContext: episode.String(),
			PlotOverview:   rc.Config.Str(NameMT, "plot_overview", ""),
			GlossaryText:   glossary.Text(),
		},
		MaxRetries: rc.Config.Int(NameMT, "max_retries", 3),
		Log:        p.Log,
	}

	res, err := tr.TranslateModel(model, pipeline.EpisodeStem(rc.Workspace))
	if err != nil {
		return nil, err
	}

	inPath, err := outputs.Path("mt.mt_input")
	if err != nil {
		return nil, err
	}
	if err := mt.WriteInputs(inPath, res.Inputs); err != nil {
		return nil, err
	}
	outPath, err := outputs.Path("mt.mt_output")
	if err != nil {
		return nil, err
	}
	if err := mt.WriteOutputs(outPath, res.Outputs); err != nil {
		return nil, err
	}
	if err := names.Save(); err != nil {
		return nil, err
	}

	return &pipeline.Result{
		Outputs:  []string{"mt.mt_input", "mt.mt_output", "mt.translation_context"},
		Metrics:  map[string]any{"translated": len(res.Outputs), "names": len(names.Names())},
		Warnings: res.Warnings,
	}, nil
}
