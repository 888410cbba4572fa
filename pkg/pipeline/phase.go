// Package pipeline implements the resumable phase pipeline: content-addressed
// fingerprints, atomic file publication, the per-workspace manifest, the
// phase contract, and the runner that decides which phases to skip, run, or
// force on each invocation.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dubflow/dubflow/pkg/config"
)

// RunContext carries the per-invocation environment a phase runs in.
type RunContext struct {
	JobID     string
	Workspace string
	Config    *config.Config
}

// Result is what a successful or failed phase hands back to the runner.
// Outputs names the provided keys the phase actually wrote; the runner
// fingerprints and registers them.
type Result struct {
	Outputs  []string
	Metrics  map[string]any
	Warnings []string
}

// Outputs maps each key in a phase's Provides to the absolute path the
// runner pre-allocated for it. Phases must write to these paths and nowhere
// else under their provided keys.
type Outputs struct {
	paths map[string]string
}

// Path returns the allocated path for an artifact key.
func (o Outputs) Path(key string) (string, error) {
	p, ok := o.paths[key]
	if !ok {
		return "", fmt.Errorf("output path not allocated for artifact key %q", key)
	}
	return p, nil
}

// Phase is one stage of the pipeline. Version invalidates prior succeeded
// state when bumped.
type Phase interface {
	Name() string
	Version() string
	Requires() []string
	Provides() []string
	Run(ctx context.Context, rc *RunContext, inputs map[string]Artifact, outputs Outputs) (*Result, error)
}

// pathTemplates maps "domain.name" artifact keys to workspace-relative
// paths. {stem} is the episode stem (the workspace directory name).
var pathTemplates = map[string]string{
	"demux.audio":            "audio/{stem}.wav",
	"sep.vocals":             "audio/vocals.wav",
	"sep.accompaniment":      "audio/accompaniment.wav",
	"asr.raw_response":       "subs/asr-raw-response.json",
	"sub.subtitle_model":     "subs/subtitle.model.json",
	"sub.zh_srt":             "subs/zh.srt",
	"mt.mt_input":            "subs/mt_input.jsonl",
	"mt.mt_output":           "subs/mt_output.jsonl",
	"mt.translation_context": "subs/translation-context.json",
	"align.subtitle_align":   "subs/subtitle.align.json",
	"align.en_srt":           "subs/en.srt",
	"align.dub_model":        "dub/dub.model.json",
	"tts.report":             "tts/tts_report.json",
	"tts.segments":           "tts/segments.json",
	"mix.audio":              "audio/mix.wav",
	"burn.video":             "{stem}-dubbed.mp4",
}

// ArtifactPath resolves the workspace-relative path for an artifact key.
// Unknown keys fall back to "domain/name".
func ArtifactPath(key, workspace string) string {
	stem := filepath.Base(workspace)
	tpl, ok := pathTemplates[key]
	if !ok {
		tpl = strings.Replace(key, ".", "/", 1)
	}
	rel := strings.ReplaceAll(tpl, "{stem}", stem)
	return filepath.Join(workspace, rel)
}

// artifactKind guesses the artifact kind tag from the file extension.
func artifactKind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		return "json"
	case ".srt":
		return "srt"
	case ".wav":
		return "wav"
	case ".mp4":
		return "mp4"
	case ".mp3":
		return "mp3"
	default:
		return "file"
	}
}
