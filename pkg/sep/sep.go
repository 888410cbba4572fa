// Package sep splits an audio track into vocals and accompaniment by
// invoking the source separator as a subprocess.
package sep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dubflow/dubflow/pkg/media"
)

// Separator wraps the demucs command line tool.
type Separator struct {
	// Bin is the executable, "demucs" on PATH by default.
	Bin string
	// Model selects the separation model.
	Model  string
	Runner media.Runner
	Log    *slog.Logger
}

// New returns a separator bound to the htdemucs model.
func New(log *slog.Logger) *Separator {
	if log == nil {
		log = slog.Default()
	}
	return &Separator{
		Bin:    "demucs",
		Model:  "htdemucs",
		Runner: &media.ExecRunner{Log: log},
		Log:    log,
	}
}

// Separate produces the two stems for inputPath under outDir and returns
// their paths. The separator lays its output at
// {outDir}/{model}/{stem}/vocals.wav plus either accompaniment.wav or
// no_vocals.wav; existing non-empty outputs are reused without rerunning
// the model.
func (s *Separator) Separate(ctx context.Context, inputPath, outDir string) (vocals, accompaniment string, err error) {
	if _, err := os.Stat(inputPath); err != nil {
		return "", "", fmt.Errorf("separate: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", fmt.Errorf("separate: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	modelDir := filepath.Join(outDir, s.Model, stem)

	if v, a, ok := stemsAt(modelDir); ok {
		s.Log.Info("reusing separated stems", "dir", modelDir)
		return v, a, nil
	}

	_, err = s.Runner.Run(ctx, s.Bin,
		"--two-stems=vocals",
		"--name", s.Model,
		"-o", outDir,
		inputPath,
	)
	if err != nil {
		return "", "", fmt.Errorf("separate %s: %w", inputPath, err)
	}

	v, a, ok := stemsAt(modelDir)
	if !ok {
		return "", "", fmt.Errorf("separate %s: separator produced no stems under %s", inputPath, modelDir)
	}
	return v, a, nil
}

// stemsAt reports the stem paths under dir when both exist and are
// non-empty. The accompaniment file may be named no_vocals.wav.
func stemsAt(dir string) (vocals, accompaniment string, ok bool) {
	vocals = filepath.Join(dir, "vocals.wav")
	if !nonEmpty(vocals) {
		return "", "", false
	}
	for _, name := range []string{"accompaniment.wav", "no_vocals.wav"} {
		p := filepath.Join(dir, name)
		if nonEmpty(p) {
			return vocals, p, true
		}
	}
	return "", "", false
}

func nonEmpty(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}
