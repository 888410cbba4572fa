// Package dub aligns English translations onto the subtitle model's time
// skeleton and commits the dubbing manifest consumed by synthesis and
// mixing.
package dub

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dubflow/dubflow/pkg/subtitle"
)

// TTSPolicy bounds what synthesis may do to fit an utterance.
type TTSPolicy struct {
	// MaxRate is the largest allowed tempo multiplier.
	MaxRate float64 `json:"max_rate"`
	// AllowExtendMs is the extra time the utterance may steal from the
	// following gap.
	AllowExtendMs int `json:"allow_extend_ms"`
}

// Utterance is one dubbing unit of the manifest.
type Utterance struct {
	UttID     string            `json:"utt_id"`
	StartMs   int               `json:"start_ms"`
	EndMs     int               `json:"end_ms"`
	BudgetMs  int               `json:"budget_ms"`
	TextZh    string            `json:"text_zh"`
	TextEn    string            `json:"text_en"`
	Speaker   string            `json:"speaker"`
	TTSPolicy TTSPolicy         `json:"tts_policy"`
	Emotion   *subtitle.Emotion `json:"emotion,omitempty"`
	Gender    string            `json:"gender,omitempty"`
}

// Manifest is the DubManifest written by align and read by tts and mix.
type Manifest struct {
	AudioDurationMs int         `json:"audio_duration_ms"`
	Utterances      []Utterance `json:"utterances"`
}

// LoadManifest reads a dub manifest document.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load dub manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse dub manifest %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the manifest with stable formatting.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dub manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save dub manifest: %w", err)
	}
	return nil
}
