// Package subtitle builds and validates the Subtitle Model, the single
// source of truth for an episode's speech timeline. The model is rebuilt
// from ASR word-level timestamps; the recognizer's own utterance boundaries
// are never trusted. Downstream phases read the model, only the sub phase
// writes it.
package subtitle

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Schema names and versions of the persisted documents.
const (
	ModelSchemaName    = "subtitle.model"
	ModelSchemaVersion = "1.3"
	AlignSchemaName    = "subtitle.align"
	AlignSchemaVersion = "1.3"
)

// Schema identifies a persisted document shape.
type Schema struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Audio carries audio metadata for the episode.
type Audio struct {
	DurationMs int `json:"duration_ms"`
}

// SourceText is a language-tagged text.
type SourceText struct {
	Lang string `json:"lang"`
	Text string `json:"text"`
}

// Emotion is an optional TTS style hint aggregated per utterance.
type Emotion struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
	Intensity  string   `json:"intensity,omitempty"`
}

// SpeechRate holds the speaking rate. ZhTPS is measured from ASR words;
// EnWPS is filled in by alignment for the English rendering.
type SpeechRate struct {
	// ZhTPS is tokens per second over the union of word intervals.
	ZhTPS float64 `json:"zh_tps"`
	EnWPS float64 `json:"en_wps,omitempty"`
}

// Cue is one subtitle entry inside an utterance. Its position within the
// parent utterance is its identity.
type Cue struct {
	StartMs int        `json:"start_ms"`
	EndMs   int        `json:"end_ms"`
	Source  SourceText `json:"source"`
}

// Utterance is a continuous speech unit rebuilt from words and silences.
type Utterance struct {
	UttID      string     `json:"utt_id"`
	Speaker    string     `json:"speaker"`
	StartMs    int        `json:"start_ms"`
	EndMs      int        `json:"end_ms"`
	SpeechRate SpeechRate `json:"speech_rate"`
	Emotion    *Emotion   `json:"emotion,omitempty"`
	Gender     string     `json:"gender,omitempty"`
	Cues       []Cue      `json:"cues"`
}

// Text concatenates the utterance's cue texts.
func (u *Utterance) Text() string {
	var b strings.Builder
	for _, c := range u.Cues {
		b.WriteString(c.Source.Text)
	}
	return b.String()
}

// DurationMs is the utterance's time window length.
func (u *Utterance) DurationMs() int {
	return u.EndMs - u.StartMs
}

// Model is the Subtitle Model document.
type Model struct {
	Schema     Schema      `json:"schema"`
	Audio      *Audio      `json:"audio,omitempty"`
	Utterances []Utterance `json:"utterances"`
}

// Load reads and validates a model document.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load subtitle model: %w", err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse subtitle model %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the structural invariants: cue coverage of the utterance
// window, cue ordering, and utterance non-overlap.
func (m *Model) Validate() error {
	for i := range m.Utterances {
		u := &m.Utterances[i]
		if len(u.Cues) == 0 {
			return fmt.Errorf("utterance %s has no cues", u.UttID)
		}
		if u.StartMs != u.Cues[0].StartMs {
			return fmt.Errorf("utterance %s start_ms %d != first cue start %d",
				u.UttID, u.StartMs, u.Cues[0].StartMs)
		}
		// The window may extend past the last cue when trailing silence
		// is folded in, but never ends before it.
		last := u.Cues[len(u.Cues)-1]
		if u.EndMs < last.EndMs {
			return fmt.Errorf("utterance %s end_ms %d < last cue end %d",
				u.UttID, u.EndMs, last.EndMs)
		}
		for j := 1; j < len(u.Cues); j++ {
			if u.Cues[j-1].EndMs > u.Cues[j].StartMs {
				return fmt.Errorf("utterance %s cues %d and %d overlap", u.UttID, j-1, j)
			}
		}
		if i > 0 && m.Utterances[i-1].EndMs > u.StartMs {
			return fmt.Errorf("utterances %s and %s overlap",
				m.Utterances[i-1].UttID, u.UttID)
		}
	}
	return nil
}
