package dub

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dubflow/dubflow/pkg/mt"
	"github.com/dubflow/dubflow/pkg/subtitle"
)

// AlignConfig carries the alignment and synthesis-policy knobs.
type AlignConfig struct {
	// TargetWPS is the words-per-second model used to re-segment English
	// inside the utterance window.
	TargetWPS float64
	// MaxRate is the default tempo ceiling for synthesis.
	MaxRate float64
	// AllowExtendMs is the default window extension allowance.
	AllowExtendMs int
	// MinTTSWindowMs raises the extension allowance for utterances whose
	// budget falls below it.
	MinTTSWindowMs int
	// MaxExtendCapMs bounds the raised allowance.
	MaxExtendCapMs int
}

// DefaultAlignConfig returns the tuned defaults.
func DefaultAlignConfig() AlignConfig {
	return AlignConfig{
		TargetWPS:      2.5,
		MaxRate:        1.3,
		AllowExtendMs:  500,
		MinTTSWindowMs: 900,
		MaxExtendCapMs: 1500,
	}
}

// AlignResult is the full alignment outcome.
type AlignResult struct {
	// Aligned is the English view of the subtitle model.
	Aligned *subtitle.Model
	// Manifest is the dubbing manifest.
	Manifest *Manifest
	Warnings []string
}

// Align maps the translated English onto the subtitle model's time
// skeleton. Utterance windows are never extended here: the window is fixed
// at the ASR-derived value, and long English is the synthesizer's problem
// within its policy bounds. Extending windows per utterance compounds
// across an episode and pushes total audio past the video.
func Align(m *subtitle.Model, outputs []mt.OutputRecord, audioDurationMs int, cfg AlignConfig, log *slog.Logger) (*AlignResult, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(m.Utterances) == 0 {
		return nil, fmt.Errorf("no utterances in subtitle model")
	}
	byUtt := make(map[string]mt.OutputRecord, len(outputs))
	for _, rec := range outputs {
		byUtt[rec.UttID] = rec
	}
	if len(byUtt) == 0 {
		return nil, fmt.Errorf("no translations in mt output")
	}

	res := &AlignResult{
		Aligned: &subtitle.Model{
			Schema: subtitle.Schema{Name: subtitle.AlignSchemaName, Version: subtitle.AlignSchemaVersion},
			Audio:  &subtitle.Audio{DurationMs: audioDurationMs},
		},
		Manifest: &Manifest{AudioDurationMs: audioDurationMs},
	}

	for i := range m.Utterances {
		u := &m.Utterances[i]
		rec, ok := byUtt[u.UttID]
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: no translation, skipped", u.UttID))
			log.Warn("translation missing", "utt", u.UttID)
			continue
		}
		enText := strings.TrimSpace(rec.Target.Text)
		if enText == "" || isPunctuationOnly(enText) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: empty or punctuation-only translation, skipped", u.UttID))
			continue
		}
		if strings.Contains(enText, "<<NAME_") {
			return nil, fmt.Errorf("%s: name placeholder leaked into aligned text: %q", u.UttID, enText)
		}

		cues := ResegmentEnglish(enText, u.StartMs, u.EndMs, cfg.TargetWPS)
		if len(cues) == 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: produced no cues, skipped", u.UttID))
			continue
		}

		budgetMs := u.EndMs - u.StartMs
		res.Aligned.Utterances = append(res.Aligned.Utterances, subtitle.Utterance{
			UttID:   u.UttID,
			Speaker: u.Speaker,
			StartMs: u.StartMs,
			EndMs:   u.EndMs,
			SpeechRate: subtitle.SpeechRate{
				ZhTPS: u.SpeechRate.ZhTPS,
				EnWPS: WordsPerSecond(enText, budgetMs),
			},
			Emotion: u.Emotion,
			Gender:  u.Gender,
			Cues:    cues,
		})

		res.Manifest.Utterances = append(res.Manifest.Utterances, Utterance{
			UttID:     u.UttID,
			StartMs:   u.StartMs,
			EndMs:     u.EndMs,
			BudgetMs:  budgetMs,
			TextZh:    u.Text(),
			TextEn:    enText,
			Speaker:   u.Speaker,
			TTSPolicy: policyFor(budgetMs, cfg),
			Emotion:   u.Emotion,
			Gender:    u.Gender,
		})
	}

	if len(res.Manifest.Utterances) == 0 {
		return nil, fmt.Errorf("alignment produced no utterances")
	}
	return res, nil
}

// policyFor derives the synthesis policy for one utterance. Utterances
// shorter than the minimum window get a raised extension allowance, since
// a sub-second window cannot hold natural speech at any legal rate.
func policyFor(budgetMs int, cfg AlignConfig) TTSPolicy {
	allow := cfg.AllowExtendMs
	if budgetMs < cfg.MinTTSWindowMs {
		need := cfg.MinTTSWindowMs - budgetMs
		if need < cfg.AllowExtendMs {
			need = cfg.AllowExtendMs
		}
		if need > cfg.MaxExtendCapMs {
			need = cfg.MaxExtendCapMs
		}
		allow = need
	}
	return TTSPolicy{MaxRate: cfg.MaxRate, AllowExtendMs: allow}
}

func isPunctuationOnly(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
