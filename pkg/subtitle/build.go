package subtitle

import (
	"fmt"
	"strings"
)

// BuildConfig aggregates the knobs of model construction.
type BuildConfig struct {
	SourceLang      string
	AudioDurationMs int
	Normalize       NormalizeConfig
	Cue             CueConfig
}

// DefaultBuildConfig returns the tuned defaults for a Chinese source.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		SourceLang: "zh",
		Normalize:  DefaultNormalizeConfig(),
		Cue:        DefaultCueConfig(),
	}
}

// Build constructs the Subtitle Model from a raw ASR response: extract the
// word stream, rebuild utterance boundaries from silences and speaker
// changes, then segment cues and compute per-utterance speech rates.
func Build(raw *RawResponse, cfg BuildConfig) (*Model, error) {
	words, genders := ExtractWords(raw)

	model := &Model{
		Schema: Schema{Name: ModelSchemaName, Version: ModelSchemaVersion},
	}
	if cfg.AudioDurationMs > 0 {
		model.Audio = &Audio{DurationMs: cfg.AudioDurationMs}
	}
	if len(words) == 0 {
		return model, nil
	}

	normalized := Normalize(words, cfg.Normalize, genders)

	idx := 0
	for i := range normalized {
		nu := &normalized[i]
		if strings.TrimSpace(nu.Text()) == "" {
			continue
		}
		cues := SegmentCues(nu.Words, cfg.SourceLang, cfg.Cue)
		if len(cues) == 0 {
			continue
		}
		idx++

		var emotion *Emotion
		gender := nu.Gender
		if add := UtteranceMetadata(raw, nu.StartMs, nu.EndMs); add != nil {
			if add.Emotion != "" {
				emotion = &Emotion{
					Label:      add.Emotion,
					Confidence: add.EmotionScore,
					Intensity:  add.EmotionDegree,
				}
			}
			if gender == "" {
				gender = add.Gender
			}
		}

		model.Utterances = append(model.Utterances, Utterance{
			UttID:      fmt.Sprintf("utt_%04d", idx),
			Speaker:    NormalizeSpeakerID(nu.Speaker),
			StartMs:    nu.StartMs,
			EndMs:      nu.EndMs,
			SpeechRate: SpeechRate{ZhTPS: ZhTPS(nu.Words)},
			Emotion:    emotion,
			Gender:     gender,
			Cues:       cues,
		})
	}

	if model.Audio == nil && len(model.Utterances) > 0 {
		last := model.Utterances[len(model.Utterances)-1]
		model.Audio = &Audio{DurationMs: last.EndMs}
	}
	return model, nil
}
