package subtitle

import (
	"strings"
	"unicode"
)

// CueConfig bounds cue segmentation inside one utterance.
type CueConfig struct {
	// MaxChars is the character ceiling of a single cue.
	MaxChars int
	// MaxDurMs is the duration ceiling of a single cue.
	MaxDurMs int
	// HardPunc always forces a cut after the word carrying it.
	HardPunc string
	// SoftPunc may be used as a cut point when MaxChars would be exceeded.
	SoftPunc string
	// SoftGapMs cuts at any perceptible pause between words. Cuts are
	// irreversible; this stage never merges.
	SoftGapMs int
}

// DefaultCueConfig returns the tuned defaults.
func DefaultCueConfig() CueConfig {
	return CueConfig{
		MaxChars:  18,
		MaxDurMs:  2800,
		HardPunc:  "。！？；",
		SoftPunc:  "，",
		SoftGapMs: 400,
	}
}

// SegmentCues cuts an utterance's words into cues. Hard punctuation and
// perceptible pauses always cut; soft punctuation and a character-count
// fallback keep cues under MaxChars; the duration ceiling re-splits what
// remains. Cues cover the utterance exactly and never overlap.
func SegmentCues(words []Word, lang string, cfg CueConfig) []Cue {
	if len(words) == 0 {
		return nil
	}

	var cues []Cue
	var current []Word
	currentChars := 0
	lastSoft := -1 // index into current after which soft punctuation sits

	flush := func(upto int) {
		// upto is exclusive; the remainder stays in current.
		if upto <= 0 {
			return
		}
		seg := current[:upto]
		cues = append(cues, Cue{
			StartMs: seg[0].StartMs,
			EndMs:   seg[len(seg)-1].EndMs,
			Source:  SourceText{Lang: lang, Text: joinWords(seg)},
		})
		rest := append([]Word(nil), current[upto:]...)
		current = rest
		currentChars = 0
		for _, w := range current {
			currentChars += len([]rune(w.Text))
		}
		lastSoft = -1
	}

	for i, w := range words {
		wChars := len([]rune(w.Text))

		// Character ceiling: prefer the last soft punctuation cut, fall
		// back to cutting right here.
		if len(current) > 0 && currentChars+wChars > cfg.MaxChars {
			if lastSoft > 0 {
				flush(lastSoft)
			} else {
				flush(len(current))
			}
		}
		// Duration ceiling.
		if len(current) > 0 && w.EndMs-current[0].StartMs > cfg.MaxDurMs {
			flush(len(current))
		}

		current = append(current, w)
		currentChars += wChars

		trimmed := strings.TrimRightFunc(w.Text, unicode.IsSpace)
		switch {
		case endsWithAny(trimmed, cfg.HardPunc):
			flush(len(current))
		case endsWithAny(trimmed, cfg.SoftPunc):
			lastSoft = len(current)
		}

		// Axis-first: a perceptible pause is a cut.
		if len(current) > 0 && i+1 < len(words) {
			if gap := words[i+1].StartMs - w.EndMs; gap >= cfg.SoftGapMs {
				flush(len(current))
			}
		}
	}
	flush(len(current))
	return cues
}

func joinWords(words []Word) string {
	var b strings.Builder
	for _, w := range words {
		b.WriteString(w.Text)
	}
	return b.String()
}

func endsWithAny(s, set string) bool {
	if s == "" || set == "" {
		return false
	}
	runes := []rune(s)
	return strings.ContainsRune(set, runes[len(runes)-1])
}
