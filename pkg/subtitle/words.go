package subtitle

import (
	"fmt"
	"sort"
	"strings"
)

// Word is a single recognized token with its time span.
type Word struct {
	StartMs int
	EndMs   int
	Text    string
	Speaker string
}

// punctuation that the recognizer places at utterance level only.
const puncChars = "，。！？、；：,.!?;:\"'（）()【】[]《》<>…—- "

// RawWord is the provider word record inside a raw ASR response.
type RawWord struct {
	StartTime int              `json:"start_time"`
	EndTime   int              `json:"end_time"`
	Text      string           `json:"text"`
	Additions *RawUttAdditions `json:"additions,omitempty"`
}

// RawUttAdditions carries speaker and emotion metadata on a raw utterance.
type RawUttAdditions struct {
	Speaker       string   `json:"speaker,omitempty"`
	Gender        string   `json:"gender,omitempty"`
	Emotion       string   `json:"emotion,omitempty"`
	EmotionScore  *float64 `json:"emotion_score,omitempty"`
	EmotionDegree string   `json:"emotion_degree,omitempty"`
}

// RawUtterance is the provider utterance record. Its boundaries are used
// only as evidence for words, punctuation, and metadata.
type RawUtterance struct {
	StartTime int              `json:"start_time"`
	EndTime   int              `json:"end_time"`
	Text      string           `json:"text"`
	Words     []RawWord        `json:"words,omitempty"`
	Additions *RawUttAdditions `json:"additions,omitempty"`
}

// RawResponse is the provider-raw ASR document kept as an evidence
// artifact.
type RawResponse struct {
	Result *RawResult `json:"result,omitempty"`
}

// RawResult wraps the utterance list of a raw response.
type RawResult struct {
	Text       string         `json:"text,omitempty"`
	Utterances []RawUtterance `json:"utterances,omitempty"`
}

// ExtractWords flattens a raw ASR response into a globally time-sorted word
// list plus a speaker-to-gender map. The recognizer's utterance boundaries
// are discarded; utterance-level punctuation is attached to the word it
// follows. Words with empty text or non-positive duration are dropped
// later by the rate computation, not here, so cue text stays faithful.
func ExtractWords(raw *RawResponse) ([]Word, map[string]string) {
	var words []Word
	genders := map[string]string{}
	if raw == nil || raw.Result == nil {
		return words, genders
	}

	for _, utt := range raw.Result.Utterances {
		defaultSpeaker := "0"
		if utt.Additions != nil && utt.Additions.Speaker != "" {
			defaultSpeaker = utt.Additions.Speaker
		}
		if utt.Additions != nil && utt.Additions.Gender != "" {
			if _, seen := genders[defaultSpeaker]; !seen {
				genders[defaultSpeaker] = strings.TrimSpace(utt.Additions.Gender)
			}
		}
		if len(utt.Words) == 0 {
			continue
		}

		enriched := attachTrailingPunctuation(utt.Text, utt.Words)
		for i, w := range utt.Words {
			text := enriched[i]
			if text == "" {
				continue
			}
			speaker := defaultSpeaker
			if w.Additions != nil && w.Additions.Speaker != "" {
				speaker = w.Additions.Speaker
			}
			end := w.EndTime
			if end == 0 {
				end = w.StartTime
			}
			words = append(words, Word{
				StartMs: w.StartTime,
				EndMs:   end,
				Text:    text,
				Speaker: speaker,
			})
		}
	}

	sort.SliceStable(words, func(i, j int) bool {
		if words[i].StartMs != words[j].StartMs {
			return words[i].StartMs < words[j].StartMs
		}
		return words[i].EndMs < words[j].EndMs
	})
	return words, genders
}

// attachTrailingPunctuation walks the utterance text and the word texts in
// parallel; punctuation immediately following a matched word in the
// utterance text is appended to that word. Unmatched words keep their text
// untouched.
func attachTrailingPunctuation(uttText string, words []RawWord) []string {
	result := make([]string, len(words))
	for i, w := range words {
		result[i] = strings.TrimSpace(w.Text)
	}
	if uttText == "" {
		return result
	}

	runes := []rune(uttText)
	pos := 0
	for idx, wt := range result {
		if wt == "" {
			continue
		}
		wRunes := []rune(wt)
		found := -1
		for scan := pos; scan+len(wRunes) <= len(runes); scan++ {
			if runes[scan] != wRunes[0] {
				continue
			}
			if string(runes[scan:scan+len(wRunes)]) == wt {
				found = scan
				break
			}
		}
		if found < 0 {
			continue
		}
		pos = found + len(wRunes)

		var trailing []rune
		for pos < len(runes) && strings.ContainsRune(puncChars, runes[pos]) {
			trailing = append(trailing, runes[pos])
			pos++
		}
		if len(trailing) > 0 {
			result[idx] = wt + string(trailing)
		}
	}
	return result
}

// UtteranceMetadata looks up emotion and gender for a rebuilt utterance by
// picking the raw utterance with the largest time overlap.
func UtteranceMetadata(raw *RawResponse, startMs, endMs int) *RawUttAdditions {
	if raw == nil || raw.Result == nil {
		return nil
	}
	bestOverlap := 0
	var best *RawUttAdditions
	for i := range raw.Result.Utterances {
		utt := &raw.Result.Utterances[i]
		lo := max(startMs, utt.StartTime)
		hi := min(endMs, utt.EndTime)
		if overlap := hi - lo; overlap > bestOverlap {
			bestOverlap = overlap
			best = utt.Additions
		}
	}
	return best
}

// NormalizeSpeakerID maps a raw speaker id to the canonical "spk_<n>" form.
func NormalizeSpeakerID(speaker string) string {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		return "spk_0"
	}
	if strings.HasPrefix(speaker, "spk_") {
		return speaker
	}
	return fmt.Sprintf("spk_%s", speaker)
}
