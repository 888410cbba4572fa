package subtitle

import (
	"sort"
	"strings"
)

// NormalizeConfig controls utterance rebuilding. Silence is a first-class
// boundary: speech segments and pauses drive the cut points, not the
// recognizer's utterance list.
type NormalizeConfig struct {
	// SilenceSplitThresholdMs starts a new utterance at any word gap this
	// long or longer.
	SilenceSplitThresholdMs int
	// MinUtteranceDurationMs merges shorter chunks into a same-speaker
	// neighbour when the gap allows it.
	MinUtteranceDurationMs int
	// MaxUtteranceDurationMs re-splits longer chunks at smaller silences.
	MaxUtteranceDurationMs int
	// TrailingSilenceCapMs bounds how much trailing silence may be folded
	// into end_ms when KeepGapAsField is false.
	TrailingSilenceCapMs int
	// KeepGapAsField reports the trailing gap separately instead of
	// extending end_ms.
	KeepGapAsField bool
}

// maxMergeGapMs is the largest silence a short-chunk merge may cross.
const maxMergeGapMs = 1000

// DefaultNormalizeConfig returns the tuned defaults.
func DefaultNormalizeConfig() NormalizeConfig {
	return NormalizeConfig{
		SilenceSplitThresholdMs: 450,
		MinUtteranceDurationMs:  900,
		MaxUtteranceDurationMs:  8000,
		TrailingSilenceCapMs:    350,
		KeepGapAsField:          true,
	}
}

// NormalizedUtterance is a rebuilt speech unit before cue segmentation.
type NormalizedUtterance struct {
	StartMs    int
	EndMs      int
	Words      []Word
	Speaker    string
	Gender     string
	GapAfterMs int
}

// Text joins the word texts.
func (u *NormalizedUtterance) Text() string {
	var b strings.Builder
	for _, w := range u.Words {
		b.WriteString(w.Text)
	}
	return b.String()
}

// Normalize rebuilds utterance boundaries from word timestamps and
// silences. Speaker changes are hard boundaries. The algorithm is
// deterministic: split by silence, merge too-short chunks, re-split
// too-long chunks, then emit with the trailing-silence policy.
func Normalize(words []Word, cfg NormalizeConfig, genders map[string]string) []NormalizedUtterance {
	if len(words) == 0 {
		return nil
	}

	sorted := append([]Word(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartMs != sorted[j].StartMs {
			return sorted[i].StartMs < sorted[j].StartMs
		}
		return sorted[i].EndMs < sorted[j].EndMs
	})

	chunks := splitBySilence(sorted, cfg.SilenceSplitThresholdMs)
	chunks = mergeShortChunks(chunks, cfg.MinUtteranceDurationMs)
	chunks = splitLongChunks(chunks, cfg.MaxUtteranceDurationMs, cfg.SilenceSplitThresholdMs/2)

	return buildUtterances(chunks, cfg, genders)
}

// splitBySilence starts a new chunk at every gap at or above the threshold
// and at every speaker change between two non-empty speakers.
func splitBySilence(words []Word, thresholdMs int) [][]Word {
	if len(words) == 0 {
		return nil
	}
	var chunks [][]Word
	current := []Word{words[0]}
	for i := 1; i < len(words); i++ {
		prev, curr := words[i-1], words[i]
		gap := curr.StartMs - prev.EndMs
		speakerChanged := curr.Speaker != "" && prev.Speaker != "" && curr.Speaker != prev.Speaker
		if gap >= thresholdMs || speakerChanged {
			chunks = append(chunks, current)
			current = []Word{curr}
		} else {
			current = append(current, curr)
		}
	}
	return append(chunks, current)
}

func chunkDuration(chunk []Word) int {
	if len(chunk) == 0 {
		return 0
	}
	return chunk[len(chunk)-1].EndMs - chunk[0].StartMs
}

func chunkSpeaker(chunk []Word) string {
	for _, w := range chunk {
		if w.Speaker != "" {
			return w.Speaker
		}
	}
	return ""
}

func gapBetween(prev, next []Word) int {
	if len(prev) == 0 || len(next) == 0 {
		return 0
	}
	return next[0].StartMs - prev[len(prev)-1].EndMs
}

// canMerge holds only when both chunks carry the same speaker and the gap
// between them stays within maxMergeGapMs. Merges never cross a bigger
// silence or a speaker change.
func canMerge(prev, next []Word) bool {
	if len(prev) == 0 || len(next) == 0 {
		return false
	}
	if chunkSpeaker(prev) != chunkSpeaker(next) {
		return false
	}
	return gapBetween(prev, next) <= maxMergeGapMs
}

// mergeShortChunks folds too-short chunks into the earlier neighbour first,
// then sweeps the last and first chunks for residual violations.
func mergeShortChunks(chunks [][]Word, minDurationMs int) [][]Word {
	if len(chunks) == 0 {
		return nil
	}
	var result [][]Word
	for _, chunk := range chunks {
		switch {
		case chunkDuration(chunk) >= minDurationMs:
			result = append(result, chunk)
		case len(result) > 0 && canMerge(result[len(result)-1], chunk):
			result[len(result)-1] = append(result[len(result)-1], chunk...)
		default:
			result = append(result, chunk)
		}
	}
	for len(result) > 1 {
		last := result[len(result)-1]
		if chunkDuration(last) < minDurationMs && canMerge(result[len(result)-2], last) {
			result[len(result)-2] = append(result[len(result)-2], last...)
			result = result[:len(result)-1]
		} else {
			break
		}
	}
	for len(result) > 1 {
		first := result[0]
		if chunkDuration(first) < minDurationMs && canMerge(first, result[1]) {
			result[1] = append(append([]Word(nil), first...), result[1]...)
			result = result[1:]
		} else {
			break
		}
	}
	return result
}

// splitLongChunks re-splits over-long chunks at a smaller silence
// threshold; a sub-chunk still over the limit is hard-split at its largest
// internal gap.
func splitLongChunks(chunks [][]Word, maxDurationMs, secondaryThresholdMs int) [][]Word {
	var result [][]Word
	for _, chunk := range chunks {
		if chunkDuration(chunk) <= maxDurationMs {
			result = append(result, chunk)
			continue
		}
		for _, sub := range splitBySilence(chunk, secondaryThresholdMs) {
			if chunkDuration(sub) <= maxDurationMs {
				result = append(result, sub)
			} else {
				result = append(result, hardSplitChunk(sub, maxDurationMs)...)
			}
		}
	}
	return result
}

// hardSplitChunk is the last resort: once the running duration reaches the
// limit, cut at the largest word gap seen so far.
func hardSplitChunk(chunk []Word, maxDurationMs int) [][]Word {
	if len(chunk) == 0 {
		return nil
	}
	var result [][]Word
	var current []Word
	currentStart := chunk[0].StartMs

	for _, word := range chunk {
		current = append(current, word)
		if word.EndMs-currentStart >= maxDurationMs && len(current) > 1 {
			split := bestSplitPoint(current)
			if split > 0 {
				result = append(result, current[:split:split])
				current = append([]Word(nil), current[split:]...)
				currentStart = current[0].StartMs
			}
		}
	}
	if len(current) > 0 {
		result = append(result, current)
	}
	return result
}

// bestSplitPoint returns the index after the largest internal gap.
func bestSplitPoint(words []Word) int {
	if len(words) <= 1 {
		return 0
	}
	maxGap := -1
	best := len(words) / 2
	for i := 1; i < len(words); i++ {
		if gap := words[i].StartMs - words[i-1].EndMs; gap > maxGap {
			maxGap = gap
			best = i
		}
	}
	return best
}

func buildUtterances(chunks [][]Word, cfg NormalizeConfig, genders map[string]string) []NormalizedUtterance {
	var utterances []NormalizedUtterance
	for i, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		speaker := chunkSpeaker(chunk)
		startMs := chunk[0].StartMs
		endMs := chunk[len(chunk)-1].EndMs

		gapAfter := 0
		if i < len(chunks)-1 && len(chunks[i+1]) > 0 {
			gapAfter = chunks[i+1][0].StartMs - endMs
		}
		if !cfg.KeepGapAsField {
			trailing := min(gapAfter, cfg.TrailingSilenceCapMs)
			endMs += trailing
			gapAfter = max(0, gapAfter-trailing)
		}

		utterances = append(utterances, NormalizedUtterance{
			StartMs:    startMs,
			EndMs:      endMs,
			Words:      chunk,
			Speaker:    speaker,
			Gender:     genders[speaker],
			GapAfterMs: gapAfter,
		})
	}
	return utterances
}

// ZhTPS computes the source speaking rate: valid token count divided by the
// union of word intervals in seconds. Words with non-positive duration or
// blank text are discarded; a zero union yields zero.
func ZhTPS(words []Word) float64 {
	type interval struct{ start, end int }
	var valid []Word
	for _, w := range words {
		if w.StartMs >= 0 && w.EndMs >= 0 && w.StartMs < w.EndMs && strings.TrimSpace(w.Text) != "" {
			valid = append(valid, w)
		}
	}
	if len(valid) == 0 {
		return 0
	}

	intervals := make([]interval, len(valid))
	for i, w := range valid {
		intervals[i] = interval{w.StartMs, w.EndMs}
	}
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].start != intervals[j].start {
			return intervals[i].start < intervals[j].start
		}
		return intervals[i].end < intervals[j].end
	})

	merged := intervals[:1]
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if iv.start <= last.end {
			last.end = max(last.end, iv.end)
		} else {
			merged = append(merged, iv)
		}
	}

	totalMs := 0
	for _, iv := range merged {
		totalMs += iv.end - iv.start
	}
	if totalMs <= 0 {
		return 0
	}

	tokens := 0
	for _, w := range valid {
		tokens += len([]rune(strings.TrimSpace(w.Text)))
	}
	return float64(tokens) / (float64(totalMs) / 1000.0)
}
