package dub

import (
	"math"
	"regexp"
	"strings"

	"github.com/dubflow/dubflow/pkg/subtitle"
)

// segmentPuncRe matches the punctuation positions English is cut at. The
// translation prompt induces punctuation at source pause positions, so
// these cuts land near the natural phrasing.
var segmentPuncRe = regexp.MustCompile(`[,.?!;:\x{2014}]+\s*`)

const (
	minChunkWords = 8
	maxChunkWords = 12
)

// ResegmentEnglish distributes the English text over the utterance window
// using a words-per-second model. Segment estimates are scaled so the
// whole text fits the window exactly; the last cue ends at endMs.
func ResegmentEnglish(enText string, startMs, endMs int, targetWPS float64) []subtitle.Cue {
	enText = strings.TrimSpace(enText)
	windowMs := endMs - startMs
	if enText == "" || windowMs <= 0 {
		return nil
	}

	parts := splitAtPunctuation(enText)
	if len(parts) == 1 && wordCount(parts[0]) > maxChunkWords {
		parts = chunkByWords(parts[0], windowMs, targetWPS)
	}

	// Estimate each part's duration, then scale the estimates so they sum
	// to the window exactly.
	estimates := make([]float64, len(parts))
	var sum float64
	for i, p := range parts {
		estimates[i] = math.Max(1, float64(wordCount(p))) / targetWPS * 1000.0
		sum += estimates[i]
	}
	scale := float64(windowMs) / sum

	cues := make([]subtitle.Cue, 0, len(parts))
	cursor := float64(startMs)
	for i, p := range parts {
		segStart := int(math.Round(cursor))
		cursor += estimates[i] * scale
		segEnd := int(math.Round(cursor))
		if i == len(parts)-1 {
			segEnd = endMs
		}
		if segEnd <= segStart {
			segEnd = segStart + 1
		}
		cues = append(cues, subtitle.Cue{
			StartMs: segStart,
			EndMs:   segEnd,
			Source:  subtitle.SourceText{Lang: "en", Text: p},
		})
	}
	cues[len(cues)-1].EndMs = endMs
	return cues
}

// splitAtPunctuation cuts after punctuation runs, keeping the punctuation
// with the preceding segment.
func splitAtPunctuation(text string) []string {
	var parts []string
	last := 0
	for _, loc := range segmentPuncRe.FindAllStringIndex(text, -1) {
		seg := strings.TrimSpace(text[last:loc[1]])
		if seg != "" {
			parts = append(parts, seg)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		parts = append(parts, tail)
	}
	if len(parts) == 0 {
		parts = []string{text}
	}
	return parts
}

// chunkByWords splits unpunctuated text into chunks of 8 to 12 words,
// sized so each chunk's spoken length roughly matches its share of the
// window.
func chunkByWords(text string, windowMs int, targetWPS float64) []string {
	words := strings.Fields(text)
	perChunk := int(math.Round(float64(windowMs) / 1000.0 * targetWPS / math.Ceil(float64(windowMs)/3000.0)))
	if perChunk < minChunkWords {
		perChunk = minChunkWords
	}
	if perChunk > maxChunkWords {
		perChunk = maxChunkWords
	}
	var chunks []string
	for i := 0; i < len(words); i += perChunk {
		end := i + perChunk
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// WordsPerSecond is the English speech rate over an utterance window.
func WordsPerSecond(enText string, windowMs int) float64 {
	if windowMs <= 0 {
		return 0
	}
	return float64(wordCount(enText)) / (float64(windowMs) / 1000.0)
}
