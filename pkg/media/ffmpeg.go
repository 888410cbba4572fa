package media

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ExtractAudio demuxes the video's audio track to 16 kHz mono PCM WAV.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	return f.ffmpeg(ctx,
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y", outPath,
	)
}

// ProbeDurationMs reads the container duration via ffprobe. Files ffprobe
// cannot time ("N/A" or empty output) report zero rather than an error.
func (f *FFmpeg) ProbeDurationMs(ctx context.Context, path string) (int, error) {
	out, err := f.Runner.Run(ctx, f.FFprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	s := strings.TrimSpace(string(out))
	if s == "" || s == "N/A" {
		return 0, nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("probe %s: bad duration %q: %w", path, s, err)
	}
	return int(math.Round(sec * 1000)), nil
}

// TrimSilence strips leading and trailing silence below -40 dB lasting at
// least 50 ms, leaving interior pauses intact.
func (f *FFmpeg) TrimSilence(ctx context.Context, inPath, outPath string) error {
	const filter = "silenceremove=" +
		"start_periods=1:start_duration=0.05:start_threshold=-40dB:detection=peak:" +
		"stop_periods=-1:stop_duration=0.05:stop_threshold=-40dB"
	return f.ffmpeg(ctx, "-i", inPath, "-af", filter, "-y", outPath)
}

// PadToDuration pads the clip with silence up to durMs and trims anything
// beyond it, so the output duration is exact.
func (f *FFmpeg) PadToDuration(ctx context.Context, inPath, outPath string, durMs int) error {
	sec := float64(durMs) / 1000.0
	filter := fmt.Sprintf("apad=whole_dur=%s,atrim=duration=%s", formatSec(sec), formatSec(sec))
	return f.ffmpeg(ctx, "-i", inPath, "-af", filter, "-y", outPath)
}

// AdjustTempo speeds the clip up (or down) by rate, then pads with silence
// to padMs when padMs > 0. Rates outside a single atempo stage's range are
// factored into a chain.
func (f *FFmpeg) AdjustTempo(ctx context.Context, inPath, outPath string, rate float64, padMs int) error {
	stages := AtempoStages(rate)
	if len(stages) == 0 {
		return fmt.Errorf("adjust tempo: rate %v out of range", rate)
	}
	parts := make([]string, 0, len(stages)+1)
	for _, r := range stages {
		parts = append(parts, fmt.Sprintf("atempo=%s", formatSec(r)))
	}
	if padMs > 0 {
		sec := float64(padMs) / 1000.0
		parts = append(parts, fmt.Sprintf("apad=whole_dur=%s,atrim=duration=%s", formatSec(sec), formatSec(sec)))
	}
	return f.ffmpeg(ctx, "-i", inPath, "-filter:a", strings.Join(parts, ","), "-y", outPath)
}

// AtempoStages factors a tempo ratio into atempo stages, each within the
// filter's [0.5, 2.0] range. Ratios already in range return a single stage.
func AtempoStages(rate float64) []float64 {
	if rate <= 0 {
		return nil
	}
	var stages []float64
	for rate > 2.0 {
		stages = append(stages, 2.0)
		rate /= 2.0
	}
	for rate < 0.5 {
		stages = append(stages, 0.5)
		rate /= 0.5
	}
	return append(stages, rate)
}

// Burn muxes the dubbed audio with the original video and burns the
// subtitle track into the picture.
func (f *FFmpeg) Burn(ctx context.Context, videoPath, audioPath, srtPath, outPath string) error {
	return f.ffmpeg(ctx,
		"-i", videoPath,
		"-i", audioPath,
		"-vf", fmt.Sprintf("subtitles=%s", escapeFilterPath(srtPath)),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-y", outPath,
	)
}

// escapeFilterPath escapes a path for use inside a filter argument, where
// backslashes and colons are syntax.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `\\`)
	return strings.ReplaceAll(p, ":", `\:`)
}

// formatSec renders a float without trailing zero noise.
func formatSec(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
