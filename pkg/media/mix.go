package media

import (
	"context"
	"fmt"
	"strings"
)

// MixSegment is one synthesized clip placed on the output timeline.
type MixSegment struct {
	Path    string
	StartMs int
}

// MixSpec describes a timeline mix. Synthesized segments are delayed to
// their start positions and mixed over the separated background, with the
// original vocals either ducked under the new speech or muted entirely.
type MixSpec struct {
	// VideoPath supplies the fallback audio bed when separated stems are
	// missing.
	VideoPath string
	Segments  []MixSegment
	// AccompanimentPath and VocalsPath are the separated stems. Either may
	// be empty.
	AccompanimentPath string
	VocalsPath        string

	// TargetDurationMs is the authoritative output duration.
	TargetDurationMs int

	// MuteOriginal drops the original vocals from the mix. Ducking
	// compresses them under the synthesized speech instead.
	MuteOriginal bool
	Ducking      bool

	TTSVolume           float64
	AccompanimentVolume float64
	VocalsVolume        float64

	DuckThreshold float64
	DuckRatio     float64
	DuckAttackMs  float64
	DuckReleaseMs float64

	TargetLUFS float64
	TruePeak   float64
}

// DefaultMixSpec returns the tuned mixing defaults.
func DefaultMixSpec() MixSpec {
	return MixSpec{
		Ducking:             true,
		TTSVolume:           1.0,
		AccompanimentVolume: 0.8,
		VocalsVolume:        0.15,
		DuckThreshold:       0.05,
		DuckRatio:           10,
		DuckAttackMs:        20,
		DuckReleaseMs:       400,
		TargetLUFS:          -16,
		TruePeak:            -1,
	}
}

// TimelineMix renders the dubbed audio track as 24 kHz mono PCM WAV.
func (f *FFmpeg) TimelineMix(ctx context.Context, spec MixSpec, outPath string) error {
	if len(spec.Segments) == 0 {
		return fmt.Errorf("timeline mix: no segments")
	}
	if spec.TargetDurationMs <= 0 {
		return fmt.Errorf("timeline mix: target duration %d", spec.TargetDurationMs)
	}

	inputs, filter := buildMixGraph(spec)

	args := make([]string, 0, 2*len(inputs)+12)
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", filter,
		"-map", "[final]",
		"-acodec", "pcm_s16le",
		"-ar", "24000",
		"-ac", "1",
		"-y", outPath,
	)
	return f.ffmpeg(ctx, args...)
}

// buildMixGraph lays out the input list and the filter_complex string.
// Input 0 is the video, inputs 1..N the segments, then the stems.
func buildMixGraph(spec MixSpec) (inputs []string, filter string) {
	inputs = []string{spec.VideoPath}
	for _, seg := range spec.Segments {
		inputs = append(inputs, seg.Path)
	}
	accompIdx, vocalsIdx := -1, -1
	if spec.AccompanimentPath != "" {
		accompIdx = len(inputs)
		inputs = append(inputs, spec.AccompanimentPath)
	}
	if spec.VocalsPath != "" {
		vocalsIdx = len(inputs)
		inputs = append(inputs, spec.VocalsPath)
	}

	var parts []string
	labels := make([]string, 0, len(spec.Segments))
	for i, seg := range spec.Segments {
		label := fmt.Sprintf("s%d", i)
		parts = append(parts, fmt.Sprintf("[%d:a]volume=%s,adelay=%d|%d[%s]",
			i+1, formatSec(spec.TTSVolume), seg.StartMs, seg.StartMs, label))
		labels = append(labels, "["+label+"]")
	}
	if len(labels) > 1 {
		parts = append(parts, fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0[tts_raw]",
			strings.Join(labels, ""), len(labels)))
	} else {
		parts = append(parts, labels[0]+"anull[tts_raw]")
	}

	duck := !spec.MuteOriginal && spec.Ducking
	if duck {
		parts = append(parts, "[tts_raw]asplit=2[tts_sc][tts_mix]")
	} else {
		parts = append(parts, "[tts_raw]anull[tts_mix]")
	}

	if accompIdx >= 0 {
		parts = append(parts, fmt.Sprintf("[%d:a]volume=%s[bg]", accompIdx, formatSec(spec.AccompanimentVolume)))
	} else {
		parts = append(parts, "[0:a]anull[bg]")
	}

	if !spec.MuteOriginal {
		if vocalsIdx >= 0 {
			parts = append(parts, fmt.Sprintf("[%d:a]volume=%s[orig]", vocalsIdx, formatSec(spec.VocalsVolume)))
		} else {
			parts = append(parts, fmt.Sprintf("[0:a]volume=%s[orig]", formatSec(spec.VocalsVolume)))
		}
		if duck {
			parts = append(parts, fmt.Sprintf(
				"[orig][tts_sc]sidechaincompress=threshold=%s:ratio=%s:attack=%s:release=%s:detection=peak:link=maximum[orig_duck]",
				formatSec(spec.DuckThreshold), formatSec(spec.DuckRatio),
				formatSec(spec.DuckAttackMs), formatSec(spec.DuckReleaseMs)))
		} else {
			parts = append(parts, "[orig]anull[orig_duck]")
		}
		parts = append(parts, "[bg][orig_duck][tts_mix]amix=inputs=3:duration=longest:weights=1 1 3:normalize=0[mix_raw]")
	} else {
		parts = append(parts, "[bg][tts_mix]amix=inputs=2:duration=longest:weights=1 3:normalize=0[mix_raw]")
	}

	sec := formatSec(float64(spec.TargetDurationMs) / 1000.0)
	parts = append(parts, fmt.Sprintf("[mix_raw]apad=whole_dur=%s,atrim=duration=%s[mix_dur]", sec, sec))
	parts = append(parts, fmt.Sprintf("[mix_dur]loudnorm=I=%s:TP=%s:LRA=11:linear=true[final]",
		formatSec(spec.TargetLUFS), formatSec(spec.TruePeak)))

	return inputs, strings.Join(parts, ";")
}
