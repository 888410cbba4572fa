package phases

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dubflow/dubflow/pkg/dub"
	"github.com/dubflow/dubflow/pkg/media"
	"github.com/dubflow/dubflow/pkg/pipeline"
	"github.com/dubflow/dubflow/pkg/tts"
)

// Mix lays the synthesized clips on the episode timeline over the
// accompaniment and the ducked original, then normalizes loudness. A failed
// segment stays silent in its window; the gap is a warning, not an error.
type Mix struct {
	Media *media.FFmpeg
	Log   *slog.Logger
}

func (p *Mix) Name() string    { return NameMix }
func (p *Mix) Version() string { return "1.0" }
func (p *Mix) Requires() []string {
	return []string{"align.dub_model", "tts.report", "tts.segments", "sep.vocals", "sep.accompaniment"}
}
func (p *Mix) Provides() []string { return []string{"mix.audio"} }

func (p *Mix) Run(ctx context.Context, rc *pipeline.RunContext, inputs map[string]pipeline.Artifact, outputs pipeline.Outputs) (*pipeline.Result, error) {
	manifestPath, err := inputPath(rc, inputs, "align.dub_model")
	if err != nil {
		return nil, err
	}
	manifest, err := dub.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	reportPath, err := inputPath(rc, inputs, "tts.report")
	if err != nil {
		return nil, err
	}
	report, err := tts.LoadReport(reportPath)
	if err != nil {
		return nil, err
	}

	segments, warnings, err := mixSegments(manifest, report)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no usable segments to mix")
	}

	vocalsPath, err := inputPath(rc, inputs, "sep.vocals")
	if err != nil {
		return nil, err
	}
	accompPath, err := inputPath(rc, inputs, "sep.accompaniment")
	if err != nil {
		return nil, err
	}

	spec := media.DefaultMixSpec()
	spec.VideoPath = rc.Config.VideoPath
	spec.Segments = segments
	spec.VocalsPath = vocalsPath
	spec.AccompanimentPath = accompPath
	spec.TargetDurationMs = manifest.AudioDurationMs
	spec.MuteOriginal = rc.Config.Bool(NameMix, "mute_original", spec.MuteOriginal)
	spec.Ducking = rc.Config.Bool(NameMix, "ducking", spec.Ducking)
	spec.TTSVolume = rc.Config.Float(NameMix, "tts_volume", spec.TTSVolume)
	spec.AccompanimentVolume = rc.Config.Float(NameMix, "accompaniment_volume", spec.AccompanimentVolume)
	spec.VocalsVolume = rc.Config.Float(NameMix, "vocals_volume", spec.VocalsVolume)
	spec.TargetLUFS = rc.Config.Float(NameMix, "target_lufs", spec.TargetLUFS)

	if spec.TargetDurationMs == 0 {
		spec.TargetDurationMs, err = p.Media.ProbeDurationMs(ctx, rc.Config.VideoPath)
		if err != nil {
			return nil, err
		}
	}

	outPath, err := outputs.Path("mix.audio")
	if err != nil {
		return nil, err
	}
	if err := p.Media.TimelineMix(ctx, spec, outPath); err != nil {
		return nil, err
	}

	return &pipeline.Result{
		Outputs:  []string{"mix.audio"},
		Metrics:  map[string]any{"segments": len(segments), "silent": len(warnings)},
		Warnings: warnings,
	}, nil
}

// mixSegments pairs report segments with their manifest start times. Failed
// or missing clips are dropped with a warning so their windows stay silent.
func mixSegments(manifest *dub.Manifest, report *tts.Report) ([]media.MixSegment, []string, error) {
	starts := make(map[string]int, len(manifest.Utterances))
	for _, u := range manifest.Utterances {
		starts[u.UttID] = u.StartMs
	}

	var segments []media.MixSegment
	var warnings []string
	for _, seg := range report.Segments {
		start, ok := starts[seg.UttID]
		if !ok {
			return nil, nil, fmt.Errorf("report segment %s not in manifest", seg.UttID)
		}
		if seg.Status == tts.StatusFailed {
			warnings = append(warnings, fmt.Sprintf("%s left silent: %s", seg.UttID, seg.Error))
			continue
		}
		if _, err := os.Stat(seg.OutputPath); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s left silent: clip missing: %v", seg.UttID, err))
			continue
		}
		segments = append(segments, media.MixSegment{Path: seg.OutputPath, StartMs: start})
	}
	return segments, warnings, nil
}
