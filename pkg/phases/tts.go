package phases

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dubflow/dubflow/pkg/dub"
	"github.com/dubflow/dubflow/pkg/media"
	"github.com/dubflow/dubflow/pkg/pipeline"
	"github.com/dubflow/dubflow/pkg/tts"
)

// Default English voices used when a speaker has no cast role.
const (
	defaultVoiceMale   = "en_male_adam_mars_bigtts"
	defaultVoiceFemale = "en_female_sarah_mars_bigtts"
)

// TTS synthesizes one clip per manifest utterance through the fit ladder.
// Segment files live under tts/segments/; the published artifacts are the
// ladder report and a content index over the segment files, so downstream
// fingerprints change when any clip changes.
type TTS struct {
	Media *media.FFmpeg
	Log   *slog.Logger
}

func (p *TTS) Name() string       { return NameTTS }
func (p *TTS) Version() string    { return "1.0" }
func (p *TTS) Requires() []string { return []string{"align.dub_model"} }
func (p *TTS) Provides() []string { return []string{"tts.report", "tts.segments"} }

// SegmentEntry is one line of the segment index.
type SegmentEntry struct {
	UttID   string `json:"utt_id"`
	Relpath string `json:"relpath"`
	Status  string `json:"status"`
	SHA256  string `json:"sha256"`
}

func (p *TTS) Run(ctx context.Context, rc *pipeline.RunContext, inputs map[string]pipeline.Artifact, outputs pipeline.Outputs) (*pipeline.Result, error) {
	manifestPath, err := inputPath(rc, inputs, "align.dub_model")
	if err != nil {
		return nil, err
	}
	manifest, err := dub.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	table, err := p.resolveVoices(rc, manifest)
	if err != nil {
		return nil, err
	}
	if err := table.Save(filepath.Join(rc.Workspace, "tts", "voice_assignment.json")); err != nil {
		return nil, err
	}

	appID, accessKey, err := doubaoCreds()
	if err != nil {
		return nil, err
	}
	resourceID := rc.Config.Str(NameTTS, "resource_id", tts.ResourceTTS)
	var engine tts.Engine
	if rc.Config.Str(NameTTS, "transport", "http") == "ws" {
		engine = tts.NewStreamClient(appID, accessKey, tts.WithStreamResourceID(resourceID))
	} else {
		engine = tts.NewClient(appID, accessKey, tts.WithResourceID(resourceID))
	}

	cacheDir := rc.Config.Str(NameTTS, "cache_dir", filepath.Join(rc.Workspace, "tts", "cache"))
	cache, err := tts.OpenCache(cacheDir)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	synth := &tts.Synthesizer{
		Engine:     engine,
		Cache:      cache,
		Audio:      p.Media,
		Voices:     table,
		MaxWorkers: rc.Config.Int(NameTTS, "max_workers", tts.DefaultMaxWorkers),
		Log:        p.Log,
	}

	segDir := filepath.Join(rc.Workspace, "tts", "segments")
	report, err := synth.SynthesizeAll(ctx, manifest, segDir)
	if err != nil {
		return nil, err
	}
	if report.Failed == len(report.Segments) {
		return nil, fmt.Errorf("every segment failed synthesis")
	}

	reportPath, err := outputs.Path("tts.report")
	if err != nil {
		return nil, err
	}
	if err := report.Save(reportPath); err != nil {
		return nil, err
	}

	index, err := segmentIndex(rc.Workspace, report)
	if err != nil {
		return nil, err
	}
	indexPath, err := outputs.Path("tts.segments")
	if err != nil {
		return nil, err
	}
	if err := pipeline.AtomicWriteJSON(index, indexPath); err != nil {
		return nil, err
	}

	var warnings []string
	for _, seg := range report.Failures() {
		warnings = append(warnings, fmt.Sprintf("%s: %s", seg.UttID, seg.Error))
	}
	return &pipeline.Result{
		Outputs: []string{"tts.report", "tts.segments"},
		Metrics: map[string]any{
			"succeeded":     report.Succeeded,
			"rate_adjusted": report.RateAdjusted,
			"extended":      report.Extended,
			"failed":        report.Failed,
		},
		Warnings: warnings,
	}, nil
}

// resolveVoices casts every manifest speaker to a voice: hand-edited role
// files first, then gender defaults.
func (p *TTS) resolveVoices(rc *pipeline.RunContext, manifest *dub.Manifest) (*tts.VoiceTable, error) {
	seen := map[string]bool{}
	var speakers []string
	genders := map[string]string{}
	for i := range manifest.Utterances {
		u := &manifest.Utterances[i]
		if !seen[u.Speaker] {
			seen[u.Speaker] = true
			speakers = append(speakers, u.Speaker)
		}
		if u.Gender != "" && genders[u.Speaker] == "" {
			genders[u.Speaker] = u.Gender
		}
	}

	voicesDir := rc.Config.Str(NameTTS, "voices_dir", filepath.Join(rc.Workspace, "voices"))
	male := rc.Config.Str(NameTTS, "voice_male", defaultVoiceMale)
	female := rc.Config.Str(NameTTS, "voice_female", defaultVoiceFemale)
	return tts.ResolveVoices(speakers, genders,
		filepath.Join(voicesDir, "speaker_to_role.json"),
		filepath.Join(voicesDir, "role_cast.json"),
		tts.DefaultVoices{
			Male:   male,
			Female: female,
			Other:  rc.Config.Str(NameTTS, "voice_other", male),
		})
}

// segmentIndex hashes every segment file into a deterministic index.
func segmentIndex(workspace string, report *tts.Report) ([]SegmentEntry, error) {
	entries := make([]SegmentEntry, 0, len(report.Segments))
	for _, seg := range report.Segments {
		e := SegmentEntry{UttID: seg.UttID, Status: seg.Status}
		if seg.OutputPath != "" {
			rel, err := filepath.Rel(workspace, seg.OutputPath)
			if err != nil {
				return nil, fmt.Errorf("segment %s: %w", seg.UttID, err)
			}
			e.Relpath = filepath.ToSlash(rel)
			e.SHA256, err = pipeline.HashFile(seg.OutputPath)
			if err != nil {
				return nil, fmt.Errorf("segment %s: %w", seg.UttID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}
