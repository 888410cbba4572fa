package phases

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dubflow/dubflow/pkg/config"
	"github.com/dubflow/dubflow/pkg/dub"
	"github.com/dubflow/dubflow/pkg/media"
	"github.com/dubflow/dubflow/pkg/mt"
	"github.com/dubflow/dubflow/pkg/pipeline"
	"github.com/dubflow/dubflow/pkg/subtitle"
	"github.com/dubflow/dubflow/pkg/tts"
)

// fakeFF stands in for ffmpeg and ffprobe: probe calls report a fixed
// duration, everything else writes a stub file at the output path.
type fakeFF struct {
	probeMs int
	calls   int
}

func (r *fakeFF) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls++
	if name == "ffprobe" {
		return []byte(fmt.Sprintf("%.3f\n", float64(r.probeMs)/1000)), nil
	}
	out := args[len(args)-1]
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(out, []byte("stub"), 0o644)
}

func fakeMedia(probeMs int) *media.FFmpeg {
	ff := media.New(nil)
	ff.Runner = &fakeFF{probeMs: probeMs}
	return ff
}

// newHarness builds a workspace with a loaded manifest and runner.
func newHarness(t *testing.T) (*pipeline.Runner, *pipeline.Manifest, *pipeline.RunContext) {
	t.Helper()
	ws := t.TempDir()
	video := filepath.Join(ws, "ep01.mp4")
	if err := os.WriteFile(video, []byte("vid"), 0o644); err != nil {
		t.Fatal(err)
	}
	manifest, err := pipeline.LoadManifest(filepath.Join(ws, "manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	rc := &pipeline.RunContext{
		JobID:     "job-test",
		Workspace: ws,
		Config:    &config.Config{VideoPath: video},
	}
	return pipeline.NewRunner(manifest, ws, nil), manifest, rc
}

// register writes content at a workspace relpath and records it as an
// upstream artifact, standing in for an earlier phase.
func register(t *testing.T, m *pipeline.Manifest, ws, key, relpath string, content []byte) string {
	t.Helper()
	path := filepath.Join(ws, relpath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	fp, err := pipeline.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	m.RegisterArtifact(pipeline.Artifact{Key: key, Relpath: relpath, Kind: "file", Fingerprint: fp})
	return path
}

func TestDemuxPhase(t *testing.T) {
	runner, manifest, rc := newHarness(t)
	phase := &Demux{Media: fakeMedia(2500)}

	if err := runner.RunPhase(context.Background(), phase, rc, false); err != nil {
		t.Fatal(err)
	}
	if got := manifest.PhaseStatus("demux"); got != pipeline.StatusSucceeded {
		t.Fatalf("status = %s", got)
	}
	a, err := manifest.Artifact("demux.audio", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(rc.Workspace, a.Relpath)); err != nil {
		t.Fatal(err)
	}

	// Unchanged inputs: the second invocation skips.
	if err := runner.RunPhase(context.Background(), phase, rc, false); err != nil {
		t.Fatal(err)
	}
	if !manifest.Phases["demux"].Skipped {
		t.Fatal("second run did not skip")
	}
}

const rawFixture = `{"result":{"text":"你好吗","utterances":[{"start_time":0,"end_time":1500,"text":"你好吗。","words":[{"start_time":0,"end_time":500,"text":"你"},{"start_time":500,"end_time":1000,"text":"好"},{"start_time":1000,"end_time":1500,"text":"吗"}],"additions":{"speaker":"1","gender":"female"}}]}}`

func TestSubPhase(t *testing.T) {
	runner, manifest, rc := newHarness(t)
	register(t, manifest, rc.Workspace, "asr.raw_response", "subs/asr-raw-response.json", []byte(rawFixture))
	register(t, manifest, rc.Workspace, "demux.audio", "audio/ep01.wav", []byte("aud"))

	phase := &Sub{Media: fakeMedia(9000)}
	if err := runner.RunPhase(context.Background(), phase, rc, false); err != nil {
		t.Fatal(err)
	}

	model, err := subtitle.Load(filepath.Join(rc.Workspace, "subs", "subtitle.model.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(model.Utterances) == 0 {
		t.Fatal("no utterances built")
	}
	if model.Audio == nil || model.Audio.DurationMs != 9000 {
		t.Fatalf("audio = %+v", model.Audio)
	}
	if model.Utterances[0].Speaker != "spk_1" {
		t.Fatalf("speaker = %q", model.Utterances[0].Speaker)
	}

	srt, err := os.ReadFile(filepath.Join(rc.Workspace, "subs", "zh.srt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(srt), "-->") {
		t.Fatalf("srt = %q", srt)
	}
}

func TestAlignPhase(t *testing.T) {
	runner, manifest, rc := newHarness(t)

	model := &subtitle.Model{
		Schema: subtitle.Schema{Name: subtitle.ModelSchemaName, Version: subtitle.ModelSchemaVersion},
		Audio:  &subtitle.Audio{DurationMs: 10000},
		Utterances: []subtitle.Utterance{{
			UttID:      "utt_0001",
			Speaker:    "spk_1",
			StartMs:    0,
			EndMs:      3000,
			SpeechRate: subtitle.SpeechRate{ZhTPS: 2.0},
			Cues: []subtitle.Cue{{
				StartMs: 0, EndMs: 3000,
				Source: subtitle.SourceText{Lang: "zh", Text: "你好吗"},
			}},
		}},
	}
	modelPath := filepath.Join(rc.Workspace, "subs", "subtitle.model.json")
	if err := os.MkdirAll(filepath.Dir(modelPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := pipeline.AtomicWriteJSON(model, modelPath); err != nil {
		t.Fatal(err)
	}
	mtPath := filepath.Join(rc.Workspace, "subs", "mt_output.jsonl")
	err := mt.WriteOutputs(mtPath, []mt.OutputRecord{{
		UttID:  "utt_0001",
		Target: subtitle.SourceText{Lang: "en", Text: "How are you doing?"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	for key, rel := range map[string]string{
		"sub.subtitle_model": "subs/subtitle.model.json",
		"mt.mt_output":       "subs/mt_output.jsonl",
	} {
		data, err := os.ReadFile(filepath.Join(rc.Workspace, rel))
		if err != nil {
			t.Fatal(err)
		}
		register(t, manifest, rc.Workspace, key, rel, data)
	}

	phase := &Align{}
	if err := runner.RunPhase(context.Background(), phase, rc, false); err != nil {
		t.Fatal(err)
	}

	dm, err := dub.LoadManifest(filepath.Join(rc.Workspace, "dub", "dub.model.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(dm.Utterances) != 1 {
		t.Fatalf("%d utterances", len(dm.Utterances))
	}
	u := dm.Utterances[0]
	if u.BudgetMs != 3000 || u.TextEn != "How are you doing?" || u.TTSPolicy.MaxRate != 1.3 {
		t.Fatalf("utterance = %+v", u)
	}
	if dm.AudioDurationMs != 10000 {
		t.Fatalf("duration = %d", dm.AudioDurationMs)
	}

	srt, err := os.ReadFile(filepath.Join(rc.Workspace, "subs", "en.srt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(srt), "How are you doing?") {
		t.Fatalf("srt = %q", srt)
	}
}

func TestMixPhase(t *testing.T) {
	runner, manifest, rc := newHarness(t)

	dm := &dub.Manifest{
		AudioDurationMs: 8000,
		Utterances: []dub.Utterance{
			{UttID: "utt_0001", StartMs: 0, EndMs: 3000, BudgetMs: 3000},
			{UttID: "utt_0002", StartMs: 4000, EndMs: 6000, BudgetMs: 2000},
		},
	}
	dubPath := filepath.Join(rc.Workspace, "dub", "dub.model.json")
	if err := os.MkdirAll(filepath.Dir(dubPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := dm.Save(dubPath); err != nil {
		t.Fatal(err)
	}

	segPath := filepath.Join(rc.Workspace, "tts", "segments", "seg_utt_0001.wav")
	if err := os.MkdirAll(filepath.Dir(segPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(segPath, []byte("wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	report := &tts.Report{
		Segments: []tts.SegmentReport{
			{UttID: "utt_0001", Status: tts.StatusSuccess, OutputPath: segPath},
			{UttID: "utt_0002", Status: tts.StatusFailed, Error: "over budget"},
		},
		Succeeded: 1, Failed: 1,
	}
	if err := report.Save(filepath.Join(rc.Workspace, "tts", "tts_report.json")); err != nil {
		t.Fatal(err)
	}

	for key, rel := range map[string]string{
		"align.dub_model":   "dub/dub.model.json",
		"tts.report":        "tts/tts_report.json",
		"sep.vocals":        "audio/vocals.wav",
		"sep.accompaniment": "audio/accompaniment.wav",
	} {
		abs := filepath.Join(rc.Workspace, rel)
		if _, err := os.Stat(abs); err != nil {
			register(t, manifest, rc.Workspace, key, rel, []byte("x"))
			continue
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			t.Fatal(err)
		}
		register(t, manifest, rc.Workspace, key, rel, data)
	}
	register(t, manifest, rc.Workspace, "tts.segments", "tts/segments.json", []byte("[]"))

	phase := &Mix{Media: fakeMedia(8000)}
	if err := runner.RunPhase(context.Background(), phase, rc, false); err != nil {
		t.Fatal(err)
	}
	rec := manifest.Phases["mix"]
	if rec.Status != pipeline.StatusSucceeded {
		t.Fatalf("status = %s", rec.Status)
	}
	if len(rec.Warnings) != 1 || !strings.Contains(rec.Warnings[0], "utt_0002") {
		t.Fatalf("warnings = %v", rec.Warnings)
	}
	if _, err := os.Stat(filepath.Join(rc.Workspace, "audio", "mix.wav")); err != nil {
		t.Fatal(err)
	}
}

func TestMixSegmentsRejectsUnknownUtt(t *testing.T) {
	dm := &dub.Manifest{Utterances: []dub.Utterance{{UttID: "utt_0001"}}}
	report := &tts.Report{Segments: []tts.SegmentReport{{UttID: "utt_0099", Status: tts.StatusSuccess}}}
	if _, _, err := mixSegments(dm, report); err == nil {
		t.Fatal("unknown segment accepted")
	}
}

func TestSegmentIndex(t *testing.T) {
	ws := t.TempDir()
	segPath := filepath.Join(ws, "tts", "segments", "seg_utt_0001.wav")
	if err := os.MkdirAll(filepath.Dir(segPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(segPath, []byte("wav"), 0o644); err != nil {
		t.Fatal(err)
	}
	report := &tts.Report{Segments: []tts.SegmentReport{
		{UttID: "utt_0001", Status: tts.StatusSuccess, OutputPath: segPath},
		{UttID: "utt_0002", Status: tts.StatusFailed},
	}}

	index, err := segmentIndex(ws, report)
	if err != nil {
		t.Fatal(err)
	}
	if len(index) != 2 {
		t.Fatalf("%d entries", len(index))
	}
	if index[0].Relpath != "tts/segments/seg_utt_0001.wav" || len(index[0].SHA256) != 64 {
		t.Fatalf("entry = %+v", index[0])
	}
	if index[1].SHA256 != "" || index[1].Relpath != "" {
		t.Fatalf("failed entry = %+v", index[1])
	}
}
