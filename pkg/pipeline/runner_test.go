package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dubflow/dubflow/pkg/config"
)

// fakePhase writes fixed content to every provided key and counts runs.
type fakePhase struct {
	name     string
	version  string
	requires []string
	provides []string
	content  string
	runs     int
	fail     error
}

func (p *fakePhase) Name() string       { return p.name }
func (p *fakePhase) Version() string    { return p.version }
func (p *fakePhase) Requires() []string { return p.requires }
func (p *fakePhase) Provides() []string { return p.provides }

func (p *fakePhase) Run(_ context.Context, _ *RunContext, _ map[string]Artifact, outputs Outputs) (*Result, error) {
	p.runs++
	if p.fail != nil {
		return nil, p.fail
	}
	for _, key := range p.provides {
		path, err := outputs.Path(key)
		if err != nil {
			return nil, err
		}
		if err := AtomicWrite([]byte(p.content), path); err != nil {
			return nil, err
		}
	}
	return &Result{Outputs: p.provides}, nil
}

func newTestRunner(t *testing.T) (*Runner, *RunContext) {
	t.Helper()
	ws := filepath.Join(t.TempDir(), "dub", "ep1")
	manifestPath, err := EnsureWorkspace(ws)
	if err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(manifestPath)
	if err != nil {
		t.Fatal(err)
	}
	m.SetJob("test-job", ws)
	rc := &RunContext{JobID: "test-job", Workspace: ws, Config: &config.Config{}}
	return NewRunner(m, ws, nil), rc
}

func TestRunPhasePublishesArtifacts(t *testing.T) {
	r, rc := newTestRunner(t)
	p := &fakePhase{
		name: "sub", version: "1.0.0",
		provides: []string{"sub.subtitle_model", "sub.zh_srt"},
		content:  "data",
	}
	if err := r.RunPhase(context.Background(), p, rc, false); err != nil {
		t.Fatalf("RunPhase: %v", err)
	}

	for _, key := range p.provides {
		a, err := r.manifest.Artifact(key, "")
		if err != nil {
			t.Fatalf("artifact %s not registered: %v", key, err)
		}
		path := filepath.Join(r.workspace, a.Relpath)
		fp, err := HashFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if fp != a.Fingerprint {
			t.Fatalf("artifact %s fingerprint mismatch", key)
		}
	}
	if r.manifest.PhaseStatus("sub") != StatusSucceeded {
		t.Fatalf("status = %q", r.manifest.PhaseStatus("sub"))
	}
}

func TestShouldRunDeterministic(t *testing.T) {
	r, rc := newTestRunner(t)
	p := &fakePhase{name: "sub", version: "1.0.0", provides: []string{"sub.zh_srt"}, content: "x"}
	if err := r.RunPhase(context.Background(), p, rc, false); err != nil {
		t.Fatal(err)
	}
	run1, reason1 := r.ShouldRun(p, false)
	run2, reason2 := r.ShouldRun(p, false)
	if run1 != run2 || reason1 != reason2 {
		t.Fatalf("should_run not deterministic: (%v,%q) vs (%v,%q)", run1, reason1, run2, reason2)
	}
	if run1 {
		t.Fatalf("expected skip, got run with reason %q", reason1)
	}
	if reason1 != "all checks passed" {
		t.Fatalf("reason = %q", reason1)
	}
}

func TestRerunSkipsWithoutChanges(t *testing.T) {
	r, rc := newTestRunner(t)
	p := &fakePhase{name: "sub", version: "1.0.0", provides: []string{"sub.zh_srt"}, content: "x"}

	for i := 0; i < 3; i++ {
		if err := r.RunPhase(context.Background(), p, rc, false); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if p.runs != 1 {
		t.Fatalf("phase ran %d times, want 1", p.runs)
	}
	if r.manifest.PhaseStatus("sub") != StatusSucceeded {
		t.Fatalf("skip demoted status to %q", r.manifest.PhaseStatus("sub"))
	}
}

func TestForceReruns(t *testing.T) {
	r, rc := newTestRunner(t)
	p := &fakePhase{name: "sub", version: "1.0.0", provides: []string{"sub.zh_srt"}, content: "x"}
	if err := r.RunPhase(context.Background(), p, rc, false); err != nil {
		t.Fatal(err)
	}
	if err := r.RunPhase(context.Background(), p, rc, true); err != nil {
		t.Fatal(err)
	}
	if p.runs != 2 {
		t.Fatalf("phase ran %d times, want 2", p.runs)
	}
}

func TestShouldRunDetectsTamperedOutput(t *testing.T) {
	r, rc := newTestRunner(t)
	p := &fakePhase{name: "sub", version: "1.0.0", provides: []string{"sub.zh_srt"}, content: "x"}
	if err := r.RunPhase(context.Background(), p, rc, false); err != nil {
		t.Fatal(err)
	}

	a, _ := r.manifest.Artifact("sub.zh_srt", "")
	if err := os.WriteFile(filepath.Join(r.workspace, a.Relpath), []byte("edited"), 0o644); err != nil {
		t.Fatal(err)
	}
	run, reason := r.ShouldRun(p, false)
	if !run {
		t.Fatalf("tampered output not detected, reason %q", reason)
	}
}

func TestShouldRunDetectsVersionBump(t *testing.T) {
	r, rc := newTestRunner(t)
	p := &fakePhase{name: "sub", version: "1.0.0", provides: []string{"sub.zh_srt"}, content: "x"}
	if err := r.RunPhase(context.Background(), p, rc, false); err != nil {
		t.Fatal(err)
	}
	p.version = "1.1.0"
	run, _ := r.ShouldRun(p, false)
	if !run {
		t.Fatal("version bump not detected")
	}
}

func TestShouldRunDetectsUpstreamChange(t *testing.T) {
	r, rc := newTestRunner(t)
	up := &fakePhase{name: "sub", version: "1.0.0", provides: []string{"sub.subtitle_model"}, content: "v1"}
	down := &fakePhase{
		name: "mt", version: "1.0.0",
		requires: []string{"sub.subtitle_model"},
		provides: []string{"mt.mt_output"},
		content:  "out",
	}
	ctx := context.Background()
	if err := r.RunPhase(ctx, up, rc, false); err != nil {
		t.Fatal(err)
	}
	if err := r.RunPhase(ctx, down, rc, false); err != nil {
		t.Fatal(err)
	}

	// Upstream rerun with different content changes its fingerprint.
	up.content = "v2"
	if err := r.RunPhase(ctx, up, rc, true); err != nil {
		t.Fatal(err)
	}
	run, _ := r.ShouldRun(down, false)
	if !run {
		t.Fatal("downstream did not notice upstream fingerprint change")
	}
}

func TestRunPhaseRecordsFailure(t *testing.T) {
	r, rc := newTestRunner(t)
	p := &fakePhase{name: "sub", version: "1.0.0", provides: []string{"sub.zh_srt"}, fail: os.ErrPermission}
	if err := r.RunPhase(context.Background(), p, rc, false); err == nil {
		t.Fatal("expected failure")
	}
	rec := r.manifest.Phases["sub"]
	if rec.Status != StatusFailed {
		t.Fatalf("status = %q", rec.Status)
	}
	if rec.Error == nil || rec.Error.Message == "" {
		t.Fatal("failure not recorded")
	}
	// Failed record means the next invocation runs again.
	run, reason := r.ShouldRun(p, false)
	if !run || reason != "status is failed" {
		t.Fatalf("should_run after failure = (%v, %q)", run, reason)
	}
}

func TestRunPhaseMissingInputFails(t *testing.T) {
	r, rc := newTestRunner(t)
	p := &fakePhase{
		name: "mt", version: "1.0.0",
		requires: []string{"sub.subtitle_model"},
		provides: []string{"mt.mt_output"},
	}
	if err := r.RunPhase(context.Background(), p, rc, false); err == nil {
		t.Fatal("expected input resolution failure")
	}
	rec := r.manifest.Phases["mt"]
	if rec.Error == nil || rec.Error.Type != "InputResolutionError" {
		t.Fatalf("error = %+v", rec.Error)
	}
}

func TestRunPipelineForceSuffix(t *testing.T) {
	r, rc := newTestRunner(t)
	a := &fakePhase{name: "sub", version: "1.0.0", provides: []string{"sub.subtitle_model"}, content: "a"}
	b := &fakePhase{name: "mt", version: "1.0.0", requires: []string{"sub.subtitle_model"}, provides: []string{"mt.mt_output"}, content: "b"}
	c := &fakePhase{name: "align", version: "1.0.0", requires: []string{"mt.mt_output"}, provides: []string{"align.en_srt"}, content: "c"}
	phases := []Phase{a, b, c}
	ctx := context.Background()

	if _, err := r.RunPipeline(ctx, phases, rc, "align", ""); err != nil {
		t.Fatal(err)
	}
	if a.runs != 1 || b.runs != 1 || c.runs != 1 {
		t.Fatalf("runs = %d/%d/%d", a.runs, b.runs, c.runs)
	}

	outputs, err := r.RunPipeline(ctx, phases, rc, "align", "mt")
	if err != nil {
		t.Fatal(err)
	}
	if a.runs != 1 {
		t.Fatalf("sub reran under --from mt (%d runs)", a.runs)
	}
	if b.runs != 2 || c.runs != 2 {
		t.Fatalf("forced suffix did not rerun: %d/%d", b.runs, c.runs)
	}
	if _, ok := outputs["align.en_srt"]; !ok {
		t.Fatalf("final outputs missing en_srt: %v", outputs)
	}
}

func TestBless(t *testing.T) {
	r, rc := newTestRunner(t)
	p := &fakePhase{name: "sub", version: "1.0.0", provides: []string{"sub.zh_srt"}, content: "original"}
	if err := r.RunPhase(context.Background(), p, rc, false); err != nil {
		t.Fatal(err)
	}

	a, _ := r.manifest.Artifact("sub.zh_srt", "")
	path := filepath.Join(r.workspace, a.Relpath)
	if err := os.WriteFile(path, []byte("hand edited"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := r.Bless("sub")
	if err != nil {
		t.Fatalf("Bless: %v", err)
	}
	if len(results) != 1 || results[0].Status != "updated" {
		t.Fatalf("results = %+v", results)
	}
	if r.manifest.PhaseStatus("sub") != StatusSucceeded {
		t.Fatal("bless altered phase status")
	}

	// The registry now matches the edited file, so sub itself skips.
	run, reason := r.ShouldRun(p, false)
	if run {
		t.Fatalf("sub should skip after bless, reason %q", reason)
	}

	// Second bless reports unchanged.
	results, err = r.Bless("sub")
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != "unchanged" {
		t.Fatalf("second bless = %+v", results)
	}
}
