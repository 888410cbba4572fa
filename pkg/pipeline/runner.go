package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Runner drives phase execution against one workspace. It owns the
// should-run decision, input resolution, output path allocation, and
// manifest commits. Phases only write files.
type Runner struct {
	manifest  *Manifest
	workspace string
	log       *slog.Logger
}

// NewRunner creates a runner over a loaded manifest. A nil logger falls
// back to slog.Default.
func NewRunner(m *Manifest, workspace string, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{manifest: m, workspace: workspace, log: log}
}

// ShouldRun decides whether a phase must execute. It never mutates state.
// The returned reason is human-readable and stable for a given manifest
// state.
func (r *Runner) ShouldRun(phase Phase, force bool) (bool, string) {
	if force {
		return true, "forced"
	}

	rec, ok := r.manifest.Phases[phase.Name()]
	if !ok {
		return true, "not in manifest"
	}
	if rec.Status != StatusSucceeded {
		return true, fmt.Sprintf("status is %s", rec.Status)
	}
	if rec.Version != phase.Version() {
		return true, fmt.Sprintf("version changed: %s -> %s", rec.Version, phase.Version())
	}

	currentFP, err := ComputeInputsFingerprint(phase.Requires(), r.manifest.Artifacts)
	if err != nil {
		return true, fmt.Sprintf("missing required artifact: %v", err)
	}
	if rec.InputsFingerprint != currentFP {
		return true, fmt.Sprintf("inputs_fingerprint changed: %s -> %s", rec.InputsFingerprint, currentFP)
	}

	for _, key := range phase.Provides() {
		a, ok := r.manifest.Artifacts[key]
		if !ok {
			return true, fmt.Sprintf("output artifact %q not found", key)
		}
		path := filepath.Join(r.workspace, a.Relpath)
		if _, err := os.Stat(path); err != nil {
			return true, fmt.Sprintf("output artifact %q file not found: %s", key, path)
		}
		fp, err := HashFile(path)
		if err != nil {
			return true, fmt.Sprintf("output artifact %q unreadable: %v", key, err)
		}
		if fp != a.Fingerprint {
			return true, fmt.Sprintf("output artifact %q fingerprint mismatch: %s != %s", key, a.Fingerprint, fp)
		}
	}

	return false, "all checks passed"
}

// resolveInputs gathers the artifacts a phase requires.
func (r *Runner) resolveInputs(phase Phase) (map[string]Artifact, error) {
	inputs := make(map[string]Artifact, len(phase.Requires()))
	for _, key := range phase.Requires() {
		a, err := r.manifest.Artifact(key, phase.Name())
		if err != nil {
			return nil, err
		}
		inputs[key] = a
	}
	return inputs, nil
}

// allocateOutputs pre-computes the output path for every provided key and
// creates the parent directories.
func (r *Runner) allocateOutputs(phase Phase) (Outputs, error) {
	paths := make(map[string]string, len(phase.Provides()))
	for _, key := range phase.Provides() {
		p := ArtifactPath(key, r.workspace)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return Outputs{}, fmt.Errorf("allocate output %q: %w", key, err)
		}
		paths[key] = p
	}
	return Outputs{paths: paths}, nil
}

// recordFailure writes a failed phase record and persists it.
func (r *Runner) recordFailure(phase Phase, errType, msg string) {
	rec := r.manifest.PhaseRecordFor(phase.Name())
	rec.Version = phase.Version()
	rec.Status = StatusFailed
	rec.FinishedAt = nowISO()
	rec.Error = &ErrorInfo{Type: errType, Message: msg}
	if err := r.manifest.Save(); err != nil {
		r.log.Error("save manifest", "phase", phase.Name(), "error", err)
	}
}

// RunPhase executes one phase end to end: should-run decision, input
// resolution, fingerprinting, execution, output validation, artifact
// registration, and manifest commit. A nil return means the phase either
// ran successfully or was skipped.
func (r *Runner) RunPhase(ctx context.Context, phase Phase, rc *RunContext, force bool) error {
	run, reason := r.ShouldRun(phase, force)
	if !run {
		r.log.Info("phase skipped", "phase", phase.Name(), "reason", reason)
		// A succeeded phase keeps its status on skip; demoting it to
		// skipped would force a rerun next time.
		rec := r.manifest.PhaseRecordFor(phase.Name())
		if rec.Status != StatusSucceeded {
			rec.Status = StatusSkipped
		}
		rec.Version = phase.Version()
		rec.FinishedAt = nowISO()
		rec.Skipped = true
		return r.manifest.Save()
	}
	r.log.Info("phase starting", "phase", phase.Name(), "reason", reason)

	inputs, err := r.resolveInputs(phase)
	if err != nil {
		r.recordFailure(phase, "InputResolutionError", err.Error())
		return fmt.Errorf("phase %s: %w", phase.Name(), err)
	}

	inputsFP, err := ComputeInputsFingerprint(phase.Requires(), r.manifest.Artifacts)
	if err != nil {
		r.log.Warn("inputs fingerprint", "phase", phase.Name(), "error", err)
	}
	configFP, err := ComputeConfigFingerprint(phase.Name(), rc.Config.Phase(phase.Name()), rc.Config.VideoPath)
	if err != nil {
		r.log.Warn("config fingerprint", "phase", phase.Name(), "error", err)
	}

	rec := r.manifest.PhaseRecordFor(phase.Name())
	if rec.Status == StatusFailed {
		rec.Attempt++
	}
	rec.Version = phase.Version()
	rec.Status = StatusRunning
	rec.StartedAt = nowISO()
	rec.Requires = phase.Requires()
	rec.Provides = phase.Provides()
	rec.InputsFingerprint = inputsFP
	rec.ConfigFingerprint = configFP
	rec.Skipped = false
	rec.Error = nil
	if err := r.manifest.Save(); err != nil {
		return fmt.Errorf("phase %s: %w", phase.Name(), err)
	}

	outputs, err := r.allocateOutputs(phase)
	if err != nil {
		r.recordFailure(phase, "OutputAllocationError", err.Error())
		return fmt.Errorf("phase %s: %w", phase.Name(), err)
	}

	result, err := phase.Run(ctx, rc, inputs, outputs)
	if err != nil {
		r.recordFailure(phase, fmt.Sprintf("%T", err), err.Error())
		r.log.Error("phase failed", "phase", phase.Name(), "error", err)
		return fmt.Errorf("phase %s: %w", phase.Name(), err)
	}

	published := make(map[string]Artifact, len(result.Outputs))
	for _, key := range result.Outputs {
		absPath, err := outputs.Path(key)
		if err != nil {
			msg := fmt.Sprintf("phase %q declared output %q which is not in its provides", phase.Name(), key)
			r.recordFailure(phase, "OutputValidationError", msg)
			return fmt.Errorf("phase %s: %s", phase.Name(), msg)
		}
		if _, err := os.Stat(absPath); err != nil {
			msg := fmt.Sprintf("phase %q did not write output file %s (artifact key %q)", phase.Name(), absPath, key)
			r.recordFailure(phase, "OutputValidationError", msg)
			return fmt.Errorf("phase %s: %s", phase.Name(), msg)
		}
		fp, err := HashFile(absPath)
		if err != nil {
			r.recordFailure(phase, "OutputValidationError", err.Error())
			return fmt.Errorf("phase %s: %w", phase.Name(), err)
		}
		rel, err := filepath.Rel(r.workspace, absPath)
		if err != nil {
			r.recordFailure(phase, "OutputValidationError", err.Error())
			return fmt.Errorf("phase %s: %w", phase.Name(), err)
		}
		a := Artifact{
			Key:         key,
			Relpath:     filepath.ToSlash(rel),
			Kind:        artifactKind(absPath),
			Fingerprint: fp,
		}
		r.manifest.RegisterArtifact(a)
		published[key] = a
	}

	rec.Status = StatusSucceeded
	rec.FinishedAt = nowISO()
	rec.Artifacts = published
	rec.Metrics = result.Metrics
	rec.Warnings = result.Warnings
	if err := r.manifest.Save(); err != nil {
		return fmt.Errorf("phase %s: %w", phase.Name(), err)
	}

	r.log.Info("phase succeeded", "phase", phase.Name(), "artifacts", len(published))
	return nil
}

// RunPipeline runs phases in order up to toPhase. fromPhase, when set,
// forces a contiguous suffix starting at that phase. Execution aborts on
// the first failure. On success it returns the absolute paths of the final
// phase's provided artifacts.
func (r *Runner) RunPipeline(ctx context.Context, phases []Phase, rc *RunContext, toPhase, fromPhase string) (map[string]string, error) {
	index := make(map[string]int, len(phases))
	for i, p := range phases {
		index[p.Name()] = i
	}

	last := len(phases) - 1
	if toPhase != "" {
		i, ok := index[toPhase]
		if !ok {
			return nil, fmt.Errorf("unknown phase: %s", toPhase)
		}
		last = i
	}
	forceFrom := last + 1
	if fromPhase != "" {
		i, ok := index[fromPhase]
		if !ok {
			return nil, fmt.Errorf("unknown phase: %s", fromPhase)
		}
		if i > last {
			return nil, fmt.Errorf("from phase %q must not be after to phase %q", fromPhase, toPhase)
		}
		forceFrom = i
	}

	for i := 0; i <= last; i++ {
		if err := r.RunPhase(ctx, phases[i], rc, i >= forceFrom); err != nil {
			return nil, err
		}
	}

	final := phases[last]
	outputs := make(map[string]string, len(final.Provides()))
	for _, key := range final.Provides() {
		a, err := r.manifest.Artifact(key, final.Name())
		if err != nil {
			return nil, err
		}
		outputs[key] = filepath.Join(r.workspace, a.Relpath)
	}
	return outputs, nil
}

// BlessResult reports what happened to one artifact during a bless pass.
type BlessResult struct {
	Key    string
	Path   string
	Status string // "updated", "unchanged", or "missing"
}

// Bless recomputes the fingerprints of a phase's published artifacts after
// a manual edit. Status is never altered; downstream phases observe the new
// fingerprints through their inputs check.
func (r *Runner) Bless(phaseName string) ([]BlessResult, error) {
	rec, ok := r.manifest.Phases[phaseName]
	if !ok {
		return nil, fmt.Errorf("phase %q has no record in manifest", phaseName)
	}

	var results []BlessResult
	for key, a := range rec.Artifacts {
		path := filepath.Join(r.workspace, a.Relpath)
		if _, err := os.Stat(path); err != nil {
			results = append(results, BlessResult{Key: key, Path: path, Status: "missing"})
			continue
		}
		fp, err := HashFile(path)
		if err != nil {
			return nil, fmt.Errorf("bless %s: %w", key, err)
		}
		if fp == a.Fingerprint {
			results = append(results, BlessResult{Key: key, Path: path, Status: "unchanged"})
			continue
		}
		a.Fingerprint = fp
		rec.Artifacts[key] = a
		r.manifest.RegisterArtifact(a)
		results = append(results, BlessResult{Key: key, Path: path, Status: "updated"})
	}

	if err := r.manifest.Save(); err != nil {
		return nil, err
	}
	return results, nil
}
