package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// SchemaVersion is the manifest document version.
const SchemaVersion = "1.0"

// Phase execution statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Artifact is an immutable record of a file a phase produced. Relpath is
// always workspace-relative; absolute paths exist only at runtime.
type Artifact struct {
	Key         string         `json:"key"`
	Relpath     string         `json:"relpath"`
	Kind        string         `json:"kind"`
	Fingerprint string         `json:"fingerprint"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// ErrorInfo records a phase failure.
type ErrorInfo struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

// PhaseRecord is the per-phase execution record stored in the manifest.
type PhaseRecord struct {
	Name              string              `json:"name"`
	Version           string              `json:"version"`
	Status            string              `json:"status"`
	StartedAt         string              `json:"started_at,omitempty"`
	FinishedAt        string              `json:"finished_at,omitempty"`
	Attempt           int                 `json:"attempt,omitempty"`
	Requires          []string            `json:"requires,omitempty"`
	Provides          []string            `json:"provides,omitempty"`
	InputsFingerprint string              `json:"inputs_fingerprint,omitempty"`
	ConfigFingerprint string              `json:"config_fingerprint,omitempty"`
	Artifacts         map[string]Artifact `json:"artifacts,omitempty"`
	Metrics           map[string]any      `json:"metrics,omitempty"`
	Warnings          []string            `json:"warnings,omitempty"`
	Error             *ErrorInfo          `json:"error,omitempty"`
	Skipped           bool                `json:"skipped,omitempty"`
}

// Job identifies the episode run that owns the workspace.
type Job struct {
	JobID     string `json:"job_id"`
	Workspace string `json:"workspace"`
}

// Manifest is the persistent registry of artifacts and phase records for one
// workspace. Every mutation must be followed by Save; there is no other
// cache. Concurrent writers are out of scope, the workspace has one owner.
type Manifest struct {
	path string

	SchemaVersion string                  `json:"schema_version"`
	Job           Job                     `json:"job"`
	Artifacts     map[string]Artifact     `json:"artifacts"`
	Phases        map[string]*PhaseRecord `json:"phases"`
}

// LoadManifest reads the manifest at path, or initializes an empty one when
// the file does not exist yet.
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{
		path:          path,
		SchemaVersion: SchemaVersion,
		Artifacts:     map[string]Artifact{},
		Phases:        map[string]*PhaseRecord{},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", path, err)
	}
	if m.Artifacts == nil {
		m.Artifacts = map[string]Artifact{}
	}
	if m.Phases == nil {
		m.Phases = map[string]*PhaseRecord{}
	}
	m.path = path
	return m, nil
}

// Path returns the manifest file location.
func (m *Manifest) Path() string { return m.path }

// Save persists the manifest atomically.
func (m *Manifest) Save() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return AtomicWrite(data, m.path)
}

// SetJob records the job identity.
func (m *Manifest) SetJob(jobID, workspace string) {
	m.Job = Job{JobID: jobID, Workspace: workspace}
}

// RegisterArtifact overwrites any prior record with the same key.
func (m *Manifest) RegisterArtifact(a Artifact) {
	m.Artifacts[a.Key] = a
}

// Artifact returns the registered artifact for key. The error lists the
// available keys so a missing upstream is easy to diagnose.
func (m *Manifest) Artifact(key, requiredBy string) (Artifact, error) {
	a, ok := m.Artifacts[key]
	if !ok {
		available := make([]string, 0, len(m.Artifacts))
		for k := range m.Artifacts {
			available = append(available, k)
		}
		sort.Strings(available)
		msg := fmt.Sprintf("required artifact %q not found in manifest", key)
		if requiredBy != "" {
			msg += fmt.Sprintf(" (required by phase %q)", requiredBy)
		}
		return Artifact{}, fmt.Errorf("%s. Available artifacts: %v", msg, available)
	}
	return a, nil
}

// PhaseStatus returns the recorded status, or "" when the phase has never
// run in this workspace.
func (m *Manifest) PhaseStatus(name string) string {
	rec, ok := m.Phases[name]
	if !ok {
		return ""
	}
	return rec.Status
}

// PhaseRecordFor returns the record for a phase, creating it when absent.
func (m *Manifest) PhaseRecordFor(name string) *PhaseRecord {
	rec, ok := m.Phases[name]
	if !ok {
		rec = &PhaseRecord{Name: name, Attempt: 1}
		m.Phases[name] = rec
	}
	return rec
}

// nowISO returns the current UTC time in RFC 3339 form for manifest
// timestamps.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
