package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// CanonicalJSON renders v as deterministic JSON: sorted keys, no whitespace,
// UTF-8, NaN rejected. Null values and empty objects/arrays are stripped
// recursively so that semantically-equivalent values hash identically.
func CanonicalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	cleaned, _ := stripEmpty(tree)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cleaned); err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// stripEmpty removes nulls and empty containers recursively. The second
// return is false when the value itself should be dropped by its parent.
func stripEmpty(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if cleaned, keep := stripEmpty(val); keep {
				out[k] = cleaned
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if cleaned, keep := stripEmpty(item); keep {
				out = append(out, cleaned)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	default:
		return v, true
	}
}

// HashString returns the fingerprint of a string.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// HashFile returns the fingerprint of a file's bytes.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// HashJSON returns the fingerprint of a value's canonical JSON form.
func HashJSON(v any) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return HashString(canonical), nil
}

// ComputeInputsFingerprint hashes the fingerprints of the required upstream
// artifacts. Keys are sorted so the result does not depend on declaration
// order. Returns an error when a required key is missing from the registry.
func ComputeInputsFingerprint(requiredKeys []string, artifacts map[string]Artifact) (string, error) {
	keys := append([]string(nil), requiredKeys...)
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		a, ok := artifacts[key]
		if !ok {
			return "", fmt.Errorf("required artifact %q not found in manifest", key)
		}
		parts = append(parts, key+":"+a.Fingerprint)
	}
	return HashString(strings.Join(parts, ",")), nil
}

// videoPhases are the phases whose behavior depends on the source video
// itself, so the video path joins their config fingerprint.
var videoPhases = map[string]bool{
	"demux": true,
	"mix":   true,
	"burn":  true,
}

// ComputeConfigFingerprint hashes the effective settings of a phase: its
// `phases.<name>` subtree plus the global fields it consumes. The value is
// stored on the phase record but not consulted by ShouldRun; a cosmetic
// config edit does not force a rerun.
func ComputeConfigFingerprint(phaseName string, phaseConfig map[string]any, videoPath string) (string, error) {
	full := make(map[string]any, len(phaseConfig)+1)
	for k, v := range phaseConfig {
		full[k] = v
	}
	if videoPhases[phaseName] && videoPath != "" {
		full["video_path"] = videoPath
	}
	return HashJSON(full)
}
