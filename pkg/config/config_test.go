package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Int("tts", "max_workers", 4); got != 4 {
		t.Fatalf("default not applied: got %d", got)
	}
}

func TestPhaseAccessors(t *testing.T) {
	path := writeConfig(t, `
phases:
  tts:
    max_workers: 8
    max_rate: 1.25
    voice: "en_male_adam"
    mute_original: true
  mt:
    glossary:
      "师父": "Master"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Int("tts", "max_workers", 4); got != 8 {
		t.Fatalf("Int = %d, want 8", got)
	}
	if got := cfg.Float("tts", "max_rate", 1.3); got != 1.25 {
		t.Fatalf("Float = %v, want 1.25", got)
	}
	if got := cfg.Str("tts", "voice", ""); got != "en_male_adam" {
		t.Fatalf("Str = %q", got)
	}
	if !cfg.Bool("tts", "mute_original", false) {
		t.Fatal("Bool = false, want true")
	}
	glossary := cfg.StrMap("mt", "glossary")
	if glossary["师父"] != "Master" {
		t.Fatalf("StrMap = %v", glossary)
	}
	// Unknown phase falls back to defaults.
	if got := cfg.Float("align", "target_wps", 2.5); got != 2.5 {
		t.Fatalf("unknown phase default = %v", got)
	}
}
