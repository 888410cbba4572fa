// Package config loads the pipeline configuration from a YAML file.
//
// The configuration has a small set of global fields (video path, output
// directory) plus a free-form `phases` section keyed by phase name. Phases
// read their own knobs through the typed accessors; credentials never live
// in the file, they come from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the root configuration document.
type Config struct {
	// VideoPath is the absolute path of the episode being processed.
	// Set by the CLI from the positional argument, not from the file.
	VideoPath string `yaml:"video_path"`

	// OutputDir overrides the derived workspace parent directory.
	OutputDir string `yaml:"output_dir"`

	// Phases holds per-phase settings keyed by phase name.
	Phases map[string]map[string]any `yaml:"phases"`
}

// Load reads a YAML config file. A missing path returns an empty config so
// every knob falls back to its default.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Phase returns the settings map for a phase. Never nil.
func (c *Config) Phase(name string) map[string]any {
	if c == nil || c.Phases == nil {
		return map[string]any{}
	}
	m := c.Phases[name]
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Str returns a string setting with a default.
func (c *Config) Str(phase, key, def string) string {
	v, ok := c.Phase(phase)[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Int returns an integer setting with a default.
func (c *Config) Int(phase, key string, def int) int {
	v, ok := c.Phase(phase)[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Float returns a float setting with a default.
func (c *Config) Float(phase, key string, def float64) float64 {
	v, ok := c.Phase(phase)[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return def
}

// Bool returns a boolean setting with a default.
func (c *Config) Bool(phase, key string, def bool) bool {
	v, ok := c.Phase(phase)[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// StrMap returns a string-to-string map setting, e.g. role casts or
// glossaries. Non-string entries are dropped.
func (c *Config) StrMap(phase, key string) map[string]string {
	out := map[string]string{}
	v, ok := c.Phase(phase)[key]
	if !ok {
		return out
	}
	switch m := v.(type) {
	case map[string]any:
		for k, val := range m {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	case map[any]any:
		for k, val := range m {
			ks, ok1 := k.(string)
			vs, ok2 := val.(string)
			if ok1 && ok2 {
				out[ks] = vs
			}
		}
	}
	return out
}
