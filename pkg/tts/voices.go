package tts

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// RoleCast is one entry of the hand-edited role_cast.json: a named role
// mapped to a provider voice.
type RoleCast struct {
	VoiceType   string `json:"voice_type"`
	Description string `json:"description,omitempty"`
}

// Assignment is the resolved voice for one speaker.
type Assignment struct {
	Role      string `json:"role,omitempty"`
	VoiceType string `json:"voice_type"`
}

// VoiceTable maps every speaker in the manifest to a voice. It is written
// next to the segments as voice_assignment.json so a rerun reuses the
// same casting.
type VoiceTable struct {
	Speakers map[string]Assignment `json:"speakers"`
}

// Voice returns the assignment for a speaker, or the zero value.
func (t *VoiceTable) Voice(speaker string) Assignment {
	if t == nil {
		return Assignment{}
	}
	return t.Speakers[speaker]
}

// DefaultVoices are the fallbacks for speakers without a cast role.
type DefaultVoices struct {
	Male   string
	Female string
	Other  string
}

// ResolveVoices builds the voice table for the given speakers. Casting is
// two files edited between runs: speaker_to_role.json names a role per
// speaker, role_cast.json maps roles to provider voices. Speakers without
// a role fall back to the gender default.
func ResolveVoices(speakers []string, genders map[string]string, speakerToRolePath, roleCastPath string, defaults DefaultVoices) (*VoiceTable, error) {
	speakerToRole, err := readJSONMap[string](speakerToRolePath)
	if err != nil {
		return nil, err
	}
	roleCast, err := readJSONMap[RoleCast](roleCastPath)
	if err != nil {
		return nil, err
	}

	table := &VoiceTable{Speakers: make(map[string]Assignment, len(speakers))}
	for _, spk := range speakers {
		role := speakerToRole[spk]
		if cast, ok := roleCast[role]; ok && cast.VoiceType != "" {
			table.Speakers[spk] = Assignment{Role: role, VoiceType: cast.VoiceType}
			continue
		}
		voice := defaults.Other
		switch genders[spk] {
		case "male":
			voice = defaults.Male
		case "female":
			voice = defaults.Female
		}
		if voice == "" {
			voice = defaults.Other
		}
		if voice == "" {
			return nil, fmt.Errorf("no voice for speaker %s: not cast and no default", spk)
		}
		table.Speakers[spk] = Assignment{Role: role, VoiceType: voice}
	}
	return table, nil
}

// readJSONMap loads a JSON object file, treating a missing file as empty.
func readJSONMap[V any](path string) (map[string]V, error) {
	if path == "" {
		return map[string]V{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]V{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var m map[string]V
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// Save writes the table with stable key order.
func (t *VoiceTable) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal voice table: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save voice table: %w", err)
	}
	return nil
}

// LoadVoiceTable reads a saved table.
func LoadVoiceTable(path string) (*VoiceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load voice table: %w", err)
	}
	var t VoiceTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse voice table %s: %w", path, err)
	}
	return &t, nil
}

// SpeakerList returns the table's speakers in sorted order.
func (t *VoiceTable) SpeakerList() []string {
	out := make([]string, 0, len(t.Speakers))
	for spk := range t.Speakers {
		out = append(out, spk)
	}
	sort.Strings(out)
	return out
}
