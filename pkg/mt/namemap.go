package mt

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// NameEntry is one committed name rendering. Once written it never
// changes; later candidates are recorded as alternatives only.
type NameEntry struct {
	Target       string   `json:"target"`
	Style        string   `json:"style"`
	FirstSeen    string   `json:"first_seen"`
	Source       string   `json:"source"`
	Alternatives []string `json:"alternatives"`
}

// NameMap is the shared first-write-wins name dictionary. A name is not a
// translation result; it is a decision made the first time the name
// appears, and the whole project obeys it afterwards.
type NameMap struct {
	path    string
	entries map[string]*NameEntry
}

// LoadNameMap reads the dictionary, starting empty when the file is
// absent or unreadable.
func LoadNameMap(path string) *NameMap {
	nm := &NameMap{path: path, entries: map[string]*NameEntry{}}
	data, err := os.ReadFile(path)
	if err != nil {
		return nm
	}
	if err := json.Unmarshal(data, &nm.entries); err != nil {
		nm.entries = map[string]*NameEntry{}
	}
	return nm
}

// Save writes the dictionary back to its file.
func (nm *NameMap) Save() error {
	data, err := json.MarshalIndent(nm.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal name map: %w", err)
	}
	if err := os.WriteFile(nm.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save name map: %w", err)
	}
	return nil
}

// Has reports whether a source name is already committed.
func (nm *NameMap) Has(srcName string) bool {
	_, ok := nm.entries[srcName]
	return ok
}

// Target returns the committed English form, or "" when unknown.
func (nm *NameMap) Target(srcName string) string {
	if e, ok := nm.entries[srcName]; ok {
		return e.Target
	}
	return ""
}

// Add commits a name rendering. Returns false when the name already
// exists; the existing entry is never overwritten.
func (nm *NameMap) Add(srcName, target, style, firstSeen, source string) bool {
	if _, ok := nm.entries[srcName]; ok {
		return false
	}
	nm.entries[srcName] = &NameEntry{
		Target:       target,
		Style:        style,
		FirstSeen:    firstSeen,
		Source:       source,
		Alternatives: []string{},
	}
	return true
}

// RecordAlternative notes a later, unused candidate rendering.
func (nm *NameMap) RecordAlternative(srcName, alt string) {
	e, ok := nm.entries[srcName]
	if !ok || alt == e.Target {
		return
	}
	for _, a := range e.Alternatives {
		if a == alt {
			return
		}
	}
	e.Alternatives = append(e.Alternatives, alt)
}

// Missing returns the subset of srcNames without a committed entry,
// deduplicated and sorted.
func (nm *NameMap) Missing(srcNames []string) []string {
	seen := map[string]bool{}
	var missing []string
	for _, n := range srcNames {
		if n == "" || seen[n] || nm.Has(n) {
			continue
		}
		seen[n] = true
		missing = append(missing, n)
	}
	sort.Strings(missing)
	return missing
}

// Names returns all committed source names, sorted.
func (nm *NameMap) Names() []string {
	names := make([]string, 0, len(nm.entries))
	for n := range nm.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CompleteNames translates the missing names with the episode's own
// translation function and commits them first-write-wins. Names the model
// does not return keep their source form. Model output is repaired before
// parsing since LLMs routinely wrap or truncate JSON.
func (nm *NameMap) CompleteNames(missing []string, firstSeen string, fn TranslateFunc) error {
	if len(missing) == 0 {
		return nil
	}
	text, err := fn(BuildNamePrompt(missing))
	if err != nil {
		return fmt.Errorf("complete names: %w", err)
	}

	text = strings.TrimSpace(text)
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}
	var result map[string]string
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		fixed, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return fmt.Errorf("parse name completion: %w", err)
		}
		if err := json.Unmarshal([]byte(fixed), &result); err != nil {
			return fmt.Errorf("parse name completion: %w", err)
		}
	}

	for _, src := range missing {
		target, ok := result[src]
		if !ok || strings.TrimSpace(target) == "" {
			nm.Add(src, src, "keep", firstSeen, "llm")
			continue
		}
		nm.Add(src, target, inferNameStyle(target), firstSeen, "llm")
	}
	return nil
}

func inferNameStyle(target string) string {
	switch {
	case strings.HasPrefix(target, "Mr. ") || strings.HasPrefix(target, "Ms. "):
		return "honorific+surname"
	case strings.Contains(target, " "):
		return "pinyin"
	default:
		return "given-name"
	}
}
