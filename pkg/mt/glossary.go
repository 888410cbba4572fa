package mt

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Glossary is the slang term dictionary enforced on translations. Keys are
// source-language terms, values their mandatory English renderings.
type Glossary struct {
	terms map[string]string
	trie  *runeTrie
}

// NewGlossary builds a glossary from a term map.
func NewGlossary(terms map[string]string) *Glossary {
	g := &Glossary{terms: map[string]string{}, trie: newRuneTrie()}
	for src, en := range terms {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		g.terms[src] = en
		g.trie.insert(src)
	}
	return g
}

// LoadGlossary reads a {"source term": "english term"} JSON file, returning
// an empty glossary when the file is absent.
func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewGlossary(nil), nil
		}
		return nil, fmt.Errorf("load glossary: %w", err)
	}
	var terms map[string]string
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("parse glossary %s: %w", path, err)
	}
	return NewGlossary(terms), nil
}

// Len returns the number of terms.
func (g *Glossary) Len() int { return len(g.terms) }

// Text renders the full glossary as sorted "source -> english" lines for
// the system prompt.
func (g *Glossary) Text() string {
	if len(g.terms) == 0 {
		return ""
	}
	keys := make([]string, 0, len(g.terms))
	for k := range g.terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s -> %s", k, g.terms[k])
	}
	return strings.Join(lines, "\n")
}

// MatchText renders only the terms present in srcText, for per-utterance
// prompts.
func (g *Glossary) MatchText(srcText string) string {
	matched := g.match(srcText)
	if len(matched) == 0 {
		return ""
	}
	lines := make([]string, len(matched))
	for i, k := range matched {
		lines[i] = fmt.Sprintf("%s -> %s", k, g.terms[k])
	}
	return strings.Join(lines, "\n")
}

func (g *Glossary) match(srcText string) []string {
	runes := []rune(srcText)
	seen := map[string]bool{}
	var matched []string
	for i := 0; i < len(runes); i++ {
		n := g.trie.longestMatch(runes, i)
		if n == 0 {
			continue
		}
		term := string(runes[i : i+n])
		if !seen[term] {
			seen[term] = true
			matched = append(matched, term)
		}
	}
	sort.Strings(matched)
	return matched
}

// Violations returns the "source -> english" mappings whose source term
// appears in srcText but whose English target is missing from outText.
// The containment check is case-insensitive.
func (g *Glossary) Violations(srcText, outText string) []string {
	outLower := strings.ToLower(outText)
	var violations []string
	for _, term := range g.match(srcText) {
		en := g.terms[term]
		if !strings.Contains(outLower, strings.ToLower(en)) {
			violations = append(violations, fmt.Sprintf("%s -> %s", term, en))
		}
	}
	return violations
}
