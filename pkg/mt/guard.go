package mt

import (
	"fmt"
	"strings"
)

// runeTrie is a forward trie over runes used for longest-match scanning of
// source text against a term roster.
type runeTrie struct {
	children map[rune]*runeTrie
	terminal bool
}

func newRuneTrie() *runeTrie {
	return &runeTrie{}
}

func (t *runeTrie) insert(term string) {
	node := t
	for _, r := range term {
		if node.children == nil {
			node.children = make(map[rune]*runeTrie)
		}
		ch, ok := node.children[r]
		if !ok {
			ch = &runeTrie{}
			node.children[r] = ch
		}
		node = ch
	}
	node.terminal = true
}

// longestMatch returns the length in runes of the longest term starting at
// runes[i], or 0 when none matches.
func (t *runeTrie) longestMatch(runes []rune, i int) int {
	node := t
	best := 0
	for j := i; j < len(runes); j++ {
		if node.children == nil {
			break
		}
		ch, ok := node.children[runes[j]]
		if !ok {
			break
		}
		node = ch
		if node.terminal {
			best = j - i + 1
		}
	}
	return best
}

// NameRef is one detected name occurrence inside an utterance.
type NameRef struct {
	// Placeholder is the opaque token sent to the model, "<<NAME_1:阿强>>".
	Placeholder string
	// Source is the source-language name.
	Source string
}

// NameGuard detects personal names in source text and replaces them with
// opaque placeholders so the model cannot mistranslate them. Detection is
// roster-based: the committed dictionary names plus any configured extras.
type NameGuard struct {
	trie  *runeTrie
	names map[string]bool
}

// NewNameGuard builds a guard over the given name roster.
func NewNameGuard(names []string) *NameGuard {
	g := &NameGuard{trie: newRuneTrie(), names: map[string]bool{}}
	for _, n := range names {
		g.AddName(n)
	}
	return g
}

// AddName extends the roster.
func (g *NameGuard) AddName(name string) {
	name = strings.TrimSpace(name)
	if name == "" || g.names[name] {
		return
	}
	g.names[name] = true
	g.trie.insert(name)
}

// Replace rewrites the text with name placeholders. Indices are assigned
// per call in order of first occurrence; repeated occurrences of the same
// name reuse the same placeholder.
func (g *NameGuard) Replace(text string) (string, []NameRef) {
	runes := []rune(text)
	var b strings.Builder
	var refs []NameRef
	byName := map[string]string{}

	for i := 0; i < len(runes); {
		n := g.trie.longestMatch(runes, i)
		if n == 0 {
			b.WriteRune(runes[i])
			i++
			continue
		}
		name := string(runes[i : i+n])
		ph, ok := byName[name]
		if !ok {
			ph = fmt.Sprintf("<<NAME_%d:%s>>", len(refs)+1, name)
			byName[name] = ph
			refs = append(refs, NameRef{Placeholder: ph, Source: name})
		}
		b.WriteString(ph)
		i += n
	}
	return b.String(), refs
}

// DetectNames returns the distinct names present in the text, in order of
// first occurrence.
func (g *NameGuard) DetectNames(text string) []string {
	_, refs := g.Replace(text)
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Source
	}
	return names
}
