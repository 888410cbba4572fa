package mt

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	namePlaceholderRe = regexp.MustCompile(`<<NAME_\d+(?::[^>]*)?>>`)
	slangMarkerRe     = regexp.MustCompile(`<SLANG:[^>]*>`)
	sepMarkerRe       = regexp.MustCompile(`\s*<sep>\s*`)
)

// CleanOutput strips the scaffolding markers a model may echo back:
// residual <sep> separators, <<NAME_i:...>> placeholders, <SLANG:...>
// markers, and wrapping quotes.
func CleanOutput(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, `"`)
	text = sepMarkerRe.ReplaceAllString(text, " ")
	text = namePlaceholderRe.ReplaceAllString(text, "")
	text = slangMarkerRe.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	return text
}

// ContainsSourceChars reports whether the text still carries
// source-language codepoints.
func ContainsSourceChars(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// PostCheck validates a cleaned translation: no source-language
// characters, no placeholders, no separators.
func PostCheck(text string) error {
	if ContainsSourceChars(text) {
		return fmt.Errorf("translation contains source-language characters: %q", text)
	}
	if strings.Contains(text, "<<NAME_") {
		return fmt.Errorf("translation contains name placeholder: %q", text)
	}
	if strings.Contains(text, "<sep>") {
		return fmt.Errorf("translation contains separator marker: %q", text)
	}
	return nil
}

// EnforceNames makes sure every detected name appears in its committed
// dictionary form. Known wrong variants (concatenated pinyin, spacing or
// case drift) are substituted; an utterance that collapsed to pure
// punctuation is rebuilt from the name itself.
func EnforceNames(text string, refs []NameRef, nm *NameMap) string {
	for _, ref := range refs {
		target := nm.Target(ref.Source)
		if target == "" {
			continue
		}
		if containsFold(text, target) {
			continue
		}
		for _, variant := range nameVariants(target) {
			if variant == "" || strings.EqualFold(variant, target) {
				continue
			}
			if replaced := replaceFold(text, variant, target); replaced != text {
				text = replaced
				break
			}
		}
		if containsFold(text, target) {
			continue
		}
		if isPunctOnly(text) {
			punct := "."
			if t := strings.TrimSpace(text); t != "" {
				punct = string([]rune(t)[len([]rune(t))-1:])
			}
			text = target + punct
		}
	}
	return text
}

// nameVariants lists the wrong renderings a model commonly produces for a
// multi-part English name.
func nameVariants(target string) []string {
	parts := strings.Fields(target)
	if len(parts) < 2 {
		return nil
	}
	joined := strings.Join(parts, "")
	capitalized := strings.ToUpper(joined[:1]) + strings.ToLower(joined[1:])
	variants := []string{joined, capitalized}
	if strings.HasPrefix(target, "Mr. ") || strings.HasPrefix(target, "Ms. ") {
		variants = append(variants, strings.TrimPrefix(strings.TrimPrefix(target, "Mr. "), "Ms. "))
	}
	return variants
}

func isPunctOnly(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// replaceFold replaces every case-insensitive occurrence of old with new.
func replaceFold(s, old, new string) string {
	if old == "" {
		return s
	}
	lower := strings.ToLower(s)
	oldLower := strings.ToLower(old)
	var b strings.Builder
	for {
		idx := strings.Index(lower, oldLower)
		if idx < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:idx])
		b.WriteString(new)
		s = s[idx+len(old):]
		lower = lower[idx+len(oldLower):]
	}
}
