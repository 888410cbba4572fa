package mt

import (
	"fmt"
	"strings"
)

// PromptContext carries the optional material shared by all prompts of one
// episode.
type PromptContext struct {
	// EpisodeContext is the concatenated source transcript, supplied as
	// context only.
	EpisodeContext string
	// PlotOverview is an optional synopsis.
	PlotOverview string
	// GlossaryText is the rendered "source -> english" term list.
	GlossaryText string
}

const maxEpisodeContextChars = 5000

// BuildTranslationPrompt renders the prompt for one utterance. Level 0 is
// the full translation prompt; higher levels ask for progressively harder
// compression of an over-long result.
func BuildTranslationPrompt(zhText string, budgetMs float64, level int, pc PromptContext) string {
	budgetSec := budgetMs / 1000.0
	maxChars := MaxChars(budgetMs)

	if level >= 2 {
		return fmt.Sprintf(`Make the following English subtitle much shorter to fit within %.2f seconds (approximately %d characters).
You may omit filler words, repetitions, or minor details, but keep the core meaning.

Important: If the text contains <<NAME_x:...>> placeholders, translate them to English names.
Do NOT keep any <<NAME_x>> or <<NAME_x:...>> in the output.

About <sep> markers (if present):
- <sep> indicates a light pause between phrases.
- Translate naturally and keep the meaning.

Subtitle:
"%s"

Output ONLY the shortened English subtitle text (with all names translated, no placeholders).`, budgetSec, maxChars, zhText)
	}
	if level == 1 {
		return fmt.Sprintf(`Shorten the following English subtitle to fit within %.2f seconds (approximately %d characters),
while keeping the core meaning.

Important: If the text contains <<NAME_x:...>> placeholders, translate them to English names.
Do NOT keep any <<NAME_x>> or <<NAME_x:...>> in the output.

About <sep> markers (if present):
- <sep> indicates a light pause between phrases.
- Translate naturally and keep the meaning.

Subtitle:
"%s"

Output ONLY the shortened English subtitle text (with all names translated, no placeholders).`, budgetSec, maxChars, zhText)
	}

	var system strings.Builder
	system.WriteString(`You are a professional subtitle translator for a crime drama.

Rules:
1) The input may contain <<NAME_i:...>> which is a Chinese personal name.
   Translate the name into English (pinyin or surname-based). Do NOT invent Western names.
   Do NOT translate name meanings.
2) Translate naturally. Do NOT translate word by word.
3) This dialogue includes gambling / card-game slang. Use natural English equivalents.
4) Output must be clean English for subtitles:
   - Remove all <<NAME_i:...>> placeholders (render the translated name).
   - Remove <sep> separators (use punctuation/pauses naturally).
Return ONLY the final English text.`)
	if pc.GlossaryText != "" {
		system.WriteString("\n\nGlossary (MUST follow EXACTLY if these phrases appear):\n")
		system.WriteString(pc.GlossaryText)
	}

	var user strings.Builder
	if pc.PlotOverview != "" {
		fmt.Fprintf(&user, "Plot overview:\n%s\n\n", pc.PlotOverview)
	}
	if pc.EpisodeContext != "" {
		ec := pc.EpisodeContext
		if runes := []rune(ec); len(runes) > maxEpisodeContextChars {
			ec = string(runes[:maxEpisodeContextChars]) + "..."
		}
		fmt.Fprintf(&user, "Episode dialogue context:\n%s\n\n", ec)
	}
	user.WriteString("Context: This dialogue includes gambling and card-game slang. Use natural English equivalents.\n")
	user.WriteString("\nConstraints:\n")
	fmt.Fprintf(&user, "- This subtitle will be displayed for %.2f seconds.\n", budgetSec)
	fmt.Fprintf(&user, "- Maximum allowed length: approximately %d English characters (including spaces).\n", maxChars)
	user.WriteString("- The translation must be natural, concise, and readable.\n")
	user.WriteString("- Do NOT add explanations or notes.\n")
	user.WriteString("- Do NOT exceed the maximum length.\n\n")
	user.WriteString("Translate ONLY this utterance into natural English for subtitles:\n")
	fmt.Fprintf(&user, "%q", zhText)

	return system.String() + "\n\n" + user.String()
}

// AppendViolations extends a prompt with the glossary mappings the previous
// attempt missed, for the single strict re-run.
func AppendViolations(prompt string, violations []string) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nIMPORTANT: You violated the glossary. The following mappings were not followed:\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	b.WriteString("\nRe-translate and strictly follow the glossary mappings above.")
	return b.String()
}

// BuildNamePrompt renders the minimal naming prompt used to complete
// missing dictionary entries.
func BuildNamePrompt(missing []string) string {
	var names strings.Builder
	for _, n := range missing {
		fmt.Fprintf(&names, "- %s\n", n)
	}
	return fmt.Sprintf(`You are a professional translator specializing in Chinese name translation. Always output valid JSON only.

Translate the following Chinese personal names into English.

Rules:
- Do NOT invent Western names.
- Do NOT translate meaning.
- Prefer pinyin or surname-based forms.
- For honorific prefixes (老/小/阿), convert appropriately:
  - "老X" → "Mr. X" (older, respectful)
  - "小X" → "X" or "Little X" (younger, informal)
  - "阿X" → "X" (informal, given name)
- Return only the translated names.

Names to translate:
%s
Output format: JSON object with the following structure:
{
  "老张": "Mr. Zhang",
  "阿强": "Qiang",
  "平安": "Ping An"
}

Output ONLY valid JSON, no explanations.`, names.String())
}
