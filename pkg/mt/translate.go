// Package mt translates utterances under their time budget. Translation is
// per utterance and serial: the name dictionary's first writes must be
// visible before later utterances translate, so a dictionary-completion
// barrier runs first and the utterance loop follows in order.
package mt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dubflow/dubflow/pkg/subtitle"
)

// Constraints carries the budget facts of one utterance into mt_input.
type Constraints struct {
	WindowMs int     `json:"window_ms"`
	ZhTPS    float64 `json:"zh_tps"`
	K        float64 `json:"k"`
	BudgetMs float64 `json:"budget_ms"`
}

// InputRecord is one mt_input.jsonl line.
type InputRecord struct {
	UttID       string              `json:"utt_id"`
	Source      subtitle.SourceText `json:"source"`
	Constraints Constraints         `json:"constraints"`
}

// Stats carries the outcome facts of one utterance into mt_output.
type Stats struct {
	EnEstMs  float64 `json:"en_est_ms"`
	BudgetMs float64 `json:"budget_ms"`
	Retries  int     `json:"retries"`
}

// OutputRecord is one mt_output.jsonl line.
type OutputRecord struct {
	UttID  string              `json:"utt_id"`
	Target subtitle.SourceText `json:"target"`
	Stats  Stats               `json:"stats"`
}

// Result is the full translation outcome of one episode.
type Result struct {
	Inputs   []InputRecord
	Outputs  []OutputRecord
	Warnings []string
}

// Translator drives the per-utterance translation loop.
type Translator struct {
	Fn         TranslateFunc
	Names      *NameMap
	Guard      *NameGuard
	Glossary   *Glossary
	Context    PromptContext
	MaxRetries int
	Log        *slog.Logger
}

const defaultMaxRetries = 3

// cueSep is inserted between cue texts so the model produces punctuation
// at the pause positions, which alignment later uses as cut points.
const cueSep = "<sep>"

// TranslateModel translates every utterance of the model. firstSeen tags
// new dictionary entries with the episode they first appeared in.
func (t *Translator) TranslateModel(m *subtitle.Model, firstSeen string) (*Result, error) {
	log := t.Log
	if log == nil {
		log = slog.Default()
	}
	maxRetries := t.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	// Dictionary-completion barrier: commit every missing name before any
	// utterance translates, so all utterances see the same renderings.
	var detected []string
	for i := range m.Utterances {
		detected = append(detected, t.Guard.DetectNames(m.Utterances[i].Text())...)
	}
	if missing := t.Names.Missing(detected); len(missing) > 0 {
		log.Info("completing name dictionary", "missing", len(missing))
		if err := t.Names.CompleteNames(missing, firstSeen, t.Fn); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	for i := range m.Utterances {
		u := &m.Utterances[i]
		in, out, warns, err := t.translateUtterance(u, maxRetries, log)
		if err != nil {
			return nil, fmt.Errorf("translate %s: %w", u.UttID, err)
		}
		res.Warnings = append(res.Warnings, warns...)
		if in == nil {
			continue
		}
		res.Inputs = append(res.Inputs, *in)
		res.Outputs = append(res.Outputs, *out)
	}
	if len(res.Outputs) == 0 {
		return nil, fmt.Errorf("no utterances translated")
	}
	return res, nil
}

func (t *Translator) translateUtterance(u *subtitle.Utterance, maxRetries int, log *slog.Logger) (*InputRecord, *OutputRecord, []string, error) {
	var parts []string
	for _, c := range u.Cues {
		if s := strings.TrimSpace(c.Source.Text); s != "" {
			parts = append(parts, s)
		}
	}
	zh := strings.Join(parts, cueSep)
	if zh == "" {
		return nil, nil, []string{fmt.Sprintf("%s: empty source text, skipped", u.UttID)}, nil
	}
	srcLang := "zh"
	if len(u.Cues) > 0 && u.Cues[0].Source.Lang != "" {
		srcLang = u.Cues[0].Source.Lang
	}

	tokenized, refs := t.Guard.Replace(zh)
	windowMs := u.DurationMs()
	k := PickK(u.SpeechRate.ZhTPS)
	budgetMs := float64(windowMs) * k

	pc := t.Context
	pc.GlossaryText = t.Glossary.MatchText(zh)

	text, retries, err := t.translateWithRetry(tokenized, budgetMs, maxRetries, pc)
	if err != nil {
		return nil, nil, nil, err
	}

	var warnings []string
	text = EnforceNames(CleanOutput(text), refs, t.Names)

	// One strict re-run on the first glossary violation, then accept with
	// a warning.
	if violations := t.Glossary.Violations(zh, text); len(violations) > 0 {
		prompt := AppendViolations(BuildTranslationPrompt(tokenized, budgetMs, 0, pc), violations)
		strict, serr := t.Fn(prompt)
		if serr != nil {
			return nil, nil, nil, serr
		}
		strict = EnforceNames(CleanOutput(strict), refs, t.Names)
		if still := t.Glossary.Violations(zh, strict); len(still) > 0 {
			warnings = append(warnings, fmt.Sprintf("%s: glossary violated after strict retry: %s",
				u.UttID, strings.Join(still, "; ")))
		}
		if PostCheck(strict) == nil {
			text = strict
		}
		retries++
	}

	if err := PostCheck(text); err != nil {
		return nil, nil, nil, err
	}

	enEstMs := EstimateDurationMs(text)
	if enEstMs > budgetMs {
		log.Warn("translation over budget",
			"utt", u.UttID, "en_est_ms", int(enEstMs), "budget_ms", int(budgetMs))
	}

	in := &InputRecord{
		UttID:  u.UttID,
		Source: subtitle.SourceText{Lang: srcLang, Text: zh},
		Constraints: Constraints{
			WindowMs: windowMs,
			ZhTPS:    u.SpeechRate.ZhTPS,
			K:        k,
			BudgetMs: budgetMs,
		},
	}
	out := &OutputRecord{
		UttID:  u.UttID,
		Target: subtitle.SourceText{Lang: "en", Text: text},
		Stats:  Stats{EnEstMs: enEstMs, BudgetMs: budgetMs, Retries: retries},
	}
	return in, out, warnings, nil
}

// translateWithRetry runs the translate loop: attempt 0 with the normal
// prompt, later attempts with tightening compression prompts. The last
// candidate is returned even when still over budget.
func (t *Translator) translateWithRetry(zhText string, budgetMs float64, maxRetries int, pc PromptContext) (string, int, error) {
	var last string
	for attempt := 0; attempt < maxRetries; attempt++ {
		prompt := BuildTranslationPrompt(zhText, budgetMs, attempt, pc)
		text, err := t.Fn(prompt)
		if err != nil {
			return "", attempt, err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		last = text
		if EstimateDurationMs(CleanOutput(text)) <= budgetMs {
			return text, attempt, nil
		}
	}
	if last == "" {
		return "", maxRetries - 1, fmt.Errorf("translation produced no output")
	}
	return last, maxRetries - 1, nil
}

// WriteInputs writes mt_input.jsonl, one record per line.
func WriteInputs(path string, records []InputRecord) error {
	return writeJSONL(path, len(records), func(i int) any { return records[i] })
}

// WriteOutputs writes mt_output.jsonl, one record per line.
func WriteOutputs(path string, records []OutputRecord) error {
	return writeJSONL(path, len(records), func(i int) any { return records[i] })
}

func writeJSONL(path string, n int, at func(int) any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := 0; i < n; i++ {
		if err := enc.Encode(at(i)); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ReadOutputs reads mt_output.jsonl back.
func ReadOutputs(path string) ([]OutputRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	var records []OutputRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec OutputRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}
