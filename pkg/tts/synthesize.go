package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/dubflow/dubflow/pkg/dub"
	"github.com/dubflow/dubflow/pkg/media"
)

// Segment statuses.
const (
	StatusSuccess      = "success"
	StatusRateAdjusted = "rate_adjusted"
	StatusExtended     = "extended"
	StatusFailed       = "failed"
)

// DefaultMaxWorkers bounds concurrent synthesis calls.
const DefaultMaxWorkers = 4

// Engine synthesizes one utterance to raw 24 kHz mono 16-bit PCM.
type Engine interface {
	Synthesize(ctx context.Context, req *Request) ([]byte, error)
	ResourceID() string
}

var _ Engine = (*Client)(nil)

// audioOps is the slice of the media layer the ladder uses.
type audioOps interface {
	TrimSilence(ctx context.Context, in, out string) error
	AdjustTempo(ctx context.Context, in, out string, rate float64, padMs int) error
	PadToDuration(ctx context.Context, in, out string, durMs int) error
}

var _ audioOps = (*media.FFmpeg)(nil)

// SegmentReport records what the ladder did to one utterance.
type SegmentReport struct {
	UttID      string  `json:"utt_id"`
	BudgetMs   int     `json:"budget_ms"`
	RawMs      int     `json:"raw_ms"`
	TrimmedMs  int     `json:"trimmed_ms"`
	FinalMs    int     `json:"final_ms"`
	Rate       float64 `json:"rate"`
	Status     string  `json:"status"`
	OutputPath string  `json:"output_path"`
	Error      string  `json:"error,omitempty"`
}

// Report aggregates the per-segment outcomes in manifest order.
type Report struct {
	Segments     []SegmentReport `json:"segments"`
	Succeeded    int             `json:"succeeded"`
	RateAdjusted int             `json:"rate_adjusted"`
	Extended     int             `json:"extended"`
	Failed       int             `json:"failed"`
}

// Save writes the report as JSON.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tts report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save tts report: %w", err)
	}
	return nil
}

// LoadReport reads a saved report.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tts report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse tts report %s: %w", path, err)
	}
	return &r, nil
}

// Failures lists the failed segments.
func (r *Report) Failures() []SegmentReport {
	var out []SegmentReport
	for _, s := range r.Segments {
		if s.Status == StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// Synthesizer runs the per-utterance ladder.
type Synthesizer struct {
	Engine Engine
	Cache  *Cache
	Audio  audioOps
	Voices *VoiceTable

	// MaxWorkers bounds parallel synthesis; reports still come out in
	// manifest order.
	MaxWorkers int

	Log *slog.Logger
}

// SynthesizeAll produces one WAV per manifest utterance under outDir,
// named seg_{utt_id}.wav, and the aggregate report. A failed segment does
// not abort the phase; the caller decides what a failure means.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, m *dub.Manifest, outDir string) (*Report, error) {
	if len(m.Utterances) == 0 {
		return nil, fmt.Errorf("tts: empty manifest")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	workers := s.MaxWorkers
	if workers <= 0 {
		workers = DefaultMaxWorkers
	}

	segments := make([]SegmentReport, len(m.Utterances))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range m.Utterances {
		g.Go(func() error {
			u := &m.Utterances[i]
			rep := s.synthesizeSegment(gctx, u, filepath.Join(outDir, "seg_"+u.UttID+".wav"), log)
			segments[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Segments: segments}
	for _, seg := range segments {
		switch seg.Status {
		case StatusSuccess:
			report.Succeeded++
		case StatusRateAdjusted:
			report.RateAdjusted++
		case StatusExtended:
			report.Extended++
		case StatusFailed:
			report.Failed++
		}
	}
	return report, nil
}

// synthesizeSegment walks one utterance down the ladder. Failures are
// recorded on the report, never returned, so one bad utterance cannot
// sink its siblings.
func (s *Synthesizer) synthesizeSegment(ctx context.Context, u *dub.Utterance, outPath string, log *slog.Logger) SegmentReport {
	rep := SegmentReport{
		UttID:      u.UttID,
		BudgetMs:   u.BudgetMs,
		Rate:       1.0,
		OutputPath: outPath,
	}

	if isSilentText(u.TextEn) {
		if err := media.WriteSilence(outPath, u.BudgetMs, SampleRate, Channels); err != nil {
			return failed(rep, err)
		}
		rep.FinalMs = u.BudgetMs
		rep.Status = StatusSuccess
		return rep
	}

	voice := s.Voices.Voice(u.Speaker).VoiceType
	if voice == "" {
		return failed(rep, fmt.Errorf("no voice assigned to speaker %s", u.Speaker))
	}

	rawPath := outPath + ".raw.wav"
	defer os.Remove(rawPath)
	if err := s.acquireRaw(ctx, u, voice, rawPath); err != nil {
		return failed(rep, err)
	}
	rawMs, err := media.WAVDurationMs(rawPath)
	if err != nil {
		return failed(rep, err)
	}
	rep.RawMs = rawMs

	// Trimming can clip speech, so a clip already inside its budget is
	// left alone.
	workPath := rawPath
	rep.TrimmedMs = rawMs
	if rawMs > u.BudgetMs {
		trimmedPath := outPath + ".trim.wav"
		defer os.Remove(trimmedPath)
		if err := s.Audio.TrimSilence(ctx, rawPath, trimmedPath); err != nil {
			return failed(rep, err)
		}
		trimmedMs, err := media.WAVDurationMs(trimmedPath)
		if err != nil {
			return failed(rep, err)
		}
		workPath = trimmedPath
		rep.TrimmedMs = trimmedMs
	}

	switch {
	case rep.TrimmedMs <= u.BudgetMs:
		if err := s.Audio.PadToDuration(ctx, workPath, outPath, u.BudgetMs); err != nil {
			return failed(rep, err)
		}
		rep.FinalMs = u.BudgetMs
		rep.Status = StatusSuccess

	case float64(rep.TrimmedMs)/float64(u.BudgetMs) <= u.TTSPolicy.MaxRate:
		rep.Rate = float64(rep.TrimmedMs) / float64(u.BudgetMs)
		if err := s.Audio.AdjustTempo(ctx, workPath, outPath, rep.Rate, u.BudgetMs); err != nil {
			return failed(rep, err)
		}
		rep.FinalMs = u.BudgetMs
		rep.Status = StatusRateAdjusted
		log.Info("rate adjusted", "utt", u.UttID, "rate", rep.Rate)

	default:
		extended := u.BudgetMs + u.TTSPolicy.AllowExtendMs
		rate := float64(rep.TrimmedMs) / float64(extended)
		if u.TTSPolicy.AllowExtendMs > 0 && rate <= u.TTSPolicy.MaxRate {
			rep.Rate = rate
			if err := s.Audio.AdjustTempo(ctx, workPath, outPath, rate, extended); err != nil {
				return failed(rep, err)
			}
			rep.FinalMs = extended
			rep.Status = StatusExtended
			log.Info("window extended", "utt", u.UttID, "extended_ms", extended, "rate", rate)
		} else {
			// Keep the audible evidence next to the failure.
			if err := copyFile(workPath, outPath); err != nil {
				return failed(rep, err)
			}
			rep.FinalMs = rep.TrimmedMs
			rep.Status = StatusFailed
			rep.Error = fmt.Sprintf("clip %dms exceeds budget %dms even at max rate %.2f with %dms extension",
				rep.TrimmedMs, u.BudgetMs, u.TTSPolicy.MaxRate, u.TTSPolicy.AllowExtendMs)
			log.Warn("segment does not fit", "utt", u.UttID, "trimmed_ms", rep.TrimmedMs, "budget_ms", u.BudgetMs)
		}
	}
	return rep
}

// acquireRaw fetches the synthesis from the cache or the provider.
func (s *Synthesizer) acquireRaw(ctx context.Context, u *dub.Utterance, voice, rawPath string) error {
	meta := CacheMeta{
		Engine:     "doubao",
		EngineVer:  s.Engine.ResourceID(),
		Voice:      voice,
		Lang:       "en",
		Format:     "wav",
		SampleRate: SampleRate,
		Channels:   Channels,
		Prosody:    prosodyFor(u),
		Text:       u.TextEn,
	}
	key := CacheKey(meta)

	if s.Cache != nil {
		hit, err := s.Cache.Get(key, rawPath)
		if err != nil {
			return err
		}
		if hit {
			return nil
		}
	}

	req := &Request{Text: NormalizeText(u.TextEn), Voice: voice}
	if u.Emotion != nil {
		req.Emotion = u.Emotion.Label
	}
	pcm, err := s.Engine.Synthesize(ctx, req)
	if err != nil {
		return fmt.Errorf("synthesize %s: %w", u.UttID, err)
	}
	if err := media.WriteWAV(rawPath, pcm, SampleRate, Channels); err != nil {
		return err
	}
	if s.Cache != nil {
		if err := s.Cache.Put(key, rawPath, meta); err != nil {
			return err
		}
	}
	return nil
}

func prosodyFor(u *dub.Utterance) map[string]string {
	if u.Emotion == nil || u.Emotion.Label == "" {
		return nil
	}
	return map[string]string{"emotion": u.Emotion.Label}
}

func failed(rep SegmentReport, err error) SegmentReport {
	rep.Status = StatusFailed
	rep.Error = err.Error()
	return rep
}

// isSilentText reports text with nothing to speak.
func isSilentText(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
