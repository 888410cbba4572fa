package tts

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dubflow/dubflow/pkg/dub"
	"github.com/dubflow/dubflow/pkg/media"
)

// bytesPerMs for 24 kHz mono 16-bit.
const bytesPerMs = SampleRate * 2 / 1000

type fakeEngine struct {
	durMs int
	calls atomic.Int32
}

func (e *fakeEngine) Synthesize(_ context.Context, _ *Request) ([]byte, error) {
	e.calls.Add(1)
	return make([]byte, e.durMs*bytesPerMs), nil
}

func (e *fakeEngine) ResourceID() string { return "seed-tts-1.0" }

// fakeAudio writes WAV files with configured durations instead of
// shelling out.
type fakeAudio struct {
	trimToMs int
}

func (f *fakeAudio) TrimSilence(_ context.Context, in, out string) error {
	ms := f.trimToMs
	if ms == 0 {
		var err error
		ms, err = media.WAVDurationMs(in)
		if err != nil {
			return err
		}
	}
	return media.WriteSilence(out, ms, SampleRate, Channels)
}

func (f *fakeAudio) AdjustTempo(_ context.Context, _, out string, _ float64, padMs int) error {
	return media.WriteSilence(out, padMs, SampleRate, Channels)
}

func (f *fakeAudio) PadToDuration(_ context.Context, _, out string, durMs int) error {
	return media.WriteSilence(out, durMs, SampleRate, Channels)
}

func testManifest(texts ...string) *dub.Manifest {
	m := &dub.Manifest{AudioDurationMs: 60000}
	for i, text := range texts {
		m.Utterances = append(m.Utterances, dub.Utterance{
			UttID:     fmt.Sprintf("utt_%04d", i+1),
			StartMs:   i * 4000,
			EndMs:     i*4000 + 3000,
			BudgetMs:  3000,
			TextEn:    text,
			Speaker:   "spk_1",
			TTSPolicy: dub.TTSPolicy{MaxRate: 1.3, AllowExtendMs: 500},
		})
	}
	return m
}

func testSynthesizer(engine *fakeEngine, audio *fakeAudio) *Synthesizer {
	return &Synthesizer{
		Engine: engine,
		Audio:  audio,
		Voices: &VoiceTable{Speakers: map[string]Assignment{
			"spk_1": {VoiceType: "en_voice"},
		}},
	}
}

func TestSynthesizeSilentText(t *testing.T) {
	s := testSynthesizer(&fakeEngine{durMs: 1000}, &fakeAudio{})
	rep, err := s.SynthesizeAll(context.Background(), testManifest("..."), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seg := rep.Segments[0]
	if seg.Status != StatusSuccess || seg.FinalMs != 3000 {
		t.Fatalf("seg = %+v", seg)
	}
	ms, err := media.WAVDurationMs(seg.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if ms != 3000 {
		t.Fatalf("silence duration = %d", ms)
	}
}

func TestSynthesizeFitsAndPads(t *testing.T) {
	engine := &fakeEngine{durMs: 2000}
	s := testSynthesizer(engine, &fakeAudio{})
	rep, err := s.SynthesizeAll(context.Background(), testManifest("Short line."), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seg := rep.Segments[0]
	if seg.Status != StatusSuccess {
		t.Fatalf("seg = %+v", seg)
	}
	// Under budget: no trim, padded to the window, rate untouched.
	if seg.RawMs != 2000 || seg.TrimmedMs != 2000 || seg.FinalMs != 3000 || seg.Rate != 1.0 {
		t.Fatalf("seg = %+v", seg)
	}
	if rep.Succeeded != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestSynthesizeRateAdjusted(t *testing.T) {
	engine := &fakeEngine{durMs: 3600}
	s := testSynthesizer(engine, &fakeAudio{trimToMs: 3450})
	rep, err := s.SynthesizeAll(context.Background(), testManifest("A longer line of speech."), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seg := rep.Segments[0]
	if seg.Status != StatusRateAdjusted {
		t.Fatalf("seg = %+v", seg)
	}
	if seg.TrimmedMs != 3450 || seg.FinalMs != 3000 {
		t.Fatalf("seg = %+v", seg)
	}
	if seg.Rate < 1.14 || seg.Rate > 1.16 {
		t.Fatalf("rate = %v", seg.Rate)
	}
}

func TestSynthesizeExtended(t *testing.T) {
	engine := &fakeEngine{durMs: 4300}
	s := testSynthesizer(engine, &fakeAudio{trimToMs: 4200})
	rep, err := s.SynthesizeAll(context.Background(), testManifest("Far too much text for this window."), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seg := rep.Segments[0]
	if seg.Status != StatusExtended {
		t.Fatalf("seg = %+v", seg)
	}
	// 4200/3000 = 1.4 > max rate, but 4200/3500 = 1.2 fits.
	if seg.FinalMs != 3500 {
		t.Fatalf("final = %d", seg.FinalMs)
	}
	if seg.Rate < 1.19 || seg.Rate > 1.21 {
		t.Fatalf("rate = %v", seg.Rate)
	}
}

func TestSynthesizeFailed(t *testing.T) {
	engine := &fakeEngine{durMs: 6100}
	s := testSynthesizer(engine, &fakeAudio{trimToMs: 6000})
	rep, err := s.SynthesizeAll(context.Background(), testManifest("Impossible amount of text."), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	seg := rep.Segments[0]
	if seg.Status != StatusFailed {
		t.Fatalf("seg = %+v", seg)
	}
	if !strings.Contains(seg.Error, "budget") {
		t.Fatalf("error = %q", seg.Error)
	}
	// The trimmed audio is kept for listening.
	ms, err := media.WAVDurationMs(seg.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if ms != 6000 {
		t.Fatalf("evidence duration = %d", ms)
	}
	if rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestSynthesizeNoVoice(t *testing.T) {
	s := testSynthesizer(&fakeEngine{durMs: 1000}, &fakeAudio{})
	m := testManifest("Hello.")
	m.Utterances[0].Speaker = "spk_unknown"
	rep, err := s.SynthesizeAll(context.Background(), m, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Segments[0].Status != StatusFailed {
		t.Fatalf("seg = %+v", rep.Segments[0])
	}
}

func TestSynthesizeCacheHit(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	engine := &fakeEngine{durMs: 2000}
	s := testSynthesizer(engine, &fakeAudio{})
	s.Cache = cache

	if _, err := s.SynthesizeAll(context.Background(), testManifest("Same line."), filepath.Join(dir, "a")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SynthesizeAll(context.Background(), testManifest("Same line."), filepath.Join(dir, "b")); err != nil {
		t.Fatal(err)
	}
	if n := engine.calls.Load(); n != 1 {
		t.Fatalf("engine called %d times, want 1", n)
	}
}

func TestSynthesizeReportOrder(t *testing.T) {
	engine := &fakeEngine{durMs: 1000}
	s := testSynthesizer(engine, &fakeAudio{})
	s.MaxWorkers = 4

	texts := make([]string, 12)
	for i := range texts {
		texts[i] = fmt.Sprintf("Line number %d.", i)
	}
	rep, err := s.SynthesizeAll(context.Background(), testManifest(texts...), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for i, seg := range rep.Segments {
		want := fmt.Sprintf("utt_%04d", i+1)
		if seg.UttID != want {
			t.Fatalf("segment %d is %s, want %s", i, seg.UttID, want)
		}
	}
}
