package media

import (
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")

	// 100 ms of 24 kHz mono 16-bit.
	samples := make([]byte, 24000*2/10)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = byte(i)
	}
	if err := WriteWAV(path, samples, 24000, 1); err != nil {
		t.Fatal(err)
	}

	info, got, err := ReadWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.SampleRate != 24000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("info = %+v", info)
	}
	if info.DurationMs() != 100 {
		t.Fatalf("duration = %d, want 100", info.DurationMs())
	}
	if len(got) != len(samples) {
		t.Fatalf("data %d bytes, want %d", len(got), len(samples))
	}
	for i := range got {
		if got[i] != samples[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestWriteSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sil.wav")
	if err := WriteSilence(path, 1500, 24000, 1); err != nil {
		t.Fatal(err)
	}
	ms, err := WAVDurationMs(path)
	if err != nil {
		t.Fatal(err)
	}
	if ms != 1500 {
		t.Fatalf("duration = %d, want 1500", ms)
	}
	_, data, _ := ReadWAV(path)
	for _, b := range data {
		if b != 0 {
			t.Fatal("silence is not zero samples")
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := decodeWAV([]byte("not a wav file at all")); err == nil {
		t.Fatal("garbage accepted")
	}
	// Valid RIFF but float samples.
	h := EncodeWAVHeader(4, 24000, 1)
	h[20] = 3
	if _, _, err := decodeWAV(append(h, 0, 0, 0, 0)); err == nil {
		t.Fatal("non-PCM format accepted")
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	h := EncodeWAVHeader(1000, 16000, 1)
	if len(h) != 44 {
		t.Fatalf("header %d bytes", len(h))
	}
	info, _, err := decodeWAV(append(h, make([]byte, 1000)...))
	if err != nil {
		t.Fatal(err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.DataBytes != 1000 {
		t.Fatalf("info = %+v", info)
	}
}

func TestDownmix16KPassthrough(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")

	// Already 16 kHz mono: samples pass through untouched.
	samples := make([]byte, 3200)
	for i := range samples {
		samples[i] = byte(i % 7)
	}
	if err := WriteWAV(in, samples, 16000, 1); err != nil {
		t.Fatal(err)
	}
	if err := Downmix16K(in, out); err != nil {
		t.Fatal(err)
	}
	info, got, err := ReadWAV(out)
	if err != nil {
		t.Fatal(err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 {
		t.Fatalf("info = %+v", info)
	}
	if len(got) != len(samples) {
		t.Fatalf("data %d bytes, want %d", len(got), len(samples))
	}
}

func TestDownmix16KStereo48k(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")

	// One second of 48 kHz stereo silence becomes about a second of
	// 16 kHz mono.
	if err := WriteWAV(in, make([]byte, 48000*4), 48000, 2); err != nil {
		t.Fatal(err)
	}
	if err := Downmix16K(in, out); err != nil {
		t.Fatal(err)
	}
	info, _, err := ReadWAV(out)
	if err != nil {
		t.Fatal(err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 {
		t.Fatalf("info = %+v", info)
	}
	if ms := info.DurationMs(); ms < 900 || ms > 1100 {
		t.Fatalf("duration = %d ms, want about 1000", ms)
	}
}
