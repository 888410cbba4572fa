package subtitle

import (
	"strings"
	"testing"
)

func TestFormatSRT(t *testing.T) {
	out := FormatSRT([]SRTEntry{
		{StartMs: 0, EndMs: 1500, Text: "你好"},
		{StartMs: 1500, EndMs: 2000, Text: "   "}, // dropped
		{StartMs: 2000, EndMs: 3661234, Text: "再见"},
	})
	want := "1\n00:00:00,000 --> 00:00:01,500\n你好\n\n" +
		"2\n00:00:02,000 --> 01:01:01,234\n再见\n\n"
	if out != want {
		t.Fatalf("srt output:\n%q\nwant:\n%q", out, want)
	}
}

func TestParseSRTRoundTrip(t *testing.T) {
	entries := []SRTEntry{
		{StartMs: 100, EndMs: 2500, Text: "first line"},
		{StartMs: 2600, EndMs: 5000, Text: "two\nlines"},
	}
	parsed, err := ParseSRT(FormatSRT(entries))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(parsed), len(entries))
	}
	for i := range entries {
		if parsed[i] != entries[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, parsed[i], entries[i])
		}
	}
}

func TestParseSRTCRLF(t *testing.T) {
	data := strings.ReplaceAll("1\n00:00:00,000 --> 00:00:01,000\nhi\n\n", "\n", "\r\n")
	parsed, err := ParseSRT(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 1 || parsed[0].Text != "hi" || parsed[0].EndMs != 1000 {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestParseSRTBadTiming(t *testing.T) {
	if _, err := ParseSRT("1\nnot a timing line\ntext\n\n"); err == nil {
		t.Fatal("bad timing accepted")
	}
}

func TestModelSRT(t *testing.T) {
	m := &Model{Utterances: []Utterance{
		{UttID: "utt_0001", StartMs: 0, EndMs: 2000, Cues: []Cue{
			{StartMs: 0, EndMs: 900, Source: SourceText{Lang: "zh", Text: "甲"}},
			{StartMs: 900, EndMs: 2000, Source: SourceText{Lang: "zh", Text: "乙"}},
		}},
	}}
	out := ModelSRT(m)
	if !strings.Contains(out, "1\n00:00:00,000 --> 00:00:00,900\n甲") {
		t.Fatalf("missing first cue:\n%s", out)
	}
	if !strings.Contains(out, "2\n00:00:00,900 --> 00:00:02,000\n乙") {
		t.Fatalf("missing second cue:\n%s", out)
	}
}
