package dub

import (
	"strings"
	"testing"
)

func TestResegmentSplitsAtPunctuation(t *testing.T) {
	cues := ResegmentEnglish("Stop right there, don't move. Hands up!", 1000, 5000, 2.5)
	if len(cues) != 3 {
		t.Fatalf("got %d cues, want 3", len(cues))
	}
	if cues[0].Source.Text != "Stop right there," {
		t.Fatalf("cue 0 = %q", cues[0].Source.Text)
	}
	if cues[1].Source.Text != "don't move." {
		t.Fatalf("cue 1 = %q", cues[1].Source.Text)
	}
	if cues[2].Source.Text != "Hands up!" {
		t.Fatalf("cue 2 = %q", cues[2].Source.Text)
	}
	if cues[0].StartMs != 1000 {
		t.Fatalf("first cue starts at %d", cues[0].StartMs)
	}
	if cues[2].EndMs != 5000 {
		t.Fatalf("last cue ends at %d, want the window end", cues[2].EndMs)
	}
	for i := 1; i < len(cues); i++ {
		if cues[i-1].EndMs > cues[i].StartMs {
			t.Fatal("cues overlap")
		}
	}
}

func TestResegmentScalesToWindow(t *testing.T) {
	// Two equal-length parts split the window proportionally.
	cues := ResegmentEnglish("one two three, four five six.", 0, 4000, 2.5)
	if len(cues) != 2 {
		t.Fatalf("got %d cues", len(cues))
	}
	if cues[0].EndMs != 2000 {
		t.Fatalf("midpoint = %d, want 2000", cues[0].EndMs)
	}
	if cues[1].EndMs != 4000 {
		t.Fatalf("end = %d", cues[1].EndMs)
	}
}

func TestResegmentChunksUnpunctuatedText(t *testing.T) {
	words := strings.Repeat("word ", 30)
	cues := ResegmentEnglish(strings.TrimSpace(words), 0, 12000, 2.5)
	if len(cues) < 2 {
		t.Fatalf("30 unpunctuated words in %d cue(s)", len(cues))
	}
	for _, c := range cues {
		n := len(strings.Fields(c.Source.Text))
		if n > 12 {
			t.Fatalf("cue has %d words", n)
		}
	}
	if cues[len(cues)-1].EndMs != 12000 {
		t.Fatalf("last cue ends at %d", cues[len(cues)-1].EndMs)
	}
}

func TestResegmentShortText(t *testing.T) {
	cues := ResegmentEnglish("Okay.", 500, 1400, 2.5)
	if len(cues) != 1 {
		t.Fatalf("got %d cues", len(cues))
	}
	if cues[0].StartMs != 500 || cues[0].EndMs != 1400 {
		t.Fatalf("window = [%d, %d]", cues[0].StartMs, cues[0].EndMs)
	}
}

func TestWordsPerSecond(t *testing.T) {
	if got := WordsPerSecond("one two three four five", 2000); got != 2.5 {
		t.Fatalf("en_wps = %v", got)
	}
	if got := WordsPerSecond("text", 0); got != 0 {
		t.Fatalf("en_wps = %v", got)
	}
}
