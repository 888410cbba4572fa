package subtitle

import (
	"testing"
)

func rawFixture() *RawResponse {
	score := 0.92
	return &RawResponse{
		Result: &RawResult{
			Utterances: []RawUtterance{
				{
					StartTime: 0,
					EndTime:   2000,
					Text:      "你好，我是警察。",
					Additions: &RawUttAdditions{
						Speaker: "1", Gender: "male",
						Emotion: "neutral", EmotionScore: &score,
					},
					Words: []RawWord{
						{StartTime: 0, EndTime: 500, Text: "你好"},
						{StartTime: 500, EndTime: 1200, Text: "我是"},
						{StartTime: 1200, EndTime: 2000, Text: "警察"},
					},
				},
				{
					StartTime: 3000,
					EndTime:   4500,
					Text:      "站住！",
					Additions: &RawUttAdditions{Speaker: "2", Gender: "female"},
					Words: []RawWord{
						{StartTime: 3000, EndTime: 4500, Text: "站住"},
					},
				},
			},
		},
	}
}

func TestExtractWordsAttachesPunctuation(t *testing.T) {
	words, genders := ExtractWords(rawFixture())
	if len(words) != 4 {
		t.Fatalf("got %d words, want 4", len(words))
	}
	if words[0].Text != "你好，" {
		t.Fatalf("word 0 = %q, want punctuation attached", words[0].Text)
	}
	if words[2].Text != "警察。" {
		t.Fatalf("word 2 = %q", words[2].Text)
	}
	if words[3].Text != "站住！" {
		t.Fatalf("word 3 = %q", words[3].Text)
	}
	if words[0].Speaker != "1" || words[3].Speaker != "2" {
		t.Fatalf("speakers = %q, %q", words[0].Speaker, words[3].Speaker)
	}
	if genders["1"] != "male" || genders["2"] != "female" {
		t.Fatalf("genders = %v", genders)
	}
}

func TestExtractWordsSortsGlobally(t *testing.T) {
	raw := &RawResponse{Result: &RawResult{Utterances: []RawUtterance{
		{Text: "后", Words: []RawWord{{StartTime: 900, EndTime: 1200, Text: "后"}}},
		{Text: "前", Words: []RawWord{{StartTime: 0, EndTime: 300, Text: "前"}}},
	}}}
	words, _ := ExtractWords(raw)
	if len(words) != 2 || words[0].Text != "前" {
		t.Fatalf("words not sorted by time: %+v", words)
	}
}

func TestBuildModel(t *testing.T) {
	m, err := Build(rawFixture(), DefaultBuildConfig())
	if err != nil {
		t.Fatal(err)
	}
	if m.Schema.Name != ModelSchemaName || m.Schema.Version != ModelSchemaVersion {
		t.Fatalf("schema = %+v", m.Schema)
	}
	if len(m.Utterances) != 2 {
		t.Fatalf("got %d utterances, want 2", len(m.Utterances))
	}

	u0 := m.Utterances[0]
	if u0.UttID != "utt_0001" {
		t.Fatalf("utt id = %q", u0.UttID)
	}
	if u0.Speaker != "spk_1" {
		t.Fatalf("speaker = %q", u0.Speaker)
	}
	if u0.Gender != "male" {
		t.Fatalf("gender = %q", u0.Gender)
	}
	if u0.Emotion == nil || u0.Emotion.Label != "neutral" {
		t.Fatalf("emotion = %+v", u0.Emotion)
	}
	if u0.Text() != "你好，我是警察。" {
		t.Fatalf("text = %q", u0.Text())
	}
	if u0.SpeechRate.ZhTPS <= 0 {
		t.Fatalf("zh_tps = %v", u0.SpeechRate.ZhTPS)
	}

	u1 := m.Utterances[1]
	if u1.UttID != "utt_0002" || u1.Speaker != "spk_2" {
		t.Fatalf("second utterance = %+v", u1)
	}

	if m.Audio == nil || m.Audio.DurationMs != 4500 {
		t.Fatalf("audio = %+v", m.Audio)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("built model invalid: %v", err)
	}
}

func TestBuildEmptyResponse(t *testing.T) {
	m, err := Build(&RawResponse{}, DefaultBuildConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Utterances) != 0 {
		t.Fatalf("got %d utterances", len(m.Utterances))
	}
}

func TestValidateRejectsOverlap(t *testing.T) {
	m := &Model{Utterances: []Utterance{
		{UttID: "utt_0001", StartMs: 0, EndMs: 1000,
			Cues: []Cue{{StartMs: 0, EndMs: 1000, Source: SourceText{Lang: "zh", Text: "a"}}}},
		{UttID: "utt_0002", StartMs: 900, EndMs: 2000,
			Cues: []Cue{{StartMs: 900, EndMs: 2000, Source: SourceText{Lang: "zh", Text: "b"}}}},
	}}
	if err := m.Validate(); err == nil {
		t.Fatal("overlapping utterances accepted")
	}
}

func TestNormalizeSpeakerID(t *testing.T) {
	cases := map[string]string{
		"":      "spk_0",
		"1":     "spk_1",
		"spk_3": "spk_3",
		" 2 ":   "spk_2",
	}
	for in, want := range cases {
		if got := NormalizeSpeakerID(in); got != want {
			t.Fatalf("NormalizeSpeakerID(%q) = %q, want %q", in, got, want)
		}
	}
}
