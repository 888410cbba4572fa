package asr

import (
	"encoding/json"
	"path"
	"strings"
)

// Request is the file-recognition submit body.
type Request struct {
	User    *UserInfo     `json:"user,omitempty"`
	Audio   AudioConfig   `json:"audio"`
	Request RequestConfig `json:"request"`
}

// UserInfo identifies the caller.
type UserInfo struct {
	UID string `json:"uid,omitempty"`
}

// AudioConfig describes the audio the recognizer fetches by URL.
type AudioConfig struct {
	URL      string `json:"url"`
	Format   string `json:"format"`
	Language string `json:"language,omitempty"`
	Rate     int    `json:"rate,omitempty"`
	Bits     int    `json:"bits,omitempty"`
	Channel  int    `json:"channel,omitempty"`
}

// CorpusConfig carries hotword context.
type CorpusConfig struct {
	BoostingTableName string `json:"boosting_table_name,omitempty"`
	CorrectTableName  string `json:"correct_table_name,omitempty"`
	Context           string `json:"context,omitempty"`
}

// RequestConfig selects recognizer features.
type RequestConfig struct {
	ModelName string `json:"model_name"`

	SSDVersion   string `json:"ssd_version,omitempty"`
	ModelVersion string `json:"model_version,omitempty"`

	EnableITN  bool `json:"enable_itn,omitempty"`
	EnablePunc bool `json:"enable_punc,omitempty"`
	EnableDDC  bool `json:"enable_ddc,omitempty"`

	EnableSpeakerInfo  bool `json:"enable_speaker_info,omitempty"`
	EnableChannelSplit bool `json:"enable_channel_split,omitempty"`

	ShowUtterances bool `json:"show_utterances,omitempty"`
	ShowSpeechRate bool `json:"show_speech_rate,omitempty"`
	ShowVolume     bool `json:"show_volume,omitempty"`

	EnableLID              bool `json:"enable_lid,omitempty"`
	EnableEmotionDetection bool `json:"enable_emotion_detection,omitempty"`
	EnableGenderDetection  bool `json:"enable_gender_detection,omitempty"`

	VADSegment    bool `json:"vad_segment,omitempty"`
	EndWindowSize int  `json:"end_window_size,omitempty"`

	Corpus *CorpusConfig `json:"corpus,omitempty"`
}

// VADSpeakerConfig is the production baseline: VAD segmentation with an
// 800 ms end window, speaker separation, emotion and gender detection.
// Semantic smoothing stays off because it swallows short utterances.
func VADSpeakerConfig(hotwords []string) RequestConfig {
	return RequestConfig{
		ModelName:              "bigmodel",
		SSDVersion:             "200",
		EnableITN:              true,
		EnablePunc:             true,
		EnableSpeakerInfo:      true,
		ShowUtterances:         true,
		EnableEmotionDetection: true,
		EnableGenderDetection:  true,
		VADSegment:             true,
		EndWindowSize:          800,
		Corpus:                 corpusFromHotwords(hotwords),
	}
}

func corpusFromHotwords(hotwords []string) *CorpusConfig {
	if len(hotwords) == 0 {
		return nil
	}
	type hotword struct {
		Word string `json:"word"`
	}
	list := make([]hotword, len(hotwords))
	for i, w := range hotwords {
		list[i] = hotword{Word: w}
	}
	ctx, _ := json.Marshal(map[string]any{"hotwords": list})
	return &CorpusConfig{Context: string(ctx)}
}

// GuessAudioFormat derives the provider format name from the URL's file
// extension, defaulting to wav.
func GuessAudioFormat(url string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(stripQuery(url)), "."))
	switch ext {
	case "wav", "mp3", "ogg", "m4a", "aac", "raw":
		return ext
	}
	return "wav"
}

func stripQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
