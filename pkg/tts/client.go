// Package tts synthesizes per-utterance audio clips that fit their
// manifest windows, against a content-addressed synthesis cache.
//
// The provider client streams chunked base64 audio over HTTP; the
// synthesizer wraps it with the trim/tempo/pad ladder that decides
// whether a clip fits, gets rate-adjusted, borrows the extension
// allowance, or fails.
package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL = "https://openspeech.bytedance.com"
	streamPath     = "/api/v3/tts/unidirectional"

	// ResourceTTS is the big-model synthesis resource.
	ResourceTTS = "seed-tts-1.0"

	// codeDone terminates the chunk stream.
	codeDone = 20000000

	defaultTimeout = 60 * time.Second

	// SampleRate and Channels are the canonical cache format.
	SampleRate = 24000
	Channels   = 1
)

// Error is a synthesis API failure.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tts: %s (code=%d)", e.Message, e.Code)
}

// AsError extracts a provider error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Client streams synthesis from the Doubao TTS API.
type Client struct {
	appID      string
	accessKey  string
	resourceID string
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient substitutes the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithResourceID selects the synthesis resource. The speaker suffix must
// match the resource generation.
func WithResourceID(id string) Option {
	return func(c *Client) { c.resourceID = id }
}

// NewClient builds a client from the application credentials.
func NewClient(appID, accessKey string, opts ...Option) *Client {
	c := &Client{
		appID:      appID,
		accessKey:  accessKey,
		resourceID: ResourceTTS,
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return c
}

// ResourceID reports the configured synthesis resource.
func (c *Client) ResourceID() string { return c.resourceID }

// Request is one synthesis call.
type Request struct {
	Text  string
	Voice string

	// SpeechRate is the provider-native rate offset, -50 to 100, 0 normal.
	SpeechRate float64

	Emotion      string
	EmotionScale int
}

type streamBody struct {
	User      userInfo  `json:"user"`
	ReqParams reqParams `json:"req_params"`
}

type userInfo struct {
	UID string `json:"uid"`
}

type reqParams struct {
	Text        string      `json:"text"`
	Speaker     string      `json:"speaker"`
	AudioParams audioParams `json:"audio_params"`
}

type audioParams struct {
	Format       string  `json:"format"`
	SampleRate   int     `json:"sample_rate"`
	SpeechRate   float64 `json:"speech_rate,omitempty"`
	Emotion      string  `json:"emotion,omitempty"`
	EmotionScale int     `json:"emotion_scale,omitempty"`
}

// streamChunk is one line of the chunked response.
type streamChunk struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// Synthesize streams one utterance and returns the raw PCM bytes,
// 24 kHz mono 16-bit. Chunks arrive as base64 on JSON lines; the stream
// ends at the terminator code.
func (c *Client) Synthesize(ctx context.Context, req *Request) ([]byte, error) {
	body := streamBody{
		User: userInfo{UID: c.appID},
		ReqParams: reqParams{
			Text:    req.Text,
			Speaker: req.Voice,
			AudioParams: audioParams{
				Format:       "pcm",
				SampleRate:   SampleRate,
				SpeechRate:   req.SpeechRate,
				Emotion:      req.Emotion,
				EmotionScale: req.EmotionScale,
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-App-Id", c.appID)
	httpReq.Header.Set("X-Api-Access-Key", c.accessKey)
	httpReq.Header.Set("X-Api-Resource-Id", c.resourceID)
	httpReq.Header.Set("X-Api-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return nil, &Error{Code: resp.StatusCode, Message: string(b)}
	}

	var audio []byte
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		switch {
		case chunk.Code == 0 && chunk.Data != "":
			decoded, err := base64.StdEncoding.DecodeString(chunk.Data)
			if err != nil {
				return nil, fmt.Errorf("decode audio chunk: %w", err)
			}
			audio = append(audio, decoded...)
		case chunk.Code == codeDone:
			return audio, nil
		case chunk.Code > 0:
			return nil, &Error{Code: chunk.Code, Message: chunk.Message}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tts stream: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts stream ended without audio or terminator")
	}
	return audio, nil
}
