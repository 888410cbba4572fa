package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Bidirectional session endpoint. Unlike the unidirectional HTTP stream,
// the socket carries a binary-framed protocol: a 4-byte header, a 4-byte
// big-endian payload size, then the payload. Client payloads are JSON;
// server audio payloads are raw PCM.
const (
	defaultWSBaseURL = "wss://openspeech.bytedance.com"
	sessionPath      = "/api/v3/tts/bidirection"
)

// Session protocol events, carried in header bits 16..23.
const (
	eventSessionStart  = 1
	eventSessionFinish = 2
	eventText          = 20
	eventAudio         = 30
	eventEnd           = 31
	eventError         = 255
)

// frameHeader is the fixed client frame header: version 1, one-word
// header, full client request, JSON serialization, no compression.
const frameHeader = uint32(0x10000000 | 0x01000000 | 0x00010000 | 0x00001000)

// StreamClient synthesizes over the bidirectional WebSocket endpoint. It
// holds one session per utterance: open, send the full text as a single
// final chunk, drain audio until the end event.
type StreamClient struct {
	appID      string
	accessKey  string
	resourceID string
	baseURL    string
	dialer     *websocket.Dialer
}

var _ Engine = (*StreamClient)(nil)

// StreamOption configures the stream client.
type StreamOption func(*StreamClient)

// WithStreamBaseURL overrides the WebSocket endpoint, mainly for tests.
func WithStreamBaseURL(url string) StreamOption {
	return func(c *StreamClient) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithStreamResourceID selects the synthesis resource.
func WithStreamResourceID(id string) StreamOption {
	return func(c *StreamClient) { c.resourceID = id }
}

// NewStreamClient builds a WebSocket client from the application
// credentials.
func NewStreamClient(appID, accessKey string, opts ...StreamOption) *StreamClient {
	c := &StreamClient{
		appID:      appID,
		accessKey:  accessKey,
		resourceID: ResourceTTS,
		baseURL:    defaultWSBaseURL,
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResourceID reports the configured synthesis resource.
func (c *StreamClient) ResourceID() string { return c.resourceID }

// Synthesize runs one session and returns the raw PCM bytes, 24 kHz mono
// 16-bit.
func (c *StreamClient) Synthesize(ctx context.Context, req *Request) ([]byte, error) {
	headers := http.Header{}
	headers.Set("X-Api-App-Key", c.appID)
	headers.Set("X-Api-Access-Key", c.accessKey)
	headers.Set("X-Api-Resource-Id", c.resourceID)
	headers.Set("X-Api-Connect-Id", uuid.NewString())

	conn, resp, err := c.dialer.DialContext(ctx, c.baseURL+sessionPath, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("tts session connect: %w (status %s)", err, resp.Status)
		}
		return nil, fmt.Errorf("tts session connect: %w", err)
	}
	defer conn.Close()

	start := map[string]any{
		"event": eventSessionStart,
		"user":  map[string]any{"uid": c.appID},
		"req_params": map[string]any{
			"speaker": req.Voice,
			"audio_params": map[string]any{
				"format":      "pcm",
				"sample_rate": SampleRate,
			},
		},
	}
	if err := writeFrame(conn, start); err != nil {
		return nil, fmt.Errorf("tts session start: %w", err)
	}

	text := map[string]any{
		"event":   eventText,
		"text":    req.Text,
		"is_last": true,
	}
	if req.SpeechRate != 0 {
		text["speech_rate"] = req.SpeechRate
	}
	if req.Emotion != "" {
		text["emotion"] = req.Emotion
		if req.EmotionScale != 0 {
			text["emotion_scale"] = req.EmotionScale
		}
	}
	if err := writeFrame(conn, text); err != nil {
		return nil, fmt.Errorf("tts send text: %w", err)
	}

	var audio []byte
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			return nil, fmt.Errorf("tts session read: %w", err)
		}
		event, payload, ok := parseFrame(msgType, data)
		if !ok {
			continue
		}
		switch event {
		case eventAudio:
			audio = append(audio, payload...)
		case eventEnd:
			writeFrame(conn, map[string]any{"event": eventSessionFinish})
			return audio, nil
		case eventError:
			var e struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			}
			if json.Unmarshal(payload, &e) == nil {
				return nil, &Error{Code: e.Code, Message: e.Message}
			}
			return nil, fmt.Errorf("tts session error: %s", payload)
		}
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts session closed without audio")
	}
	return audio, nil
}

// writeFrame sends one JSON payload in a binary frame.
func writeFrame(conn *websocket.Conn, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, frameHeader)
	binary.Write(&buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
	return conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
}

// parseFrame extracts the event and payload of a server frame.
func parseFrame(msgType int, data []byte) (event int, payload []byte, ok bool) {
	if msgType != websocket.BinaryMessage || len(data) < 8 {
		return 0, nil, false
	}
	header := binary.BigEndian.Uint32(data[0:4])
	size := binary.BigEndian.Uint32(data[4:8])
	if int(size) > len(data)-8 {
		return 0, nil, false
	}
	return int((header >> 16) & 0xFF), data[8 : 8+size], true
}
