package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// serverFrame encodes one server-side frame with the event in the header.
func serverFrame(event int, payload []byte) []byte {
	header := uint32(0x10000000) | uint32(event)<<16
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, header)
	binary.Write(&buf, binary.BigEndian, uint32(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

// readClientFrame decodes one client frame into its JSON payload.
func readClientFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msgType != websocket.BinaryMessage || len(data) < 8 {
		t.Fatalf("bad frame: type=%d len=%d", msgType, len(data))
	}
	size := binary.BigEndian.Uint32(data[4:8])
	var doc map[string]any
	if err := json.Unmarshal(data[8:8+size], &doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func streamServer(t *testing.T, handle func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sessionPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-App-Key") != "app" || r.Header.Get("X-Api-Resource-Id") != "seed-tts-1.0" {
			t.Errorf("headers = %v", r.Header)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestStreamSynthesize(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn) {
		start := readClientFrame(t, conn)
		if start["event"].(float64) != eventSessionStart {
			t.Errorf("first event = %v", start["event"])
		}
		text := readClientFrame(t, conn)
		if text["text"].(string) != "Hello there." || text["is_last"] != true {
			t.Errorf("text frame = %v", text)
		}
		conn.WriteMessage(websocket.BinaryMessage, serverFrame(eventAudio, []byte("abcd")))
		conn.WriteMessage(websocket.BinaryMessage, serverFrame(eventAudio, []byte("efgh")))
		conn.WriteMessage(websocket.BinaryMessage, serverFrame(eventEnd, nil))
	})
	defer srv.Close()

	c := NewStreamClient("app", "key", WithStreamBaseURL(wsURL(srv)))
	audio, err := c.Synthesize(context.Background(), &Request{Text: "Hello there.", Voice: "en_voice"})
	if err != nil {
		t.Fatal(err)
	}
	if string(audio) != "abcdefgh" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestStreamSynthesizeError(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn) {
		readClientFrame(t, conn)
		readClientFrame(t, conn)
		payload, _ := json.Marshal(map[string]any{"code": 55000001, "message": "quota exceeded"})
		conn.WriteMessage(websocket.BinaryMessage, serverFrame(eventError, payload))
	})
	defer srv.Close()

	c := NewStreamClient("app", "key", WithStreamBaseURL(wsURL(srv)))
	_, err := c.Synthesize(context.Background(), &Request{Text: "Hi.", Voice: "en_voice"})
	if err == nil {
		t.Fatal("error event accepted")
	}
	e, ok := AsError(err)
	if !ok || e.Code != 55000001 {
		t.Fatalf("err = %v", err)
	}
}

func TestStreamSynthesizeNoAudio(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn) {
		readClientFrame(t, conn)
		readClientFrame(t, conn)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	defer srv.Close()

	c := NewStreamClient("app", "key", WithStreamBaseURL(wsURL(srv)))
	if _, err := c.Synthesize(context.Background(), &Request{Text: "Hi.", Voice: "en_voice"}); err == nil {
		t.Fatal("empty session accepted")
	}
}
