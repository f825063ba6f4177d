package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"app/internal/middleware"
	"app/internal/speech"
	"app/internal/util"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const testJWTSecret = "test-secret"

type fakeSession struct {
	events    chan speech.Event
	chunks    chan []byte
	closeOnce sync.Once
}

func (s *fakeSession) SendAudio(p []byte) error {
	s.chunks <- p
	return nil
}

func (s *fakeSession) Events() <-chan speech.Event { return s.events }

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

type fakeRecognizer struct {
	mu       sync.Mutex
	sessions []*fakeSession
}

func (r *fakeRecognizer) OpenSession(ctx context.Context, cfg speech.SessionConfig) (speech.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &fakeSession{
		events: make(chan speech.Event, 8),
		chunks: make(chan []byte, 8),
	}
	r.sessions = append(r.sessions, s)
	return s, nil
}

func (r *fakeRecognizer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *fakeRecognizer) session(i int) *fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[i]
}

func dialRelay(t *testing.T, rec speech.Recognizer) *websocket.Conn {
	t.Helper()

	mux := http.NewServeMux()
	h := NewTranscriptionHandler(rec, nil, zerolog.Nop())
	h.RegisterRoutes(mux, middleware.AuthMiddleware(testJWTSecret))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	token, err := util.SignJWT("u1", testJWTSecret, time.Minute)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/transcribe?access_token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing relay socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readRelayJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("reading relay message: %v", err)
	}
	return m
}

func TestRelayStartOpensBothSessions(t *testing.T) {
	rec := &fakeRecognizer{}
	conn := dialRelay(t, rec)

	if err := conn.WriteJSON(map[string]string{"type": "start"}); err != nil {
		t.Fatalf("sending start: %v", err)
	}

	for _, want := range []string{"ready:mic", "ready:system"} {
		msg := readRelayJSON(t, conn)
		if msg["type"] != "status" || msg["message"] != want {
			t.Fatalf("got %v, want status %q", msg, want)
		}
	}
	if rec.count() != 2 {
		t.Errorf("opened %d sessions, want 2", rec.count())
	}
}

func TestRelayStartReplacesSessions(t *testing.T) {
	rec := &fakeRecognizer{}
	conn := dialRelay(t, rec)

	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(map[string]string{"type": "start"}); err != nil {
			t.Fatalf("sending start: %v", err)
		}
		readRelayJSON(t, conn)
		readRelayJSON(t, conn)
	}

	if rec.count() != 4 {
		t.Errorf("opened %d sessions across two starts, want 4", rec.count())
	}
	// The first pair was torn down by the second start.
	select {
	case _, ok := <-rec.session(0).events:
		if ok {
			t.Error("unexpected event from replaced session")
		}
	default:
		t.Error("replaced session not closed")
	}
}

func TestRelayTranscriptsKeepSourceAttribution(t *testing.T) {
	rec := &fakeRecognizer{}
	conn := dialRelay(t, rec)

	conn.WriteJSON(map[string]string{"type": "start"})
	readRelayJSON(t, conn)
	readRelayJSON(t, conn)

	// Sessions open in mic, system order.
	rec.session(0).events <- speech.Event{Text: "from the mic", IsFinal: true, Confidence: 0.9}
	rec.session(1).events <- speech.Event{Text: "from the system", IsFinal: false, Confidence: 0.5}

	bySource := map[string]string{}
	for i := 0; i < 2; i++ {
		msg := readRelayJSON(t, conn)
		if msg["type"] != "transcript" {
			t.Fatalf("got %v, want transcript", msg)
		}
		bySource[msg["source"].(string)] = msg["text"].(string)
	}
	if bySource["mic"] != "from the mic" {
		t.Errorf("mic transcript = %q", bySource["mic"])
	}
	if bySource["system"] != "from the system" {
		t.Errorf("system transcript = %q", bySource["system"])
	}
}

func TestRelayLazySessionOnAudio(t *testing.T) {
	rec := &fakeRecognizer{}
	conn := dialRelay(t, rec)

	chunk := []byte{0x01, 0x02, 0x03, 0x04}
	conn.WriteJSON(map[string]string{
		"type":   "audio",
		"source": "system",
		"audio":  base64.StdEncoding.EncodeToString(chunk),
	})

	// No start message was sent; the session opens on first audio.
	deadline := time.After(2 * time.Second)
	for rec.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no session opened for audio chunk")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case got := <-rec.session(0).chunks:
		if !bytes.Equal(got, chunk) {
			t.Errorf("forwarded chunk = %v, want %v", got, chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audio chunk never forwarded")
	}
}

func TestRelayUnknownSourceDropped(t *testing.T) {
	rec := &fakeRecognizer{}
	conn := dialRelay(t, rec)

	conn.WriteJSON(map[string]string{"type": "audio", "source": "tv", "audio": "AAAA"})
	conn.WriteJSON(map[string]string{"type": "stop"})

	msg := readRelayJSON(t, conn)
	if msg["type"] != "status" || msg["message"] != "stopped" {
		t.Fatalf("got %v, want stopped status", msg)
	}
	if rec.count() != 0 {
		t.Errorf("opened %d sessions for an unknown source, want 0", rec.count())
	}
}

func TestRelayRecognizerErrorIsolated(t *testing.T) {
	rec := &fakeRecognizer{}
	conn := dialRelay(t, rec)

	conn.WriteJSON(map[string]string{"type": "start"})
	readRelayJSON(t, conn)
	readRelayJSON(t, conn)

	rec.session(0).events <- speech.Event{Err: context.DeadlineExceeded}

	msg := readRelayJSON(t, conn)
	if msg["type"] != "error" || msg["source"] != "mic" {
		t.Fatalf("got %v, want error for mic", msg)
	}

	// The other source keeps flowing on the same connection.
	rec.session(1).events <- speech.Event{Text: "still alive", IsFinal: true}
	msg = readRelayJSON(t, conn)
	if msg["type"] != "transcript" || msg["source"] != "system" {
		t.Fatalf("got %v, want transcript for system", msg)
	}
}
