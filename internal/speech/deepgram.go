package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DeepgramClient opens streaming recognition sessions against Deepgram's
// live transcription WebSocket endpoint.
type DeepgramClient struct {
	apiKey string
	wsURL  string
	dialer *websocket.Dialer
	logger zerolog.Logger
}

var _ Recognizer = (*DeepgramClient)(nil)

// NewDeepgramClient creates a recognizer client. wsURL is the listen
// endpoint, e.g. wss://api.deepgram.com/v1/listen.
func NewDeepgramClient(apiKey, wsURL string, logger zerolog.Logger) *DeepgramClient {
	return &DeepgramClient{
		apiKey: apiKey,
		wsURL:  wsURL,
		dialer: websocket.DefaultDialer,
		logger: logger.With().Str("service", "DeepgramClient").Logger(),
	}
}

// OpenSession dials the live endpoint and starts the receive loop.
func (c *DeepgramClient) OpenSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid recognizer URL: %w", err)
	}
	q := u.Query()
	q.Set("encoding", cfg.Encoding)
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.Channels))
	q.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.apiKey)

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("recognizer connect failed: %w, status=%s, body=%s", err, resp.Status, string(body))
		}
		return nil, fmt.Errorf("recognizer connect failed: %w", err)
	}

	s := &deepgramSession{
		conn:   conn,
		events: make(chan Event, 64),
		logger: c.logger,
	}
	go s.receiveLoop()
	return s, nil
}

type deepgramSession struct {
	conn      *websocket.Conn
	events    chan Event
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
	logger    zerolog.Logger
}

// deepgramResult is the subset of the live-transcription response the relay
// consumes.
type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramSession) SendAudio(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (s *deepgramSession) Events() <-chan Event {
	return s.events
}

// Close tells the upstream to flush any pending final and closes the
// connection. The receive loop drains remaining events and closes the
// events channel.
func (s *deepgramSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.closed = true
		// Best effort: the provider treats this as end-of-audio.
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *deepgramSession) receiveLoop() {
	defer close(s.events)
	for {
		var res deepgramResult
		if err := s.conn.ReadJSON(&res); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || s.isClosed() {
				return
			}
			s.events <- Event{Err: err}
			return
		}
		if res.Type != "Results" || len(res.Channel.Alternatives) == 0 {
			continue
		}
		alt := res.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		s.events <- Event{
			Text:       alt.Transcript,
			IsFinal:    res.IsFinal,
			Confidence: alt.Confidence,
		}
	}
}

func (s *deepgramSession) isClosed() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.closed
}
