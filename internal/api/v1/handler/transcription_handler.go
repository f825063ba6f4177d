package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"app/internal/api/v1/dto"
	"app/internal/apperr"
	"app/internal/middleware"
	"app/internal/speech"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Audio source tags accepted on the relay socket.
const (
	sourceMic    = "mic"
	sourceSystem = "system"
)

// TranscriptionHandler serves the audio relay socket. One client connection
// multiplexes two upstream recognizer sessions, one per audio source, and
// transcript results flow back tagged with the source they came from.
type TranscriptionHandler struct {
	recognizer speech.Recognizer
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

func NewTranscriptionHandler(recognizer speech.Recognizer, allowedOrigins []string, logger zerolog.Logger) *TranscriptionHandler {
	return &TranscriptionHandler{
		recognizer: recognizer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func (h *TranscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("GET /ws/transcribe", authMw(http.HandlerFunc(h.serve)))
}

// relayConn is the per-connection state of one relay client.
type relayConn struct {
	writer     *wsWriter
	recognizer speech.Recognizer
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]speech.Session
	wg       sync.WaitGroup
}

func (h *TranscriptionHandler) serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		writeError(w, apperr.Auth("user not found in context"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade transcription connection")
		return
	}
	defer conn.Close()

	rc := &relayConn{
		writer:     &wsWriter{conn: conn},
		recognizer: h.recognizer,
		logger:     h.logger.With().Str("user_id", userID).Logger(),
		sessions:   make(map[string]speech.Session),
	}
	defer rc.closeAll()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				rc.logger.Warn().Err(err).Msg("Transcription connection closed unexpectedly")
			}
			return
		}
		rc.handleMessage(r.Context(), data)
	}
}

func (rc *relayConn) handleMessage(ctx context.Context, data []byte) {
	var msg dto.RelayClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		rc.writer.WriteJSON(dto.RelayErrorMessage{Type: "error", Message: "invalid JSON payload"})
		return
	}

	switch msg.Type {
	case "start":
		rc.start(ctx)
	case "audio":
		rc.audio(ctx, msg.Source, msg.Audio)
	case "stop":
		rc.closeAll()
		rc.writer.WriteJSON(dto.RelayStatusMessage{Type: "status", Message: "stopped"})
	default:
		rc.logger.Warn().Str("type", msg.Type).Msg("Dropping unknown relay message")
	}
}

// start opens fresh recognizer sessions for both sources, tearing down any
// existing ones. A failure on one source is reported for that source only;
// the other keeps working.
func (rc *relayConn) start(ctx context.Context) {
	rc.closeAll()
	for _, source := range []string{sourceMic, sourceSystem} {
		if _, err := rc.session(ctx, source); err != nil {
			rc.writer.WriteJSON(dto.RelayErrorMessage{Type: "error", Source: source, Message: err.Error()})
			continue
		}
		rc.writer.WriteJSON(dto.RelayStatusMessage{Type: "status", Message: "ready:" + source})
	}
}

// audio forwards one chunk to the session of its source, opening the session
// lazily if the client never sent a start message.
func (rc *relayConn) audio(ctx context.Context, source, payload string) {
	if source != sourceMic && source != sourceSystem {
		rc.logger.Warn().Str("source", source).Msg("Dropping audio chunk with unknown source")
		return
	}

	chunk, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		rc.writer.WriteJSON(dto.RelayErrorMessage{Type: "error", Source: source, Message: "invalid base64 audio payload"})
		return
	}

	sess, err := rc.session(ctx, source)
	if err != nil {
		rc.writer.WriteJSON(dto.RelayErrorMessage{Type: "error", Source: source, Message: err.Error()})
		return
	}
	if err := sess.SendAudio(chunk); err != nil {
		rc.logger.Error().Err(err).Str("source", source).Msg("Failed to forward audio chunk")
		rc.writer.WriteJSON(dto.RelayErrorMessage{Type: "error", Source: source, Message: err.Error()})
	}
}

// session returns the live session for source, opening one if needed. Each
// opened session gets its own forwarder goroutine tagged with that source,
// so results from the two streams can never be cross-attributed.
func (rc *relayConn) session(ctx context.Context, source string) (speech.Session, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if sess, ok := rc.sessions[source]; ok {
		return sess, nil
	}
	sess, err := rc.recognizer.OpenSession(ctx, speech.DefaultSessionConfig())
	if err != nil {
		return nil, err
	}
	rc.sessions[source] = sess

	rc.wg.Add(1)
	go rc.forward(source, sess)
	return sess, nil
}

// forward relays recognition events for one source back to the client. A
// recognizer error ends this source's stream but leaves the connection and
// the other source untouched.
func (rc *relayConn) forward(source string, sess speech.Session) {
	defer rc.wg.Done()

	for ev := range sess.Events() {
		if ev.Err != nil {
			rc.logger.Error().Err(ev.Err).Str("source", source).Msg("Recognizer session failed")
			rc.writer.WriteJSON(dto.RelayErrorMessage{Type: "error", Source: source, Message: ev.Err.Error()})
			continue
		}
		rc.writer.WriteJSON(dto.RelayTranscriptMessage{
			Type:       "transcript",
			Source:     source,
			Text:       ev.Text,
			IsFinal:    ev.IsFinal,
			IsInterim:  !ev.IsFinal,
			Confidence: ev.Confidence,
		})
	}

	rc.mu.Lock()
	if rc.sessions[source] == sess {
		delete(rc.sessions, source)
	}
	rc.mu.Unlock()
}

// closeAll finalizes every open session. Each session closes independently;
// one failing close does not skip the other.
func (rc *relayConn) closeAll() {
	rc.mu.Lock()
	sessions := rc.sessions
	rc.sessions = make(map[string]speech.Session)
	rc.mu.Unlock()

	for source, sess := range sessions {
		if err := sess.Close(); err != nil {
			rc.logger.Error().Err(err).Str("source", source).Msg("Failed to close recognizer session")
		}
	}
	rc.wg.Wait()
}
