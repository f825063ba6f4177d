package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"app/internal/api/v1/dto"
	"app/internal/apperr"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// AIStreamHandler serves the streaming AI socket. Each connection carries at
// most one in-flight generation; a new ai_request supersedes the previous one.
type AIStreamHandler struct {
	aiService service.AIService
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

func NewAIStreamHandler(aiService service.AIService, allowedOrigins []string, logger zerolog.Logger) *AIStreamHandler {
	return &AIStreamHandler{
		aiService: aiService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func (h *AIStreamHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("GET /ws/ai", authMw(http.HandlerFunc(h.serve)))
}

func (h *AIStreamHandler) serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		writeError(w, apperr.Auth("user not found in context"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade AI stream connection")
		return
	}
	defer conn.Close()

	writer := &wsWriter{conn: conn}
	sup := newRequestSupervisor(r.Context())
	defer sup.Shutdown()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn().Err(err).Str("user_id", userID).Msg("AI stream connection closed unexpectedly")
			}
			return
		}

		var msg dto.AIStreamClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			writer.WriteJSON(dto.AIErrorMessage{Type: "ai_error", Status: http.StatusBadRequest, Message: "invalid JSON payload"})
			continue
		}

		switch msg.Type {
		case "ai_request":
			if msg.RequestID == "" {
				msg.RequestID = uuid.NewString()
			}
			ctx := sup.Begin(msg.RequestID)
			go h.run(ctx, sup, writer, userID, &msg)
		case "ai_cancel":
			sup.Cancel(msg.RequestID)
		default:
			writer.WriteJSON(dto.AIErrorMessage{
				Type:    "ai_error",
				Status:  http.StatusBadRequest,
				Message: "unknown message type " + msg.Type,
			})
		}
	}
}

func (h *AIStreamHandler) run(ctx context.Context, sup *requestSupervisor, writer *wsWriter, userID string, msg *dto.AIStreamClientMessage) {
	defer sup.Finish(msg.RequestID)

	turns := make([]model.Turn, 0, len(msg.Turns))
	for _, t := range msg.Turns {
		turns = append(turns, model.Turn{Source: t.Source, Text: t.Text})
	}
	req := &model.AIRequest{
		RequestID:    msg.RequestID,
		Mode:         model.Mode(msg.Mode),
		Turns:        turns,
		Question:     msg.Question,
		SystemPrompt: msg.SystemPrompt,
		Model:        msg.Model,
		ImagePNG:     msg.ImagePNG,
		SessionID:    msg.SessionID,
	}

	err := h.aiService.StreamRespond(ctx, userID, req, &streamSink{writer: writer})
	if err != nil {
		appErr := apperr.From(err)
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("user_id", userID).Str("request_id", msg.RequestID).Msg("Streaming AI request failed")
		}
		writer.WriteJSON(dto.AIErrorMessage{
			Type:      "ai_error",
			RequestID: msg.RequestID,
			Status:    appErr.Status,
			Message:   appErr.Message,
		})
	}
}

// wsWriter serializes writes to one websocket connection. Gorilla allows a
// single concurrent writer, and deltas race with error messages here.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

// streamSink adapts the websocket writer to the generation event stream.
type streamSink struct {
	writer *wsWriter
}

func (s *streamSink) Start(requestID string) error {
	return s.writer.WriteJSON(dto.AIStartMessage{Type: "ai_start", RequestID: requestID})
}

func (s *streamSink) Delta(requestID, delta string) error {
	return s.writer.WriteJSON(dto.AIDeltaMessage{Type: "ai_delta", RequestID: requestID, Delta: delta})
}

func (s *streamSink) Done(requestID string, cancelled bool, text string) error {
	return s.writer.WriteJSON(dto.AIDoneMessage{Type: "ai_done", RequestID: requestID, Cancelled: cancelled, Text: text})
}

// originChecker allows any origin when the list is empty or contains "*".
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}
