package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/apperr"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type AIHandler struct {
	aiService service.AIService
	validate  *validator.Validate
	logger    zerolog.Logger
}

func NewAIHandler(aiService service.AIService, validate *validator.Validate, logger zerolog.Logger) *AIHandler {
	return &AIHandler{
		aiService: aiService,
		validate:  validate,
		logger:    logger,
	}
}

func (h *AIHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("POST /ai", authMw(http.HandlerFunc(h.respond)))
}

func (h *AIHandler) respond(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		writeError(w, apperr.Auth("user not found in context"))
		return
	}

	var body dto.AIRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Validation("invalid JSON payload: %v", err))
		return
	}
	if err := h.validate.Struct(&body); err != nil {
		writeError(w, apperr.Validation("invalid request: %v", err))
		return
	}

	req := requestFromDTO(&body)
	req.RequestID = uuid.NewString()

	result, err := h.aiService.Respond(r.Context(), userID, req)
	if err != nil {
		appErr := apperr.From(err)
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("user_id", userID).Str("request_id", req.RequestID).Msg("AI request failed")
		}
		writeError(w, appErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dto.AIResponseDTO{Text: result.Text, Model: result.Model})
}

func requestFromDTO(body *dto.AIRequestDTO) *model.AIRequest {
	turns := make([]model.Turn, 0, len(body.Turns))
	for _, t := range body.Turns {
		turns = append(turns, model.Turn{Source: t.Source, Text: t.Text})
	}
	return &model.AIRequest{
		Mode:         model.Mode(body.Mode),
		Turns:        turns,
		Question:     body.Question,
		SystemPrompt: body.SystemPrompt,
		Model:        body.Model,
		ImagePNG:     body.ImagePNG,
		SessionID:    body.SessionID,
	}
}

// writeError renders the uniform JSON error body, including Retry-After for
// rate-limited requests.
func writeError(w http.ResponseWriter, appErr *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	if appErr.RetryAfter > 0 {
		secs := int((appErr.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.WriteHeader(appErr.Status)
	json.NewEncoder(w).Encode(dto.ErrorResponseDTO{Status: appErr.Status, Error: appErr.Message})
}
