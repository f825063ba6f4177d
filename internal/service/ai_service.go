package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"app/internal/admission"
	"app/internal/apperr"
	"app/internal/model"
	"app/internal/plan"
	"app/internal/pubsub"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// Request validation limits, enforced before any admission or upstream work.
const (
	maxTurns            = 100
	maxCombinedChars    = 12000
	maxQuestionChars    = 800
	maxModelNameChars   = 80
	maxImageBase64Chars = 7 << 20 // ~5 MB decoded
)

// StreamSink receives the ordered event stream of one generation:
// Start, zero or more Deltas, then exactly one Done.
type StreamSink interface {
	Start(requestID string) error
	Delta(requestID, delta string) error
	Done(requestID string, cancelled bool, text string) error
}

// AIService runs the full request lifecycle: validate, build prompt,
// resolve model, pass admission control, invoke the upstream model, record
// usage, release resources.
type AIService interface {
	// Respond runs a unary generation and returns the full completion.
	Respond(ctx context.Context, userID string, req *model.AIRequest) (*model.AIResult, error)
	// StreamRespond runs a streaming generation, emitting events to sink.
	// Cancelling ctx stops the stream on its next step and emits a
	// terminal Done with cancelled=true and whatever text accumulated.
	StreamRespond(ctx context.Context, userID string, req *model.AIRequest, sink StreamSink) error
}

type aiService struct {
	entitlements EntitlementService
	usage        repository.UsageRepository
	admission    *admission.Controller
	llm          LLMClient
	publisher    pubsub.Publisher // optional, may be nil
	usageTopic   string
	logger       zerolog.Logger
}

// NewAIService creates an AIService with a scoped logger. publisher may be
// nil to disable usage event fan-out.
func NewAIService(
	entitlements EntitlementService,
	usage repository.UsageRepository,
	adm *admission.Controller,
	llm LLMClient,
	publisher pubsub.Publisher,
	usageTopic string,
	logger zerolog.Logger,
) AIService {
	return &aiService{
		entitlements: entitlements,
		usage:        usage,
		admission:    adm,
		llm:          llm,
		publisher:    publisher,
		usageTopic:   usageTopic,
		logger:       logger.With().Str("service", "AIService").Logger(),
	}
}

// admitted carries a request that has passed the full admission pipeline.
// release must be called exactly once; callers defer it immediately.
type admitted struct {
	req     *model.AIRequest
	prompt  Prompt
	model   string
	release func()
}

// admit runs validation, model resolution, and the admission pipeline in
// the strict order that protects against paying for doomed requests:
// validation, then model-allowed and feature gates, then rate limit, then
// monthly budget, then concurrency acquisition.
func (s *aiService) admit(ctx context.Context, userID string, req *model.AIRequest) (*admitted, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ent, periodStart, periodEnd, err := s.entitlements.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap, err := s.usage.GetUsageSnapshot(ctx, userID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	modelName, err := s.resolveModel(req, ent, snap)
	if err != nil {
		return nil, err
	}

	if !ent.Allows(modelName) {
		return nil, apperr.PlanRestriction("model %s is not available on plan %s", modelName, ent.PlanTier)
	}
	if req.Mode != model.ModeReply && !ent.SummaryEnabled {
		return nil, apperr.PlanRestriction("mode %s is not available on plan %s", req.Mode, ent.PlanTier)
	}
	if err := s.admission.CheckAndConsumeRate(userID, ent); err != nil {
		return nil, err
	}
	if err := s.admission.CheckMonthlyBudget(snap, ent, modelName); err != nil {
		return nil, err
	}
	release, err := s.admission.AcquireConcurrency(userID, ent)
	if err != nil {
		return nil, err
	}

	return &admitted{
		req:     req,
		prompt:  BuildPrompt(req.Mode, req.Turns, req.Question, req.SystemPrompt),
		model:   modelName,
		release: release,
	}, nil
}

func (s *aiService) Respond(ctx context.Context, userID string, req *model.AIRequest) (*model.AIResult, error) {
	adm, err := s.admit(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	defer adm.release()

	text, usage, err := s.llm.Complete(ctx, s.generation(adm))
	if usage != nil {
		s.recordUsage(ctx, userID, adm, usage, false)
	}
	if err != nil {
		return nil, apperr.Upstream(err)
	}
	return &model.AIResult{Text: text, Model: adm.model, Usage: usage}, nil
}

func (s *aiService) StreamRespond(ctx context.Context, userID string, req *model.AIRequest, sink StreamSink) error {
	adm, err := s.admit(ctx, userID, req)
	if err != nil {
		return err
	}
	defer adm.release()

	stream, err := s.llm.Stream(ctx, s.generation(adm))
	if err != nil {
		return apperr.Upstream(err)
	}
	defer stream.Close()

	if err := sink.Start(req.RequestID); err != nil {
		return err
	}

	var text strings.Builder
	cancelled := false
	for {
		// Cooperative cancellation: each iteration checks whether this
		// request has been retired (superseded or explicitly cancelled).
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		delta, ok := stream.Next()
		if !ok {
			break
		}
		text.WriteString(delta)
		if err := sink.Delta(req.RequestID, delta); err != nil {
			cancelled = true
			break
		}
	}

	if !cancelled {
		if serr := stream.Err(); serr != nil {
			if errors.Is(serr, context.Canceled) {
				cancelled = true
			} else {
				if usage := stream.Usage(); usage != nil {
					s.recordUsage(ctx, userID, adm, usage, false)
				}
				return apperr.Upstream(serr)
			}
		}
	}

	// Usage is recorded whenever the upstream reported it, including for
	// cancelled generations whose partial output the user already saw.
	if usage := stream.Usage(); usage != nil {
		s.recordUsage(ctx, userID, adm, usage, cancelled)
	}
	return sink.Done(req.RequestID, cancelled, text.String())
}

// resolveModel applies the explicit-wins rule, the auto selector, and the
// vision allow-list substitution.
func (s *aiService) resolveModel(req *model.AIRequest, ent *model.Entitlement, snap *model.UsageSnapshot) (string, error) {
	name := strings.TrimSpace(req.Model)

	var chosen string
	if name == "" || strings.EqualFold(name, "auto") {
		picked, err := PickAutoModel(ent, req.Mode, snap)
		if err != nil {
			return "", err
		}
		chosen = picked
	} else {
		chosen = name
	}

	if req.ImagePNG != "" && !plan.IsVisionCapable(chosen) {
		substitute := ""
		for _, m := range ent.AllowedModels {
			if plan.IsVisionCapable(m) {
				substitute = m
				break
			}
		}
		if substitute == "" {
			return "", apperr.PlanRestriction("no vision-capable model available on plan %s", ent.PlanTier)
		}
		chosen = substitute
	}
	return chosen, nil
}

func (s *aiService) generation(adm *admitted) *GenerationRequest {
	return &GenerationRequest{
		Model:           adm.model,
		SystemPrompt:    adm.prompt.System,
		UserPrompt:      adm.prompt.User,
		MaxOutputTokens: adm.prompt.MaxOutputTokens,
		ImagePNG:        adm.req.ImagePNG,
	}
}

// recordUsage writes one ledger row and fans out the usage event. Failures
// are logged and swallowed: failing the user's response because metering
// failed would be a worse outcome than slightly inaccurate metering.
func (s *aiService) recordUsage(ctx context.Context, userID string, adm *admitted, usage *model.TokenUsage, cancelled bool) {
	rec := &model.UsageRecord{
		UserID:           userID,
		RequestID:        adm.req.RequestID,
		SessionID:        adm.req.SessionID,
		Model:            adm.model,
		Mode:             adm.req.Mode,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		Cancelled:        cancelled,
	}

	// The request context may already be cancelled; the ledger write still
	// has to go through.
	ctx = context.WithoutCancel(ctx)

	if err := s.usage.RecordUsage(ctx, rec); err != nil {
		s.logger.Error().Err(err).
			Str("user_id", userID).
			Str("request_id", rec.RequestID).
			Msg("Failed to record usage")
	}

	if s.publisher != nil && s.usageTopic != "" {
		payload, err := json.Marshal(rec)
		if err != nil {
			s.logger.Error().Err(err).Str("request_id", rec.RequestID).Msg("Failed to marshal usage event")
			return
		}
		if _, err := s.publisher.Publish(ctx, s.usageTopic, payload); err != nil {
			s.logger.Error().Err(err).Str("request_id", rec.RequestID).Msg("Failed to publish usage event")
		}
	}
}

// validateRequest normalizes and bounds the request in place. It rejects
// oversized input before any admission or upstream work happens.
func validateRequest(req *model.AIRequest) error {
	if req.Mode == "" {
		req.Mode = model.ModeReply
	}
	if !req.Mode.Valid() {
		return apperr.Validation("unsupported mode %q", req.Mode)
	}
	if len(req.Turns) > maxTurns {
		return apperr.Validation("too many turns: %d, limit is %d", len(req.Turns), maxTurns)
	}

	total := 0
	cleaned := make([]model.Turn, 0, len(req.Turns))
	for _, t := range req.Turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		total += utf8.RuneCountInString(text)
		cleaned = append(cleaned, model.Turn{Source: t.Source, Text: text})
	}
	if total > maxCombinedChars {
		return apperr.Validation("combined transcript too long: %d characters, limit is %d", total, maxCombinedChars)
	}
	req.Turns = cleaned

	req.Question = strings.TrimSpace(req.Question)
	if utf8.RuneCountInString(req.Question) > maxQuestionChars {
		return apperr.Validation("question too long, limit is %d characters", maxQuestionChars)
	}
	if len(req.Model) > maxModelNameChars {
		return apperr.Validation("model name too long")
	}
	if len(req.ImagePNG) > maxImageBase64Chars {
		return apperr.Validation("attached image too large")
	}
	if len(req.Turns) == 0 && req.Question == "" {
		return apperr.Validation("request has no transcript turns and no question")
	}
	return nil
}
