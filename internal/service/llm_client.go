package service

import (
	"context"
	"fmt"

	"app/internal/model"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/rs/zerolog"
)

// GenerationRequest is one fully rendered upstream model invocation.
type GenerationRequest struct {
	Model           string
	SystemPrompt    string
	UserPrompt      string
	MaxOutputTokens int
	ImagePNG        string // base64 PNG payload, optional
}

// GenerationStream yields incremental text deltas from the upstream model.
type GenerationStream interface {
	// Next returns the next non-empty delta; ok is false once the stream
	// has ended (normally, on error, or on context cancellation).
	Next() (delta string, ok bool)
	// Err returns the terminal stream error, nil on clean completion.
	Err() error
	// Usage returns the upstream token accounting once known, else nil.
	Usage() *model.TokenUsage
	// Close releases the underlying stream.
	Close() error
}

// LLMClient invokes the upstream model provider.
type LLMClient interface {
	Complete(ctx context.Context, req *GenerationRequest) (string, *model.TokenUsage, error)
	Stream(ctx context.Context, req *GenerationRequest) (GenerationStream, error)
}

// OpenAIClient implements LLMClient against the OpenAI chat completions API.
type OpenAIClient struct {
	client *openai.Client
	logger zerolog.Logger
}

var _ LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client. baseURL is optional and supports
// OpenAI-compatible gateways.
func NewOpenAIClient(apiKey, baseURL string, logger zerolog.Logger) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client: &client,
		logger: logger.With().Str("service", "OpenAIClient").Logger(),
	}
}

// ValidateKey makes a minimal one-token completion to verify the configured
// API key before the gateway starts serving.
func (c *OpenAIClient) ValidateKey(ctx context.Context, model string) error {
	params := openai.ChatCompletionNewParams{
		Model:               model,
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")},
		MaxCompletionTokens: param.NewOpt(int64(1)),
	}
	if _, err := c.client.Chat.Completions.New(ctx, params); err != nil {
		return fmt.Errorf("API key validation failed: %w", err)
	}
	return nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req *GenerationRequest) (string, *model.TokenUsage, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return "", nil, err
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices in completion response")
	}
	usage := &model.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, req *GenerationRequest) (GenerationStream, error) {
	params := c.params(req)
	// The provider reports token usage in a trailing chunk only when asked.
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: param.NewOpt(true),
	}
	return &openaiStream{stream: c.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

func (c *OpenAIClient) params(req *GenerationRequest) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	if req.ImagePNG != "" {
		parts := []openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(req.UserPrompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:image/png;base64," + req.ImagePNG,
			}),
		}
		msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: parts,
				},
			},
		})
	} else {
		msgs = append(msgs, openai.UserMessage(req.UserPrompt))
	}

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    req.Model,
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxOutputTokens))
	}
	return params
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	usage  *model.TokenUsage
}

func (s *openaiStream) Next() (string, bool) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if chunk.Usage.TotalTokens > 0 || chunk.Usage.PromptTokens > 0 {
			s.usage = &model.TokenUsage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, true
		}
	}
	return "", false
}

func (s *openaiStream) Err() error {
	return s.stream.Err()
}

func (s *openaiStream) Usage() *model.TokenUsage {
	return s.usage
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}
