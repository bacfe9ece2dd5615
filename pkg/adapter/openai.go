package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAI implements Adapter for OpenAI models.
type OpenAI struct {
	client openai.Client
	logger *zap.Logger
}

// NewOpenAI creates a new OpenAI adapter.
func NewOpenAI(apiKey string, logger *zap.Logger) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{client: client, logger: logger}, nil
}

// Provider returns the adapter identity.
func (a *OpenAI) Provider() Provider {
	return ProviderOpenAI
}

// Models returns the supported OpenAI models.
func (a *OpenAI) Models() []string {
	return []string{
		"gpt-5.2-instant",
		"gpt-5.2-thinking",
		"gpt-5.2-codex",
		"gpt-5.2-pro",
	}
}

// Complete sends a chat request to OpenAI.
func (a *OpenAI) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, wrapOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &AdapterError{Provider: ProviderOpenAI, Err: fmt.Errorf("no choices returned")}
	}

	a.logger.Debug("openai call",
		zap.String("model", model),
		zap.Int64("latency_ms", latency.Milliseconds()))

	return &Response{
		Provider: ProviderOpenAI,
		Model:    model,
		Content:  resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		LatencyMs: latency.Milliseconds(),
	}, nil
}

func wrapOpenAIErr(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &AdapterError{Provider: ProviderOpenAI, Status: apierr.StatusCode, Err: err}
	}
	return &AdapterError{Provider: ProviderOpenAI, Err: err}
}
