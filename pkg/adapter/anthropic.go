package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// Anthropic implements Adapter for Claude models.
type Anthropic struct {
	client anthropic.Client
	logger *zap.Logger
}

// NewAnthropic creates a new Anthropic adapter.
func NewAnthropic(apiKey string, logger *zap.Logger) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{client: client, logger: logger}, nil
}

// Provider returns the adapter identity.
func (a *Anthropic) Provider() Provider {
	return ProviderAnthropic
}

// Models returns the supported Claude models.
func (a *Anthropic) Models() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
	}
}

// Complete sends a chat request to Claude.
func (a *Anthropic) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, wrapAnthropicErr(err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	a.logger.Debug("anthropic call",
		zap.String("model", model),
		zap.Int64("latency_ms", latency.Milliseconds()))

	return &Response{
		Provider: ProviderAnthropic,
		Model:    model,
		Content:  content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		LatencyMs: latency.Milliseconds(),
	}, nil
}

func wrapAnthropicErr(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &AdapterError{Provider: ProviderAnthropic, Status: apierr.StatusCode, Err: err}
	}
	return &AdapterError{Provider: ProviderAnthropic, Err: err}
}
