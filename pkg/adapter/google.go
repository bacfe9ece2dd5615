package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Google implements Adapter for Gemini models.
type Google struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGoogle creates a new Google Gemini adapter.
func NewGoogle(apiKey string, logger *zap.Logger) (*Google, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return &Google{client: client, logger: logger}, nil
}

// Provider returns the adapter identity.
func (a *Google) Provider() Provider {
	return ProviderGoogle
}

// Models returns the supported Gemini models.
func (a *Google) Models() []string {
	return []string{
		"gemini-2.0-pro",
		"gemini-2.0-flash",
	}
}

// Complete sends a chat request to Gemini. The Gemini API takes a single
// content block, so prior turns are flattened with role prefixes.
func (a *Google) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}

	var sb strings.Builder
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "assistant":
			sb.WriteString(m.Role)
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n\n")
		default:
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
	}

	start := time.Now()
	resp, err := a.client.Models.GenerateContent(ctx, model, genai.Text(sb.String()), cfg)
	latency := time.Since(start)
	if err != nil {
		return nil, wrapGoogleErr(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &AdapterError{Provider: ProviderGoogle, Err: fmt.Errorf("no candidates returned")}
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	a.logger.Debug("google call",
		zap.String("model", model),
		zap.Int64("latency_ms", latency.Milliseconds()))

	return &Response{
		Provider:  ProviderGoogle,
		Model:     model,
		Content:   content,
		Usage:     usage,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

func wrapGoogleErr(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return &AdapterError{Provider: ProviderGoogle, Status: apierr.Code, Err: err}
	}
	return &AdapterError{Provider: ProviderGoogle, Err: err}
}
