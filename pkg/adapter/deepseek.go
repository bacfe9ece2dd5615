package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeek implements Adapter for DeepSeek models. DeepSeek exposes an
// OpenAI-compatible API, called here with a plain HTTP client.
type DeepSeek struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type deepseekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewDeepSeek creates a new DeepSeek adapter.
func NewDeepSeek(apiKey string, logger *zap.Logger) (*DeepSeek, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeepSeek{
		apiKey:     apiKey,
		baseURL:    deepseekBaseURL,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// Provider returns the adapter identity.
func (a *DeepSeek) Provider() Provider {
	return ProviderDeepSeek
}

// Models returns the supported DeepSeek models.
func (a *DeepSeek) Models() []string {
	return []string{
		"deepseek-chat",
		"deepseek-reasoner",
	}
}

// Complete sends a chat request to DeepSeek.
func (a *DeepSeek) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := deepseekRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, deepseekMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal deepseek request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	httpResp, err := a.httpClient.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return nil, &AdapterError{Provider: ProviderDeepSeek, Temporary: true, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &AdapterError{Provider: ProviderDeepSeek, Temporary: true, Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &AdapterError{
			Provider: ProviderDeepSeek,
			Status:   httpResp.StatusCode,
			Err:      fmt.Errorf("deepseek API status %d: %s", httpResp.StatusCode, truncate(string(data), 200)),
		}
	}

	var parsed deepseekResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &AdapterError{Provider: ProviderDeepSeek, Err: fmt.Errorf("decode deepseek response: %w", err)}
	}
	if parsed.Error != nil {
		return nil, &AdapterError{Provider: ProviderDeepSeek, Err: fmt.Errorf("deepseek API error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &AdapterError{Provider: ProviderDeepSeek, Err: fmt.Errorf("no choices returned")}
	}

	a.logger.Debug("deepseek call",
		zap.String("model", model),
		zap.Int64("latency_ms", latency.Milliseconds()))

	return &Response{
		Provider: ProviderDeepSeek,
		Model:    model,
		Content:  parsed.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		LatencyMs: latency.Milliseconds(),
	}, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
