// Package adapter wraps the upstream LLM providers behind a single
// interface. The provider set is closed: adapters are constructed through
// a lookup table, never by string comparisons scattered through callers.
package adapter

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Provider identifies an upstream LLM backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderMock      Provider = "mock"
)

// Providers lists the real upstream providers in a stable order.
func Providers() []Provider {
	return []Provider{ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderDeepSeek}
}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderDeepSeek, ProviderMock:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// Request is a normalized completion request.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature *float64 // nil means provider default
}

// LastUserMessage returns the newest user turn, or "".
func (r Request) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Temp is a convenience constructor for Request.Temperature.
func Temp(v float64) *float64 { return &v }

// Usage captures normalized token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a normalized completion result.
type Response struct {
	Provider  Provider `json:"provider"`
	Model     string   `json:"model"`
	Content   string   `json:"content"`
	Usage     Usage    `json:"usage"`
	LatencyMs int64    `json:"latency_ms"`
	TTFTMs    int64    `json:"ttft_ms,omitempty"` // zero when the call was not streamed
}

// Adapter is the interface every provider implements.
type Adapter interface {
	// Complete sends a chat request to the given model.
	Complete(ctx context.Context, model string, req Request) (*Response, error)

	// Provider returns the adapter's identity.
	Provider() Provider

	// Models returns the upstream model names this adapter serves.
	Models() []string
}

// CredentialResolver supplies provider API keys. The core never stores or
// logs the returned secrets.
type CredentialResolver interface {
	Credential(provider Provider) (string, error)
}

// Set maps providers to their constructed adapters.
type Set map[Provider]Adapter

type factory func(apiKey string, logger *zap.Logger) (Adapter, error)

// factories is the closed provider dispatch table.
var factories = map[Provider]factory{
	ProviderAnthropic: func(key string, logger *zap.Logger) (Adapter, error) { return NewAnthropic(key, logger) },
	ProviderOpenAI:    func(key string, logger *zap.Logger) (Adapter, error) { return NewOpenAI(key, logger) },
	ProviderGoogle:    func(key string, logger *zap.Logger) (Adapter, error) { return NewGoogle(key, logger) },
	ProviderDeepSeek:  func(key string, logger *zap.Logger) (Adapter, error) { return NewDeepSeek(key, logger) },
}

// NewSet constructs adapters for every provider the resolver has a
// credential for. A provider without a credential is skipped, not fatal;
// an empty set is.
func NewSet(creds CredentialResolver, logger *zap.Logger) (Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(Set)
	for _, p := range Providers() {
		key, err := creds.Credential(p)
		if err != nil || key == "" {
			logger.Debug("provider not configured", zap.String("provider", string(p)))
			continue
		}
		a, err := factories[p](key, logger)
		if err != nil {
			return nil, fmt.Errorf("construct %s adapter: %w", p, err)
		}
		set[p] = a
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	return set, nil
}

// AvailableProviders returns the providers present in the set, in the
// stable Providers() order, with mock last when present.
func (s Set) AvailableProviders() []string {
	var out []string
	for _, p := range Providers() {
		if _, ok := s[p]; ok {
			out = append(out, string(p))
		}
	}
	if _, ok := s[ProviderMock]; ok {
		out = append(out, string(ProviderMock))
	}
	return out
}
