package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
)

// ParseError reports an unusable classifier response. It is recovered
// locally — Classify never surfaces it to the caller.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification parse error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("classification parse error: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Classifier classifies prompts with one call to a cheap, deterministic
// model under a strict JSON-only response contract.
type Classifier struct {
	adapters adapter.Set
	cfg      config.ClassifierConfig
	logger   *zap.Logger
}

// NewClassifier creates a classifier using the configured cheap model.
func NewClassifier(adapters adapter.Set, cfg config.ClassifierConfig, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{adapters: adapters, cfg: cfg, logger: logger}
}

// Classify returns the intent for a message. It always returns a value:
// any upstream or parse failure falls back to the default intent.
func (c *Classifier) Classify(ctx context.Context, message, contextSummary string) Intent {
	got, err := c.classify(ctx, message, contextSummary)
	if err != nil {
		c.logger.Warn("intent classification failed, using default",
			zap.String("task_type", string(TaskGenericChat)),
			zap.Error(err))
		return Default(message)
	}
	return got
}

func (c *Classifier) classify(ctx context.Context, message, contextSummary string) (Intent, error) {
	provider, err := adapter.ParseProvider(c.cfg.Provider)
	if err != nil {
		return Intent{}, err
	}
	adapterImpl, ok := c.adapters[provider]
	if !ok {
		return Intent{}, fmt.Errorf("classifier provider %s not configured", provider)
	}

	timeout := time.Duration(c.cfg.TimeoutMs) * time.Millisecond
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := adapterImpl.Complete(ctx, c.cfg.Model, adapter.Request{
		Messages: []adapter.Message{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: buildClassifierPrompt(message, contextSummary)},
		},
		MaxTokens:   256,
		Temperature: adapter.Temp(0),
	})
	if err != nil {
		return Intent{}, err
	}
	if resp == nil || resp.Content == "" {
		return Intent{}, &ParseError{Reason: "empty classifier response"}
	}

	got, err := parseClassifierResponse(resp.Content)
	if err != nil {
		return Intent{}, err
	}
	if got.EstimatedInputTokens <= 0 {
		got.EstimatedInputTokens = EstimateTokens(message)
	}
	return got, nil
}

const classifierSystemPrompt = `You are a routing classifier. Respond with ONLY a JSON object, no prose:
{"task_type":"...","requires_web":bool,"requires_tools":bool,"priority":"quality|speed|cost","estimated_input_tokens":int}
task_type is one of: generic_chat, web_research, deep_reasoning, coding, math, summarization, document_analysis, creative_writing.`

func buildClassifierPrompt(message, contextSummary string) string {
	var sb strings.Builder
	sb.WriteString("User message:\n")
	sb.WriteString(message)
	if contextSummary != "" {
		sb.WriteString("\n\nConversation summary:\n")
		sb.WriteString(contextSummary)
	}
	return sb.String()
}

type classifierPick struct {
	TaskType             string `json:"task_type"`
	RequiresWeb          bool   `json:"requires_web"`
	RequiresTools        bool   `json:"requires_tools"`
	Priority             string `json:"priority"`
	EstimatedInputTokens int    `json:"estimated_input_tokens"`
}

func parseClassifierResponse(content string) (Intent, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var pick classifierPick
	if err := json.Unmarshal([]byte(content), &pick); err != nil {
		return Intent{}, &ParseError{Reason: "invalid JSON", Err: err}
	}

	taskType, ok := ParseTaskType(pick.TaskType)
	if !ok {
		return Intent{}, &ParseError{Reason: fmt.Sprintf("unknown task_type %q", pick.TaskType)}
	}
	priority, ok := ParsePriority(pick.Priority)
	if !ok {
		return Intent{}, &ParseError{Reason: fmt.Sprintf("unknown priority %q", pick.Priority)}
	}

	return Intent{
		TaskType:             taskType,
		RequiresWeb:          pick.RequiresWeb || taskType == TaskWebResearch,
		RequiresTools:        pick.RequiresTools,
		Priority:             priority,
		EstimatedInputTokens: pick.EstimatedInputTokens,
	}, nil
}
