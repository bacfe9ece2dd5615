package adapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Mock returns deterministic responses for local runs and tests.
type Mock struct {
	mu              sync.Mutex
	responses       map[string]string
	errors          map[string]error
	defaultResponse string
	delay           time.Duration
	calls           atomic.Int64
	usage           Usage
}

// NewMock creates a mock adapter with a default response.
func NewMock() *Mock {
	return &Mock{
		responses:       make(map[string]string),
		errors:          make(map[string]error),
		defaultResponse: "mock response:",
		usage:           Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
}

// Provider returns the adapter identity.
func (a *Mock) Provider() Provider {
	return ProviderMock
}

// Models returns the supported mock models.
func (a *Mock) Models() []string {
	return []string{"mock-1"}
}

// Respond registers a canned response for the newest user message.
func (a *Mock) Respond(lastUserMessage, response string) *Mock {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses[lastUserMessage] = response
	return a
}

// Fail registers an error for the newest user message.
func (a *Mock) Fail(lastUserMessage string, err error) *Mock {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors[lastUserMessage] = err
	return a
}

// WithDelay makes every call block for d before responding.
func (a *Mock) WithDelay(d time.Duration) *Mock {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = d
	return a
}

// Calls returns how many times Complete has been invoked.
func (a *Mock) Calls() int64 {
	return a.calls.Load()
}

// Complete returns the canned response for the newest user message, or a
// deterministic echo. Honors context cancellation during the configured
// delay.
func (a *Mock) Complete(ctx context.Context, model string, req Request) (*Response, error) {
	a.calls.Add(1)
	if model == "" {
		model = "mock-1"
	}

	a.mu.Lock()
	delay := a.delay
	key := req.LastUserMessage()
	canned, hasCanned := a.responses[key]
	failure, hasFailure := a.errors[key]
	fallback := a.defaultResponse
	usage := a.usage
	a.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if hasFailure {
		return nil, failure
	}

	content := canned
	if !hasCanned {
		content = fmt.Sprintf("%s\n%s", fallback, key)
	}
	return &Response{
		Provider:  ProviderMock,
		Model:     model,
		Content:   content,
		Usage:     usage,
		LatencyMs: delay.Milliseconds(),
	}, nil
}
