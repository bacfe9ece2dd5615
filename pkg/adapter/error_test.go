package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancellation", context.Canceled, false},
		{"rate limit", &AdapterError{Provider: ProviderOpenAI, Status: 429}, true},
		{"server error", &AdapterError{Provider: ProviderGoogle, Status: 503}, true},
		{"explicit temporary", &AdapterError{Provider: ProviderDeepSeek, Temporary: true}, true},
		{"bad request", &AdapterError{Provider: ProviderAnthropic, Status: 400}, false},
		{"model not found", &AdapterError{Provider: ProviderAnthropic, Status: 404}, false},
		{"plain error", errors.New("boom"), false},
		{"wrapped adapter error", fmt.Errorf("call failed: %w", &AdapterError{Status: 500}), true},
		{"wrapped deadline", fmt.Errorf("attempt: %w", context.DeadlineExceeded), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.transient, IsTransient(tc.err))
		})
	}
}

func TestErrorClassifiers(t *testing.T) {
	rateLimited := &AdapterError{Provider: ProviderOpenAI, Status: 429}
	require.True(t, IsRateLimited(rateLimited))
	require.False(t, IsModelInvalid(rateLimited))

	notFound := &AdapterError{Provider: ProviderGoogle, Status: 404}
	require.True(t, IsModelInvalid(notFound))
	require.False(t, IsRateLimited(notFound))

	require.False(t, IsRateLimited(errors.New("boom")))
}

func TestAdapterErrorMessageAndUnwrap(t *testing.T) {
	inner := errors.New("quota exceeded")
	err := &AdapterError{Provider: ProviderOpenAI, Status: 429, Err: inner}
	require.Contains(t, err.Error(), "openai")
	require.Contains(t, err.Error(), "quota exceeded")
	require.ErrorIs(t, err, inner)

	bare := &AdapterError{Provider: ProviderGoogle, Status: 500}
	require.Contains(t, bare.Error(), "status=500")
}

func TestParseProvider(t *testing.T) {
	for _, p := range Providers() {
		got, err := ParseProvider(string(p))
		require.NoError(t, err)
		require.Equal(t, p, got)
	}

	_, err := ParseProvider("bedrock")
	require.Error(t, err)
}

func TestRequestLastUserMessage(t *testing.T) {
	req := Request{Messages: []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "answer"},
		{Role: "user", Content: "second"},
	}}
	require.Equal(t, "second", req.LastUserMessage())
	require.Empty(t, Request{}.LastUserMessage())
}
