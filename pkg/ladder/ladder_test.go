package ladder

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/intent"
	"github.com/zen-systems/switchboard/pkg/registry"
)

func testLadderConfig() config.LadderConfig {
	return config.LadderConfig{
		PerAttemptTimeoutMs: 500,
		MaxRetriesPerRung:   0,
		BaseBackoffMs:       1,
		MaxBackoffMs:        2,
		Chains: map[string][]config.ChainRung{
			"coding":  {{Provider: "mock", Model: "mock-1"}},
			"default": {{Provider: "mock", Model: "mock-1"}},
		},
	}
}

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func userRequest(msg string) adapter.Request {
	return adapter.Request{Messages: []adapter.Message{{Role: "user", Content: msg}}}
}

func TestDoFirstRungSucceeds(t *testing.T) {
	mock := adapter.NewMock().Respond("q", "a")
	set := adapter.Set{adapter.ProviderMock: mock}
	l := New(set, nil, testLadderConfig(), testRNG(), nil)

	chain := []Rung{{Provider: adapter.ProviderMock, Model: "mock-1"}}
	result, err := l.Do(context.Background(), chain, userRequest("q"))
	require.NoError(t, err)
	require.Equal(t, "a", result.Response.Content)
	require.False(t, result.FallbackUsed)
	require.Zero(t, result.RungIndex)
	require.Empty(t, result.Reports)
}

func TestDoFallsThroughToSecondRung(t *testing.T) {
	// Two mock adapters under distinct provider keys: the first always
	// fails, the second answers.
	failing := adapter.NewMock().Fail("q", &adapter.AdapterError{
		Provider: adapter.ProviderOpenAI, Status: 500,
	})
	working := adapter.NewMock().Respond("q", "recovered")
	set := adapter.Set{
		adapter.ProviderOpenAI: failing,
		adapter.ProviderMock:   working,
	}
	l := New(set, nil, testLadderConfig(), testRNG(), nil)

	chain := []Rung{
		{Provider: adapter.ProviderOpenAI, Model: "gpt-5.2-instant"},
		{Provider: adapter.ProviderMock, Model: "mock-1"},
	}
	result, err := l.Do(context.Background(), chain, userRequest("q"))
	require.NoError(t, err)
	require.Equal(t, "recovered", result.Response.Content)
	require.True(t, result.FallbackUsed)
	require.Equal(t, 1, result.RungIndex)
	require.Len(t, result.Reports, 1)
	require.Equal(t, adapter.ProviderOpenAI, result.Reports[0].Provider)
}

func TestDoTransientErrorRetriesSameRung(t *testing.T) {
	transient := &adapter.AdapterError{Provider: adapter.ProviderMock, Status: 429}
	mock := adapter.NewMock().Fail("q", transient)
	set := adapter.Set{adapter.ProviderMock: mock}

	cfg := testLadderConfig()
	cfg.MaxRetriesPerRung = 2
	l := New(set, nil, cfg, testRNG(), nil)

	chain := []Rung{{Provider: adapter.ProviderMock, Model: "mock-1"}}
	_, err := l.Do(context.Background(), chain, userRequest("q"))
	require.Error(t, err)
	require.Equal(t, int64(3), mock.Calls(), "initial attempt plus two retries")
}

func TestDoNonTransientErrorSkipsRetries(t *testing.T) {
	fatal := &adapter.AdapterError{Provider: adapter.ProviderMock, Status: 400}
	mock := adapter.NewMock().Fail("q", fatal)
	set := adapter.Set{adapter.ProviderMock: mock}

	cfg := testLadderConfig()
	cfg.MaxRetriesPerRung = 3
	l := New(set, nil, cfg, testRNG(), nil)

	chain := []Rung{{Provider: adapter.ProviderMock, Model: "mock-1"}}
	_, err := l.Do(context.Background(), chain, userRequest("q"))
	require.Error(t, err)
	require.Equal(t, int64(1), mock.Calls(), "a 400 must not be retried on the same rung")
}

func TestDoExhaustionReportsEveryAttempt(t *testing.T) {
	failing := adapter.NewMock().Fail("q", &adapter.AdapterError{Status: 503})
	set := adapter.Set{adapter.ProviderMock: failing}

	l := New(set, nil, testLadderConfig(), testRNG(), nil)
	chain := []Rung{
		{Provider: adapter.ProviderMock, Model: "mock-1"},
		{Provider: adapter.ProviderAnthropic, Model: "claude-sonnet-4-20250514"},
	}

	result, err := l.Do(context.Background(), chain, userRequest("q"))
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Nil(t, result.Response)
	require.Equal(t, err, result.Err)

	// One real attempt plus the unconfigured-provider report.
	require.Len(t, exhausted.Reports, 2)
	require.Equal(t, "provider not configured", exhausted.Reports[1].Error)
}

func TestDoPerAttemptTimeout(t *testing.T) {
	slow := adapter.NewMock().WithDelay(200 * time.Millisecond)
	set := adapter.Set{adapter.ProviderMock: slow}

	cfg := testLadderConfig()
	cfg.PerAttemptTimeoutMs = 20
	l := New(set, nil, cfg, testRNG(), nil)

	chain := []Rung{{Provider: adapter.ProviderMock, Model: "mock-1"}}
	start := time.Now()
	_, err := l.Do(context.Background(), chain, userRequest("q"))
	require.Error(t, err)
	require.Less(t, time.Since(start), 150*time.Millisecond, "attempt must be cut off by its own timeout")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.True(t, exhausted.Reports[0].TimedOut)
}

func TestDoCancelledContextStopsTheChain(t *testing.T) {
	mock := adapter.NewMock()
	set := adapter.Set{adapter.ProviderMock: mock}
	l := New(set, nil, testLadderConfig(), testRNG(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := []Rung{{Provider: adapter.ProviderMock, Model: "mock-1"}}
	_, err := l.Do(ctx, chain, userRequest("q"))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, mock.Calls())
}

func TestDoEmptyChain(t *testing.T) {
	l := New(adapter.Set{}, nil, testLadderConfig(), testRNG(), nil)
	result, err := l.Do(context.Background(), nil, userRequest("q"))
	require.Error(t, err)
	require.NotNil(t, result)
	require.Error(t, result.Err)
}

func TestChainForSkipsUnconfiguredProviders(t *testing.T) {
	set := adapter.Set{adapter.ProviderMock: adapter.NewMock()}

	cfg := testLadderConfig()
	cfg.Chains = map[string][]config.ChainRung{
		"coding": {
			{Provider: "openai", Model: "gpt-5.2-codex"},
			{Provider: "mock", Model: "mock-1"},
			{Provider: "not-a-provider", Model: "x"},
		},
	}
	l := New(set, nil, cfg, testRNG(), nil)

	chain := l.ChainFor(intent.TaskCoding)
	require.Len(t, chain, 1)
	require.Equal(t, adapter.ProviderMock, chain[0].Provider)
}

func TestChainForFallsBackToDefault(t *testing.T) {
	set := adapter.Set{adapter.ProviderMock: adapter.NewMock()}
	l := New(set, nil, testLadderConfig(), testRNG(), nil)

	chain := l.ChainFor(intent.TaskCreativeWriting)
	require.Len(t, chain, 1, "unknown task types use the default chain")
}

func TestSanitizeModelUsesProviderDefault(t *testing.T) {
	reg, err := registry.New([]registry.ModelDescriptor{
		{ID: "m", Provider: "mock", UpstreamName: "mock-1", MaxContext: 8000},
	})
	require.NoError(t, err)

	mock := adapter.NewMock().Respond("q", "a")
	set := adapter.Set{adapter.ProviderMock: mock}
	l := New(set, NewRegistryResolver(reg), testLadderConfig(), testRNG(), nil)

	chain := []Rung{{Provider: adapter.ProviderMock, Model: "hallucinated-model"}}
	result, err := l.Do(context.Background(), chain, userRequest("q"))
	require.NoError(t, err)
	require.Equal(t, "mock-1", result.Model, "invalid model must be replaced with the provider default")
}

func TestExhaustedErrorCountsDistinctRungs(t *testing.T) {
	e := &ExhaustedError{Reports: []AttemptReport{
		{Provider: "a", Model: "m1"},
		{Provider: "a", Model: "m1", Retries: 1},
		{Provider: "b", Model: "m2"},
	}}
	require.Contains(t, e.Error(), "3 attempts")
	require.Contains(t, e.Error(), "2 rungs")
	require.False(t, errors.Is(e, context.Canceled))
}
