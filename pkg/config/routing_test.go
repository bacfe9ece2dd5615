package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRouting(t *testing.T) {
	cfg := DefaultRouting()

	require.NotNil(t, cfg.Epsilon)
	require.Equal(t, 0.10, *cfg.Epsilon)

	require.Equal(t, 500, cfg.Scoring.LatencyFloorMs)
	require.Equal(t, 4000, cfg.Scoring.LatencyCeilMs)
	require.Equal(t, 0.0005, cfg.Scoring.CostFloor)
	require.Equal(t, 0.005, cfg.Scoring.CostCeil)
	require.Equal(t, 0.7, cfg.Scoring.CapabilityWeight)

	// Every priority has a blend and each blend sums to 1.
	for _, p := range []string{"quality", "speed", "cost", "balanced"} {
		w, ok := cfg.Scoring.Weights[p]
		require.True(t, ok, "missing weights for %s", p)
		require.InDelta(t, 1.0, w.Quality+w.Speed+w.Cost, 1e-9)
	}

	require.Equal(t, 30000, cfg.Coalesce.SuccessTTLMs)
	require.Equal(t, 2000, cfg.Coalesce.FailureTTLMs)

	require.Equal(t, 6000, cfg.Ladder.PerAttemptTimeoutMs)
	require.Zero(t, cfg.Ladder.MaxRetriesPerRung, "default posture prefers the next rung over retrying")
	require.NotEmpty(t, cfg.Ladder.Chains["default"], "a default chain must exist")

	require.Equal(t, "claude-opus", cfg.Collab.StrongestModel)
	require.NotEmpty(t, cfg.Collab.CreatorPool)

	require.Equal(t, 1000, cfg.Perf.HistorySize)
}

func TestLoadRoutingOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	data := `epsilon: 0.25
scoring:
  latency_floor_ms: 200
ladder:
  per_attempt_timeout_ms: 3000
  chains:
    default:
      - provider: mock
        model: mock-1
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadRouting(path)
	require.NoError(t, err)

	require.Equal(t, 0.25, *cfg.Epsilon)
	require.Equal(t, 200, cfg.Scoring.LatencyFloorMs)
	require.Equal(t, 3000, cfg.Ladder.PerAttemptTimeoutMs)

	// Untouched fields still get defaults.
	require.Equal(t, 4000, cfg.Scoring.LatencyCeilMs)
	require.Equal(t, 30000, cfg.Coalesce.SuccessTTLMs)

	// A file-provided chain replaces the built-in set entirely.
	require.Len(t, cfg.Ladder.Chains, 1)
	require.Equal(t, "mock", cfg.Ladder.Chains["default"][0].Provider)
}

func TestLoadRoutingKeepsExplicitZeroEpsilon(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epsilon: 0\n"), 0644))

	cfg, err := LoadRouting(path)
	require.NoError(t, err)

	// An explicit 0 means fully greedy routing; it must not be bumped to
	// the default.
	require.NotNil(t, cfg.Epsilon)
	require.Zero(t, *cfg.Epsilon)
}

func TestLoadRoutingMissingFile(t *testing.T) {
	_, err := LoadRouting(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestDefaultChainsReferenceKnownProviders(t *testing.T) {
	known := map[string]bool{"anthropic": true, "openai": true, "google": true, "deepseek": true}
	for task, chain := range defaultChains() {
		require.NotEmpty(t, chain, "chain for %s is empty", task)
		for _, rung := range chain {
			require.True(t, known[rung.Provider], "%s chain references unknown provider %s", task, rung.Provider)
			require.NotEmpty(t, rung.Model)
		}
	}
}
