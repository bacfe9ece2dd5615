package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogueIsValid(t *testing.T) {
	reg := Default()
	models := reg.All()
	require.NotEmpty(t, models)

	for _, m := range models {
		require.NotEmpty(t, m.ID)
		require.NotEmpty(t, m.Provider)
		require.NotEmpty(t, m.UpstreamName)
		require.Greater(t, m.MaxContext, 0)
	}
}

func TestNewRejectsInvalidDescriptors(t *testing.T) {
	cases := []struct {
		name   string
		models []ModelDescriptor
	}{
		{"missing id", []ModelDescriptor{{Provider: "openai", UpstreamName: "m", MaxContext: 1000}}},
		{"missing provider", []ModelDescriptor{{ID: "a", UpstreamName: "m", MaxContext: 1000}}},
		{"zero context", []ModelDescriptor{{ID: "a", Provider: "openai", UpstreamName: "m"}}},
		{"duplicate id", []ModelDescriptor{
			{ID: "a", Provider: "openai", UpstreamName: "m1", MaxContext: 1000},
			{ID: "a", Provider: "openai", UpstreamName: "m2", MaxContext: 1000},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.models)
			require.Error(t, err)
		})
	}
}

func TestByID(t *testing.T) {
	reg := Default()

	m, ok := reg.ByID("claude-opus")
	require.True(t, ok)
	require.Equal(t, "anthropic", m.Provider)
	require.Equal(t, "claude-opus-4-20250514", m.UpstreamName)

	_, ok = reg.ByID("no-such-model")
	require.False(t, ok)
}

func TestByUpstream(t *testing.T) {
	reg := Default()

	m, ok := reg.ByUpstream("openai", "gpt-5.2-instant")
	require.True(t, ok)
	require.Equal(t, "gpt-instant", m.ID)

	// The upstream name alone is ambiguous without the provider.
	_, ok = reg.ByUpstream("anthropic", "gpt-5.2-instant")
	require.False(t, ok)

	_, ok = reg.ByUpstream("openai", "no-such-model")
	require.False(t, ok)
}

func TestFilterProviders(t *testing.T) {
	reg := Default()

	all := reg.FilterProviders(nil)
	require.Len(t, all, len(reg.All()))

	google := reg.FilterProviders([]string{"google"})
	require.NotEmpty(t, google)
	for _, m := range google {
		require.Equal(t, "google", m.Provider)
	}

	none := reg.FilterProviders([]string{"nonexistent"})
	require.Empty(t, none)
}

func TestWebCapableSubset(t *testing.T) {
	reg := Default()
	web := reg.WebCapable()
	require.NotEmpty(t, web)
	for _, m := range web {
		require.True(t, m.WebCapable(), "model %s in web subset must carry the web tag", m.ID)
	}
}

func TestProviderModelsFirstIsDefault(t *testing.T) {
	reg := Default()
	models := reg.ProviderModels("anthropic")
	require.NotEmpty(t, models)
	require.Equal(t, "claude-sonnet-4-20250514", models[0])
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	data := `models:
  - id: tiny
    provider: mock
    display_name: Tiny
    upstream_name: mock-1
    max_context: 8000
    avg_latency_ms: 100
    cost_per_1k: 0.0001
    strengths: [chat, fast]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	reg, err := Load(path)
	require.NoError(t, err)

	m, ok := reg.ByID("tiny")
	require.True(t, ok)
	require.True(t, m.HasStrength(CapFast))
	require.False(t, m.WebCapable())
}
