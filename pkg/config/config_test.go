package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/switchboard/pkg/adapter"
)

func TestCredentialResolution(t *testing.T) {
	cfg := &Config{
		AnthropicAPIKey: "sk-ant-test",
		GoogleAPIKey:    "goog-test",
	}

	key, err := cfg.Credential(adapter.ProviderAnthropic)
	require.NoError(t, err)
	require.Equal(t, "sk-ant-test", key)

	key, err = cfg.Credential(adapter.ProviderOpenAI)
	require.NoError(t, err)
	require.Empty(t, key)

	key, err = cfg.Credential(adapter.ProviderMock)
	require.NoError(t, err)
	require.Empty(t, key)

	_, err = cfg.Credential(adapter.Provider("made-up"))
	require.Error(t, err)
}

func TestHasProvider(t *testing.T) {
	cfg := &Config{DeepSeekAPIKey: "ds-test"}
	require.True(t, cfg.HasProvider(adapter.ProviderDeepSeek))
	require.False(t, cfg.HasProvider(adapter.ProviderOpenAI))
	require.False(t, cfg.HasProvider(adapter.ProviderMock))
}

func TestEnvOverridesFileValue(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	require.Equal(t, "from-env", getEnvOrDefault("ANTHROPIC_API_KEY", "from-file"))

	t.Setenv("ANTHROPIC_API_KEY", "")
	require.Equal(t, "from-file", getEnvOrDefault("ANTHROPIC_API_KEY", "from-file"))
}
