package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ANALYSIS_TIMEOUT_MS", "")
	t.Setenv("ANALYSIS_RETRY_COUNT", "")
	t.Setenv("USE_REAL_LLM", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, 2, cfg.Analysis.RetryCount)
	assert.False(t, cfg.Analysis.UseRealLLM)
	assert.Equal(t, 5, cfg.Analysis.DefaultMaxPersonas)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("ANALYSIS_TIMEOUT_MS", "1500")
	t.Setenv("ANALYSIS_RETRY_COUNT", "0")
	t.Setenv("USE_REAL_LLM", "true")
	t.Setenv("ANALYSIS_API_BASE", "http://example.test/api/v1/")
	t.Setenv("CORS_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "sk-ant", cfg.LLM.APIKey(ProviderAnthropic))
	assert.Equal(t, 1500*time.Millisecond, cfg.Analysis.Timeout)
	assert.Equal(t, 0, cfg.Analysis.RetryCount)
	assert.True(t, cfg.Analysis.UseRealLLM)
	assert.Equal(t, "http://example.test/api/v1", cfg.Analysis.APIBase)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "cohere")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_PROVIDER")
}

func TestValidateRejectsNegativeRetries(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ANALYSIS_RETRY_COUNT", "-1")

	_, err := Load()
	require.Error(t, err)
}
