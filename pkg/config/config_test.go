package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 8*time.Second, cfg.RouteTimeout)
	assert.Equal(t, 1, cfg.LLMRetries)
	assert.Equal(t, 5, cfg.AIContextMessages)
	assert.Equal(t, 100, cfg.MaxChatHistory)
	assert.Equal(t, "https://router.project-osrm.org", cfg.RoutingBaseURL)
	assert.Equal(t, "https://graph.facebook.com/v19.0", cfg.ChatProviderBaseURL)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("LLM_TIMEOUT_S", "10")
	t.Setenv("ROUTE_TIMEOUT_S", "3")
	t.Setenv("AI_CONTEXT_MESSAGES", "8")
	t.Setenv("MAX_CHAT_HISTORY", "50")
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("ADMIN_TOKEN", "a")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 3*time.Second, cfg.RouteTimeout)
	assert.Equal(t, 8, cfg.AIContextMessages)
	assert.Equal(t, 50, cfg.MaxChatHistory)
	assert.Equal(t, "k", cfg.LLMAPIKey)
	assert.Equal(t, "a", cfg.AdminToken)
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	t.Run("non-numeric timeout", func(t *testing.T) {
		t.Setenv("LLM_TIMEOUT_S", "soon")
		_, err := LoadFromEnv()
		assert.Error(t, err)
	})

	t.Run("history below context window", func(t *testing.T) {
		t.Setenv("MAX_CHAT_HISTORY", "3")
		t.Setenv("AI_CONTEXT_MESSAGES", "5")
		_, err := LoadFromEnv()
		assert.Error(t, err)
	})

	t.Run("negative retries", func(t *testing.T) {
		t.Setenv("LLM_RETRY", "-1")
		_, err := LoadFromEnv()
		assert.Error(t, err)
	})
}
