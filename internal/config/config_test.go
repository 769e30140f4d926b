package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "sk-test-0123456789abcdef0123"

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", testAPIKey)
}

func TestLoadWithDefaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ai-gateway", cfg.ServiceName)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "gpt-4", cfg.OpenAIModel)
	assert.Equal(t, 0.7, cfg.OpenAITemperature)
	assert.Equal(t, 150, cfg.OpenAIMaxTokens)
	assert.Equal(t, time.Hour, cfg.ContextTTL)
	assert.Equal(t, int64(5), cfg.MaxConcurrentCalls)
	assert.Equal(t, 100, cfg.QueueCapacity)
	assert.Equal(t, 0.7, cfg.HandoffThreshold)
}

func TestLoadOverrides(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ENV", "Production")
	t.Setenv("OPENAI_TEMPERATURE", "0.2")
	t.Setenv("CONTEXT_TTL", "5m")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, 0.2, cfg.OpenAITemperature)
	assert.Equal(t, 5*time.Minute, cfg.ContextTTL)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
}

func TestLoadFailsFast(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing API key", map[string]string{"OPENAI_API_KEY": ""}},
		{"malformed API key", map[string]string{"OPENAI_API_KEY": "not-a-key"}},
		{"short API key", map[string]string{"OPENAI_API_KEY": "sk-short"}},
		{"unknown environment", map[string]string{"ENV": "qa"}},
		{"temperature out of range", map[string]string{"OPENAI_TEMPERATURE": "1.5"}},
		{"max tokens out of range", map[string]string{"OPENAI_MAX_TOKENS": "5000"}},
		{"TTL below minimum", map[string]string{"CONTEXT_TTL": "10s"}},
		{"TTL above maximum", map[string]string{"CONTEXT_TTL": "48h"}},
		{"handoff threshold out of range", map[string]string{"HANDOFF_THRESHOLD": "1.2"}},
		{"origin without scheme", map[string]string{"ALLOWED_ORIGINS": "app.example.com"}},
		{"origin with bad scheme", map[string]string{"ALLOWED_ORIGINS": "ftp://example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setValidEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
