// Package config loads gateway settings from the environment and
// validates them at startup. Invalid configuration is a fatal startup
// error, never a runtime surprise.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment tags the deployment tier.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

type Config struct {
	// Service
	ServiceName string
	Environment string

	// NATS transport
	NatsURL            string
	NatsRequestSubject string
	NatsTimeout        time.Duration

	// OpenAI provider
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int
	OpenAITimeout     time.Duration

	// Context store
	RedisURL         string
	ContextTTL       time.Duration
	BreakerThreshold uint32
	BreakerReset     time.Duration

	// Engine
	MaxConcurrentCalls int64
	QueueCapacity      int
	HandoffThreshold   float64

	// CORS allow-list for the fronting HTTP layer
	AllowedOrigins []string
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "ai-gateway"),
		Environment: strings.ToLower(getEnv("ENV", EnvDevelopment)),

		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsRequestSubject: getEnv("NATS_REQUEST_SUBJECT", "conversation.message"),
		NatsTimeout:        getDurationEnv("NATS_TIMEOUT", 30*time.Second),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4"),
		OpenAITemperature: getFloatEnv("OPENAI_TEMPERATURE", 0.7),
		OpenAIMaxTokens:   getIntEnv("OPENAI_MAX_TOKENS", 150),
		OpenAITimeout:     getDurationEnv("OPENAI_TIMEOUT", 2*time.Second),

		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		ContextTTL:       getDurationEnv("CONTEXT_TTL", time.Hour),
		BreakerThreshold: uint32(getIntEnv("BREAKER_THRESHOLD", 3)),
		BreakerReset:     getDurationEnv("BREAKER_RESET", 30*time.Second),

		MaxConcurrentCalls: int64(getIntEnv("MAX_CONCURRENT_CALLS", 5)),
		QueueCapacity:      getIntEnv("QUEUE_CAPACITY", 100),
		HandoffThreshold:   getFloatEnv("HANDOFF_THRESHOLD", 0.7),

		AllowedOrigins: getListEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every setting against its allowed range.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("ENV must be one of development, staging, production; got %q", c.Environment)
	}

	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if !strings.HasPrefix(c.OpenAIAPIKey, "sk-") || len(c.OpenAIAPIKey) < 20 {
		return fmt.Errorf("OPENAI_API_KEY has an invalid format")
	}

	if c.OpenAITemperature < 0 || c.OpenAITemperature > 1 {
		return fmt.Errorf("OPENAI_TEMPERATURE must be in [0,1]; got %v", c.OpenAITemperature)
	}
	if c.OpenAIMaxTokens < 1 || c.OpenAIMaxTokens > 2000 {
		return fmt.Errorf("OPENAI_MAX_TOKENS must be in [1,2000]; got %d", c.OpenAIMaxTokens)
	}

	if c.ContextTTL < 60*time.Second || c.ContextTTL > 86400*time.Second {
		return fmt.Errorf("CONTEXT_TTL must be between 60s and 86400s; got %s", c.ContextTTL)
	}

	if c.HandoffThreshold < 0 || c.HandoffThreshold > 1 {
		return fmt.Errorf("HANDOFF_THRESHOLD must be in [0,1]; got %v", c.HandoffThreshold)
	}

	for _, origin := range c.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid allowed origin %q", origin)
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
