package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/leadwire/ai-gateway/internal/config"
	"github.com/leadwire/ai-gateway/internal/contextstore"
	"github.com/leadwire/ai-gateway/internal/engine"
	"github.com/leadwire/ai-gateway/internal/llm"
	"github.com/leadwire/ai-gateway/internal/observability"
	"github.com/leadwire/ai-gateway/internal/transport"
)

func main() {
	// Load .env file if it exists (for development)
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelDebug
	if cfg.Environment == config.EnvProduction {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("starting gateway",
		"service", cfg.ServiceName,
		"env", cfg.Environment,
		"model", cfg.OpenAIModel,
	)

	metrics := observability.NewMetrics()

	logger.Info("connecting to Redis", "url", cfg.RedisURL)
	redisKV, err := contextstore.NewRedisKV(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisKV.Close()

	contexts := contextstore.NewService(redisKV, contextstore.Options{
		TTL:              cfg.ContextTTL,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerReset:     cfg.BreakerReset,
	}, metrics, logger)

	provider, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Timeout:     cfg.OpenAITimeout,
	}, metrics, logger)
	if err != nil {
		logger.Error("failed to initialize model provider", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(contexts, provider, engine.Options{
		MaxConcurrentCalls: cfg.MaxConcurrentCalls,
		QueueCapacity:      cfg.QueueCapacity,
		HandoffThreshold:   cfg.HandoffThreshold,
	}, metrics, logger)
	if err != nil {
		logger.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}

	manager := engine.NewManager()
	background := engine.NewBackgroundQueue(cfg.QueueCapacity, logger)

	natsTransport, err := transport.NewNATSTransport(cfg, eng, manager, contexts, background, logger)
	if err != nil {
		logger.Error("failed to initialize NATS transport", "error", err)
		os.Exit(1)
	}
	defer natsTransport.Close()

	if err := natsTransport.Start(); err != nil {
		logger.Error("failed to start NATS transport", "error", err)
		os.Exit(1)
	}

	logger.Info("gateway is running", "subject", cfg.NatsRequestSubject)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("shutting down", "signal", sig.String(), "conversations", manager.Count())

	if err := natsTransport.Close(); err != nil {
		logger.Warn("error closing NATS transport", "error", err)
	}
	background.Close()
	metrics.Log(logger)

	logger.Info("gateway stopped")
}
