package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/leadwire/ai-gateway/internal/models"
	"github.com/leadwire/ai-gateway/internal/observability"
	"github.com/leadwire/ai-gateway/internal/prompts"
)

// Classification runs at a fixed low temperature and a tight token cap;
// only generation uses the configured temperature and limit.
const (
	classifyTemperature = 0.3
	classifyMaxTokens   = 50
)

// OpenAIProvider implements Provider on the OpenAI chat API via
// langchaingo.
type OpenAIProvider struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// OpenAIConfig carries the provider settings validated at startup.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewOpenAIProvider builds the provider. The API key shape has already
// been validated by config loading.
func NewOpenAIProvider(cfg OpenAIConfig, metrics *observability.Metrics, logger *slog.Logger) (*OpenAIProvider, error) {
	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}

	return &OpenAIProvider{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Classify asks the model for the intent of one message. Malformed model
// output is not an error: it degrades to the unknown intent.
func (p *OpenAIProvider) Classify(ctx context.Context, req ClassifyRequest) (models.Intent, error) {
	prompt := prompts.BuildClassificationPrompt(req.Message, req.Context)

	content, err := p.call(ctx, prompts.ClassifierSystemPrompt, prompt,
		llms.WithTemperature(classifyTemperature),
		llms.WithMaxTokens(classifyMaxTokens),
	)
	if err != nil {
		return models.Intent{}, err
	}

	intent := prompts.ParseIntent(content)
	if intent.Type == models.IntentUnknown && intent.Confidence == 0 {
		p.logger.Warn("unparseable classification output, degrading to unknown intent",
			"output_len", len(content))
	}
	return intent, nil
}

// Generate produces the reply text for a message whose intent passed the
// handoff check.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	prompt := prompts.BuildResponsePrompt(req.Message, req.Intent, req.Context)

	content, err := p.call(ctx, prompts.ResponderSystemPrompt, prompt,
		llms.WithTemperature(p.temperature),
		llms.WithMaxTokens(p.maxTokens),
	)
	if err != nil {
		return "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", Transient(fmt.Errorf("empty response from model"))
	}
	return content, nil
}

func (p *OpenAIProvider) call(ctx context.Context, systemPrompt, userPrompt string, opts ...llms.CallOption) (string, error) {
	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.model.GenerateContent(callCtx,
		[]llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
			llms.TextParts(schema.ChatMessageTypeHuman, userPrompt),
		},
		opts...,
	)
	if err != nil {
		p.metrics.ProviderErrors.Add(1)
		return "", p.classifyErr(ctx, err)
	}
	if len(resp.Choices) == 0 {
		p.metrics.ProviderErrors.Add(1)
		return "", Transient(fmt.Errorf("model returned no choices"))
	}

	p.metrics.TokensUsed.Add(int64(approxTokens(resp.Choices[0].Content)))
	return resp.Choices[0].Content, nil
}

// classifyErr sorts provider failures for the retry policy. Caller
// cancellation propagates as-is; everything else (rate limits, timeouts,
// upstream 5xx) is treated as transient.
func (p *OpenAIProvider) classifyErr(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	return Transient(err)
}

// approxTokens is a rough token estimate for the usage counter; the
// langchaingo response does not expose exact usage for every backend.
func approxTokens(content string) int {
	return len(content) / 4
}
