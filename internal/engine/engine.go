// Package engine is the handoff decision core: it classifies inbound
// messages, decides between an automated reply and a human handoff,
// and keeps the conversation aggregate and its cached context in step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/leadwire/ai-gateway/internal/contextstore"
	"github.com/leadwire/ai-gateway/internal/llm"
	"github.com/leadwire/ai-gateway/internal/models"
	"github.com/leadwire/ai-gateway/internal/observability"
	"github.com/leadwire/ai-gateway/internal/prompts"
)

// ErrQueueFull is returned when the request queue is at capacity; the
// caller gets an immediate rejection instead of unbounded queuing.
var ErrQueueFull = fmt.Errorf("request queue is full")

// Options tunes the engine; zero values fall back to defaults.
type Options struct {
	MaxConcurrentCalls int64         // in-flight model calls, default 5
	QueueCapacity      int           // request admission bound, default 100
	HandoffThreshold   float64       // confidence threshold, default 0.7
	RetryInitial       time.Duration // first retry delay, default 4s
	RetryMaxInterval   time.Duration // retry delay cap, default 10s
	RetryMaxAttempts   uint64        // total attempts, default 3
	LatencyTarget      time.Duration // observed, not enforced, default 500ms
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrentCalls <= 0 {
		o.MaxConcurrentCalls = 5
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 100
	}
	if o.HandoffThreshold == 0 {
		o.HandoffThreshold = models.DefaultHandoffThreshold
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = 4 * time.Second
	}
	if o.RetryMaxInterval <= 0 {
		o.RetryMaxInterval = 10 * time.Second
	}
	if o.RetryMaxAttempts == 0 {
		o.RetryMaxAttempts = 3
	}
	if o.LatencyTarget <= 0 {
		o.LatencyTarget = 500 * time.Millisecond
	}
}

// Engine orchestrates one message through classify, decide, generate (or
// placeholder), and persist. Safe for concurrent use; mutation within a
// single conversation is serialized.
type Engine struct {
	contexts *contextstore.Service
	provider llm.Provider
	policy   *models.HandoffPolicy
	opts     Options

	sem   *semaphore.Weighted
	queue chan struct{}
	locks *conversationLocks

	metrics *observability.Metrics
	logger  *slog.Logger
}

// New builds an engine over the context store and model provider.
func New(contexts *contextstore.Service, provider llm.Provider, opts Options, metrics *observability.Metrics, logger *slog.Logger) (*Engine, error) {
	opts.applyDefaults()

	policy, err := models.NewHandoffPolicy(opts.HandoffThreshold)
	if err != nil {
		return nil, err
	}

	return &Engine{
		contexts: contexts,
		provider: provider,
		policy:   policy,
		opts:     opts,
		sem:      semaphore.NewWeighted(opts.MaxConcurrentCalls),
		queue:    make(chan struct{}, opts.QueueCapacity),
		locks:    newConversationLocks(),
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// ProcessMessage runs one inbound message end to end: load context,
// classify, decide respond-vs-handoff, generate or synthesize the reply,
// append both messages to the conversation and its cached context, and
// write the context back. The whole sequence runs under the conversation's
// lock; on error neither the conversation nor the stored context is left
// partially updated.
func (e *Engine) ProcessMessage(ctx context.Context, msg *models.Message, conv *models.Conversation) (*models.Message, models.Intent, error) {
	select {
	case e.queue <- struct{}{}:
		defer func() { <-e.queue }()
	default:
		e.metrics.QueueRejections.Add(1)
		return nil, models.Intent{}, ErrQueueFull
	}

	if msg.ConversationID != conv.ID {
		return nil, models.Intent{}, fmt.Errorf("%w: message %s targets %s, processing %s",
			models.ErrMismatchedConversation, msg.ID, msg.ConversationID, conv.ID)
	}

	release := e.locks.acquire(conv.ID)
	defer release()

	if conv.Status.IsTerminal() {
		return nil, models.Intent{}, fmt.Errorf("%w: status is %s", models.ErrConversationClosed, conv.Status)
	}

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		e.metrics.ObserveProcessing(elapsed)
		if elapsed > e.opts.LatencyTarget {
			e.metrics.SLABreaches.Add(1)
			e.logger.Warn("processing exceeded latency target",
				"conversation_id", conv.ID, "elapsed", elapsed, "target", e.opts.LatencyTarget)
		}
	}()

	// A dead cache must not take classification down with it: on an open
	// circuit we proceed with an empty context and skip the write-back.
	cctx, cacheDown, err := e.loadContext(ctx, conv.ID)
	if err != nil {
		return nil, models.Intent{}, err
	}

	var intent models.Intent
	err = e.withRetry(ctx, func() error {
		return e.limited(ctx, func() error {
			classified, cerr := e.provider.Classify(ctx, llm.ClassifyRequest{
				Message: msg.Content,
				Context: cctx.Messages,
			})
			if cerr != nil {
				return cerr
			}
			intent = classified
			return nil
		})
	})
	if err != nil {
		return nil, models.Intent{}, fmt.Errorf("classification failed: %w", err)
	}

	inboundIntent := intent
	msg.Intent = &inboundIntent
	msg.AIConfidence = intent.Confidence
	msg.UpdatedAt = time.Now().UTC()

	content, err := e.decide(ctx, msg.Content, intent, cctx)
	if err != nil {
		return nil, models.Intent{}, err
	}

	outbound, err := models.NewMessage(conv.ID, content, models.DirectionOutbound, intent.Confidence)
	if err != nil {
		return nil, models.Intent{}, fmt.Errorf("failed to build outbound message: %w", err)
	}
	outboundIntent := intent
	outbound.Intent = &outboundIntent

	snap := takeSnapshot(conv)
	if err := conv.AddMessage(msg); err != nil {
		return nil, models.Intent{}, err
	}
	if err := conv.AddMessage(outbound); err != nil {
		snap.restore(conv)
		return nil, models.Intent{}, err
	}

	cctx.Append(toContextMessage(msg), toContextMessage(outbound))
	refreshMetadata(cctx, conv)

	if !cacheDown {
		if err := e.contexts.Put(ctx, conv.ID, cctx); err != nil {
			if errors.Is(err, contextstore.ErrCircuitOpen) {
				e.logger.Warn("context store unavailable, skipping context write", "conversation_id", conv.ID)
			} else {
				snap.restore(conv)
				return nil, models.Intent{}, err
			}
		}
	}

	return outbound, intent, nil
}

// decide takes the generate path only when the classification is both
// confident and clear of every handoff trigger; otherwise it returns the
// canonical placeholder without spending a generation call.
func (e *Engine) decide(ctx context.Context, message string, intent models.Intent, cctx *contextstore.Context) (string, error) {
	if intent.Confidence >= e.policy.Threshold() && !e.policy.ShouldHandoff(intent) {
		var reply string
		err := e.withRetry(ctx, func() error {
			return e.limited(ctx, func() error {
				generated, gerr := e.provider.Generate(ctx, llm.GenerateRequest{
					Message: message,
					Intent:  intent,
					Context: cctx.Messages,
				})
				if gerr != nil {
					return gerr
				}
				reply = generated
				return nil
			})
		})
		if err != nil {
			return "", fmt.Errorf("generation failed: %w", err)
		}
		return reply, nil
	}

	e.metrics.Handoffs.Add(1)
	return prompts.HandoffMessage, nil
}

// loadContext reads the cached context. A circuit-open store degrades to
// an empty context with the write-back suppressed; a corrupt payload or
// other store failure is surfaced.
func (e *Engine) loadContext(ctx context.Context, conversationID uuid.UUID) (*contextstore.Context, bool, error) {
	cctx, err := e.contexts.Get(ctx, conversationID)
	if err == nil {
		return cctx, false, nil
	}
	if errors.Is(err, contextstore.ErrCircuitOpen) {
		e.logger.Warn("context store unavailable, proceeding without context", "conversation_id", conversationID)
		return &contextstore.Context{Messages: []contextstore.ContextMessage{}, CreatedAt: time.Now().UTC()}, true, nil
	}
	return nil, false, fmt.Errorf("failed to load context: %w", err)
}

// limited runs a model call under the global concurrency bound.
func (e *Engine) limited(ctx context.Context, fn func() error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	return fn()
}

// withRetry retries transient provider failures with exponential backoff.
// Non-transient failures propagate immediately.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.opts.RetryInitial
	bo.MaxInterval = e.opts.RetryMaxInterval
	bo.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !llm.IsTransient(err) {
			return backoff.Permanent(err)
		}
		e.metrics.ProviderRetries.Add(1)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, e.opts.RetryMaxAttempts-1), ctx))
}

// Project builds the conversation's cache projection under its lock, so a
// background reconciliation can write it without racing live processing.
func (e *Engine) Project(conv *models.Conversation) *contextstore.Context {
	release := e.locks.acquire(conv.ID)
	defer release()
	return contextstore.BuildContext(conv)
}

// snapshot captures the conversation fields AddMessage mutates so a
// failed unit of work can be rolled back.
type snapshot struct {
	messageCount  int
	confidenceAvg float64
	status        models.ConversationStatus
	currentIntent *models.Intent
	updatedAt     time.Time
}

func takeSnapshot(conv *models.Conversation) snapshot {
	return snapshot{
		messageCount:  len(conv.Messages),
		confidenceAvg: conv.AIConfidenceAvg,
		status:        conv.Status,
		currentIntent: conv.CurrentIntent,
		updatedAt:     conv.UpdatedAt,
	}
}

func (s snapshot) restore(conv *models.Conversation) {
	conv.Messages = conv.Messages[:s.messageCount]
	conv.AIConfidenceAvg = s.confidenceAvg
	conv.Status = s.status
	conv.CurrentIntent = s.currentIntent
	conv.UpdatedAt = s.updatedAt
}

func toContextMessage(msg *models.Message) contextstore.ContextMessage {
	return contextstore.ContextMessage{
		Content:      msg.Content,
		Direction:    msg.Direction,
		CreatedAt:    msg.CreatedAt,
		AIConfidence: msg.AIConfidence,
	}
}

// refreshMetadata brings the projection's summary in line with the
// aggregate after an append.
func refreshMetadata(cctx *contextstore.Context, conv *models.Conversation) {
	cctx.Metadata.LeadID = conv.LeadID.String()
	cctx.Metadata.Status = string(conv.Status)
	cctx.Metadata.AIConfidenceAvg = conv.AIConfidenceAvg
	cctx.Metadata.MessageCount = len(conv.Messages)
	if conv.CurrentIntent != nil {
		cctx.Metadata.CurrentIntent = &contextstore.ContextIntent{
			Type:       conv.CurrentIntent.Type,
			Confidence: conv.CurrentIntent.Confidence,
		}
	}
}
