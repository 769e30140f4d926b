// Package contextstore keeps the versioned, size-bounded projection of
// recent conversation turns that is fed to the language model. The store
// is a cache, not a source of truth: entries expire, and every entry can
// be rebuilt from the conversation aggregate.
package contextstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zlib"
	"github.com/sony/gobreaker"

	"github.com/leadwire/ai-gateway/internal/models"
	"github.com/leadwire/ai-gateway/internal/observability"
)

// contextVersion namespaces cache keys so a projection format change
// never decodes stale entries.
const contextVersion = "1.0"

// contextWindow is how many recent messages the projection keeps.
const contextWindow = 10

// Compression kicks in above this serialized size, and only when it
// actually saves at least 10%.
const (
	compressionThreshold = 1024
	compressionMaxRatio  = 0.9
	compressedPrefix     = "compressed:"
)

var (
	// ErrCorruptContext marks a stored payload that exists but cannot be
	// decoded. Distinct from a miss: "written but unreadable" must never
	// be silently treated as "never written".
	ErrCorruptContext = fmt.Errorf("stored context is corrupt")

	// ErrCircuitOpen marks operations rejected because the cache backend
	// is judged unhealthy. Callers may fall back to working uncached.
	ErrCircuitOpen = fmt.Errorf("context store circuit is open")
)

// Options tunes the service; zero values fall back to defaults.
type Options struct {
	TTL              time.Duration // entry expiry, default 1h
	BreakerThreshold uint32        // consecutive failures to open, default 3
	BreakerReset     time.Duration // open duration before probing, default 30s
}

// Service is the context store: get/put/clear keyed by conversation id,
// plus the pure projection builder. Backend failures feed a circuit
// breaker so a degraded cache fails fast instead of stalling the engine.
type Service struct {
	kv      KV
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService builds a context store service over the given backend.
func NewService(kv KV, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 3
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "context-store",
		Timeout: opts.BreakerReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Service{
		kv:      kv,
		ttl:     opts.TTL,
		breaker: breaker,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *Service) key(conversationID uuid.UUID) string {
	return fmt.Sprintf("context:%s:%s", contextVersion, conversationID)
}

type getResult struct {
	value string
	found bool
}

// Get loads the cached context for a conversation. A miss is the normal
// cold-cache path and returns a fresh empty context. A payload that
// exists but cannot be decoded fails with ErrCorruptContext.
func (s *Service) Get(ctx context.Context, conversationID uuid.UUID) (*Context, error) {
	key := s.key(conversationID)

	res, err := s.breaker.Execute(func() (any, error) {
		value, found, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return getResult{value: value, found: found}, nil
	})
	if err != nil {
		s.metrics.ContextErrors.Add(1)
		return nil, s.mapBreakerErr("get", key, err)
	}

	got := res.(getResult)
	if !got.found {
		s.metrics.ContextMisses.Add(1)
		return emptyContext(), nil
	}

	decoded, err := decode(got.value)
	if err != nil {
		s.metrics.ContextErrors.Add(1)
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptContext, key, err)
	}

	s.metrics.ContextHits.Add(1)
	return decoded, nil
}

// Put serializes the context, stamps its version and update time,
// compresses when worthwhile, and stores it with the configured TTL.
func (s *Service) Put(ctx context.Context, conversationID uuid.UUID, c *Context) error {
	key := s.key(conversationID)

	c.UpdatedAt = time.Now().UTC()
	c.Version = contextVersion

	payload, err := encode(c)
	if err != nil {
		return fmt.Errorf("failed to encode context %s: %w", key, err)
	}

	_, err = s.breaker.Execute(func() (any, error) {
		return nil, s.kv.SetWithTTL(ctx, key, payload, s.ttl)
	})
	if err != nil {
		s.metrics.ContextErrors.Add(1)
		return s.mapBreakerErr("put", key, err)
	}
	return nil
}

// Clear removes the cached context. Clearing an absent key succeeds.
func (s *Service) Clear(ctx context.Context, conversationID uuid.UUID) error {
	key := s.key(conversationID)

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.kv.Delete(ctx, key)
	})
	if err != nil {
		s.metrics.ContextErrors.Add(1)
		return s.mapBreakerErr("clear", key, err)
	}
	return nil
}

// BuildContext projects a conversation into its cacheable form: the last
// 10 messages plus summary metadata. Only the current intent's type and
// confidence are carried forward. Pure, no I/O.
func BuildContext(conv *models.Conversation) *Context {
	msgs := conv.Messages
	if len(msgs) > contextWindow {
		msgs = msgs[len(msgs)-contextWindow:]
	}

	c := &Context{
		Messages: make([]ContextMessage, 0, len(msgs)),
		Metadata: ContextMetadata{
			LeadID:          conv.LeadID.String(),
			Status:          string(conv.Status),
			AIConfidenceAvg: conv.AIConfidenceAvg,
			MessageCount:    len(conv.Messages),
		},
		CreatedAt: time.Now().UTC(),
	}

	for _, msg := range msgs {
		c.Messages = append(c.Messages, ContextMessage{
			Content:      msg.Content,
			Direction:    msg.Direction,
			CreatedAt:    msg.CreatedAt,
			AIConfidence: msg.AIConfidence,
		})
	}

	if conv.CurrentIntent != nil {
		c.Metadata.CurrentIntent = &ContextIntent{
			Type:       conv.CurrentIntent.Type,
			Confidence: conv.CurrentIntent.Confidence,
		}
	}

	return c
}

func emptyContext() *Context {
	return &Context{
		Messages:  []ContextMessage{},
		Metadata:  ContextMetadata{},
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Service) mapBreakerErr(op, key string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s %s", ErrCircuitOpen, op, key)
	}
	return fmt.Errorf("context %s failed for %s: %w", op, key, err)
}

// encode serializes a context to the stored text form, compressing when
// the serialized size crosses the threshold and compression saves enough.
func encode(c *Context) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}

	if len(data) <= compressionThreshold {
		return string(data), nil
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	ratio := float64(len(compressedPrefix)+len(encoded)) / float64(len(data))
	if ratio >= compressionMaxRatio {
		return string(data), nil
	}

	return compressedPrefix + encoded, nil
}

// decode reverses encode, handling both stored forms.
func decode(value string) (*Context, error) {
	raw := []byte(value)

	if strings.HasPrefix(value, compressedPrefix) {
		compressed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, compressedPrefix))
		if err != nil {
			return nil, fmt.Errorf("bad base64: %w", err)
		}
		r, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("bad zlib stream: %w", err)
		}
		defer r.Close()
		raw, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress: %w", err)
		}
	}

	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("bad JSON: %w", err)
	}
	if c.Messages == nil {
		c.Messages = []ContextMessage{}
	}
	return &c, nil
}
