package contextstore

import (
	"context"
	"time"

	"github.com/leadwire/ai-gateway/internal/models"
)

// ContextMessage is one compact conversation turn in the cached projection.
type ContextMessage struct {
	Content      string                  `json:"content"`
	Direction    models.MessageDirection `json:"direction"`
	CreatedAt    time.Time               `json:"created_at"`
	AIConfidence float64                 `json:"ai_confidence"`
}

// ContextIntent carries only the type and confidence of the current
// intent; full intent metadata is left out to keep the projection compact.
type ContextIntent struct {
	Type       models.IntentType `json:"type"`
	Confidence float64           `json:"confidence"`
}

// ContextMetadata summarizes the conversation the projection was built from.
type ContextMetadata struct {
	LeadID          string         `json:"lead_id,omitempty"`
	Status          string         `json:"status,omitempty"`
	AIConfidenceAvg float64        `json:"ai_confidence_avg,omitempty"`
	MessageCount    int            `json:"message_count,omitempty"`
	CurrentIntent   *ContextIntent `json:"current_intent,omitempty"`
}

// Context is the cached, windowed projection of a conversation that is
// fed to the language model. It is disposable: absent on a cold cache and
// reconstructible from the conversation's message history at any time.
type Context struct {
	Messages  []ContextMessage `json:"messages"`
	Metadata  ContextMetadata  `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at,omitempty"`
	Version   string           `json:"version,omitempty"`
}

// Append adds turns to the projection, keeping only the most recent
// window. MessageCount still counts every turn ever appended, so the
// metadata reflects the full conversation even after compaction.
func (c *Context) Append(msgs ...ContextMessage) {
	c.Messages = append(c.Messages, msgs...)
	if len(c.Messages) > contextWindow {
		c.Messages = c.Messages[len(c.Messages)-contextWindow:]
	}
	c.Metadata.MessageCount += len(msgs)
}

// KV is the cache backend contract: plain keyed text values with a TTL.
// This allows swapping between Redis, an in-memory fake for tests, etc.
type KV interface {
	// Get returns the stored value and whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetWithTTL stores a value that expires after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
