package models

import (
	"fmt"
)

// IntentType classifies what an inbound message is trying to do.
type IntentType string

const (
	IntentGreeting     IntentType = "greeting"
	IntentQuestion     IntentType = "question"
	IntentComplaint    IntentType = "complaint"
	IntentRequestHuman IntentType = "request_human"
	IntentFarewell     IntentType = "farewell"
	IntentUnknown      IntentType = "unknown"
)

// DefaultHandoffThreshold is the confidence below which a classification
// is not trusted to drive an automated reply.
const DefaultHandoffThreshold = 0.7

// ErrInvalidThreshold is returned when a handoff threshold outside [0,1]
// is supplied.
var ErrInvalidThreshold = fmt.Errorf("handoff threshold must be between 0 and 1")

// Intent is the result of one classification call. It is immutable after
// construction; a new classification produces a new Intent.
type Intent struct {
	Type          IntentType     `json:"type"`
	Confidence    float64        `json:"confidence"`
	RequiresHuman bool           `json:"requires_human"`
	Metadata      map[string]any `json:"metadata"`
}

// NewIntent builds an Intent with confidence clamped to [0,1] and a
// non-nil metadata map.
func NewIntent(typ IntentType, confidence float64, requiresHuman bool, metadata map[string]any) Intent {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Intent{
		Type:          typ,
		Confidence:    confidence,
		RequiresHuman: requiresHuman,
		Metadata:      metadata,
	}
}

// UnknownIntent is the degraded classification used when the model's
// output cannot be parsed: maximally uncertain, forcing handoff.
func UnknownIntent() Intent {
	return NewIntent(IntentUnknown, 0.0, true, nil)
}

// HandoffPolicy is the single source of truth for the per-message handoff
// rule. Every call site that needs to know whether a human must take over
// goes through ShouldHandoff on a policy; the rule is not duplicated.
type HandoffPolicy struct {
	threshold float64
}

// NewHandoffPolicy validates the confidence threshold at construction.
func NewHandoffPolicy(threshold float64) (*HandoffPolicy, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return &HandoffPolicy{threshold: threshold}, nil
}

// Threshold returns the confidence threshold the policy was built with.
func (p *HandoffPolicy) Threshold() float64 {
	return p.threshold
}

// ShouldHandoff reports whether the intent demands a human agent.
// True if any of: the classifier set requires_human, confidence is below
// the threshold, the user explicitly asked for a human, the message is a
// complaint the classifier is not highly sure about, or the metadata
// carries a low sentiment score or an urgency flag.
func (p *HandoffPolicy) ShouldHandoff(intent Intent) bool {
	if intent.RequiresHuman {
		return true
	}
	if intent.Confidence < p.threshold {
		return true
	}
	if intent.Type == IntentRequestHuman {
		return true
	}
	if intent.Type == IntentComplaint && intent.Confidence < 0.9 {
		return true
	}
	if score, ok := floatMeta(intent.Metadata, "sentiment_score"); ok && score < 0.3 {
		return true
	}
	if urgent, ok := intent.Metadata["urgent"].(bool); ok && urgent {
		return true
	}
	return false
}

// defaultPolicy backs Intent.ShouldHandoff; the threshold is a compile-time
// constant inside [0,1] so construction cannot fail.
var defaultPolicy = &HandoffPolicy{threshold: DefaultHandoffThreshold}

// ShouldHandoff evaluates the canonical handoff rule at the default
// threshold. Convenience over the policy form.
func (i Intent) ShouldHandoff() bool {
	return defaultPolicy.ShouldHandoff(i)
}

// floatMeta reads a numeric metadata value, tolerating the types JSON
// decoding and manual construction produce.
func floatMeta(metadata map[string]any, key string) (float64, bool) {
	switch v := metadata[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
