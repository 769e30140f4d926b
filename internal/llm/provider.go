package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/leadwire/ai-gateway/internal/contextstore"
	"github.com/leadwire/ai-gateway/internal/models"
)

// Provider is the language-model contract the engine depends on: one call
// to classify an inbound message, one to generate a reply. Implementations
// must degrade gracefully on malformed model output (Classify returns the
// unknown/zero-confidence intent rather than an error).
type Provider interface {
	// Classify determines the intent of a message given recent context.
	Classify(ctx context.Context, req ClassifyRequest) (models.Intent, error)

	// Generate produces a reply to a message given its intent and context.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ClassifyRequest is the input to an intent classification call.
type ClassifyRequest struct {
	Message string
	Context []contextstore.ContextMessage
}

// GenerateRequest is the input to a reply generation call.
type GenerateRequest struct {
	Message string
	Intent  models.Intent
	Context []contextstore.ContextMessage
}

// TransientError marks a provider failure worth retrying: upstream rate
// limits, timeouts, 5xx. Validation-style failures are returned bare and
// never retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether the error should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
