package transport

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadwire/ai-gateway/internal/contextstore"
	"github.com/leadwire/ai-gateway/internal/engine"
	"github.com/leadwire/ai-gateway/internal/llm"
	"github.com/leadwire/ai-gateway/internal/models"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"queue full", engine.ErrQueueFull, models.ErrorCodeOverloaded},
		{"wrapped queue full", fmt.Errorf("admission: %w", engine.ErrQueueFull), models.ErrorCodeOverloaded},
		{"mismatched conversation", models.ErrMismatchedConversation, models.ErrorCodeValidation},
		{"closed conversation", models.ErrConversationClosed, models.ErrorCodeValidation},
		{"empty content", models.ErrEmptyContent, models.ErrorCodeValidation},
		{"corrupt context", fmt.Errorf("load: %w", contextstore.ErrCorruptContext), models.ErrorCodeCorrupt},
		{"circuit open", contextstore.ErrCircuitOpen, models.ErrorCodeCircuitOpen},
		{"transient provider failure", fmt.Errorf("classification failed: %w", llm.Transient(fmt.Errorf("rate limited"))), models.ErrorCodeTransient},
		{"anything else", fmt.Errorf("boom"), models.ErrorCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, detail := classifyError(tt.err)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, detail)
		})
	}
}
