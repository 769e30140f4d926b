package llm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransientWrapping(t *testing.T) {
	base := fmt.Errorf("upstream 503")

	err := Transient(base)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, base)

	// Wrapping elsewhere keeps the classification visible.
	wrapped := fmt.Errorf("classification failed: %w", err)
	assert.True(t, IsTransient(wrapped))

	assert.False(t, IsTransient(base))
	assert.False(t, IsTransient(nil))
	assert.Nil(t, Transient(nil))
}
