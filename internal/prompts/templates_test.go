package prompts

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/ai-gateway/internal/contextstore"
	"github.com/leadwire/ai-gateway/internal/models"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    models.Intent
	}{
		{
			name:    "clean JSON",
			content: `{"type": "question", "confidence": 0.85, "requires_human": false}`,
			want:    models.NewIntent(models.IntentQuestion, 0.85, false, nil),
		},
		{
			name:    "JSON wrapped in prose",
			content: "Sure! Here is the classification:\n{\"type\": \"greeting\", \"confidence\": 0.95, \"requires_human\": false}\nLet me know if you need more.",
			want:    models.NewIntent(models.IntentGreeting, 0.95, false, nil),
		},
		{
			name:    "JSON in a code fence",
			content: "```json\n{\"type\": \"request_human\", \"confidence\": 0.9, \"requires_human\": true}\n```",
			want:    models.NewIntent(models.IntentRequestHuman, 0.9, true, nil),
		},
		{
			name:    "uppercase type is normalized",
			content: `{"type": "COMPLAINT", "confidence": 0.7, "requires_human": false}`,
			want:    models.NewIntent(models.IntentComplaint, 0.7, false, nil),
		},
		{
			name:    "confidence above one is clamped",
			content: `{"type": "farewell", "confidence": 1.4, "requires_human": false}`,
			want:    models.NewIntent(models.IntentFarewell, 1.0, false, nil),
		},
		{
			name:    "no JSON at all",
			content: "I think the user is asking a question.",
			want:    models.UnknownIntent(),
		},
		{
			name:    "truncated JSON",
			content: `{"type": "question", "confidence":`,
			want:    models.UnknownIntent(),
		},
		{
			name:    "missing confidence",
			content: `{"type": "question", "requires_human": false}`,
			want:    models.UnknownIntent(),
		},
		{
			name:    "invented intent label",
			content: `{"type": "sales_pitch", "confidence": 0.9, "requires_human": false}`,
			want:    models.UnknownIntent(),
		},
		{
			name:    "empty output",
			content: "",
			want:    models.UnknownIntent(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseIntent(tt.content)
			assert.Equal(t, tt.want.Type, got.Type)
			assert.Equal(t, tt.want.Confidence, got.Confidence)
			assert.Equal(t, tt.want.RequiresHuman, got.RequiresHuman)
			require.NotNil(t, got.Metadata)
		})
	}
}

func TestBuildClassificationPromptCarriesLastFiveTurns(t *testing.T) {
	var turns []contextstore.ContextMessage
	for i := 0; i < 8; i++ {
		turns = append(turns, contextstore.ContextMessage{
			Content:   fmt.Sprintf("turn %d", i),
			Direction: models.DirectionInbound,
		})
	}

	prompt := BuildClassificationPrompt("what are your hours?", turns)

	assert.Contains(t, prompt, "what are your hours?")
	assert.Contains(t, prompt, "turn 7")
	assert.Contains(t, prompt, "turn 3")
	assert.NotContains(t, prompt, "turn 2", "only the last 5 turns ride along")
	assert.Contains(t, prompt, "greeting, question, complaint, request_human, farewell, unknown")
}

func TestBuildResponsePromptIncludesIntent(t *testing.T) {
	intent := models.NewIntent(models.IntentQuestion, 0.9, false, nil)
	prompt := BuildResponsePrompt("what are your hours?", intent, nil)

	assert.Contains(t, prompt, "what are your hours?")
	assert.Contains(t, prompt, string(models.IntentQuestion))
	assert.True(t, strings.Contains(prompt, "concise and professional"))
}
