// Package prompts builds the prompts sent to the language model and
// parses its classification output.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/leadwire/ai-gateway/internal/contextstore"
	"github.com/leadwire/ai-gateway/internal/models"
)

// ClassifierSystemPrompt frames the classification call.
const ClassifierSystemPrompt = "You are an intent classifier."

// ResponderSystemPrompt frames the reply generation call.
const ResponderSystemPrompt = "You are a helpful assistant."

// HandoffMessage is the canonical outbound content on the handoff path.
// No generation call is made for it.
const HandoffMessage = "Connecting you with a human agent..."

const classificationTemplate = `Analyze the following message and classify its intent. Response format:
{"type": "intent_type", "confidence": float, "requires_human": boolean}

Available intents: greeting, question, complaint, request_human, farewell, unknown

Message: %s
Context: %s`

const responseTemplate = `Generate a natural response to the following message. Consider the context and intent.
Keep responses concise and professional.

Message: %s
Intent: %s
Context: %s`

// contextTurns is how many recent context messages ride along in a prompt.
const contextTurns = 5

// BuildClassificationPrompt renders the classification prompt with the
// last 5 context messages as JSON.
func BuildClassificationPrompt(message string, context []contextstore.ContextMessage) string {
	return fmt.Sprintf(classificationTemplate, message, contextJSON(context))
}

// BuildResponsePrompt renders the reply generation prompt.
func BuildResponsePrompt(message string, intent models.Intent, context []contextstore.ContextMessage) string {
	return fmt.Sprintf(responseTemplate, message, intent.Type, contextJSON(context))
}

func contextJSON(context []contextstore.ContextMessage) string {
	if len(context) > contextTurns {
		context = context[len(context)-contextTurns:]
	}
	data, err := json.Marshal(context)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// validIntentTypes guards against the model inventing intent labels.
var validIntentTypes = map[models.IntentType]bool{
	models.IntentGreeting:     true,
	models.IntentQuestion:     true,
	models.IntentComplaint:    true,
	models.IntentRequestHuman: true,
	models.IntentFarewell:     true,
	models.IntentUnknown:      true,
}

// ParseIntent extracts an Intent from the classifier's raw output. Models
// wrap JSON in prose or code fences often enough that this scans for the
// outermost object instead of unmarshalling the whole reply. Unparseable
// output is not an error: it degrades to the unknown intent, which forces
// handoff.
func ParseIntent(content string) models.Intent {
	payload := extractJSON(content)
	if payload == "" || !gjson.Valid(payload) {
		return models.UnknownIntent()
	}

	result := gjson.Parse(payload)
	typeField := result.Get("type")
	confidenceField := result.Get("confidence")
	if !typeField.Exists() || !confidenceField.Exists() {
		return models.UnknownIntent()
	}

	intentType := models.IntentType(strings.ToLower(typeField.String()))
	if !validIntentTypes[intentType] {
		return models.UnknownIntent()
	}

	return models.NewIntent(
		intentType,
		confidenceField.Float(),
		result.Get("requires_human").Bool(),
		nil,
	)
}

// extractJSON returns the outermost {...} span of the content, or "".
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(content, "}")
	if end == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}
