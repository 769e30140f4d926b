package models

// MessageRequest is the inbound payload on the transport: one message
// for a conversation.
type MessageRequest struct {
	ConversationID string `json:"conversation_id"`
	LeadID         string `json:"lead_id"`
	Content        string `json:"content"`
}

// WireIntent is the classification summary echoed to the caller.
type WireIntent struct {
	Type          IntentType `json:"type"`
	Confidence    float64    `json:"confidence"`
	RequiresHuman bool       `json:"requires_human"`
}

// MessageResponse is the reply payload: the outbound message plus the
// classification and the conversation's resulting status.
type MessageResponse struct {
	ConversationID string             `json:"conversation_id"`
	MessageID      string             `json:"message_id,omitempty"`
	Content        string             `json:"content,omitempty"`
	Intent         *WireIntent        `json:"intent,omitempty"`
	Status         ConversationStatus `json:"status,omitempty"`
	Handoff        bool               `json:"handoff"`
	ErrorCode      *string            `json:"error_code,omitempty"`
	ErrorMessage   *string            `json:"error_message,omitempty"`
}

// Wire error codes.
const (
	ErrorCodeValidation  = "VALIDATION_ERROR"
	ErrorCodeTransient   = "PROVIDER_UNAVAILABLE"
	ErrorCodeCorrupt     = "CORRUPT_CONTEXT"
	ErrorCodeCircuitOpen = "CIRCUIT_OPEN"
	ErrorCodeOverloaded  = "QUEUE_FULL"
	ErrorCodeInternal    = "INTERNAL_ERROR"
)
