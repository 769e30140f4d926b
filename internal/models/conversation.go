package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageDirection tells whether a message came from the lead or from us.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// ConversationStatus is the conversation's position in its lifecycle.
type ConversationStatus string

const (
	StatusActive      ConversationStatus = "active"
	StatusHumanNeeded ConversationStatus = "human_needed"
	StatusCompleted   ConversationStatus = "completed"
	StatusArchived    ConversationStatus = "archived"
)

// IsTerminal reports whether no further automated processing may occur.
func (s ConversationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusArchived
}

// ResponseTimeSLA is the maximum acceptable delay before a conversation
// is flagged as needing attention.
const ResponseTimeSLA = 500 * time.Millisecond

var (
	// ErrMismatchedConversation is returned when a message is appended to
	// a conversation it does not belong to.
	ErrMismatchedConversation = fmt.Errorf("message belongs to a different conversation")

	// ErrConversationClosed is returned when a message is appended to a
	// completed or archived conversation.
	ErrConversationClosed = fmt.Errorf("conversation is closed")

	// ErrEmptyContent is returned when a message is built with no text.
	ErrEmptyContent = fmt.Errorf("message content must not be empty")

	// ErrInvalidTransition is returned for a status change the state
	// machine does not allow.
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
)

// Message is a single turn in a conversation. Once appended it is owned
// by the conversation and treated as immutable.
type Message struct {
	ID             uuid.UUID        `json:"id"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	Content        string           `json:"content"`
	Direction      MessageDirection `json:"direction"`
	AIConfidence   float64          `json:"ai_confidence"`
	Intent         *Intent          `json:"intent,omitempty"`
	Metadata       map[string]any   `json:"metadata"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewMessage builds a message with a fresh id and clamped confidence.
func NewMessage(conversationID uuid.UUID, content string, direction MessageDirection, confidence float64) (*Message, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	now := time.Now().UTC()
	return &Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Content:        content,
		Direction:      direction,
		AIConfidence:   confidence,
		Metadata:       map[string]any{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Conversation is the authoritative aggregate for one conversation. It is
// not safe for concurrent use; the engine serializes access per id.
type Conversation struct {
	ID              uuid.UUID          `json:"id"`
	LeadID          uuid.UUID          `json:"lead_id"`
	Status          ConversationStatus `json:"status"`
	Messages        []*Message         `json:"messages"`
	CurrentIntent   *Intent            `json:"current_intent,omitempty"`
	HumanAgentID    *uuid.UUID         `json:"human_agent_id,omitempty"`
	AIConfidenceAvg float64            `json:"ai_confidence_avg"`
	Metadata        map[string]any     `json:"metadata"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// NewConversation starts an active conversation for a lead.
func NewConversation(id, leadID uuid.UUID) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:              id,
		LeadID:          leadID,
		Status:          StatusActive,
		Messages:        []*Message{},
		AIConfidenceAvg: 1.0,
		Metadata:        map[string]any{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AddMessage appends a message, recomputes the running confidence average,
// mirrors the message's intent into CurrentIntent, and transitions to
// human_needed when the canonical handoff rule fires. It is the only
// mutator of message history. On error the conversation is unchanged.
func (c *Conversation) AddMessage(msg *Message) error {
	if msg.ConversationID != c.ID {
		return fmt.Errorf("%w: message %s targets conversation %s, this is %s",
			ErrMismatchedConversation, msg.ID, msg.ConversationID, c.ID)
	}
	if c.Status.IsTerminal() {
		return fmt.Errorf("%w: status is %s", ErrConversationClosed, c.Status)
	}

	c.Messages = append(c.Messages, msg)

	// Exact incremental form of the plain running mean.
	n := float64(len(c.Messages))
	c.AIConfidenceAvg = (c.AIConfidenceAvg*(n-1) + msg.AIConfidence) / n

	if msg.Intent != nil {
		c.CurrentIntent = msg.Intent
		if msg.Intent.ShouldHandoff() && c.Status == StatusActive {
			c.Status = StatusHumanNeeded
		}
	}

	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ShouldHandoff is the conversation-level advisory predicate used for SLA
// monitoring. Distinct from the per-message rule that drives the status
// transition: it also considers the rolling confidence average, the
// current status, and how long the last message has waited.
func (c *Conversation) ShouldHandoff() bool {
	if c.CurrentIntent != nil && c.CurrentIntent.ShouldHandoff() {
		return true
	}
	if c.AIConfidenceAvg < DefaultHandoffThreshold {
		return true
	}
	if c.Status == StatusHumanNeeded {
		return true
	}
	if n := len(c.Messages); n > 0 {
		if time.Since(c.Messages[n-1].CreatedAt) > ResponseTimeSLA {
			return true
		}
	}
	return false
}

// Transition moves the conversation to a new status. Handoff is sticky:
// human_needed never returns to active automatically or otherwise, it can
// only move forward to a terminal state. Terminal states are final.
func (c *Conversation) Transition(to ConversationStatus) error {
	if c.Status == to {
		return nil
	}
	if c.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, c.Status)
	}
	if c.Status == StatusHumanNeeded && to == StatusActive {
		return fmt.Errorf("%w: handoff is one-way, %s cannot return to %s",
			ErrInvalidTransition, StatusHumanNeeded, StatusActive)
	}
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// AssignHuman records the agent taking the conversation over and marks it
// human_needed if it was still active.
func (c *Conversation) AssignHuman(agentID uuid.UUID) error {
	if c.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, c.Status)
	}
	c.HumanAgentID = &agentID
	if c.Status == StatusActive {
		c.Status = StatusHumanNeeded
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete closes the conversation successfully.
func (c *Conversation) Complete() error {
	return c.Transition(StatusCompleted)
}

// Archive closes the conversation for retention.
func (c *Conversation) Archive() error {
	return c.Transition(StatusArchived)
}
