package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConversation(t *testing.T) *Conversation {
	t.Helper()
	return NewConversation(uuid.New(), uuid.New())
}

func mustMessage(t *testing.T, conv *Conversation, confidence float64) *Message {
	t.Helper()
	msg, err := NewMessage(conv.ID, "hello", DirectionInbound, confidence)
	require.NoError(t, err)
	return msg
}

func TestNewMessageRejectsEmptyContent(t *testing.T) {
	_, err := NewMessage(uuid.New(), "", DirectionInbound, 0.9)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestAddMessageRunningAverageIsExactMean(t *testing.T) {
	conv := newTestConversation(t)

	confidences := []float64{0.9, 0.1, 0.75, 0.33, 1.0, 0.0, 0.62}
	var sum float64
	for i, c := range confidences {
		require.NoError(t, conv.AddMessage(mustMessage(t, conv, c)))
		sum += c
		assert.InDelta(t, sum/float64(i+1), conv.AIConfidenceAvg, 1e-9,
			"after %d messages", i+1)
	}
}

func TestAddMessageMismatchedConversationLeavesStateUnchanged(t *testing.T) {
	conv := newTestConversation(t)
	require.NoError(t, conv.AddMessage(mustMessage(t, conv, 0.8)))

	avgBefore := conv.AIConfidenceAvg
	countBefore := len(conv.Messages)

	stray, err := NewMessage(uuid.New(), "wrong home", DirectionInbound, 0.2)
	require.NoError(t, err)

	err = conv.AddMessage(stray)
	assert.ErrorIs(t, err, ErrMismatchedConversation)
	assert.Len(t, conv.Messages, countBefore)
	assert.Equal(t, avgBefore, conv.AIConfidenceAvg)
}

func TestAddMessageMirrorsCurrentIntent(t *testing.T) {
	conv := newTestConversation(t)

	first := mustMessage(t, conv, 0.95)
	firstIntent := NewIntent(IntentGreeting, 0.95, false, nil)
	first.Intent = &firstIntent
	require.NoError(t, conv.AddMessage(first))
	assert.Equal(t, IntentGreeting, conv.CurrentIntent.Type)

	// A message without an intent leaves the mirror alone.
	require.NoError(t, conv.AddMessage(mustMessage(t, conv, 0.9)))
	assert.Equal(t, IntentGreeting, conv.CurrentIntent.Type)

	second := mustMessage(t, conv, 0.92)
	secondIntent := NewIntent(IntentQuestion, 0.92, false, nil)
	second.Intent = &secondIntent
	require.NoError(t, conv.AddMessage(second))
	assert.Equal(t, IntentQuestion, conv.CurrentIntent.Type)
}

func TestAddMessageTransitionsToHumanNeeded(t *testing.T) {
	conv := newTestConversation(t)

	msg := mustMessage(t, conv, 0.9)
	intent := NewIntent(IntentRequestHuman, 0.9, true, nil)
	msg.Intent = &intent

	require.NoError(t, conv.AddMessage(msg))
	assert.Equal(t, StatusHumanNeeded, conv.Status)
}

func TestAddMessageRejectedOnTerminalConversation(t *testing.T) {
	conv := newTestConversation(t)
	require.NoError(t, conv.Complete())

	err := conv.AddMessage(mustMessage(t, conv, 0.9))
	assert.ErrorIs(t, err, ErrConversationClosed)
	assert.Empty(t, conv.Messages)
}

func TestHandoffIsSticky(t *testing.T) {
	conv := newTestConversation(t)
	require.NoError(t, conv.Transition(StatusHumanNeeded))

	err := conv.Transition(StatusActive)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusHumanNeeded, conv.Status)

	// Forward to a terminal state is still allowed.
	require.NoError(t, conv.Complete())
	assert.Equal(t, StatusCompleted, conv.Status)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	conv := newTestConversation(t)
	require.NoError(t, conv.Archive())

	for _, to := range []ConversationStatus{StatusActive, StatusHumanNeeded, StatusCompleted} {
		assert.ErrorIs(t, conv.Transition(to), ErrInvalidTransition)
	}
	assert.ErrorIs(t, conv.AssignHuman(uuid.New()), ErrInvalidTransition)
}

func TestAssignHumanMarksHandoff(t *testing.T) {
	conv := newTestConversation(t)
	agent := uuid.New()

	require.NoError(t, conv.AssignHuman(agent))
	assert.Equal(t, StatusHumanNeeded, conv.Status)
	require.NotNil(t, conv.HumanAgentID)
	assert.Equal(t, agent, *conv.HumanAgentID)
}

func TestConversationShouldHandoff(t *testing.T) {
	t.Run("healthy conversation does not flag", func(t *testing.T) {
		conv := newTestConversation(t)
		msg := mustMessage(t, conv, 0.95)
		intent := NewIntent(IntentGreeting, 0.95, false, nil)
		msg.Intent = &intent
		require.NoError(t, conv.AddMessage(msg))

		assert.False(t, conv.ShouldHandoff())
	})

	t.Run("low rolling average flags", func(t *testing.T) {
		conv := newTestConversation(t)
		require.NoError(t, conv.AddMessage(mustMessage(t, conv, 0.3)))

		assert.True(t, conv.ShouldHandoff())
	})

	t.Run("human_needed status flags", func(t *testing.T) {
		conv := newTestConversation(t)
		require.NoError(t, conv.Transition(StatusHumanNeeded))

		assert.True(t, conv.ShouldHandoff())
	})

	t.Run("stale last message breaches the SLA", func(t *testing.T) {
		conv := newTestConversation(t)
		msg := mustMessage(t, conv, 0.95)
		intent := NewIntent(IntentGreeting, 0.95, false, nil)
		msg.Intent = &intent
		require.NoError(t, conv.AddMessage(msg))

		msg.CreatedAt = time.Now().Add(-2 * ResponseTimeSLA)
		assert.True(t, conv.ShouldHandoff())
	})
}
