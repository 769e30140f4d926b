package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/leadwire/ai-gateway/internal/models"
)

// Manager is the in-memory registry of live conversation aggregates,
// keyed by conversation id. The aggregate is authoritative for status,
// history, and the confidence average; the context store only ever holds
// a derived projection of it.
type Manager struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*models.Conversation
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{
		conversations: make(map[uuid.UUID]*models.Conversation),
	}
}

// GetOrCreate returns the conversation for id, creating an active one for
// the lead if none exists yet.
func (m *Manager) GetOrCreate(id, leadID uuid.UUID) *models.Conversation {
	m.mu.RLock()
	conv, ok := m.conversations[id]
	m.mu.RUnlock()
	if ok {
		return conv
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.conversations[id]; ok {
		return conv
	}
	conv = models.NewConversation(id, leadID)
	m.conversations[id] = conv
	return conv
}

// Get returns the conversation for id, if known.
func (m *Manager) Get(id uuid.UUID) (*models.Conversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	return conv, ok
}

// Remove forgets a conversation, typically after archival.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, id)
}

// Count returns the number of live conversations.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}
