package engine

import (
	"sync"

	"github.com/google/uuid"
)

// conversationLocks hands out one mutex per conversation id so that
// mutation within a conversation is serialized while different
// conversations proceed in parallel. Entries are refcounted and removed
// when the last holder releases, so the map does not grow with history.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[uuid.UUID]*lockEntry)}
}

// acquire blocks until the conversation's lock is held and returns the
// release function.
func (l *conversationLocks) acquire(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
