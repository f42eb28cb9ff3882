package chatclient

import (
	"sync"

	"communitychat/internal/protocol"
)

// Store is the ordered message log of the active conversation. Order is
// insertion order: history loads in the order the server delivered it and
// live messages append behind it. The store never re-sorts by timestamp and
// never deduplicates by content; echo suppression is the session
// controller's job.
type Store struct {
	mu   sync.RWMutex
	msgs []protocol.ChatMessage
}

func NewStore() *Store {
	return &Store{}
}

// Load replaces the contents with a freshly fetched history.
func (s *Store) Load(history []protocol.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append([]protocol.ChatMessage(nil), history...)
}

// Append adds one message at the end.
func (s *Store) Append(m protocol.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

// Clear empties the store. Called on every conversation switch before the
// next Load.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

// All returns the ordered sequence. The returned slice is a stable snapshot
// and must not be mutated.
func (s *Store) All() []protocol.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.msgs
}

// Len reports the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
