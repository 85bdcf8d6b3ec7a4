package state

import (
	"cmp"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"go.uber.org/zap"
)

type typingKey struct {
	conversationID string
	userID         string
}

// TypingStore is the displayed set of remote typing users. It holds at
// most one entry per (conversation, user) and never one for the local
// user. Expiry is driven by the typing tracker.
type TypingStore struct {
	*flags
	selfID string

	mu      sync.RWMutex
	entries map[typingKey]model.TypingUser
}

// NewTypingStore creates an empty set for the local user selfID.
func NewTypingStore(selfID string, b *bus.Bus, logger *zap.Logger) *TypingStore {
	return &TypingStore{
		flags:   newFlags(bus.TypingChanged, b, logger),
		selfID:  selfID,
		entries: make(map[typingKey]model.TypingUser),
	}
}

// Set adds or refreshes a typing entry. Entries for the local user are
// refused.
func (s *TypingStore) Set(u model.TypingUser) bool {
	if u.UserID == "" || u.ConversationID == "" || u.UserID == s.selfID {
		return false
	}
	u.IsTyping = true
	s.mu.Lock()
	s.entries[typingKey{u.ConversationID, u.UserID}] = u
	s.mu.Unlock()
	s.notify(u.ConversationID)
	return true
}

// Remove drops a user's typing entry.
func (s *TypingStore) Remove(conversationID, userID string) bool {
	key := typingKey{conversationID, userID}
	s.mu.Lock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()
	if ok {
		s.notify(conversationID)
	}
	return ok
}

// Clear drops every entry of a conversation.
func (s *TypingStore) Clear(conversationID string) {
	s.mu.Lock()
	n := 0
	for k := range s.entries {
		if k.conversationID == conversationID {
			delete(s.entries, k)
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.notify(conversationID)
	}
}

// Users returns who is typing in a conversation, earliest first.
func (s *TypingStore) Users(conversationID string) []model.TypingUser {
	s.mu.RLock()
	var out []model.TypingUser
	for k, u := range s.entries {
		if k.conversationID == conversationID {
			out = append(out, u)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.TypingUser) int {
		return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.UserID, b.UserID))
	})
	return out
}

// IsTyping reports whether userID is typing in conversationID.
func (s *TypingStore) IsTyping(conversationID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[typingKey{conversationID, userID}]
	return ok
}
