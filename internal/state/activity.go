package state

import (
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"go.uber.org/zap"
)

const defaultActivityLimit = 200

// ActivityStore is a bounded feed of notable events, newest first.
type ActivityStore struct {
	*flags
	limit int

	mu      sync.RWMutex
	entries []model.ActivityEntry
}

// NewActivityStore creates an empty feed keeping at most limit entries.
func NewActivityStore(limit int, b *bus.Bus, logger *zap.Logger) *ActivityStore {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	return &ActivityStore{
		flags: newFlags(bus.ActivityChanged, b, logger),
		limit: limit,
	}
}

// Add records an entry. Entries are deduplicated by id; the oldest entry
// is evicted once the feed is full.
func (s *ActivityStore) Add(e model.ActivityEntry) bool {
	if e.ID == "" {
		return false
	}
	s.mu.Lock()
	if slices.ContainsFunc(s.entries, func(x model.ActivityEntry) bool { return x.ID == e.ID }) {
		s.mu.Unlock()
		return false
	}
	pos, _ := slices.BinarySearchFunc(s.entries, e, func(x, target model.ActivityEntry) int {
		return target.At.Compare(x.At)
	})
	s.entries = slices.Insert(s.entries, pos, e)
	if len(s.entries) > s.limit {
		s.entries = s.entries[:s.limit]
	}
	s.mu.Unlock()
	s.notify(e.ID)
	return true
}

// Entries returns the feed, newest first.
func (s *ActivityStore) Entries() []model.ActivityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

// UnreadMentions counts unread mention entries.
func (s *ActivityStore) UnreadMentions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.Kind == model.ActivityMention && !e.Read {
			n++
		}
	}
	return n
}

// MarkRead marks one entry read.
func (s *ActivityStore) MarkRead(id string) bool {
	s.mu.Lock()
	i := slices.IndexFunc(s.entries, func(e model.ActivityEntry) bool { return e.ID == id })
	if i >= 0 {
		s.entries[i].Read = true
	}
	s.mu.Unlock()
	if i >= 0 {
		s.notify(id)
	}
	return i >= 0
}

// MarkConversationRead marks every entry of a conversation read.
func (s *ActivityStore) MarkConversationRead(conversationID string) int {
	s.mu.Lock()
	n := 0
	for i := range s.entries {
		if s.entries[i].ConversationID == conversationID && !s.entries[i].Read {
			s.entries[i].Read = true
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.notify(conversationID)
	}
	return n
}

// MarkAllRead marks the whole feed read.
func (s *ActivityStore) MarkAllRead() {
	s.mu.Lock()
	for i := range s.entries {
		s.entries[i].Read = true
	}
	s.mu.Unlock()
	s.notify("")
}
