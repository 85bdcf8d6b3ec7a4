package state

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/timers"
	"go.uber.org/zap"
)

// DraftRepo is durable draft storage.
type DraftRepo interface {
	ListDrafts() (map[string]string, error)
	SaveDraft(conversationID, text string, at time.Time) error
	DeleteDraft(conversationID string) error
}

// DraftStore keeps unsent message text per conversation. Reads are served
// from memory; writes reach the repo after edits to a conversation have
// been quiet for the debounce delay.
type DraftStore struct {
	*flags
	repo  DraftRepo
	arena *timers.Arena
	delay time.Duration

	mu     sync.RWMutex
	drafts map[string]string
}

// NewDraftStore creates a store writing through repo.
func NewDraftStore(repo DraftRepo, clock clockwork.Clock, delay time.Duration, b *bus.Bus, logger *zap.Logger) *DraftStore {
	return &DraftStore{
		flags:  newFlags(bus.DraftsChanged, b, logger),
		repo:   repo,
		arena:  timers.NewArena(clock),
		delay:  delay,
		drafts: make(map[string]string),
	}
}

// Load reads every persisted draft into memory.
func (s *DraftStore) Load() error {
	s.startLoading()
	drafts, err := s.repo.ListDrafts()
	if err != nil {
		return s.stopLoading("load drafts", err)
	}
	s.mu.Lock()
	for id, text := range drafts {
		if _, edited := s.drafts[id]; !edited {
			s.drafts[id] = text
		}
	}
	s.mu.Unlock()
	s.notify("")
	return s.stopLoading("load drafts", nil)
}

// Get returns the draft for a conversation, "" if there is none.
func (s *DraftStore) Get(conversationID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drafts[conversationID]
}

// Set replaces a conversation's draft and schedules the write.
func (s *DraftStore) Set(conversationID, text string) {
	s.mu.Lock()
	if text == "" {
		delete(s.drafts, conversationID)
	} else {
		s.drafts[conversationID] = text
	}
	s.mu.Unlock()
	s.notify(conversationID)
	s.arena.Schedule(conversationID, s.delay, func() { s.persist(conversationID) })
}

// Clear removes a conversation's draft immediately.
func (s *DraftStore) Clear(conversationID string) {
	s.arena.Cancel(conversationID)
	s.mu.Lock()
	_, had := s.drafts[conversationID]
	delete(s.drafts, conversationID)
	s.mu.Unlock()
	if had {
		s.notify(conversationID)
	}
	s.persist(conversationID)
}

// Flush writes every pending draft now.
func (s *DraftStore) Flush() int {
	return s.arena.FlushAll()
}

// Close flushes pending writes and stops scheduling new ones.
func (s *DraftStore) Close() {
	s.Flush()
	s.arena.Close()
}

func (s *DraftStore) persist(conversationID string) {
	s.mu.RLock()
	text, ok := s.drafts[conversationID]
	s.mu.RUnlock()

	var err error
	if ok {
		err = s.repo.SaveDraft(conversationID, text, s.arena.Clock().Now())
	} else {
		err = s.repo.DeleteDraft(conversationID)
	}
	if err != nil {
		s.fail("persist draft", err)
	}
}
