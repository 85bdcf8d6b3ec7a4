package state

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"go.uber.org/zap"
)

// ScheduledAPI is the REST surface the scheduled-message store calls.
type ScheduledAPI interface {
	ListScheduled(ctx context.Context, conversationID string) ([]model.ScheduledMessage, error)
	CreateScheduled(ctx context.Context, req rest.ScheduleRequest) (model.ScheduledMessage, error)
	UpdateScheduled(ctx context.Context, id string, req rest.ScheduleRequest) (model.ScheduledMessage, error)
	CancelScheduled(ctx context.Context, id string) error
}

// ScheduledStore caches pending scheduled messages per conversation.
type ScheduledStore struct {
	*flags
	api ScheduledAPI

	mu     sync.RWMutex
	byConv map[string]map[string]model.ScheduledMessage
}

// NewScheduledStore creates an empty store.
func NewScheduledStore(api ScheduledAPI, b *bus.Bus, logger *zap.Logger) *ScheduledStore {
	return &ScheduledStore{
		flags:  newFlags(bus.ScheduledChanged, b, logger),
		api:    api,
		byConv: make(map[string]map[string]model.ScheduledMessage),
	}
}

// Fetch replaces a conversation's scheduled messages.
func (s *ScheduledStore) Fetch(ctx context.Context, conversationID string) error {
	s.startLoading()
	list, err := s.api.ListScheduled(ctx, conversationID)
	if err != nil {
		return s.stopLoading("fetch scheduled", err)
	}
	set := make(map[string]model.ScheduledMessage, len(list))
	for _, m := range list {
		if m.Status == "" || m.Status == model.ScheduledPending {
			set[m.ID] = m
		}
	}
	s.mu.Lock()
	s.byConv[conversationID] = set
	s.mu.Unlock()
	s.notify(conversationID)
	return s.stopLoading("fetch scheduled", nil)
}

// List returns a conversation's pending scheduled messages, soonest first.
func (s *ScheduledStore) List(conversationID string) []model.ScheduledMessage {
	s.mu.RLock()
	var out []model.ScheduledMessage
	for _, m := range s.byConv[conversationID] {
		out = append(out, m)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.ScheduledMessage) int {
		return cmp.Or(a.ScheduledAt.Compare(b.ScheduledAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (s *ScheduledStore) put(m model.ScheduledMessage) {
	s.mu.Lock()
	set, ok := s.byConv[m.ConversationID]
	if !ok {
		set = make(map[string]model.ScheduledMessage)
		s.byConv[m.ConversationID] = set
	}
	set[m.ID] = m
	s.mu.Unlock()
	s.notify(m.ConversationID)
}

// Create schedules a message.
func (s *ScheduledStore) Create(ctx context.Context, req rest.ScheduleRequest) (model.ScheduledMessage, bool) {
	m, err := s.api.CreateScheduled(ctx, req)
	if err != nil {
		return m, s.fail("schedule message", err)
	}
	if m.ConversationID == "" {
		m.ConversationID = req.ConversationID
	}
	s.put(m)
	return m, true
}

// Update reschedules or edits a pending message.
func (s *ScheduledStore) Update(ctx context.Context, id string, req rest.ScheduleRequest) bool {
	return s.guard("update", id, func() bool {
		m, err := s.api.UpdateScheduled(ctx, id, req)
		if err != nil {
			return s.fail("update scheduled", err)
		}
		if m.ID == "" {
			m.ID = id
		}
		if m.ConversationID == "" {
			m.ConversationID = req.ConversationID
		}
		s.put(m)
		return true
	})
}

// Cancel removes a scheduled message optimistically, restoring it if the
// server refuses.
func (s *ScheduledStore) Cancel(ctx context.Context, conversationID, id string) bool {
	return s.guard("cancel", id, func() bool {
		s.mu.Lock()
		prev, ok := s.byConv[conversationID][id]
		delete(s.byConv[conversationID], id)
		s.mu.Unlock()
		if !ok {
			return s.fail("cancel scheduled", fmt.Errorf("scheduled message %s not loaded", id))
		}
		s.notify(conversationID)
		if err := s.api.CancelScheduled(ctx, id); err != nil {
			s.put(prev)
			return s.fail("cancel scheduled", err)
		}
		return true
	})
}
