package state

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"go.uber.org/zap"
)

// MessageAPI is the REST surface the message store calls. Sending lives in
// the outbox.
type MessageAPI interface {
	ListMessages(ctx context.Context, conversationID string, q rest.MessageQuery) (model.Page[model.Message], error)
	EditMessage(ctx context.Context, messageID, content string) (model.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

type thread struct {
	msgs    []model.Message
	hasMore bool
}

// MessageStore caches message history per conversation. Each thread is
// kept ordered by created_at and holds at most one message per id (or per
// client id for unsent placeholders).
type MessageStore struct {
	*flags
	api   MessageAPI
	limit int

	mu      sync.RWMutex
	threads map[string]*thread
}

// NewMessageStore creates an empty store. pageSize bounds each fetch.
func NewMessageStore(api MessageAPI, pageSize int, b *bus.Bus, logger *zap.Logger) *MessageStore {
	return &MessageStore{
		flags:   newFlags(bus.MessagesChanged, b, logger),
		api:     api,
		limit:   pageSize,
		threads: make(map[string]*thread),
	}
}

func (s *MessageStore) threadLocked(conversationID string) *thread {
	t, ok := s.threads[conversationID]
	if !ok {
		t = &thread{hasMore: true}
		s.threads[conversationID] = t
	}
	return t
}

// Fetch loads the latest page of a conversation. Unsent placeholders are
// kept; server messages replace the cached history.
func (s *MessageStore) Fetch(ctx context.Context, conversationID string) error {
	s.startLoading()
	page, err := s.api.ListMessages(ctx, conversationID, rest.MessageQuery{Limit: s.limit})
	if err != nil {
		return s.stopLoading("fetch messages", err)
	}
	s.mu.Lock()
	t := s.threadLocked(conversationID)
	pending := slices.DeleteFunc(slices.Clone(t.msgs), func(m model.Message) bool { return m.ID != "" })
	t.msgs = nil
	for _, m := range page.Items {
		mergeLocked(t, m)
	}
	for _, m := range pending {
		mergeLocked(t, m)
	}
	t.hasMore = page.HasMore
	s.mu.Unlock()
	s.notify(conversationID)
	return s.stopLoading("fetch messages", nil)
}

// FetchOlder loads the page before the oldest cached message. It is a
// no-op once the start of history has been reached.
func (s *MessageStore) FetchOlder(ctx context.Context, conversationID string) error {
	s.mu.RLock()
	t, ok := s.threads[conversationID]
	if !ok || !t.hasMore || len(t.msgs) == 0 {
		s.mu.RUnlock()
		if !ok {
			return s.Fetch(ctx, conversationID)
		}
		return nil
	}
	before := t.msgs[0].CreatedAt
	s.mu.RUnlock()

	s.startLoading()
	page, err := s.api.ListMessages(ctx, conversationID, rest.MessageQuery{Before: before, Limit: s.limit})
	if err != nil {
		return s.stopLoading("fetch older messages", err)
	}
	s.mu.Lock()
	t = s.threadLocked(conversationID)
	for _, m := range page.Items {
		mergeLocked(t, m)
	}
	t.hasMore = page.HasMore
	s.mu.Unlock()
	s.notify(conversationID)
	return s.stopLoading("fetch older messages", nil)
}

// HasMore reports whether older history can be fetched.
func (s *MessageStore) HasMore(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[conversationID]
	return !ok || t.hasMore
}

// Messages returns a copy of a conversation's history, oldest first.
func (s *MessageStore) Messages(conversationID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[conversationID]
	if !ok {
		return nil
	}
	return slices.Clone(t.msgs)
}

// Get returns one message by server id.
func (s *MessageStore) Get(conversationID, id string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[conversationID]
	if !ok {
		return model.Message{}, false
	}
	if i := indexByID(t.msgs, id); i >= 0 {
		return t.msgs[i], true
	}
	return model.Message{}, false
}

// ByClientID returns the message created locally with clientID.
func (s *MessageStore) ByClientID(conversationID, clientID string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[conversationID]
	if !ok {
		return model.Message{}, false
	}
	if i := indexByClientID(t.msgs, clientID); i >= 0 {
		return t.msgs[i], true
	}
	return model.Message{}, false
}

// Upsert merges m into its conversation: a message with the same id (or a
// placeholder with the same client id) is replaced, otherwise m is
// inserted in order. It reports whether m was new.
func (s *MessageStore) Upsert(m model.Message) bool {
	if m.ConversationID == "" || (m.ID == "" && m.ClientID == "") {
		return false
	}
	s.mu.Lock()
	added := mergeLocked(s.threadLocked(m.ConversationID), m)
	s.mu.Unlock()
	s.notify(m.ConversationID)
	return added
}

// ReplacePending swaps the placeholder created with clientID for the
// server's copy. If the server copy already arrived as an event, the
// placeholder is simply dropped.
func (s *MessageStore) ReplacePending(conversationID, clientID string, m model.Message) {
	s.mu.Lock()
	t := s.threadLocked(conversationID)
	if i := indexByClientID(t.msgs, clientID); i >= 0 && t.msgs[i].ID == "" {
		t.msgs = slices.Delete(t.msgs, i, i+1)
	}
	if m.ClientID == "" {
		m.ClientID = clientID
	}
	mergeLocked(t, m)
	s.mu.Unlock()
	s.notify(conversationID)
}

// MarkFailed flags an unsent placeholder as failed. It stays visible so it
// can be retried.
func (s *MessageStore) MarkFailed(conversationID, clientID string) bool {
	return s.patch(conversationID, func(msgs []model.Message) int { return pendingIndex(msgs, clientID) },
		func(m *model.Message) { m.Status = model.StatusFailed })
}

// MarkSending flags a failed placeholder as being retried.
func (s *MessageStore) MarkSending(conversationID, clientID string) bool {
	return s.patch(conversationID, func(msgs []model.Message) int { return pendingIndex(msgs, clientID) },
		func(m *model.Message) { m.Status = model.StatusSending })
}

// RemovePending drops an unsent placeholder.
func (s *MessageStore) RemovePending(conversationID, clientID string) bool {
	s.mu.Lock()
	t, ok := s.threads[conversationID]
	removed := false
	if ok {
		if i := pendingIndex(t.msgs, clientID); i >= 0 {
			t.msgs = slices.Delete(t.msgs, i, i+1)
			removed = true
		}
	}
	s.mu.Unlock()
	if removed {
		s.notify(conversationID)
	}
	return removed
}

// MarkDeleted applies a soft delete.
func (s *MessageStore) MarkDeleted(conversationID, id string) bool {
	return s.patchByID(conversationID, id, func(m *model.Message) {
		m.IsDeleted = true
		m.Content = ""
		m.AlbumFiles = nil
	})
}

// SetPinned sets the message's public pin flag.
func (s *MessageStore) SetPinned(conversationID, id string, pinned bool) bool {
	return s.patchByID(conversationID, id, func(m *model.Message) { m.IsPinned = pinned })
}

// AlbumMembers returns the standalone messages of a legacy album ordered
// by their album position.
func (s *MessageStore) AlbumMembers(conversationID, albumID string) []model.Message {
	s.mu.RLock()
	var out []model.Message
	if t, ok := s.threads[conversationID]; ok {
		for _, m := range t.msgs {
			if m.AlbumID == albumID {
				out = append(out, m)
			}
		}
	}
	s.mu.RUnlock()
	slices.SortStableFunc(out, func(a, b model.Message) int { return a.AlbumPosition - b.AlbumPosition })
	return out
}

// Forget drops a conversation's cached history.
func (s *MessageStore) Forget(conversationID string) {
	s.mu.Lock()
	delete(s.threads, conversationID)
	s.mu.Unlock()
	s.notify(conversationID)
}

// Edit changes a message's text, restoring the previous text if the
// server refuses.
func (s *MessageStore) Edit(ctx context.Context, conversationID, id, content string) bool {
	return s.guard("edit", id, func() bool {
		prev, ok := s.Get(conversationID, id)
		if !ok {
			return s.fail("edit message", fmt.Errorf("message %s not loaded", id))
		}
		s.patchByID(conversationID, id, func(m *model.Message) {
			m.Content = content
			m.IsEdited = true
		})
		updated, err := s.api.EditMessage(ctx, id, content)
		if err != nil {
			s.patchByID(conversationID, id, func(m *model.Message) { *m = prev })
			return s.fail("edit message", err)
		}
		if updated.ID != "" {
			if updated.ConversationID == "" {
				updated.ConversationID = conversationID
			}
			s.Upsert(updated)
		}
		return true
	})
}

// Delete soft-deletes a message, restoring it if the server refuses.
func (s *MessageStore) Delete(ctx context.Context, conversationID, id string) bool {
	return s.guard("delete", id, func() bool {
		prev, ok := s.Get(conversationID, id)
		if !ok {
			return s.fail("delete message", fmt.Errorf("message %s not loaded", id))
		}
		s.MarkDeleted(conversationID, id)
		if err := s.api.DeleteMessage(ctx, id); err != nil {
			s.patchByID(conversationID, id, func(m *model.Message) { *m = prev })
			return s.fail("delete message", err)
		}
		return true
	})
}

func (s *MessageStore) patchByID(conversationID, id string, fn func(*model.Message)) bool {
	return s.patch(conversationID, func(msgs []model.Message) int { return indexByID(msgs, id) }, fn)
}

func (s *MessageStore) patch(conversationID string, find func([]model.Message) int, fn func(*model.Message)) bool {
	s.mu.Lock()
	t, ok := s.threads[conversationID]
	i := -1
	if ok {
		i = find(t.msgs)
		if i >= 0 {
			fn(&t.msgs[i])
		}
	}
	s.mu.Unlock()
	if i < 0 {
		return false
	}
	s.notify(conversationID)
	return true
}

// mergeLocked inserts or replaces m in t and keeps t ordered.
func mergeLocked(t *thread, m model.Message) bool {
	i := -1
	if m.ID != "" {
		i = indexByID(t.msgs, m.ID)
	}
	if i < 0 && m.ClientID != "" {
		i = indexByClientID(t.msgs, m.ClientID)
	}
	if i >= 0 {
		if m.ClientID == "" {
			m.ClientID = t.msgs[i].ClientID
		}
		moved := !t.msgs[i].CreatedAt.Equal(m.CreatedAt)
		t.msgs[i] = m
		if moved {
			model.SortMessages(t.msgs)
		}
		return false
	}
	// Insert after every message not newer than m, so equal timestamps
	// keep arrival order.
	pos := len(t.msgs)
	for pos > 0 && t.msgs[pos-1].CreatedAt.After(m.CreatedAt) {
		pos--
	}
	t.msgs = slices.Insert(t.msgs, pos, m)
	return true
}

func indexByID(msgs []model.Message, id string) int {
	return slices.IndexFunc(msgs, func(m model.Message) bool { return m.ID == id })
}

func indexByClientID(msgs []model.Message, clientID string) int {
	return slices.IndexFunc(msgs, func(m model.Message) bool { return m.ClientID == clientID })
}

func pendingIndex(msgs []model.Message, clientID string) int {
	return slices.IndexFunc(msgs, func(m model.Message) bool { return m.ID == "" && m.ClientID == clientID })
}
