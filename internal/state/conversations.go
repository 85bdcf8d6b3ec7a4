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

// ConversationAPI is the REST surface the conversation store calls.
type ConversationAPI interface {
	ListConversations(ctx context.Context, page rest.PageRequest) (model.Page[model.Conversation], error)
	GetConversation(ctx context.Context, id string) (model.Conversation, error)
	CreateDirect(ctx context.Context, userID string) (model.Conversation, error)
	CreateGroup(ctx context.Context, req rest.CreateGroupRequest) (model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	SetConversationPinned(ctx context.Context, id string, pinned bool) error
	SetConversationMuted(ctx context.Context, id string, muted bool) error
	AddMembers(ctx context.Context, id string, userIDs []string) error
	RemoveMember(ctx context.Context, id, userID string) error
	MarkRead(ctx context.Context, id string) error
}

// ConversationStore caches conversations by id.
type ConversationStore struct {
	*flags
	api ConversationAPI

	mu      sync.RWMutex
	byID    map[string]model.Conversation
	cursor  string
	hasMore bool
	limit   int
}

// NewConversationStore creates an empty store. pageSize bounds each fetch.
func NewConversationStore(api ConversationAPI, pageSize int, b *bus.Bus, logger *zap.Logger) *ConversationStore {
	return &ConversationStore{
		flags: newFlags(bus.ConversationsChanged, b, logger),
		api:   api,
		byID:  make(map[string]model.Conversation),
		limit: pageSize,
	}
}

// Fetch loads the first page, replacing the cached list. On failure the
// previous list is kept.
func (s *ConversationStore) Fetch(ctx context.Context) error {
	s.startLoading()
	page, err := s.api.ListConversations(ctx, rest.PageRequest{Limit: s.limit})
	if err != nil {
		return s.stopLoading("fetch conversations", err)
	}
	s.mu.Lock()
	s.byID = make(map[string]model.Conversation, len(page.Items))
	for _, c := range page.Items {
		s.byID[c.ID] = c
	}
	s.cursor, s.hasMore = page.NextCursor, page.HasMore
	s.mu.Unlock()
	s.notify("")
	return s.stopLoading("fetch conversations", nil)
}

// FetchMore loads the next page and merges it. It is a no-op once the last
// page has been seen.
func (s *ConversationStore) FetchMore(ctx context.Context) error {
	s.mu.RLock()
	cursor, more := s.cursor, s.hasMore
	s.mu.RUnlock()
	if !more {
		return nil
	}
	s.startLoading()
	page, err := s.api.ListConversations(ctx, rest.PageRequest{Cursor: cursor, Limit: s.limit})
	if err != nil {
		return s.stopLoading("fetch more conversations", err)
	}
	s.mu.Lock()
	for _, c := range page.Items {
		s.byID[c.ID] = c
	}
	s.cursor, s.hasMore = page.NextCursor, page.HasMore
	s.mu.Unlock()
	s.notify("")
	return s.stopLoading("fetch more conversations", nil)
}

// HasMore reports whether another page can be fetched.
func (s *ConversationStore) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

// Get returns one conversation.
func (s *ConversationStore) Get(id string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return c, ok
}

// List returns all conversations, pinned first then most recent first.
func (s *ConversationStore) List() []model.Conversation {
	s.mu.RLock()
	out := make([]model.Conversation, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	s.mu.RUnlock()
	model.SortConversations(out)
	return out
}

// UnreadTotal sums unread counts of unmuted conversations.
func (s *ConversationStore) UnreadTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.byID {
		if !c.IsMuted {
			total += c.UnreadCount
		}
	}
	return total
}

// Upsert inserts or replaces a conversation by id.
func (s *ConversationStore) Upsert(c model.Conversation) {
	if c.ID == "" {
		return
	}
	s.mu.Lock()
	s.byID[c.ID] = c
	s.mu.Unlock()
	s.notify(c.ID)
}

// Patch applies fn to a cached conversation. It reports whether the
// conversation was present.
func (s *ConversationStore) Patch(id string, fn func(*model.Conversation)) bool {
	s.mu.Lock()
	c, ok := s.byID[id]
	if ok {
		fn(&c)
		s.byID[id] = c
	}
	s.mu.Unlock()
	if ok {
		s.notify(id)
	}
	return ok
}

// Remove drops a conversation from the cache.
func (s *ConversationStore) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.byID[id]
	delete(s.byID, id)
	s.mu.Unlock()
	if ok {
		s.notify(id)
	}
	return ok
}

// ApplyMessage updates the preview and unread count for a new message.
// Messages from self or into the open conversation do not count as unread.
func (s *ConversationStore) ApplyMessage(m model.Message, selfID string, isOpen bool) bool {
	return s.Patch(m.ConversationID, func(c *model.Conversation) {
		if m.CreatedAt.Before(c.LastMessageAt) {
			return
		}
		c.LastMessageAt = m.CreatedAt
		c.LastMessageText = preview(m)
		if m.SenderID != selfID && !isOpen {
			c.UnreadCount++
		}
	})
}

// ResetUnread zeroes the unread count locally.
func (s *ConversationStore) ResetUnread(id string) bool {
	return s.Patch(id, func(c *model.Conversation) { c.UnreadCount = 0 })
}

// AddMemberLocal records a new member.
func (s *ConversationStore) AddMemberLocal(id string, m model.Member) bool {
	return s.Patch(id, func(c *model.Conversation) {
		if !c.HasMember(m.UserID) {
			c.Members = append(c.Members, m)
		}
	})
}

// RemoveMemberLocal forgets a member.
func (s *ConversationStore) RemoveMemberLocal(id, userID string) bool {
	return s.Patch(id, func(c *model.Conversation) {
		c.Members = slices.DeleteFunc(slices.Clone(c.Members), func(m model.Member) bool { return m.UserID == userID })
	})
}

// Refresh re-fetches one conversation and upserts it.
func (s *ConversationStore) Refresh(ctx context.Context, id string) bool {
	c, err := s.api.GetConversation(ctx, id)
	if err != nil {
		return s.fail("refresh conversation", err)
	}
	s.Upsert(c)
	return true
}

// CreateDirect opens the direct conversation with userID.
func (s *ConversationStore) CreateDirect(ctx context.Context, userID string) (model.Conversation, bool) {
	c, err := s.api.CreateDirect(ctx, userID)
	if err != nil {
		return c, s.fail("create direct conversation", err)
	}
	s.Upsert(c)
	return c, true
}

// CreateGroup creates a group conversation.
func (s *ConversationStore) CreateGroup(ctx context.Context, req rest.CreateGroupRequest) (model.Conversation, bool) {
	c, err := s.api.CreateGroup(ctx, req)
	if err != nil {
		return c, s.fail("create group", err)
	}
	s.Upsert(c)
	return c, true
}

// Delete removes a conversation optimistically and restores it if the
// server refuses.
func (s *ConversationStore) Delete(ctx context.Context, id string) bool {
	return s.guard("delete", id, func() bool {
		prev, ok := s.Get(id)
		if !ok {
			return s.fail("delete conversation", fmt.Errorf("conversation %s not loaded", id))
		}
		s.Remove(id)
		if err := s.api.DeleteConversation(ctx, id); err != nil {
			s.Upsert(prev)
			return s.fail("delete conversation", err)
		}
		return true
	})
}

// TogglePin flips the conversation's pinned flag.
func (s *ConversationStore) TogglePin(ctx context.Context, id string) bool {
	return s.toggle(ctx, "pin", id,
		func(c *model.Conversation) *bool { return &c.IsPinned },
		s.api.SetConversationPinned)
}

// ToggleMute flips the conversation's muted flag.
func (s *ConversationStore) ToggleMute(ctx context.Context, id string) bool {
	return s.toggle(ctx, "mute", id,
		func(c *model.Conversation) *bool { return &c.IsMuted },
		s.api.SetConversationMuted)
}

func (s *ConversationStore) toggle(ctx context.Context, op, id string, field func(*model.Conversation) *bool, call func(context.Context, string, bool) error) bool {
	return s.guard(op, id, func() bool {
		var prev bool
		if !s.Patch(id, func(c *model.Conversation) {
			prev = *field(c)
			*field(c) = !prev
		}) {
			return s.fail(op, fmt.Errorf("conversation %s not loaded", id))
		}
		if err := call(ctx, id, !prev); err != nil {
			s.Patch(id, func(c *model.Conversation) { *field(c) = prev })
			return s.fail(op, err)
		}
		return true
	})
}

// MarkRead clears the unread count, restoring it if the server refuses.
func (s *ConversationStore) MarkRead(ctx context.Context, id string) bool {
	var prev int
	if !s.Patch(id, func(c *model.Conversation) { prev, c.UnreadCount = c.UnreadCount, 0 }) {
		return false
	}
	if prev == 0 {
		return true
	}
	if err := s.api.MarkRead(ctx, id); err != nil {
		s.Patch(id, func(c *model.Conversation) { c.UnreadCount = prev })
		return s.fail("mark read", err)
	}
	return true
}

// AddMembers adds users to a group and re-reads its member list.
func (s *ConversationStore) AddMembers(ctx context.Context, id string, userIDs []string) bool {
	if err := s.api.AddMembers(ctx, id, userIDs); err != nil {
		return s.fail("add members", err)
	}
	return s.Refresh(ctx, id)
}

// RemoveMember removes a user from a group, restoring the member list if
// the server refuses.
func (s *ConversationStore) RemoveMember(ctx context.Context, id, userID string) bool {
	return s.guard("remove member", id+"/"+userID, func() bool {
		prev, ok := s.Get(id)
		if !ok {
			return s.fail("remove member", fmt.Errorf("conversation %s not loaded", id))
		}
		s.RemoveMemberLocal(id, userID)
		if err := s.api.RemoveMember(ctx, id, userID); err != nil {
			s.Patch(id, func(c *model.Conversation) { c.Members = prev.Members })
			return s.fail("remove member", err)
		}
		return true
	})
}

func preview(m model.Message) string {
	switch {
	case m.IsDeleted:
		return ""
	case m.MessageType == model.MessageText || m.MessageType == "":
		return m.Content
	case m.Content != "":
		return m.Content
	default:
		return "[" + string(m.MessageType) + "]"
	}
}
