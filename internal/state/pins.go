package state

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"go.uber.org/zap"
)

// PinAPI is the REST surface the pin store calls.
type PinAPI interface {
	ListPinned(ctx context.Context, conversationID string) ([]model.PinnedMessage, error)
	Pin(ctx context.Context, conversationID, messageID string, pinType model.PinType) (model.PinnedMessage, error)
	Unpin(ctx context.Context, conversationID, messageID string, pinType model.PinType) error
}

// PinStore caches pinned messages per conversation, keyed by
// (message id, pin type). Applying a pin that is already present is a
// no-op, so a REST response and its event echo can both be applied.
type PinStore struct {
	*flags
	api      PinAPI
	messages *MessageStore

	mu     sync.RWMutex
	byConv map[string]map[model.PinKey]model.PinnedMessage
}

// NewPinStore creates an empty store. Public pins keep the is_pinned flag
// of messages in messages in sync; messages may be nil.
func NewPinStore(api PinAPI, messages *MessageStore, b *bus.Bus, logger *zap.Logger) *PinStore {
	return &PinStore{
		flags:    newFlags(bus.PinsChanged, b, logger),
		api:      api,
		messages: messages,
		byConv:   make(map[string]map[model.PinKey]model.PinnedMessage),
	}
}

// Fetch replaces a conversation's pins with the server's list.
func (s *PinStore) Fetch(ctx context.Context, conversationID string) error {
	s.startLoading()
	pins, err := s.api.ListPinned(ctx, conversationID)
	if err != nil {
		return s.stopLoading("fetch pins", err)
	}
	set := make(map[model.PinKey]model.PinnedMessage, len(pins))
	for _, p := range pins {
		set[p.Key()] = p
	}
	s.mu.Lock()
	old := s.byConv[conversationID]
	s.byConv[conversationID] = set
	s.mu.Unlock()
	for key, p := range old {
		if _, kept := set[key]; !kept {
			s.syncMessage(p, false)
		}
	}
	for _, p := range pins {
		s.syncMessage(p, true)
	}
	s.notify(conversationID)
	return s.stopLoading("fetch pins", nil)
}

// Pinned returns a conversation's pins, most recently pinned first.
func (s *PinStore) Pinned(conversationID string) []model.PinnedMessage {
	s.mu.RLock()
	out := make([]model.PinnedMessage, 0, len(s.byConv[conversationID]))
	for _, p := range s.byConv[conversationID] {
		out = append(out, p)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.PinnedMessage) int {
		return cmp.Or(
			b.PinnedAt.Compare(a.PinnedAt),
			cmp.Compare(a.MessageID, b.MessageID),
			cmp.Compare(a.PinType, b.PinType),
		)
	})
	return out
}

// IsPinned reports whether the message is pinned under pinType.
func (s *PinStore) IsPinned(conversationID, messageID string, pinType model.PinType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byConv[conversationID][model.PinKey{MessageID: messageID, PinType: pinType}]
	return ok
}

// Apply records a pin. An existing pin with the same key is refreshed in
// place; it reports whether the pin was new.
func (s *PinStore) Apply(p model.PinnedMessage) bool {
	if p.ConversationID == "" || p.MessageID == "" || !p.PinType.Valid() {
		return false
	}
	s.mu.Lock()
	set, ok := s.byConv[p.ConversationID]
	if !ok {
		set = make(map[model.PinKey]model.PinnedMessage)
		s.byConv[p.ConversationID] = set
	}
	old, existed := set[p.Key()]
	if existed {
		if p.PinnedAt.IsZero() {
			p.PinnedAt = old.PinnedAt
		}
		if p.Message == nil {
			p.Message = old.Message
		}
	}
	set[p.Key()] = p
	s.mu.Unlock()
	s.syncMessage(p, true)
	s.notify(p.ConversationID)
	return !existed
}

// Remove drops the pin of exactly pinType. A pin of the other type on the
// same message is untouched.
func (s *PinStore) Remove(conversationID, messageID string, pinType model.PinType) bool {
	key := model.PinKey{MessageID: messageID, PinType: pinType}
	s.mu.Lock()
	p, ok := s.byConv[conversationID][key]
	delete(s.byConv[conversationID], key)
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.syncMessage(p, false)
	s.notify(conversationID)
	return true
}

// Forget drops every pin of a conversation.
func (s *PinStore) Forget(conversationID string) {
	s.mu.Lock()
	delete(s.byConv, conversationID)
	s.mu.Unlock()
	s.notify(conversationID)
}

// Pin pins a message optimistically and reverts if the server refuses.
// An existing pin is left as is until the server answers.
func (s *PinStore) Pin(ctx context.Context, conversationID, messageID string, pinType model.PinType) bool {
	return s.guard("pin", conversationID+"/"+messageID+"/"+string(pinType), func() bool {
		placeholder := model.PinnedMessage{
			ConversationID: conversationID,
			MessageID:      messageID,
			PinType:        pinType,
			PinnedAt:       time.Now(),
		}
		if s.messages != nil {
			if m, ok := s.messages.Get(conversationID, messageID); ok {
				placeholder.Message = &m
			}
		}
		added := false
		if !s.IsPinned(conversationID, messageID, pinType) {
			added = s.Apply(placeholder)
		}
		p, err := s.api.Pin(ctx, conversationID, messageID, pinType)
		if err != nil {
			if added {
				s.Remove(conversationID, messageID, pinType)
			}
			return s.fail("pin message", err)
		}
		s.Apply(p)
		return true
	})
}

// Unpin removes the pin of exactly pinType, restoring it if the server
// refuses.
func (s *PinStore) Unpin(ctx context.Context, conversationID, messageID string, pinType model.PinType) bool {
	return s.guard("pin", conversationID+"/"+messageID+"/"+string(pinType), func() bool {
		key := model.PinKey{MessageID: messageID, PinType: pinType}
		s.mu.RLock()
		prev, had := s.byConv[conversationID][key]
		s.mu.RUnlock()
		s.Remove(conversationID, messageID, pinType)
		if err := s.api.Unpin(ctx, conversationID, messageID, pinType); err != nil {
			if had {
				s.Apply(prev)
			}
			return s.fail("unpin message", err)
		}
		return true
	})
}

// syncMessage mirrors public pins onto the message's is_pinned flag.
// Personal pins are invisible to other members and leave it alone.
func (s *PinStore) syncMessage(p model.PinnedMessage, pinned bool) {
	if s.messages == nil || p.PinType != model.PinPublic {
		return
	}
	s.messages.SetPinned(p.ConversationID, p.MessageID, pinned)
}
