package sync

import (
	"context"
	gosync "sync"

	"github.com/matheus3301/chatsync/internal/events"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/ws"
	"go.uber.org/zap"
)

// Stores groups the caches the engine writes to. Pins may be nil.
type Stores struct {
	Conversations *state.ConversationStore
	Messages      *state.MessageStore
	Pins          *state.PinStore
	Friends       *state.FriendStore
}

// Engine applies the message, conversation, friendship and block lifecycle
// events to the stores. Every merge is keyed by id, so an event that echoes
// a REST response already applied is a no-op.
type Engine struct {
	*hook
	stream Stream
	stores Stores
	selfID string
	logger *zap.Logger

	mu     gosync.RWMutex
	active func() string
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates an engine for the local user selfID.
func NewEngine(stream Stream, stores Stores, selfID string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		hook:   newHook(),
		stream: stream,
		stores: stores,
		selfID: selfID,
		logger: logger,
		active: func() string { return "" },
	}
}

// SetActive tells the engine how to find the conversation currently open.
// Messages arriving there do not count as unread.
func (e *Engine) SetActive(fn func() string) {
	e.mu.Lock()
	e.active = fn
	e.mu.Unlock()
}

func (e *Engine) isOpen(conversationID string) bool {
	e.mu.RLock()
	fn := e.active
	e.mu.RUnlock()
	return fn() == conversationID
}

// Start subscribes to the lifecycle events. ctx bounds the background
// refreshes the engine triggers.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.subscribe(e.stream, map[events.Name]ws.Handler{
		events.MessageReceive:          e.onMessage,
		events.MessageUpdated:          e.onMessage,
		events.MessageDelete:           e.onMessageDeleted,
		events.MessageRead:             e.onRead,
		events.MessageReadAll:          e.onRead,
		events.ConversationCreate:      e.onConversation,
		events.ConversationJoin:        e.onConversation,
		events.ConversationUpdate:      e.onConversation,
		events.ConversationDeleted:     e.onConversationDeleted,
		events.ConversationUserAdded:   e.onMember,
		events.ConversationUserRemoved: e.onMember,
		events.FriendRequestReceived:   e.onFriendRequest,
		events.FriendRequestAccepted:   e.onFriendRequest,
		events.FriendRequestRejected:   e.onFriendRequest,
		events.FriendRemoved:           e.onFriendRemoved,
		events.UserBlocked:             e.onBlock,
		events.UserBlockedBy:           e.onBlock,
		events.UserUnblocked:           e.onBlock,
		events.UserUnblockedBy:         e.onBlock,
	})
}

// Stop unsubscribes and cancels pending refreshes.
func (e *Engine) Stop() {
	e.unsubscribe()
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
}

func (e *Engine) onMessage(evt events.Event) {
	me, ok := evt.(*events.MessageEvent)
	if !ok {
		return
	}
	m := me.Message
	e.stores.Messages.Upsert(m)
	if me.Name != events.MessageReceive {
		return
	}
	if !e.stores.Conversations.ApplyMessage(m, e.selfID, e.isOpen(m.ConversationID)) {
		// First message of a conversation this client has not loaded.
		e.refresh(m.ConversationID)
	}
}

func (e *Engine) onMessageDeleted(evt events.Event) {
	d, ok := evt.(*events.MessageDeleted)
	if !ok {
		return
	}
	if d.ConversationID == "" {
		e.logger.Debug("delete without conversation id", zap.String("message_id", d.MessageID))
		return
	}
	e.stores.Messages.MarkDeleted(d.ConversationID, d.MessageID)
}

func (e *Engine) onRead(evt events.Event) {
	r, ok := evt.(*events.ReadEvent)
	if !ok {
		return
	}
	if r.UserID == e.selfID {
		e.stores.Conversations.ResetUnread(r.ConversationID)
	}
}

func (e *Engine) onConversation(evt events.Event) {
	ce, ok := evt.(*events.ConversationEvent)
	if !ok {
		return
	}
	incoming := ce.Conversation
	merged := e.stores.Conversations.Patch(incoming.ID, func(c *model.Conversation) {
		mergeConversation(c, incoming)
	})
	if !merged {
		e.stores.Conversations.Upsert(incoming)
	}
}

// mergeConversation applies a pushed conversation over the cached one,
// keeping the cached preview when the pushed one is older and the cached
// member list when the push carries none.
func mergeConversation(c *model.Conversation, in model.Conversation) {
	lastAt, lastText := c.LastMessageAt, c.LastMessageText
	members := c.Members
	*c = in
	if in.LastMessageAt.Before(lastAt) {
		c.LastMessageAt, c.LastMessageText = lastAt, lastText
	}
	if in.Members == nil {
		c.Members = members
	}
}

func (e *Engine) onConversationDeleted(evt events.Event) {
	d, ok := evt.(*events.ConversationRemoved)
	if !ok {
		return
	}
	e.forget(d.ConversationID)
}

func (e *Engine) forget(conversationID string) {
	e.stores.Conversations.Remove(conversationID)
	e.stores.Messages.Forget(conversationID)
	if e.stores.Pins != nil {
		e.stores.Pins.Forget(conversationID)
	}
}

func (e *Engine) onMember(evt events.Event) {
	me, ok := evt.(*events.MemberEvent)
	if !ok {
		return
	}
	if me.Name == events.ConversationUserRemoved {
		if me.UserID == e.selfID {
			e.forget(me.ConversationID)
			return
		}
		e.stores.Conversations.RemoveMemberLocal(me.ConversationID, me.UserID)
		return
	}
	member := me.Member
	if member.Username == "" && me.User != nil {
		member.Username = me.User.Username
	}
	if !e.stores.Conversations.AddMemberLocal(me.ConversationID, member) {
		e.refresh(me.ConversationID)
	}
}

func (e *Engine) onFriendRequest(evt events.Event) {
	fe, ok := evt.(*events.FriendRequestEvent)
	if !ok {
		return
	}
	r := fe.Request
	switch fe.Name {
	case events.FriendRequestAccepted:
		r.Status = model.FriendRequestAccepted
	case events.FriendRequestRejected:
		r.Status = model.FriendRequestRejected
	default:
		if r.Status == "" {
			r.Status = model.FriendRequestPending
		}
	}
	e.stores.Friends.ApplyRequest(r)
}

func (e *Engine) onFriendRemoved(evt events.Event) {
	if fr, ok := evt.(*events.FriendRemovedEvent); ok {
		e.stores.Friends.RemoveFriendLocal(fr.UserID)
	}
}

func (e *Engine) onBlock(evt events.Event) {
	b, ok := evt.(*events.BlockEvent)
	if !ok {
		return
	}
	switch b.Name {
	case events.UserBlocked:
		e.stores.Friends.ApplyBlock(b.UserID, true, true)
	case events.UserUnblocked:
		e.stores.Friends.ApplyBlock(b.UserID, false, true)
	case events.UserBlockedBy:
		e.stores.Friends.ApplyBlock(b.UserID, true, false)
	case events.UserUnblockedBy:
		e.stores.Friends.ApplyBlock(b.UserID, false, false)
	}
}

// refresh loads one conversation in the background. Handlers must not
// block the dispatch loop.
func (e *Engine) refresh(conversationID string) {
	e.mu.RLock()
	ctx := e.ctx
	e.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	go func() {
		if !e.stores.Conversations.Refresh(ctx, conversationID) {
			e.logger.Debug("conversation refresh failed", zap.String("conversation_id", conversationID))
		}
	}()
}
