// Package active narrows the global stores to the conversation currently
// open and exposes the actions an input surface needs without passing the
// conversation id around.
package active

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"github.com/matheus3301/chatsync/internal/state"
	chatsync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/zap"
)

var (
	// ErrNoActiveConversation is returned by actions called while no
	// conversation is open.
	ErrNoActiveConversation = errors.New("no active conversation")
	// ErrSuperseded is returned by Open when another conversation was opened
	// before its load finished.
	ErrSuperseded = errors.New("conversation switched while loading")
	// ErrActionFailed wraps a store action that returned false.
	ErrActionFailed = errors.New("action failed")
)

// Sender posts messages. *outbox.Sender implements it.
type Sender interface {
	Send(ctx context.Context, req rest.SendMessageRequest) (model.Message, error)
}

// Uploader stores media before it is referenced by a message.
// *rest.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, kind rest.UploadKind, conversationID, name string, data []byte) (rest.Uploaded, error)
}

// Deps are the collaborators of a Context. Pins, Drafts and Uploader may be
// nil.
type Deps struct {
	Stream        chatsync.Stream
	Conversations *state.ConversationStore
	Messages      *state.MessageStore
	Pins          *state.PinStore
	Typing        *state.TypingStore
	Drafts        *state.DraftStore
	Sender        Sender
	Uploader      Uploader
	SelfID        string
	Clock         clockwork.Clock
	TypingOptions chatsync.TypingOptions
	Bus           *bus.Bus
	Logger        *zap.Logger
}

// Context is the active-conversation scope. Switching conversations
// swaps the per-conversation reconcilers and drops the reply pointer.
type Context struct {
	deps   Deps
	logger *zap.Logger

	mu         sync.Mutex
	id         string
	gen        uint64
	replyingTo *model.Message
	typing     *chatsync.TypingTracker
	pins       *chatsync.PinReconciler

	sending atomic.Int32
}

// New creates a context with no conversation open.
func New(deps Deps) *Context {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.TypingOptions.Clock == nil {
		deps.TypingOptions.Clock = deps.Clock
	}
	return &Context{deps: deps, logger: logger}
}

// ConversationID returns the open conversation, "" if none.
func (c *Context) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Open makes conversationID the active conversation and loads its messages
// and pins. Reopening the active conversation only reloads. If another
// conversation is opened before the load returns, the late response leaves
// the context untouched and ErrSuperseded is returned.
func (c *Context) Open(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrNoActiveConversation
	}
	gen := c.switchTo(ctx, conversationID)

	if _, ok := c.deps.Conversations.Get(conversationID); !ok {
		c.deps.Conversations.Refresh(ctx, conversationID)
	}
	err := c.deps.Messages.Fetch(ctx, conversationID)
	if !c.current(gen) {
		c.logger.Debug("stale message load ignored", zap.String("conversation_id", conversationID))
		return ErrSuperseded
	}
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if c.deps.Pins != nil {
		if err := c.deps.Pins.Fetch(ctx, conversationID); err != nil {
			c.logger.Warn("load pins failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
	if !c.current(gen) {
		return ErrSuperseded
	}
	c.deps.Conversations.MarkRead(ctx, conversationID)
	return nil
}

// Close leaves the active conversation.
func (c *Context) Close() {
	c.switchTo(context.Background(), "")
}

func (c *Context) switchTo(ctx context.Context, conversationID string) uint64 {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.id == conversationID {
		c.mu.Unlock()
		return gen
	}
	prev := c.id
	oldTyping, oldPins := c.typing, c.pins
	c.id = conversationID
	c.replyingTo = nil
	c.typing, c.pins = nil, nil
	if conversationID != "" {
		c.typing = chatsync.NewTypingTracker(c.deps.Stream, c.deps.Typing, conversationID, c.deps.SelfID, c.deps.TypingOptions, c.logger)
		if c.deps.Pins != nil {
			c.pins = chatsync.NewPinReconciler(c.deps.Stream, c.deps.Pins, conversationID, c.logger)
		}
	}
	newTyping, newPins := c.typing, c.pins
	c.mu.Unlock()

	if oldTyping != nil {
		oldTyping.Stop()
	}
	if oldPins != nil {
		oldPins.Stop()
	}
	if newTyping != nil {
		newTyping.Start(context.WithoutCancel(ctx))
	}
	if newPins != nil {
		newPins.Start(ctx)
	}
	c.logger.Info("active conversation changed", zap.String("from", prev), zap.String("to", conversationID))
	c.deps.Bus.Emit(bus.ActiveConversationChanged, conversationID)
	return gen
}

func (c *Context) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// Conversation returns the open conversation.
func (c *Context) Conversation() (model.Conversation, bool) {
	id := c.ConversationID()
	if id == "" {
		return model.Conversation{}, false
	}
	return c.deps.Conversations.Get(id)
}

// Messages returns the open conversation's messages, oldest first.
func (c *Context) Messages() []model.Message {
	id := c.ConversationID()
	if id == "" {
		return nil
	}
	return c.deps.Messages.Messages(id)
}

// TypingUsers returns who is typing in the open conversation.
func (c *Context) TypingUsers() []model.TypingUser {
	id := c.ConversationID()
	if id == "" {
		return nil
	}
	return c.deps.Typing.Users(id)
}

// Pinned returns the open conversation's pins.
func (c *Context) Pinned() []model.PinnedMessage {
	id := c.ConversationID()
	if id == "" || c.deps.Pins == nil {
		return nil
	}
	return c.deps.Pins.Pinned(id)
}

// IsSending reports whether any action is in flight.
func (c *Context) IsSending() bool {
	return c.sending.Load() > 0
}

// SetReplyingTo points the next send at messageID, which must be loaded in
// the open conversation.
func (c *Context) SetReplyingTo(messageID string) error {
	id := c.ConversationID()
	if id == "" {
		return ErrNoActiveConversation
	}
	m, ok := c.deps.Messages.Get(id, messageID)
	if !ok {
		return fmt.Errorf("reply target %s not loaded", messageID)
	}
	c.mu.Lock()
	if c.id == id {
		c.replyingTo = &m
	}
	c.mu.Unlock()
	return nil
}

// ReplyingTo returns the message the next send replies to.
func (c *Context) ReplyingTo() (model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replyingTo == nil {
		return model.Message{}, false
	}
	return *c.replyingTo, true
}

// CancelReply clears the reply pointer.
func (c *Context) CancelReply() {
	c.mu.Lock()
	c.replyingTo = nil
	c.mu.Unlock()
}

// Draft returns the open conversation's draft.
func (c *Context) Draft() string {
	id := c.ConversationID()
	if id == "" || c.deps.Drafts == nil {
		return ""
	}
	return c.deps.Drafts.Get(id)
}

// SetDraft records typed text and announces local typing.
func (c *Context) SetDraft(text string) error {
	c.mu.Lock()
	id, typing := c.id, c.typing
	c.mu.Unlock()
	if id == "" {
		return ErrNoActiveConversation
	}
	if c.deps.Drafts != nil {
		c.deps.Drafts.Set(id, text)
	}
	if typing != nil && text != "" {
		typing.Keystroke()
	}
	return nil
}

// SendMessage sends text, as a reply when a reply pointer is set.
func (c *Context) SendMessage(ctx context.Context, text string) (model.Message, error) {
	return c.send(ctx, rest.SendMessageRequest{MessageType: model.MessageText, Content: text}, true)
}

// ReplyToMessage sends text as a reply to messageID regardless of the reply
// pointer.
func (c *Context) ReplyToMessage(ctx context.Context, messageID, text string) (model.Message, error) {
	return c.send(ctx, rest.SendMessageRequest{MessageType: model.MessageText, Content: text, ReplyToID: messageID}, true)
}

// SendSticker sends a sticker.
func (c *Context) SendSticker(ctx context.Context, stickerID string) (model.Message, error) {
	return c.send(ctx, rest.SendMessageRequest{MessageType: model.MessageSticker, StickerID: stickerID}, false)
}

// UploadImage uploads an image and sends it with an optional caption.
func (c *Context) UploadImage(ctx context.Context, name string, data []byte, caption string) (model.Message, error) {
	return c.upload(ctx, rest.UploadImage, model.MessageImage, name, data, caption)
}

// UploadFile uploads a file and sends it with an optional caption.
func (c *Context) UploadFile(ctx context.Context, name string, data []byte, caption string) (model.Message, error) {
	return c.upload(ctx, rest.UploadFile, model.MessageFile, name, data, caption)
}

func (c *Context) upload(ctx context.Context, kind rest.UploadKind, typ model.MessageType, name string, data []byte, caption string) (model.Message, error) {
	if c.deps.Uploader == nil {
		return model.Message{}, errors.New("uploads are not configured")
	}
	id := c.ConversationID()
	if id == "" {
		return model.Message{}, ErrNoActiveConversation
	}
	defer c.busy()()

	up, err := c.deps.Uploader.Upload(ctx, kind, id, name, data)
	if err != nil {
		return model.Message{}, fmt.Errorf("upload %s: %w", name, err)
	}
	return c.send(ctx, rest.SendMessageRequest{
		ConversationID:    id,
		MessageType:       typ,
		Content:           caption,
		MediaURL:          up.FileURL,
		MediaThumbnailURL: up.ThumbnailURL,
		FileName:          up.FileName,
		FileSize:          up.FileSize,
		MimeType:          up.MimeType,
	}, true)
}

// send posts req into the open conversation, or into req.ConversationID
// when set. With useReply the reply pointer fills ReplyToID and is cleared
// once the send succeeds.
func (c *Context) send(ctx context.Context, req rest.SendMessageRequest, useReply bool) (model.Message, error) {
	c.mu.Lock()
	id, typing := c.id, c.typing
	var replyTo *model.Message
	if useReply && req.ReplyToID == "" {
		replyTo = c.replyingTo
	}
	c.mu.Unlock()

	if req.ConversationID == "" {
		req.ConversationID = id
	}
	if req.ConversationID == "" {
		return model.Message{}, ErrNoActiveConversation
	}
	if replyTo != nil {
		req.ReplyToID = replyTo.ID
	}
	defer c.busy()()

	if typing != nil && req.ConversationID == id {
		typing.StopTyping()
	}
	m, err := c.deps.Sender.Send(ctx, req)
	if err != nil {
		return m, err
	}

	c.mu.Lock()
	if c.id == req.ConversationID && (replyTo == nil || c.replyingTo == replyTo) {
		c.replyingTo = nil
	}
	c.mu.Unlock()
	if c.deps.Drafts != nil && req.MessageType == model.MessageText {
		c.deps.Drafts.Clear(req.ConversationID)
	}
	return m, nil
}

// EditMessage changes the text of a message in the open conversation.
func (c *Context) EditMessage(ctx context.Context, messageID, content string) error {
	id := c.ConversationID()
	if id == "" {
		return ErrNoActiveConversation
	}
	defer c.busy()()
	if !c.deps.Messages.Edit(ctx, id, messageID, content) {
		return fmt.Errorf("%w: %s", ErrActionFailed, c.deps.Messages.LastError())
	}
	return nil
}

// DeleteMessage soft-deletes a message in the open conversation.
func (c *Context) DeleteMessage(ctx context.Context, messageID string) error {
	id := c.ConversationID()
	if id == "" {
		return ErrNoActiveConversation
	}
	defer c.busy()()
	if !c.deps.Messages.Delete(ctx, id, messageID) {
		return fmt.Errorf("%w: %s", ErrActionFailed, c.deps.Messages.LastError())
	}
	return nil
}

func (c *Context) busy() func() {
	c.sending.Add(1)
	return func() { c.sending.Add(-1) }
}
