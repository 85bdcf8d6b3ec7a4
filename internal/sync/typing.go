package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/chatsync/internal/events"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/timers"
	"github.com/matheus3301/chatsync/internal/ws"
	"go.uber.org/zap"
)

const (
	// DefaultTypingTimeout is how long a remote typing indicator lasts
	// without a refresh.
	DefaultTypingTimeout = 5 * time.Second
	// DefaultTypingIdle is how long local input may pause before a
	// typing_stop is sent.
	DefaultTypingIdle = 3 * time.Second
)

// selfTypingKey is the arena key of the local idle timer. User ids are
// prefixed so they cannot collide with it.
const selfTypingKey = "self"

// TypingTracker keeps the typing set of one conversation: remote entries
// expire after a timeout unless refreshed, the local user's own echo is
// ignored, and local keystrokes are announced to the server with an idle
// stop.
type TypingTracker struct {
	*hook
	stream         Stream
	typing         *state.TypingStore
	conversationID string
	selfID         string
	timeout        time.Duration
	idle           time.Duration
	clock          clockwork.Clock
	logger         *zap.Logger

	mu       gosync.Mutex
	arena    *timers.Arena
	ctx      context.Context
	sentTrue bool
}

// TypingOptions tunes a TypingTracker. Zero values take the defaults.
type TypingOptions struct {
	Timeout time.Duration
	Idle    time.Duration
	Clock   clockwork.Clock
}

// NewTypingTracker creates a tracker for one conversation.
func NewTypingTracker(stream Stream, typing *state.TypingStore, conversationID, selfID string, opts TypingOptions, logger *zap.Logger) *TypingTracker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTypingTimeout
	}
	if opts.Idle <= 0 {
		opts.Idle = DefaultTypingIdle
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypingTracker{
		hook:           newHook(),
		stream:         stream,
		typing:         typing,
		conversationID: conversationID,
		selfID:         selfID,
		timeout:        opts.Timeout,
		idle:           opts.Idle,
		clock:          opts.Clock,
		logger:         logger,
		ctx:            context.Background(),
	}
}

// ConversationID returns the tracked conversation.
func (t *TypingTracker) ConversationID() string {
	return t.conversationID
}

// Start subscribes to typing events.
func (t *TypingTracker) Start(ctx context.Context) {
	t.mu.Lock()
	t.ctx = ctx
	t.arena = timers.NewArena(t.clock)
	t.mu.Unlock()
	t.subscribe(t.stream, map[events.Name]ws.Handler{events.Typing: t.onTyping})
}

// Stop unsubscribes, cancels every expiry, clears the conversation's
// typing set and tells the server the local user stopped typing if they
// were mid-typing.
func (t *TypingTracker) Stop() {
	if !t.unsubscribe() {
		return
	}
	t.StopTyping()
	t.mu.Lock()
	arena := t.arena
	t.mu.Unlock()
	arena.Close()
	t.typing.Clear(t.conversationID)
}

func (t *TypingTracker) onTyping(evt events.Event) {
	te, ok := evt.(*events.TypingEvent)
	if !ok || te.ConversationID != t.conversationID || te.UserID == t.selfID {
		return
	}

	t.mu.Lock()
	arena := t.arena
	t.mu.Unlock()
	key := "user:" + te.UserID

	if !te.IsTyping {
		arena.Cancel(key)
		t.typing.Remove(t.conversationID, te.UserID)
		return
	}
	t.typing.Set(model.TypingUser{
		UserID:         te.UserID,
		ConversationID: t.conversationID,
		DisplayName:    te.Name(),
		IsTyping:       true,
		Timestamp:      t.clock.Now(),
	})
	userID := te.UserID
	arena.Schedule(key, t.timeout, func() {
		t.typing.Remove(t.conversationID, userID)
	})
}

// Keystroke records local typing activity. The first keystroke of a burst
// announces is_typing=true; the burst ends after the idle delay.
func (t *TypingTracker) Keystroke() {
	if t.State() != Subscribed {
		return
	}
	t.mu.Lock()
	arena := t.arena
	first := !t.sentTrue
	t.sentTrue = true
	t.mu.Unlock()

	if first {
		t.send(true)
	}
	arena.Schedule(selfTypingKey, t.idle, t.StopTyping)
}

// StopTyping announces is_typing=false if the local user was typing.
func (t *TypingTracker) StopTyping() {
	t.mu.Lock()
	was := t.sentTrue
	t.sentTrue = false
	arena := t.arena
	t.mu.Unlock()
	if arena != nil {
		arena.Cancel(selfTypingKey)
	}
	if was {
		t.send(false)
	}
}

// IsLocalTyping reports whether a typing start has been announced without
// a stop.
func (t *TypingTracker) IsLocalTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sentTrue
}

func (t *TypingTracker) send(isTyping bool) {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()
	err := t.stream.Send(ctx, events.SendTyping, map[string]any{
		"conversation_id": t.conversationID,
		"is_typing":       isTyping,
	})
	if err != nil {
		t.logger.Debug("typing not sent", zap.String("conversation_id", t.conversationID), zap.Bool("is_typing", isTyping), zap.Error(err))
	}
}
