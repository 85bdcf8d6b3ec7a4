package sync

import (
	"context"

	"github.com/matheus3301/chatsync/internal/events"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/ws"
	"go.uber.org/zap"
)

// PinReconciler applies pin and unpin pushes to the pin store. With a
// conversation id it only follows that conversation.
type PinReconciler struct {
	*hook
	stream         Stream
	pins           *state.PinStore
	conversationID string
	logger         *zap.Logger
}

// NewPinReconciler creates a reconciler. An empty conversationID follows
// every conversation.
func NewPinReconciler(stream Stream, pins *state.PinStore, conversationID string, logger *zap.Logger) *PinReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PinReconciler{hook: newHook(), stream: stream, pins: pins, conversationID: conversationID, logger: logger}
}

// Start subscribes to pin events.
func (r *PinReconciler) Start(context.Context) {
	r.subscribe(r.stream, map[events.Name]ws.Handler{
		events.MessagePinned:   r.onPin,
		events.MessageUnpinned: r.onPin,
	})
}

// Stop unsubscribes.
func (r *PinReconciler) Stop() {
	r.unsubscribe()
}

func (r *PinReconciler) onPin(evt events.Event) {
	pe, ok := evt.(*events.PinEvent)
	if !ok {
		return
	}
	if r.conversationID != "" && pe.ConversationID != r.conversationID {
		return
	}
	if pe.Name == events.MessageUnpinned {
		r.pins.Remove(pe.ConversationID, pe.MessageID, pe.PinType)
		return
	}
	if r.pins.Apply(pe.Pinned()) {
		r.logger.Debug("pin applied",
			zap.String("conversation_id", pe.ConversationID),
			zap.String("message_id", pe.MessageID),
			zap.String("pin_type", string(pe.PinType)),
		)
	}
}
