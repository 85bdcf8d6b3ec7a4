// Package sync reconciles pushed server events into the domain stores. Each
// reconciler subscribes to the event stream on Start, filters what it
// receives, mutates its stores and releases every listener and timer it
// owns on Stop.
package sync

import (
	"context"
	gosync "sync"

	"github.com/matheus3301/chatsync/internal/events"
	"github.com/matheus3301/chatsync/internal/ws"
)

// Stream is the event bus surface reconcilers use. *ws.Client implements
// it.
type Stream interface {
	AddEventListener(name events.Name, h ws.Handler) (unsubscribe func())
	Send(ctx context.Context, name events.Name, payload any) error
}

// HookState is the lifecycle state of a reconciler.
type HookState string

const (
	Idle         HookState = "IDLE"
	Subscribed   HookState = "SUBSCRIBED"
	Unsubscribed HookState = "UNSUBSCRIBED"
)

// hook holds a reconciler's listener registrations. A stopped hook can be
// started again.
type hook struct {
	mu     gosync.Mutex
	state  HookState
	unsubs []func()
}

func newHook() *hook {
	return &hook{state: Idle}
}

// State returns the current lifecycle state.
func (h *hook) State() HookState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// subscribe registers handlers on s. It reports false if the hook is
// already subscribed.
func (h *hook) subscribe(s Stream, handlers map[events.Name]ws.Handler) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Subscribed {
		return false
	}
	for name, fn := range handlers {
		h.unsubs = append(h.unsubs, s.AddEventListener(name, fn))
	}
	h.state = Subscribed
	return true
}

// unsubscribe removes every listener. It reports false if the hook was not
// subscribed.
func (h *hook) unsubscribe() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Subscribed {
		return false
	}
	for _, u := range h.unsubs {
		u()
	}
	h.unsubs = nil
	h.state = Unsubscribed
	return true
}
