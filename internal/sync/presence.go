package sync

import (
	"context"
	"slices"
	gosync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/events"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/ws"
	"go.uber.org/zap"
)

// DefaultPresencePoll is the REST polling interval used while the event
// stream is down.
const DefaultPresencePoll = 30 * time.Second

// PresenceWatcher keeps presence current for a set of watched users. While
// the event stream is up it holds one server subscription per watched
// user; while it is down it polls the REST endpoint instead.
type PresenceWatcher struct {
	*hook
	stream   Stream
	presence *state.PresenceStore
	machine  *status.Machine
	bus      *bus.Bus
	clock    clockwork.Clock
	interval time.Duration
	logger   *zap.Logger

	mu      gosync.Mutex
	watched map[string]struct{}
	polling bool
	kick    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPresenceWatcher creates a watcher. interval is the polling period
// while disconnected.
func NewPresenceWatcher(stream Stream, presence *state.PresenceStore, machine *status.Machine, b *bus.Bus, clock clockwork.Clock, interval time.Duration, logger *zap.Logger) *PresenceWatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultPresencePoll
	}
	if machine == nil {
		machine = status.NewMachine(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceWatcher{
		hook:     newHook(),
		stream:   stream,
		presence: presence,
		machine:  machine,
		bus:      b,
		clock:    clock,
		interval: interval,
		logger:   logger,
		watched:  make(map[string]struct{}),
		kick:     make(chan struct{}, 1),
	}
}

// Start subscribes to presence pushes and begins following the connection
// state.
func (w *PresenceWatcher) Start(ctx context.Context) {
	if !w.subscribe(w.stream, map[events.Name]ws.Handler{events.UserStatus: w.onStatus}) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	var ch <-chan bus.Event
	unsub := func() {}
	if w.bus != nil {
		ch, unsub = w.bus.Subscribe(bus.ConnectionStatusChanged, 16)
	}
	done := make(chan struct{})
	w.mu.Lock()
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go func() {
		defer close(done)
		defer unsub()
		w.run(ctx, ch)
	}()
}

// Stop unsubscribes from the server for every watched user, stops polling
// and releases the listener.
func (w *PresenceWatcher) Stop() {
	if !w.unsubscribe() {
		return
	}
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	ids := w.idsLocked()
	w.mu.Unlock()
	cancel()
	<-done
	for _, id := range ids {
		w.sendSubscription(context.Background(), events.UnsubscribeStatus, id)
	}
}

// Watch replaces the watched set. Added users are subscribed, removed
// users unsubscribed.
func (w *PresenceWatcher) Watch(ctx context.Context, userIDs []string) {
	next := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			next[id] = struct{}{}
		}
	}

	w.mu.Lock()
	var added, removed []string
	for id := range next {
		if _, ok := w.watched[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range w.watched {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	w.watched = next
	w.mu.Unlock()

	slices.Sort(added)
	slices.Sort(removed)
	for _, id := range removed {
		w.sendSubscription(ctx, events.UnsubscribeStatus, id)
	}
	for _, id := range added {
		w.sendSubscription(ctx, events.SubscribeUserStatus, id)
	}
	if len(added) > 0 {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Watched returns the watched user ids, sorted.
func (w *PresenceWatcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idsLocked()
}

// IsPolling reports whether the REST fallback is active.
func (w *PresenceWatcher) IsPolling() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polling
}

func (w *PresenceWatcher) idsLocked() []string {
	ids := make([]string, 0, len(w.watched))
	for id := range w.watched {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (w *PresenceWatcher) onStatus(evt events.Event) {
	if se, ok := evt.(*events.UserStatusEvent); ok {
		w.presence.Apply(se.Presence())
	}
}

func (w *PresenceWatcher) run(ctx context.Context, changes <-chan bus.Event) {
	var ticker clockwork.Ticker
	var tick <-chan time.Time

	startPolling := func() {
		if ticker != nil {
			return
		}
		w.setPolling(true)
		select {
		case <-w.kick:
		default:
		}
		w.logger.Info("event stream down, polling presence", zap.Duration("interval", w.interval))
		w.poll(ctx)
		ticker = w.clock.NewTicker(w.interval)
		tick = ticker.Chan()
	}
	stopPolling := func() {
		if ticker == nil {
			return
		}
		ticker.Stop()
		ticker, tick = nil, nil
		w.setPolling(false)
		w.logger.Info("event stream up, presence polling stopped")
	}
	defer stopPolling()

	if !w.machine.IsConnected() {
		startPolling()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-changes:
			change, ok := evt.Payload.(status.StatusChange)
			if !ok {
				continue
			}
			if change.To == status.Connected {
				stopPolling()
				w.resubscribe(ctx)
			} else {
				startPolling()
			}
		case <-tick:
			w.poll(ctx)
		case <-w.kick:
			if ticker != nil {
				w.poll(ctx)
			}
		}
	}
}

func (w *PresenceWatcher) setPolling(on bool) {
	w.mu.Lock()
	w.polling = on
	w.mu.Unlock()
}

func (w *PresenceWatcher) poll(ctx context.Context) {
	ids := w.Watched()
	if len(ids) == 0 {
		return
	}
	if err := w.presence.Fetch(ctx, ids); err != nil {
		w.logger.Debug("presence poll failed", zap.Int("users", len(ids)), zap.Error(err))
	}
}

// resubscribe restores server subscriptions after a reconnect; the server
// forgets them when the connection drops.
func (w *PresenceWatcher) resubscribe(ctx context.Context) {
	for _, id := range w.Watched() {
		w.sendSubscription(ctx, events.SubscribeUserStatus, id)
	}
}

func (w *PresenceWatcher) sendSubscription(ctx context.Context, name events.Name, userID string) {
	if err := w.stream.Send(ctx, name, map[string]string{"user_id": userID}); err != nil {
		w.logger.Debug("presence subscription not sent", zap.String("event", string(name)), zap.String("user_id", userID), zap.Error(err))
	}
}
