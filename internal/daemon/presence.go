package daemon

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/timers"
)

// presenceRefresh bounds how often the watched set is recomputed while
// friends or conversations keep changing.
const presenceRefresh = 250 * time.Millisecond

// presenceFollower keeps the presence watcher's user set in step with the
// friend list and the direct conversations.
type presenceFollower struct {
	stores  *Stores
	watcher *intsync.PresenceWatcher
	selfID  string
	delay   time.Duration
	timers  *timers.Arena

	friends       <-chan bus.Event
	conversations <-chan bus.Event
	unsub         []func()
}

// newPresenceFollower subscribes immediately so changes made before run
// starts are not missed.
func newPresenceFollower(b *bus.Bus, stores *Stores, watcher *intsync.PresenceWatcher, selfID string, clock clockwork.Clock, delay time.Duration) *presenceFollower {
	f := &presenceFollower{
		stores:  stores,
		watcher: watcher,
		selfID:  selfID,
		delay:   delay,
		timers:  timers.NewArena(clock),
	}
	var unsubFriends, unsubConversations func()
	f.friends, unsubFriends = b.Subscribe(bus.FriendsChanged, 64)
	f.conversations, unsubConversations = b.Subscribe(bus.ConversationsChanged, 64)
	f.unsub = []func(){unsubFriends, unsubConversations}
	return f
}

// run refreshes the watched set after changes until ctx is done. A burst
// of changes leads to one refresh per delay window.
func (f *presenceFollower) run(ctx context.Context) {
	defer func() {
		for _, unsub := range f.unsub {
			unsub()
		}
		f.timers.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.friends:
		case <-f.conversations:
		}
		if f.timers.Pending("watch") {
			continue
		}
		f.timers.Schedule("watch", f.delay, func() {
			if ctx.Err() == nil {
				f.watcher.Watch(ctx, watchedUsers(f.stores, f.selfID))
			}
		})
	}
}

// watchedUsers lists friends and direct-conversation peers, excluding
// self.
func watchedUsers(s *Stores, selfID string) []string {
	seen := map[string]struct{}{selfID: {}, "": {}}
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, u := range s.Friends.Friends() {
		add(u.ID)
	}
	for _, c := range s.Conversations.List() {
		if c.Type != model.ConversationDirect {
			continue
		}
		if c.ContactInfo != nil {
			add(c.ContactInfo.UserID)
		}
		for _, m := range c.Members {
			add(m.UserID)
		}
	}
	return ids
}
