package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/chatsync/internal/events"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/ws"
)

// ActivityLog records notable pushes in the activity feed: mentions,
// friend requests, membership changes involving the local user, new
// conversations and blocks imposed on the local user.
type ActivityLog struct {
	*hook
	stream   Stream
	activity *state.ActivityStore
	selfID   string
	clock    clockwork.Clock
}

// NewActivityLog creates a log writer for the local user selfID.
func NewActivityLog(stream Stream, activity *state.ActivityStore, selfID string, clock clockwork.Clock) *ActivityLog {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ActivityLog{hook: newHook(), stream: stream, activity: activity, selfID: selfID, clock: clock}
}

// Start subscribes to the events that produce activity entries.
func (l *ActivityLog) Start(context.Context) {
	l.subscribe(l.stream, map[events.Name]ws.Handler{
		events.Notification:            l.onEvent,
		events.FriendRequestReceived:   l.onEvent,
		events.FriendRequestAccepted:   l.onEvent,
		events.ConversationCreate:      l.onEvent,
		events.ConversationUserAdded:   l.onEvent,
		events.ConversationUserRemoved: l.onEvent,
		events.UserBlockedBy:           l.onEvent,
		events.UserUnblockedBy:         l.onEvent,
	})
}

// Stop unsubscribes.
func (l *ActivityLog) Stop() {
	l.unsubscribe()
}

func (l *ActivityLog) onEvent(evt events.Event) {
	if e, ok := l.entry(evt); ok {
		if e.At.IsZero() {
			e.At = l.clock.Now()
		}
		l.activity.Add(e)
	}
}

// entry maps an event to its activity entry. Ids are derived from the
// event's own identity where it has one so a duplicate push is deduplicated.
func (l *ActivityLog) entry(evt events.Event) (model.ActivityEntry, bool) {
	switch e := evt.(type) {
	case *events.NotificationEvent:
		if !e.IsMention() {
			return model.ActivityEntry{}, false
		}
		n := e.Notification
		return model.ActivityEntry{
			ID:             entryID("mention", n.ID),
			Kind:           model.ActivityMention,
			ConversationID: n.ConversationID,
			UserID:         n.SenderID,
			Summary:        firstNonEmpty(n.Body, n.Title, "You were mentioned"),
			At:             n.CreatedAt,
			Read:           n.IsRead,
		}, true

	case *events.FriendRequestEvent:
		r := e.Request
		if e.Name == events.FriendRequestAccepted {
			other := r.Receiver
			if other.ID == l.selfID {
				other = r.Sender
			}
			return model.ActivityEntry{
				ID:      entryID("friend_accepted", r.ID),
				Kind:    model.ActivityFriendAccepted,
				UserID:  other.ID,
				Summary: fmt.Sprintf("%s accepted your friend request", other.Name()),
			}, true
		}
		return model.ActivityEntry{
			ID:      entryID("friend_request", r.ID),
			Kind:    model.ActivityFriendRequest,
			UserID:  r.Sender.ID,
			Summary: fmt.Sprintf("%s sent you a friend request", r.Sender.Name()),
			At:      r.CreatedAt,
		}, true

	case *events.ConversationEvent:
		c := e.Conversation
		return model.ActivityEntry{
			ID:             entryID("conversation_created", c.ID),
			Kind:           model.ActivityConversationNew,
			ConversationID: c.ID,
			Summary:        fmt.Sprintf("New conversation %s", firstNonEmpty(c.Title, c.ID)),
			At:             c.CreatedAt,
		}, true

	case *events.MemberEvent:
		if e.UserID != l.selfID {
			return model.ActivityEntry{}, false
		}
		prefix, kind, summary := "member_added", model.ActivityMemberAdded, "You were added to a conversation"
		if e.Name == events.ConversationUserRemoved {
			prefix, kind, summary = "member_removed", model.ActivityMemberRemoved, "You were removed from a conversation"
		}
		return model.ActivityEntry{
			ID:             entryID(prefix, e.ConversationID+"/"+e.UserID),
			Kind:           kind,
			ConversationID: e.ConversationID,
			UserID:         e.UserID,
			Summary:        summary,
		}, true

	case *events.BlockEvent:
		prefix, kind, summary := "blocked_by", model.ActivityBlocked, "A user blocked you"
		if e.Name == events.UserUnblockedBy {
			prefix, kind, summary = "unblocked_by", model.ActivityUnblocked, "A user unblocked you"
		}
		return model.ActivityEntry{
			ID:      entryID(prefix, e.UserID),
			Kind:    kind,
			UserID:  e.UserID,
			Summary: summary,
		}, true
	}
	return model.ActivityEntry{}, false
}

// entryID prefixes a natural id with its kind, or returns a fresh id when
// there is none.
func entryID(kind, id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return kind + ":" + id
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
