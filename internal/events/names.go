package events

import "strings"

// Name is a canonical event name. Wire names are mapped onto this space by
// Normalize before dispatch, so listeners register one name per logical
// event.
type Name string

// Inbound events.
const (
	MessageReceive  Name = "message.receive"
	MessageUpdated  Name = "message.updated"
	MessageDelete   Name = "message.delete"
	MessagePinned   Name = "message.pinned"
	MessageUnpinned Name = "message.unpinned"
	MessageRead     Name = "message.read"
	MessageReadAll  Name = "message.read_all"

	ConversationCreate      Name = "conversation.create"
	ConversationUpdate      Name = "conversation.update"
	ConversationDeleted     Name = "conversation.deleted"
	ConversationJoin        Name = "conversation.join"
	ConversationUserAdded   Name = "conversation.user_added"
	ConversationUserRemoved Name = "conversation.user_removed"

	FriendRequestReceived Name = "friend_request.received"
	FriendRequestAccepted Name = "friend_request.accepted"
	FriendRequestRejected Name = "friend_request.rejected"
	FriendRemoved         Name = "friend.removed"

	UserStatus Name = "user_status"
	Typing     Name = "user_typing"

	NoteCreate Name = "note.create"
	NoteUpdate Name = "note.update"
	NoteDelete Name = "note.delete"

	UserBlocked     Name = "user.blocked"
	UserBlockedBy   Name = "user.blocked_by"
	UserUnblocked   Name = "user.unblocked"
	UserUnblockedBy Name = "user.unblocked_by"

	Notification Name = "notification"
)

// Outbound events.
const (
	SendTyping          Name = "message.typing"
	SubscribeUserStatus Name = "subscribe_user_status"
	UnsubscribeStatus   Name = "unsubscribe_user_status"
)

// transportPrefix is prepended by the server's transport to some event
// names; it carries no meaning.
const transportPrefix = "message:"

// aliases maps wire names that describe the same logical event onto one
// canonical name.
var aliases = map[string]Name{
	"message.typing":       Typing,
	"user.online":          UserStatus,
	"user.offline":         UserStatus,
	"user.status":          UserStatus,
	"conversation.updated": ConversationUpdate,
}

// Normalize maps a wire event name to its canonical Name.
func Normalize(wire string) Name {
	wire = strings.TrimSpace(wire)
	wire = strings.TrimPrefix(wire, transportPrefix)
	if n, ok := aliases[wire]; ok {
		return n
	}
	return Name(wire)
}
