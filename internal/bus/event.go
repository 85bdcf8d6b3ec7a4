package bus

import "time"

// Event is a local notification published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Kinds published by the daemon. Store kinds carry the id of the changed
// entity (or the conversation id for per-conversation collections).
const (
	ConnectionStatusChanged = "connection.status_changed"

	ConversationsChanged = "state.conversations"
	MessagesChanged      = "state.messages"
	PinsChanged          = "state.pins"
	FriendsChanged       = "state.friends"
	NotesChanged         = "state.notes"
	PresenceChanged      = "state.presence"
	TypingChanged        = "state.typing"
	DraftsChanged        = "state.drafts"
	ScheduledChanged     = "state.scheduled"
	ActivityChanged      = "state.activity"
	SettingsChanged      = "state.settings"

	MessageSendAck    = "outbox.send_ack"
	MessageSendFailed = "outbox.send_failed"

	ActiveConversationChanged = "active.changed"
)
