package events

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

// Event is one decoded inbound WebSocket event. The concrete type is chosen
// by the envelope's canonical name.
type Event interface {
	EventName() Name
}

// Envelope is the wire wrapper around every pushed event.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MessageEvent carries a full message (receive, updated).
type MessageEvent struct {
	Name    Name
	Message model.Message
}

func (e *MessageEvent) EventName() Name { return e.Name }

// MessageDeleted is a soft delete of one message.
type MessageDeleted struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

func (*MessageDeleted) EventName() Name { return MessageDelete }

// PinEvent announces a pin or unpin.
type PinEvent struct {
	Name           Name           `json:"-"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	PinType        model.PinType  `json:"pin_type"`
	PinnedBy       string         `json:"pinned_by,omitempty"`
	PinnedAt       time.Time      `json:"pinned_at"`
	Message        *model.Message `json:"message,omitempty"`
}

func (e *PinEvent) EventName() Name { return e.Name }

// Pinned returns the pin described by a message.pinned event.
func (e *PinEvent) Pinned() model.PinnedMessage {
	return model.PinnedMessage{
		ConversationID: e.ConversationID,
		MessageID:      e.MessageID,
		PinType:        e.PinType,
		PinnedAt:       e.PinnedAt,
		PinnedBy:       e.PinnedBy,
		Message:        e.Message,
	}
}

// ReadEvent is a read receipt; MessageID is empty for read_all.
type ReadEvent struct {
	Name           Name      `json:"-"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	UserID         string    `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}

func (e *ReadEvent) EventName() Name { return e.Name }

// TypingEvent is a remote user's typing state.
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	IsTyping       bool   `json:"is_typing"`
}

func (*TypingEvent) EventName() Name { return Typing }

// Name returns the label to show for the typing user.
func (e *TypingEvent) Name() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	if e.Username != "" {
		return e.Username
	}
	return e.UserID
}

// ConversationEvent carries a full conversation (create, update, join).
type ConversationEvent struct {
	Name         Name
	Conversation model.Conversation
}

func (e *ConversationEvent) EventName() Name { return e.Name }

// ConversationRemoved announces a deleted conversation.
type ConversationRemoved struct {
	ConversationID string `json:"conversation_id"`
}

func (*ConversationRemoved) EventName() Name { return ConversationDeleted }

// MemberEvent announces a membership change.
type MemberEvent struct {
	Name           Name         `json:"-"`
	ConversationID string       `json:"conversation_id"`
	UserID         string       `json:"user_id"`
	User           *model.User  `json:"user,omitempty"`
	Member         model.Member `json:"member"`
}

func (e *MemberEvent) EventName() Name { return e.Name }

// FriendRequestEvent carries a friend request in its new state.
type FriendRequestEvent struct {
	Name    Name
	Request model.FriendRequest
}

func (e *FriendRequestEvent) EventName() Name { return e.Name }

// FriendRemovedEvent announces an ended friendship.
type FriendRemovedEvent struct {
	UserID string `json:"user_id"`
}

func (*FriendRemovedEvent) EventName() Name { return FriendRemoved }

// UserStatusEvent is the canonical presence update.
type UserStatusEvent struct {
	UserID   string               `json:"user_id"`
	Status   model.PresenceStatus `json:"status"`
	LastSeen time.Time            `json:"last_seen"`
}

func (*UserStatusEvent) EventName() Name { return UserStatus }

// Presence returns the presence record described by the event.
func (e *UserStatusEvent) Presence() model.UserPresence {
	return model.UserPresence{UserID: e.UserID, Status: e.Status, LastSeen: e.LastSeen}
}

// NoteEvent carries a created or updated note.
type NoteEvent struct {
	Name Name
	Note model.Note
}

func (e *NoteEvent) EventName() Name { return e.Name }

// NoteDeleted announces a removed note.
type NoteDeleted struct {
	NoteID string `json:"note_id"`
}

func (*NoteDeleted) EventName() Name { return NoteDelete }

// BlockEvent announces a block or unblock involving the local user.
type BlockEvent struct {
	Name   Name   `json:"-"`
	UserID string `json:"user_id"`
}

func (e *BlockEvent) EventName() Name { return e.Name }

// NotificationEvent carries a generic notification (mentions among others).
type NotificationEvent struct {
	Notification model.Notification
}

func (*NotificationEvent) EventName() Name { return Notification }

// IsMention reports whether the notification is an @-mention.
func (e *NotificationEvent) IsMention() bool {
	return e.Notification.Type == model.NotificationMention
}

// Unknown is any event whose name is not recognized. It is dispatched to
// listeners registered for its raw name and otherwise ignored.
type Unknown struct {
	Type string
	Data json.RawMessage
}

func (e *Unknown) EventName() Name { return Name(e.Type) }
