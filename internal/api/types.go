package api

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

// StatusReply describes the daemon.
type StatusReply struct {
	Session            string    `json:"session"`
	State              string    `json:"state"`
	Since              time.Time `json:"since"`
	ActiveConversation string    `json:"active_conversation,omitempty"`
	Conversations      int       `json:"conversations"`
	UnreadTotal        int       `json:"unread_total"`
	PendingSends       []string  `json:"pending_sends,omitempty"`
}

type ConversationsReply struct {
	Conversations []model.Conversation `json:"conversations"`
}

// ConversationRequest names a conversation. An empty id means the active
// conversation where the method allows it.
type ConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type ConversationReply struct {
	Conversation model.Conversation `json:"conversation"`
}

type MessagesReply struct {
	ConversationID string          `json:"conversation_id"`
	Messages       []model.Message `json:"messages"`
}

// SendRequest sends text into the active conversation. ReplyTo overrides
// the reply pointer.
type SendRequest struct {
	Text    string `json:"text"`
	ReplyTo string `json:"reply_to,omitempty"`
}

type MessageReply struct {
	Message model.Message `json:"message"`
}

type TypingReply struct {
	ConversationID string             `json:"conversation_id"`
	Users          []model.TypingUser `json:"users"`
}

type PinsReply struct {
	ConversationID string                `json:"conversation_id"`
	Pins           []model.PinnedMessage `json:"pins"`
}

type NotesReply struct {
	Notes []model.Note `json:"notes"`
}

type DraftRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

type DraftReply struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// WatchRequest filters the watch stream by event kind prefix. Empty
// matches everything.
type WatchRequest struct {
	Prefix string `json:"prefix"`
}

// Event is one bus event relayed to a watcher.
type Event struct {
	ID         string          `json:"id"`
	Session    string          `json:"session"`
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
