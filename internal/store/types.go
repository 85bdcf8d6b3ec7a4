package store

import "time"

// Outbox entry states.
const (
	OutboxQueued  = "queued"
	OutboxSending = "sending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEntry is one send attempt recorded before the network call.
// Payload is the JSON of the send request, enough to retry it.
type OutboxEntry struct {
	ClientID       string
	ConversationID string
	Payload        []byte
	Status         string // queued, sending, sent, failed
	ErrorMessage   string
	ServerMsgID    string
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
