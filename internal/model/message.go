package model

import (
	"slices"
	"strconv"
	"time"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageVideo   MessageType = "video"
	MessageFile    MessageType = "file"
	MessageSticker MessageType = "sticker"
	MessageAlbum   MessageType = "album"
)

// MessageStatus is the local delivery state of a message.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// AlbumFile is one item of an album message.
type AlbumFile struct {
	ID           string `json:"id,omitempty"`
	FileURL      string `json:"file_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	FileType     string `json:"file_type,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	Position     int    `json:"position"`
}

// Message is the client-side mirror of a chat message.
type Message struct {
	ID                string         `json:"id"`
	ClientID          string         `json:"client_id,omitempty"`
	ConversationID    string         `json:"conversation_id"`
	SenderID          string         `json:"sender_id"`
	SenderName        string         `json:"sender_name,omitempty"`
	MessageType       MessageType    `json:"message_type"`
	Content           string         `json:"content"`
	MediaURL          string         `json:"media_url,omitempty"`
	MediaThumbnailURL string         `json:"media_thumbnail_url,omitempty"`
	FileName          string         `json:"file_name,omitempty"`
	FileSize          int64          `json:"file_size,omitempty"`
	MimeType          string         `json:"mime_type,omitempty"`
	StickerID         string         `json:"sticker_id,omitempty"`
	ReplyToID         string         `json:"reply_to_id,omitempty"`
	IsEdited          bool           `json:"is_edited"`
	IsDeleted         bool           `json:"is_deleted"`
	IsPinned          bool           `json:"is_pinned"`
	Status            MessageStatus  `json:"status,omitempty"`
	AlbumFiles        []AlbumFile    `json:"album_files,omitempty"`
	AlbumID           string         `json:"album_id,omitempty"`
	AlbumPosition     int            `json:"album_position,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Normalize brings a decoded message into canonical form: album files are
// ordered by position with duplicate positions dropped, legacy album
// metadata is lifted into AlbumID/AlbumPosition and server messages
// without a status are marked sent.
func (m *Message) Normalize() {
	m.AlbumFiles = SortAlbumFiles(m.AlbumFiles)
	if m.AlbumID == "" && m.Metadata != nil {
		if id, ok := m.Metadata["album_id"].(string); ok {
			m.AlbumID = id
			m.AlbumPosition = metadataInt(m.Metadata["album_position"])
		}
	}
	if m.Status == "" && m.ID != "" {
		m.Status = StatusSent
	}
}

func metadataInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

// SortAlbumFiles returns files ordered by position, keeping the first file
// seen for each position.
func SortAlbumFiles(files []AlbumFile) []AlbumFile {
	if len(files) == 0 {
		return files
	}
	out := make([]AlbumFile, 0, len(files))
	seen := make(map[int]bool, len(files))
	for _, f := range files {
		if seen[f.Position] {
			continue
		}
		seen[f.Position] = true
		out = append(out, f)
	}
	slices.SortStableFunc(out, func(a, b AlbumFile) int { return a.Position - b.Position })
	return out
}

// SortMessages orders messages by created_at ascending. Equal timestamps
// keep their relative order.
func SortMessages(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// PinType is the visibility scope of a pin.
type PinType string

const (
	PinPersonal PinType = "personal"
	PinPublic   PinType = "public"
)

// Valid reports whether p is a known pin type.
func (p PinType) Valid() bool {
	return p == PinPersonal || p == PinPublic
}

// PinKey identifies a pin inside one conversation.
type PinKey struct {
	MessageID string
	PinType   PinType
}

// PinnedMessage is a message pinned under one pin type.
type PinnedMessage struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	PinType        PinType   `json:"pin_type"`
	PinnedAt       time.Time `json:"pinned_at"`
	PinnedBy       string    `json:"pinned_by,omitempty"`
	Message        *Message  `json:"message,omitempty"`
}

// Key returns the pin's identity within its conversation.
func (p PinnedMessage) Key() PinKey {
	return PinKey{MessageID: p.MessageID, PinType: p.PinType}
}
