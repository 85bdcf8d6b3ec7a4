package model

import "time"

// ConversationType distinguishes one-to-one from group conversations.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// User is the public profile of another account.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Name returns the best human-readable name for the user.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}

// ContactInfo describes the other side of a direct conversation.
type ContactInfo struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	IsOnline    bool   `json:"is_online"`
}

// Member is a participant of a conversation.
type Member struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// Conversation is the client-side mirror of a server conversation.
type Conversation struct {
	ID              string           `json:"id"`
	Type            ConversationType `json:"type"`
	Title           string           `json:"title"`
	IconURL         string           `json:"icon_url,omitempty"`
	LastMessageAt   time.Time        `json:"last_message_at"`
	LastMessageText string           `json:"last_message_text,omitempty"`
	UnreadCount     int              `json:"unread_count"`
	IsPinned        bool             `json:"is_pinned"`
	IsMuted         bool             `json:"is_muted"`
	ContactInfo     *ContactInfo     `json:"contact_info,omitempty"`
	Members         []Member         `json:"members,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// HasMember reports whether userID belongs to the conversation's member list.
func (c *Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// PresenceStatus is a user's availability.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
)

// Valid reports whether s is a known status.
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceOffline, PresenceAway, PresenceBusy:
		return true
	}
	return false
}

// UserPresence is the last known availability of a user.
type UserPresence struct {
	UserID   string         `json:"user_id"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}

// TypingUser is an ephemeral "is typing" entry. Never persisted.
type TypingUser struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	DisplayName    string    `json:"display_name"`
	IsTyping       bool      `json:"is_typing"`
	Timestamp      time.Time `json:"timestamp"`
}

// FriendRequestStatus is the state of a friend request.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is a pending or resolved friendship request.
type FriendRequest struct {
	ID        string              `json:"id"`
	Sender    User                `json:"sender"`
	Receiver  User                `json:"receiver"`
	Status    FriendRequestStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

// ScheduledStatus is the state of a scheduled message.
type ScheduledStatus string

const (
	ScheduledPending   ScheduledStatus = "pending"
	ScheduledSent      ScheduledStatus = "sent"
	ScheduledCancelled ScheduledStatus = "cancelled"
	ScheduledFailed    ScheduledStatus = "failed"
)

// ScheduledMessage is a message the server will send at ScheduledAt.
type ScheduledMessage struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	MessageType    MessageType     `json:"message_type"`
	Content        string          `json:"content"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
	Status         ScheduledStatus `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Notification is a server notification; Type "mention" marks @-mentions.
type Notification struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Title          string    `json:"title,omitempty"`
	Body           string    `json:"body,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	SenderID       string    `json:"sender_id,omitempty"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// NotificationMention is the Notification.Type of an @-mention.
const NotificationMention = "mention"

// Page is one page of a cursor-paginated listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}
