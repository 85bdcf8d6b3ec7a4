package model

import (
	"slices"
	"strings"
	"time"
)

// NoteVisibility controls who can read a note.
type NoteVisibility string

const (
	NotePrivate NoteVisibility = "private"
	NoteShared  NoteVisibility = "shared"
)

// Note is a user note, optionally shared into a conversation.
type Note struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Tags           []string       `json:"tags"`
	IsPinned       bool           `json:"is_pinned"`
	Visibility     NoteVisibility `json:"visibility"`
	ConversationID string         `json:"conversation_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// HasTag reports whether the note carries tag, ignoring case.
func (n *Note) HasTag(tag string) bool {
	return slices.ContainsFunc(n.Tags, func(t string) bool { return strings.EqualFold(t, tag) })
}

// ActivityKind classifies activity log entries.
type ActivityKind string

const (
	ActivityMention         ActivityKind = "mention"
	ActivityFriendRequest   ActivityKind = "friend_request"
	ActivityFriendAccepted  ActivityKind = "friend_accepted"
	ActivityMemberAdded     ActivityKind = "member_added"
	ActivityMemberRemoved   ActivityKind = "member_removed"
	ActivityConversationNew ActivityKind = "conversation_created"
	ActivityBlocked         ActivityKind = "blocked"
	ActivityUnblocked       ActivityKind = "unblocked"
)

// ActivityEntry is one line of the local activity feed.
type ActivityEntry struct {
	ID             string       `json:"id"`
	Kind           ActivityKind `json:"kind"`
	ConversationID string       `json:"conversation_id,omitempty"`
	UserID         string       `json:"user_id,omitempty"`
	Summary        string       `json:"summary"`
	At             time.Time    `json:"at"`
	Read           bool         `json:"read"`
}
