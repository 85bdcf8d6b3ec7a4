package model

import (
	"cmp"
	"slices"
	"time"
)

// pinnedFirst orders pinned before unpinned, then by recency descending,
// then by id so the order is total.
func pinnedFirst(aPinned, bPinned bool, aAt, bAt time.Time, aID, bID string) int {
	if aPinned != bPinned {
		if aPinned {
			return -1
		}
		return 1
	}
	if c := bAt.Compare(aAt); c != 0 {
		return c
	}
	return cmp.Compare(aID, bID)
}

// SortConversations sorts pinned conversations first, each group by
// last_message_at descending.
func SortConversations(convs []Conversation) {
	slices.SortFunc(convs, func(a, b Conversation) int {
		return pinnedFirst(a.IsPinned, b.IsPinned, a.LastMessageAt, b.LastMessageAt, a.ID, b.ID)
	})
}

// SortNotes sorts pinned notes first, each group by updated_at descending.
func SortNotes(notes []Note) {
	slices.SortFunc(notes, func(a, b Note) int {
		return pinnedFirst(a.IsPinned, b.IsPinned, a.UpdatedAt, b.UpdatedAt, a.ID, b.ID)
	})
}
