package rest

import (
	"context"
	"net/http"

	"github.com/matheus3301/chatsync/internal/model"
)

// CreateGroupRequest creates a group conversation.
type CreateGroupRequest struct {
	Title     string   `json:"title" validate:"required,max=100"`
	MemberIDs []string `json:"member_ids" validate:"min=1,dive,required"`
	IconURL   string   `json:"icon_url,omitempty" validate:"omitempty,url"`
}

// UpdateConversationRequest patches a conversation's metadata.
type UpdateConversationRequest struct {
	Title   *string `json:"title,omitempty" validate:"omitempty,min=1,max=100"`
	IconURL *string `json:"icon_url,omitempty" validate:"omitempty,url"`
}

// ListConversations returns one page of the caller's conversations.
func (c *Client) ListConversations(ctx context.Context, page PageRequest) (model.Page[model.Conversation], error) {
	var out model.Page[model.Conversation]
	if err := c.check(page); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodGet, "/conversations", page.query(), nil, &out)
	return settle(out, page.Limit), err
}

// GetConversation fetches one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	var out model.Conversation
	err := c.do(ctx, http.MethodGet, pathf("/conversations/%s", id), nil, nil, &out)
	return out, err
}

// CreateDirect opens (or returns the existing) direct conversation with userID.
func (c *Client) CreateDirect(ctx context.Context, userID string) (model.Conversation, error) {
	var out model.Conversation
	body := map[string]string{"user_id": userID}
	err := c.do(ctx, http.MethodPost, "/conversations/direct", nil, body, &out)
	return out, err
}

// CreateGroup creates a group conversation.
func (c *Client) CreateGroup(ctx context.Context, req CreateGroupRequest) (model.Conversation, error) {
	var out model.Conversation
	if err := c.check(req); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/conversations/group", nil, req, &out)
	return out, err
}

// UpdateConversation patches title or icon.
func (c *Client) UpdateConversation(ctx context.Context, id string, req UpdateConversationRequest) (model.Conversation, error) {
	var out model.Conversation
	if err := c.check(req); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPatch, pathf("/conversations/%s", id), nil, req, &out)
	return out, err
}

// DeleteConversation deletes (or leaves) a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, pathf("/conversations/%s", id), nil, nil, nil)
}

// SetConversationPinned pins or unpins a conversation for the caller.
func (c *Client) SetConversationPinned(ctx context.Context, id string, pinned bool) error {
	body := map[string]bool{"is_pinned": pinned}
	return c.do(ctx, http.MethodPut, pathf("/conversations/%s/pin", id), nil, body, nil)
}

// SetConversationMuted mutes or unmutes a conversation for the caller.
func (c *Client) SetConversationMuted(ctx context.Context, id string, muted bool) error {
	body := map[string]bool{"is_muted": muted}
	return c.do(ctx, http.MethodPut, pathf("/conversations/%s/mute", id), nil, body, nil)
}

// AddMembers adds users to a group conversation.
func (c *Client) AddMembers(ctx context.Context, id string, userIDs []string) error {
	req := struct {
		UserIDs []string `json:"user_ids" validate:"min=1,dive,required"`
	}{userIDs}
	if err := c.check(req); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, pathf("/conversations/%s/members", id), nil, req, nil)
}

// RemoveMember removes one user from a group conversation.
func (c *Client) RemoveMember(ctx context.Context, id, userID string) error {
	return c.do(ctx, http.MethodDelete, pathf("/conversations/%s/members/%s", id, userID), nil, nil, nil)
}

// MarkRead marks every message in the conversation as read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, pathf("/conversations/%s/read", id), nil, nil, nil)
}

// settle enforces the short-page rule: a page with fewer items than were
// asked for is the last one. A full page that carries a cursor is never the
// last one, even when has_more is missing.
func settle[T any](p model.Page[T], limit int) model.Page[T] {
	if limit > 0 && len(p.Items) < limit {
		p.HasMore = false
		p.NextCursor = ""
	}
	if limit > 0 && len(p.Items) >= limit && p.NextCursor != "" {
		p.HasMore = true
	}
	if !p.HasMore {
		p.NextCursor = ""
	}
	return p
}
