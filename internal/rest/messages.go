package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

// SendMessageRequest posts one message. ClientID is echoed back by the
// server so the optimistic placeholder can be matched.
type SendMessageRequest struct {
	ConversationID    string            `json:"-" validate:"required"`
	ClientID          string            `json:"client_id,omitempty" validate:"omitempty,uuid"`
	MessageType       model.MessageType `json:"message_type" validate:"required,oneof=text image video file sticker album"`
	Content           string            `json:"content,omitempty" validate:"required_if=MessageType text,max=10000"`
	ReplyToID         string            `json:"reply_to_id,omitempty"`
	StickerID         string            `json:"sticker_id,omitempty" validate:"required_if=MessageType sticker"`
	MediaURL          string            `json:"media_url,omitempty"`
	MediaThumbnailURL string            `json:"media_thumbnail_url,omitempty"`
	FileName          string            `json:"file_name,omitempty"`
	FileSize          int64             `json:"file_size,omitempty"`
	MimeType          string            `json:"mime_type,omitempty"`
	AlbumFiles        []model.AlbumFile `json:"album_files,omitempty"`
}

// MessageQuery selects a page of history, newest first from Before.
type MessageQuery struct {
	Before time.Time
	Limit  int `validate:"gte=0,lte=200"`
}

// MessageEdit is one entry of a message's edit history.
type MessageEdit struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
	EditedBy string    `json:"edited_by,omitempty"`
}

// ListMessages returns one page of a conversation's history.
func (c *Client) ListMessages(ctx context.Context, conversationID string, q MessageQuery) (model.Page[model.Message], error) {
	var out model.Page[model.Message]
	if err := c.check(q); err != nil {
		return out, err
	}
	query := PageRequest{Limit: q.Limit}.query()
	if !q.Before.IsZero() {
		query.Set("before", q.Before.UTC().Format(time.RFC3339Nano))
	}
	if err := c.do(ctx, http.MethodGet, pathf("/conversations/%s/messages", conversationID), query, nil, &out); err != nil {
		return out, err
	}
	for i := range out.Items {
		out.Items[i].Normalize()
	}
	model.SortMessages(out.Items)
	return settle(out, q.Limit), nil
}

// SendMessage posts a message, plain or reply depending on ReplyToID.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (model.Message, error) {
	var out model.Message
	if err := c.check(req); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, pathf("/conversations/%s/messages", req.ConversationID), nil, req, &out)
	out.Normalize()
	return out, err
}

// EditMessage replaces a message's text.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) (model.Message, error) {
	var out model.Message
	req := struct {
		Content string `json:"content" validate:"required,max=10000"`
	}{content}
	if err := c.check(req); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPatch, pathf("/messages/%s", messageID), nil, req, &out)
	out.Normalize()
	return out, err
}

// DeleteMessage soft-deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, pathf("/messages/%s", messageID), nil, nil, nil)
}

// EditHistory lists the previous versions of a message.
func (c *Client) EditHistory(ctx context.Context, messageID string) ([]MessageEdit, error) {
	var out []MessageEdit
	err := c.do(ctx, http.MethodGet, pathf("/messages/%s/history", messageID), nil, nil, &out)
	return out, err
}
