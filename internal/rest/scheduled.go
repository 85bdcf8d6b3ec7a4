package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
)

// ScheduleRequest creates or reschedules a message.
type ScheduleRequest struct {
	ConversationID string            `json:"conversation_id" validate:"required"`
	MessageType    model.MessageType `json:"message_type" validate:"omitempty,oneof=text sticker"`
	Content        string            `json:"content" validate:"required,max=10000"`
	ScheduledAt    time.Time         `json:"scheduled_at" validate:"required"`
}

// ListScheduled returns pending scheduled messages of a conversation.
func (c *Client) ListScheduled(ctx context.Context, conversationID string) ([]model.ScheduledMessage, error) {
	var out []model.ScheduledMessage
	err := c.do(ctx, http.MethodGet, pathf("/conversations/%s/scheduled", conversationID), nil, nil, &out)
	return out, err
}

// CreateScheduled schedules a message.
func (c *Client) CreateScheduled(ctx context.Context, req ScheduleRequest) (model.ScheduledMessage, error) {
	var out model.ScheduledMessage
	if err := c.check(req); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/scheduled-messages", nil, req, &out)
	return out, err
}

// UpdateScheduled changes a pending scheduled message.
func (c *Client) UpdateScheduled(ctx context.Context, id string, req ScheduleRequest) (model.ScheduledMessage, error) {
	var out model.ScheduledMessage
	if err := c.check(req); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPut, pathf("/scheduled-messages/%s", id), nil, req, &out)
	return out, err
}

// CancelScheduled cancels a pending scheduled message.
func (c *Client) CancelScheduled(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, pathf("/scheduled-messages/%s", id), nil, nil, nil)
}
