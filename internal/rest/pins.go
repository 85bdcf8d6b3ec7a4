package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/matheus3301/chatsync/internal/model"
)

// ListPinned returns every pin of a conversation visible to the caller.
func (c *Client) ListPinned(ctx context.Context, conversationID string) ([]model.PinnedMessage, error) {
	var out []model.PinnedMessage
	if err := c.do(ctx, http.MethodGet, pathf("/conversations/%s/pins", conversationID), nil, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ConversationID == "" {
			out[i].ConversationID = conversationID
		}
	}
	return out, nil
}

// Pin pins a message under pinType.
func (c *Client) Pin(ctx context.Context, conversationID, messageID string, pinType model.PinType) (model.PinnedMessage, error) {
	var out model.PinnedMessage
	if !pinType.Valid() {
		return out, fmt.Errorf("%w: pin type %q", ErrValidation, pinType)
	}
	body := map[string]string{"pin_type": string(pinType)}
	if err := c.do(ctx, http.MethodPost, pathf("/conversations/%s/messages/%s/pin", conversationID, messageID), nil, body, &out); err != nil {
		return out, err
	}
	if out.MessageID == "" {
		out.MessageID = messageID
	}
	if out.ConversationID == "" {
		out.ConversationID = conversationID
	}
	if out.PinType == "" {
		out.PinType = pinType
	}
	return out, nil
}

// Unpin removes the pin of exactly pinType.
func (c *Client) Unpin(ctx context.Context, conversationID, messageID string, pinType model.PinType) error {
	if !pinType.Valid() {
		return fmt.Errorf("%w: pin type %q", ErrValidation, pinType)
	}
	q := url.Values{"pin_type": {string(pinType)}}
	return c.do(ctx, http.MethodDelete, pathf("/conversations/%s/messages/%s/pin", conversationID, messageID), q, nil, nil)
}
