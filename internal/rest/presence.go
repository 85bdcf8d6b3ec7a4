package rest

import (
	"context"
	"net/http"

	"github.com/matheus3301/chatsync/internal/model"
)

// UserStatuses fetches the current presence of several users at once.
// It is the polling path used while the event stream is down.
func (c *Client) UserStatuses(ctx context.Context, userIDs []string) ([]model.UserPresence, error) {
	req := struct {
		UserIDs []string `json:"user_ids" validate:"min=1,max=500,dive,required"`
	}{userIDs}
	if err := c.check(req); err != nil {
		return nil, err
	}
	var out []model.UserPresence
	err := c.do(ctx, http.MethodPost, "/users/status", nil, req, &out)
	return out, err
}
