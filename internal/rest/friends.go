package rest

import (
	"context"
	"net/http"

	"github.com/matheus3301/chatsync/internal/model"
)

// ListFriends returns the caller's friends.
func (c *Client) ListFriends(ctx context.Context) ([]model.User, error) {
	var out []model.User
	err := c.do(ctx, http.MethodGet, "/friends", nil, nil, &out)
	return out, err
}

// ListFriendRequests returns pending requests sent to or by the caller.
func (c *Client) ListFriendRequests(ctx context.Context) ([]model.FriendRequest, error) {
	var out []model.FriendRequest
	err := c.do(ctx, http.MethodGet, "/friends/requests", nil, nil, &out)
	return out, err
}

// SendFriendRequest asks userID to become a friend.
func (c *Client) SendFriendRequest(ctx context.Context, userID string) (model.FriendRequest, error) {
	var out model.FriendRequest
	body := map[string]string{"user_id": userID}
	err := c.do(ctx, http.MethodPost, "/friends/requests", nil, body, &out)
	return out, err
}

// AcceptFriendRequest accepts a pending request.
func (c *Client) AcceptFriendRequest(ctx context.Context, requestID string) (model.FriendRequest, error) {
	var out model.FriendRequest
	err := c.do(ctx, http.MethodPost, pathf("/friends/requests/%s/accept", requestID), nil, nil, &out)
	return out, err
}

// RejectFriendRequest rejects a pending request.
func (c *Client) RejectFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, pathf("/friends/requests/%s/reject", requestID), nil, nil, nil)
}

// RemoveFriend ends a friendship.
func (c *Client) RemoveFriend(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, pathf("/friends/%s", userID), nil, nil, nil)
}

// ListBlocked returns the users the caller has blocked.
func (c *Client) ListBlocked(ctx context.Context) ([]model.User, error) {
	var out []model.User
	err := c.do(ctx, http.MethodGet, "/blocks", nil, nil, &out)
	return out, err
}

// Block blocks userID.
func (c *Client) Block(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, pathf("/blocks/%s", userID), nil, nil, nil)
}

// Unblock lifts a block on userID.
func (c *Client) Unblock(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, pathf("/blocks/%s", userID), nil, nil, nil)
}
