// Package identity extracts the locally authenticated user from the bearer
// token. The token is verified by the server; the client only needs its
// subject to recognise its own events.
package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// ErrNoSubject is returned when the token carries no user id.
var ErrNoSubject = errors.New("token has no user id")

type claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Self is the authenticated user as described by the token.
type Self struct {
	UserID   string
	Username string
}

// FromToken parses token without verifying its signature and returns the
// user it was issued to. user_id wins over sub.
func FromToken(token string) (Self, error) {
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return Self{}, fmt.Errorf("parse token: %w", err)
	}
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	if id == "" {
		return Self{}, ErrNoSubject
	}
	return Self{UserID: id, Username: c.Username}, nil
}
