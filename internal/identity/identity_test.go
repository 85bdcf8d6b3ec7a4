package identity

import (
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, c jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return s
}

func TestFromToken(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"user_id claim", jwt.MapClaims{"user_id": "u1", "sub": "ignored"}, "u1"},
		{"sub fallback", jwt.MapClaims{"sub": "u2"}, "u2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			self, err := FromToken(sign(t, tt.claims))
			require.NoError(t, err)
			assert.Equal(t, tt.want, self.UserID)
		})
	}
}

func TestFromTokenErrors(t *testing.T) {
	_, err := FromToken("not-a-jwt")
	assert.Error(t, err)

	_, err = FromToken(sign(t, jwt.MapClaims{"username": "anon"}))
	assert.ErrorIs(t, err, ErrNoSubject)
}
