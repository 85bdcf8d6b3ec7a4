package events

import (
	"errors"
	"testing"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		wire string
		want Name
	}{
		{"message.receive", MessageReceive},
		{"message:message.receive", MessageReceive},
		{"message:user_typing", Typing},
		{"user_typing", Typing},
		{"message.typing", Typing},
		{"user.online", UserStatus},
		{"user.offline", UserStatus},
		{"user.status", UserStatus},
		{"user_status", UserStatus},
		{"conversation.updated", ConversationUpdate},
		{"conversation.update", ConversationUpdate},
		{"something.else", Name("something.else")},
	}
	for _, tt := range tests {
		t.Run(tt.wire, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.wire))
		})
	}
}

func TestParseMessageReceive(t *testing.T) {
	frame := []byte(`{"type":"message.receive","data":{"id":"m1","conversation_id":"c1","sender_id":"u1","message_type":"text","content":"hi","created_at":"2026-01-01T10:00:00Z"}}`)
	evt, err := Parse(frame)
	require.NoError(t, err)

	me, ok := evt.(*MessageEvent)
	require.True(t, ok, "got %T", evt)
	assert.Equal(t, MessageReceive, me.EventName())
	assert.Equal(t, "hi", me.Message.Content)
	assert.Equal(t, model.StatusSent, me.Message.Status)
}

func TestParseAlbumOrdersFiles(t *testing.T) {
	frame := []byte(`{"type":"message.receive","data":{"id":"m1","conversation_id":"c1","message_type":"album","album_files":[{"file_url":"c","position":2},{"file_url":"a","position":0},{"file_url":"b","position":1}]}}`)
	evt, err := Parse(frame)
	require.NoError(t, err)

	files := evt.(*MessageEvent).Message.AlbumFiles
	require.Len(t, files, 3)
	for i, f := range files {
		assert.Equal(t, i, f.Position)
	}
}

func TestParseLegacyPresence(t *testing.T) {
	evt, err := Parse([]byte(`{"type":"user.online","data":{"user_id":"u2"}}`))
	require.NoError(t, err)

	us, ok := evt.(*UserStatusEvent)
	require.True(t, ok, "got %T", evt)
	assert.Equal(t, model.PresenceOnline, us.Status)

	evt, err = Parse([]byte(`{"type":"user_status","data":{"user_id":"u2","status":"away","last_seen":"2026-01-01T10:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, model.PresenceAway, evt.(*UserStatusEvent).Status)
}

func TestParsePrefixedTyping(t *testing.T) {
	evt, err := Parse([]byte(`{"type":"message:user_typing","data":{"conversation_id":"c1","user_id":"u2","username":"bob","is_typing":true}}`))
	require.NoError(t, err)

	te, ok := evt.(*TypingEvent)
	require.True(t, ok, "got %T", evt)
	assert.True(t, te.IsTyping)
	assert.Equal(t, "bob", te.Name())
}

func TestParsePinDefaultsToPublic(t *testing.T) {
	evt, err := Parse([]byte(`{"type":"message.pinned","data":{"conversation_id":"c1","message_id":"m1"}}`))
	require.NoError(t, err)
	assert.Equal(t, model.PinPublic, evt.(*PinEvent).PinType)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{"type":`},
		{"no type", `{"data":{}}`},
		{"numeric type", `{"type":5,"data":{}}`},
		{"typing without user", `{"type":"user_typing","data":{"conversation_id":"c1"}}`},
		{"bad pin type", `{"type":"message.pinned","data":{"conversation_id":"c1","message_id":"m1","pin_type":"global"}}`},
		{"bad status", `{"type":"user_status","data":{"user_id":"u1","status":"sleeping"}}`},
		{"null data", `{"type":"note.create","data":null}`},
		{"wrong shape", `{"type":"message.receive","data":"hello"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.frame))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "err = %v", err)
		})
	}
}

func TestParseUnknown(t *testing.T) {
	evt, err := Parse([]byte(`{"type":"call.started","data":{"x":1}}`))
	require.NoError(t, err)

	u, ok := evt.(*Unknown)
	require.True(t, ok, "got %T", evt)
	assert.Equal(t, Name("call.started"), u.EventName())
}

func TestParseDeleteAcceptsID(t *testing.T) {
	evt, err := Parse([]byte(`{"type":"message.delete","data":{"id":"m9","conversation_id":"c1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "m9", evt.(*MessageDeleted).MessageID)
}
