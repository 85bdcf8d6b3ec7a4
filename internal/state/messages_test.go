package state

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessageAPI struct {
	page    model.Page[model.Message]
	editErr error
	delErr  error
}

func (f *fakeMessageAPI) ListMessages(context.Context, string, rest.MessageQuery) (model.Page[model.Message], error) {
	return f.page, nil
}

func (f *fakeMessageAPI) EditMessage(_ context.Context, id, content string) (model.Message, error) {
	if f.editErr != nil {
		return model.Message{}, f.editErr
	}
	return model.Message{}, nil
}

func (f *fakeMessageAPI) DeleteMessage(context.Context, string) error { return f.delErr }

func placeholder(clientID, text string, at time.Time) model.Message {
	return model.Message{
		ClientID:       clientID,
		ConversationID: "C1",
		MessageType:    model.MessageText,
		Content:        text,
		Status:         model.StatusSending,
		CreatedAt:      at,
	}
}

func TestFailedSendLeavesSingleMessage(t *testing.T) {
	s := NewMessageStore(&fakeMessageAPI{}, 50, nil, nil)
	s.Upsert(placeholder("cid-1", "hi", time.Now()))

	msgs := s.Messages("C1")
	require.Len(t, msgs, 1)
	assert.Equal(t, model.StatusSending, msgs[0].Status)

	require.True(t, s.MarkFailed("C1", "cid-1"))
	msgs = s.Messages("C1")
	require.Len(t, msgs, 1)
	assert.Equal(t, model.StatusFailed, msgs[0].Status)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestEchoBeforeResponseDoesNotDuplicate(t *testing.T) {
	now := time.Now()
	s := NewMessageStore(&fakeMessageAPI{}, 50, nil, nil)
	s.Upsert(placeholder("cid-1", "hi", now))

	echo := model.Message{ID: "m1", ConversationID: "C1", Content: "hi", Status: model.StatusSent, CreatedAt: now.Add(time.Millisecond)}
	s.Upsert(echo)
	s.ReplacePending("C1", "cid-1", echo)

	msgs := s.Messages("C1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "cid-1", msgs[0].ClientID)
}

func TestEchoCarryingClientIDReplacesPlaceholder(t *testing.T) {
	now := time.Now()
	s := NewMessageStore(&fakeMessageAPI{}, 50, nil, nil)
	s.Upsert(placeholder("cid-1", "hi", now))

	s.Upsert(model.Message{ID: "m1", ClientID: "cid-1", ConversationID: "C1", Content: "hi", Status: model.StatusSent, CreatedAt: now})
	s.ReplacePending("C1", "cid-1", model.Message{ID: "m1", ConversationID: "C1", Content: "hi", Status: model.StatusSent, CreatedAt: now})

	msgs := s.Messages("C1")
	require.Len(t, msgs, 1)
	assert.Equal(t, model.StatusSent, msgs[0].Status)
}

func TestDuplicateDeliveryIsDeduplicated(t *testing.T) {
	s := NewMessageStore(&fakeMessageAPI{}, 50, nil, nil)
	m := model.Message{ID: "m1", ConversationID: "C1", Content: "once", CreatedAt: time.Now()}
	assert.True(t, s.Upsert(m))
	assert.False(t, s.Upsert(m))
	assert.Len(t, s.Messages("C1"), 1)
}

func TestMessagesStayOrderedByCreatedAt(t *testing.T) {
	base := time.Now()
	s := NewMessageStore(&fakeMessageAPI{}, 50, nil, nil)
	s.Upsert(model.Message{ID: "m3", ConversationID: "C1", CreatedAt: base.Add(3 * time.Second)})
	s.Upsert(model.Message{ID: "m1", ConversationID: "C1", CreatedAt: base.Add(time.Second)})
	s.Upsert(model.Message{ID: "m2a", ConversationID: "C1", CreatedAt: base.Add(2 * time.Second)})
	s.Upsert(model.Message{ID: "m2b", ConversationID: "C1", CreatedAt: base.Add(2 * time.Second)})

	var ids []string
	for _, m := range s.Messages("C1") {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2a", "m2b", "m3"}, ids)
}

func TestFetchKeepsUnsentPlaceholders(t *testing.T) {
	now := time.Now()
	api := &fakeMessageAPI{page: model.Page[model.Message]{Items: []model.Message{
		{ID: "m1", ConversationID: "C1", CreatedAt: now.Add(-time.Minute)},
	}}}
	s := NewMessageStore(api, 50, nil, nil)
	s.Upsert(placeholder("cid-1", "draft", now))
	s.MarkFailed("C1", "cid-1")

	require.NoError(t, s.Fetch(context.Background(), "C1"))
	msgs := s.Messages("C1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, model.StatusFailed, msgs[1].Status)
}

func TestEditRevertsOnFailure(t *testing.T) {
	api := &fakeMessageAPI{editErr: errOffline}
	s := NewMessageStore(api, 50, nil, nil)
	s.Upsert(model.Message{ID: "m1", ConversationID: "C1", Content: "before", CreatedAt: time.Now()})

	assert.False(t, s.Edit(context.Background(), "C1", "m1", "after"))
	m, _ := s.Get("C1", "m1")
	assert.Equal(t, "before", m.Content)
	assert.False(t, m.IsEdited)

	api.editErr = nil
	assert.True(t, s.Edit(context.Background(), "C1", "m1", "after"))
	m, _ = s.Get("C1", "m1")
	assert.Equal(t, "after", m.Content)
	assert.True(t, m.IsEdited)
}

func TestDeleteIsSoft(t *testing.T) {
	s := NewMessageStore(&fakeMessageAPI{}, 50, nil, nil)
	s.Upsert(model.Message{ID: "m1", ConversationID: "C1", Content: "secret", CreatedAt: time.Now()})

	require.True(t, s.Delete(context.Background(), "C1", "m1"))
	m, ok := s.Get("C1", "m1")
	require.True(t, ok, "deleted messages stay in the thread")
	assert.True(t, m.IsDeleted)
	assert.Empty(t, m.Content)
}

func TestAlbumMembersOrderedByPosition(t *testing.T) {
	now := time.Now()
	s := NewMessageStore(&fakeMessageAPI{}, 50, nil, nil)
	for i, pos := range []int{2, 0, 1} {
		s.Upsert(model.Message{
			ID:             string(rune('a' + i)),
			ConversationID: "C1",
			AlbumID:        "al",
			AlbumPosition:  pos,
			CreatedAt:      now,
		})
	}
	var positions []int
	for _, m := range s.AlbumMembers("C1", "al") {
		positions = append(positions, m.AlbumPosition)
	}
	assert.Equal(t, []int{0, 1, 2}, positions)
}
