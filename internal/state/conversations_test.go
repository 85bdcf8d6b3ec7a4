package state

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOffline = errors.New("network unreachable")

type fakeConversationAPI struct {
	page    model.Page[model.Conversation]
	listErr error
	setErr  error
	block   chan struct{}
	calls   atomic.Int32
}

func (f *fakeConversationAPI) ListConversations(context.Context, rest.PageRequest) (model.Page[model.Conversation], error) {
	return f.page, f.listErr
}

func (f *fakeConversationAPI) GetConversation(_ context.Context, id string) (model.Conversation, error) {
	return model.Conversation{ID: id}, nil
}

func (f *fakeConversationAPI) CreateDirect(_ context.Context, userID string) (model.Conversation, error) {
	return model.Conversation{ID: "dm-" + userID, Type: model.ConversationDirect}, nil
}

func (f *fakeConversationAPI) CreateGroup(_ context.Context, req rest.CreateGroupRequest) (model.Conversation, error) {
	return model.Conversation{ID: "g1", Title: req.Title, Type: model.ConversationGroup}, nil
}

func (f *fakeConversationAPI) DeleteConversation(context.Context, string) error {
	f.calls.Add(1)
	return f.setErr
}

func (f *fakeConversationAPI) SetConversationPinned(context.Context, string, bool) error {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.setErr
}

func (f *fakeConversationAPI) SetConversationMuted(context.Context, string, bool) error {
	f.calls.Add(1)
	return f.setErr
}

func (f *fakeConversationAPI) AddMembers(context.Context, string, []string) error { return f.setErr }

func (f *fakeConversationAPI) RemoveMember(context.Context, string, string) error { return f.setErr }

func (f *fakeConversationAPI) MarkRead(context.Context, string) error {
	f.calls.Add(1)
	return f.setErr
}

func TestConversationListPinnedFirst(t *testing.T) {
	now := time.Now()
	s := NewConversationStore(&fakeConversationAPI{}, 20, nil, nil)
	s.Upsert(model.Conversation{ID: "A", IsPinned: true, LastMessageAt: now.Add(-time.Hour)})
	s.Upsert(model.Conversation{ID: "B", LastMessageAt: now})
	s.Upsert(model.Conversation{ID: "C", IsPinned: true, LastMessageAt: now.Add(-time.Minute)})
	s.Upsert(model.Conversation{ID: "D", LastMessageAt: now.Add(-2 * time.Hour)})

	var ids []string
	for _, c := range s.List() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"C", "A", "B", "D"}, ids)
}

func TestConversationUpsertDedupes(t *testing.T) {
	s := NewConversationStore(&fakeConversationAPI{}, 20, nil, nil)
	s.Upsert(model.Conversation{ID: "c1", Title: "old"})
	s.Upsert(model.Conversation{ID: "c1", Title: "new"})

	require.Len(t, s.List(), 1)
	c, _ := s.Get("c1")
	assert.Equal(t, "new", c.Title)
}

func TestConversationFetchFailureKeepsData(t *testing.T) {
	api := &fakeConversationAPI{page: model.Page[model.Conversation]{Items: []model.Conversation{{ID: "c1"}, {ID: "c2"}}}}
	s := NewConversationStore(api, 20, nil, nil)
	ctx := context.Background()

	require.NoError(t, s.Fetch(ctx))
	assert.Empty(t, s.LastError())

	api.listErr = errOffline
	assert.ErrorIs(t, s.Fetch(ctx), errOffline)
	assert.Len(t, s.List(), 2, "a failed fetch must not drop cached data")
	assert.Contains(t, s.LastError(), "network unreachable")
	assert.False(t, s.IsLoading())
}

func TestConversationFetchMoreStopsOnLastPage(t *testing.T) {
	api := &fakeConversationAPI{page: model.Page[model.Conversation]{Items: []model.Conversation{{ID: "c1"}}}}
	s := NewConversationStore(api, 20, nil, nil)
	require.NoError(t, s.Fetch(context.Background()))
	assert.False(t, s.HasMore())

	api.page = model.Page[model.Conversation]{Items: []model.Conversation{{ID: "c9"}}}
	require.NoError(t, s.FetchMore(context.Background()))
	_, ok := s.Get("c9")
	assert.False(t, ok, "no request once the last page was seen")
}

func TestConversationTogglePinRevertsOnFailure(t *testing.T) {
	api := &fakeConversationAPI{setErr: errOffline}
	s := NewConversationStore(api, 20, nil, nil)
	s.Upsert(model.Conversation{ID: "c1"})

	assert.False(t, s.TogglePin(context.Background(), "c1"))
	c, _ := s.Get("c1")
	assert.False(t, c.IsPinned)
	assert.NotEmpty(t, s.LastError())

	api.setErr = nil
	assert.True(t, s.ToggleMute(context.Background(), "c1"))
	c, _ = s.Get("c1")
	assert.True(t, c.IsMuted)
}

func TestConversationToggleRejectsDoubleSubmit(t *testing.T) {
	api := &fakeConversationAPI{block: make(chan struct{})}
	s := NewConversationStore(api, 20, nil, nil)
	s.Upsert(model.Conversation{ID: "c1"})

	done := make(chan bool)
	go func() { done <- s.TogglePin(context.Background(), "c1") }()
	require.Eventually(t, func() bool { return api.calls.Load() == 1 }, time.Second, time.Millisecond)

	assert.False(t, s.TogglePin(context.Background(), "c1"))
	assert.Contains(t, s.LastError(), ErrInFlight.Error())

	close(api.block)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), api.calls.Load())
	c, _ := s.Get("c1")
	assert.True(t, c.IsPinned)
}

func TestConversationApplyMessage(t *testing.T) {
	now := time.Now()
	s := NewConversationStore(&fakeConversationAPI{}, 20, nil, nil)
	s.Upsert(model.Conversation{ID: "c1"})

	s.ApplyMessage(model.Message{ConversationID: "c1", SenderID: "u2", Content: "hey", CreatedAt: now}, "me", false)
	s.ApplyMessage(model.Message{ConversationID: "c1", SenderID: "me", Content: "yo", CreatedAt: now.Add(time.Second)}, "me", false)
	s.ApplyMessage(model.Message{ConversationID: "c1", SenderID: "u2", MessageType: model.MessageImage, CreatedAt: now.Add(2 * time.Second)}, "me", true)

	c, _ := s.Get("c1")
	assert.Equal(t, 1, c.UnreadCount)
	assert.Equal(t, "[image]", c.LastMessageText)
	assert.Equal(t, 1, s.UnreadTotal())

	assert.True(t, s.MarkRead(context.Background(), "c1"))
	c, _ = s.Get("c1")
	assert.Zero(t, c.UnreadCount)
}

func TestConversationDeleteRestoresOnFailure(t *testing.T) {
	api := &fakeConversationAPI{setErr: errOffline}
	s := NewConversationStore(api, 20, nil, nil)
	s.Upsert(model.Conversation{ID: "c1", Title: "keep"})

	assert.False(t, s.Delete(context.Background(), "c1"))
	c, ok := s.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "keep", c.Title)
}
