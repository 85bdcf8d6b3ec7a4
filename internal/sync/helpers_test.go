package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/events"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"github.com/matheus3301/chatsync/internal/ws"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

var errOffline = errors.New("network unreachable")

type sentFrame struct {
	name    events.Name
	payload any
}

// fakeStream delivers frames through a real, unconnected ws.Client and
// records outbound sends instead of writing them.
type fakeStream struct {
	*ws.Client

	mu   gosync.Mutex
	sent []sentFrame
}

func newFakeStream() *fakeStream {
	return &fakeStream{Client: ws.New(ws.Options{URL: "ws://unused"}, nil, nil)}
}

func (f *fakeStream) Send(_ context.Context, name events.Name, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{name: name, payload: payload})
	return nil
}

func (f *fakeStream) push(t *testing.T, frame string) {
	t.Helper()
	evt, err := events.Parse([]byte(frame))
	require.NoError(t, err)
	f.Dispatch(evt)
}

func (f *fakeStream) frames(name events.Name) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, s := range f.sent {
		if s.name == name {
			out = append(out, s.payload)
		}
	}
	return out
}

type fakeConversationAPI struct {
	list    []model.Conversation
	listErr error
	gets    atomic.Int32
}

func (f *fakeConversationAPI) ListConversations(context.Context, rest.PageRequest) (model.Page[model.Conversation], error) {
	return model.Page[model.Conversation]{Items: f.list}, f.listErr
}

func (f *fakeConversationAPI) GetConversation(_ context.Context, id string) (model.Conversation, error) {
	f.gets.Add(1)
	return model.Conversation{ID: id, Title: "fetched"}, nil
}

func (f *fakeConversationAPI) CreateDirect(context.Context, string) (model.Conversation, error) {
	return model.Conversation{}, errOffline
}

func (f *fakeConversationAPI) CreateGroup(context.Context, rest.CreateGroupRequest) (model.Conversation, error) {
	return model.Conversation{}, errOffline
}

func (f *fakeConversationAPI) DeleteConversation(context.Context, string) error { return errOffline }
func (f *fakeConversationAPI) SetConversationPinned(context.Context, string, bool) error { return errOffline }
func (f *fakeConversationAPI) SetConversationMuted(context.Context, string, bool) error { return errOffline }
func (f *fakeConversationAPI) AddMembers(context.Context, string, []string) error { return errOffline }
func (f *fakeConversationAPI) RemoveMember(context.Context, string, string) error { return errOffline }
func (f *fakeConversationAPI) MarkRead(context.Context, string) error { return errOffline }

type fakePresenceAPI struct {
	calls atomic.Int32
}

func (f *fakePresenceAPI) UserStatuses(_ context.Context, ids []string) ([]model.UserPresence, error) {
	f.calls.Add(1)
	out := make([]model.UserPresence, len(ids))
	for i, id := range ids {
		out[i] = model.UserPresence{UserID: id, Status: model.PresenceAway}
	}
	return out, nil
}

type fakeFriendAPI struct{ err error }

func (f *fakeFriendAPI) ListFriends(context.Context) ([]model.User, error) {
	return []model.User{{ID: "u2"}}, f.err
}

func (f *fakeFriendAPI) ListFriendRequests(context.Context) ([]model.FriendRequest, error) {
	return nil, f.err
}

func (f *fakeFriendAPI) SendFriendRequest(context.Context, string) (model.FriendRequest, error) {
	return model.FriendRequest{}, errOffline
}

func (f *fakeFriendAPI) AcceptFriendRequest(context.Context, string) (model.FriendRequest, error) {
	return model.FriendRequest{}, errOffline
}

func (f *fakeFriendAPI) RejectFriendRequest(context.Context, string) error { return errOffline }
func (f *fakeFriendAPI) RemoveFriend(context.Context, string) error { return errOffline }
func (f *fakeFriendAPI) ListBlocked(context.Context) ([]model.User, error) { return nil, f.err }
func (f *fakeFriendAPI) Block(context.Context, string) error { return errOffline }
func (f *fakeFriendAPI) Unblock(context.Context, string) error { return errOffline }

type fakeNoteAPI struct{}

func (fakeNoteAPI) ListNotes(context.Context, rest.NoteQuery) (model.Page[model.Note], error) {
	return model.Page[model.Note]{Items: []model.Note{{ID: "n1", Title: "first"}}}, nil
}

func (fakeNoteAPI) CreateNote(context.Context, rest.NoteInput) (model.Note, error) {
	return model.Note{}, errOffline
}

func (fakeNoteAPI) UpdateNote(context.Context, string, rest.NoteInput) (model.Note, error) {
	return model.Note{}, errOffline
}

func (fakeNoteAPI) DeleteNote(context.Context, string) error { return errOffline }
func (fakeNoteAPI) SetNotePinned(context.Context, string, bool) error { return errOffline }
func (fakeNoteAPI) ListTags(context.Context) ([]string, error) { return []string{"work"}, nil }
