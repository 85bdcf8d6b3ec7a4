package state

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinAPI struct {
	err   error
	pins  []model.PinnedMessage
	calls int
}

func (f *fakePinAPI) ListPinned(context.Context, string) ([]model.PinnedMessage, error) {
	return f.pins, f.err
}

func (f *fakePinAPI) Pin(_ context.Context, conv, msg string, pt model.PinType) (model.PinnedMessage, error) {
	f.calls++
	if f.err != nil {
		return model.PinnedMessage{}, f.err
	}
	return model.PinnedMessage{ConversationID: conv, MessageID: msg, PinType: pt, PinnedAt: time.Now(), PinnedBy: "me"}, nil
}

func (f *fakePinAPI) Unpin(context.Context, string, string, model.PinType) error {
	f.calls++
	return f.err
}

func pin(msg string, pt model.PinType) model.PinnedMessage {
	return model.PinnedMessage{ConversationID: "C1", MessageID: msg, PinType: pt, PinnedAt: time.Now()}
}

func TestPinIsIdempotent(t *testing.T) {
	s := NewPinStore(&fakePinAPI{}, nil, nil, nil)
	assert.True(t, s.Apply(pin("m1", model.PinPublic)))
	assert.False(t, s.Apply(pin("m1", model.PinPublic)))
	assert.Len(t, s.Pinned("C1"), 1)
}

func TestPinResponseAndEchoYieldOneEntry(t *testing.T) {
	s := NewPinStore(&fakePinAPI{}, nil, nil, nil)
	require.True(t, s.Pin(context.Background(), "C1", "m1", model.PinPersonal))
	s.Apply(pin("m1", model.PinPersonal))
	assert.Len(t, s.Pinned("C1"), 1)
}

func TestSameMessageUnderBothPinTypes(t *testing.T) {
	s := NewPinStore(&fakePinAPI{}, nil, nil, nil)
	s.Apply(pin("m1", model.PinPublic))
	s.Apply(pin("m1", model.PinPersonal))
	require.Len(t, s.Pinned("C1"), 2)

	assert.True(t, s.Remove("C1", "m1", model.PinPersonal))
	assert.True(t, s.IsPinned("C1", "m1", model.PinPublic), "unpinning personal must keep the public pin")
	assert.False(t, s.Remove("C1", "m1", model.PinPersonal))

	s.Apply(pin("m1", model.PinPersonal))
	assert.True(t, s.Remove("C1", "m1", model.PinPublic))
	assert.True(t, s.IsPinned("C1", "m1", model.PinPersonal), "unpinning public must keep the personal pin")
}

func TestPublicPinSyncsMessageFlag(t *testing.T) {
	msgs := NewMessageStore(&fakeMessageAPI{}, 50, nil, nil)
	msgs.Upsert(model.Message{ID: "m1", ConversationID: "C1", CreatedAt: time.Now()})
	s := NewPinStore(&fakePinAPI{}, msgs, nil, nil)

	s.Apply(pin("m1", model.PinPersonal))
	m, _ := msgs.Get("C1", "m1")
	assert.False(t, m.IsPinned, "personal pins do not mark the message")

	s.Apply(pin("m1", model.PinPublic))
	m, _ = msgs.Get("C1", "m1")
	assert.True(t, m.IsPinned)

	s.Remove("C1", "m1", model.PinPublic)
	m, _ = msgs.Get("C1", "m1")
	assert.False(t, m.IsPinned)
}

func TestPinRevertsOnFailure(t *testing.T) {
	api := &fakePinAPI{err: errOffline}
	s := NewPinStore(api, nil, nil, nil)

	assert.False(t, s.Pin(context.Background(), "C1", "m1", model.PinPublic))
	assert.Empty(t, s.Pinned("C1"))

	api.err = nil
	s.Apply(pin("m2", model.PinPublic))
	api.err = errOffline
	assert.False(t, s.Unpin(context.Background(), "C1", "m2", model.PinPublic))
	assert.True(t, s.IsPinned("C1", "m2", model.PinPublic))
}

func TestRepinFailureKeepsExistingPin(t *testing.T) {
	api := &fakePinAPI{err: errOffline}
	s := NewPinStore(api, nil, nil, nil)
	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	existing := pin("m1", model.PinPublic)
	existing.PinnedAt, existing.PinnedBy = at, "u2"
	require.True(t, s.Apply(existing))

	assert.False(t, s.Pin(context.Background(), "C1", "m1", model.PinPublic))
	require.Len(t, s.Pinned("C1"), 1)
	got := s.Pinned("C1")[0]
	assert.Equal(t, at, got.PinnedAt)
	assert.Equal(t, "u2", got.PinnedBy)
	assert.Equal(t, 1, api.calls)
}

func TestPinFetchReplaces(t *testing.T) {
	api := &fakePinAPI{pins: []model.PinnedMessage{pin("m1", model.PinPublic), pin("m2", model.PinPersonal)}}
	s := NewPinStore(api, nil, nil, nil)
	s.Apply(pin("stale", model.PinPublic))

	require.NoError(t, s.Fetch(context.Background(), "C1"))
	assert.Len(t, s.Pinned("C1"), 2)
	assert.False(t, s.IsPinned("C1", "stale", model.PinPublic))
}
