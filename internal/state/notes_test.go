package state

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNoteAPI struct {
	mu      sync.Mutex
	creates []rest.NoteInput
	updates map[string]rest.NoteInput
	err     error
	seq     int
}

func newFakeNoteAPI() *fakeNoteAPI {
	return &fakeNoteAPI{updates: make(map[string]rest.NoteInput)}
}

func (f *fakeNoteAPI) ListNotes(context.Context, rest.NoteQuery) (model.Page[model.Note], error) {
	return model.Page[model.Note]{}, f.err
}

func (f *fakeNoteAPI) CreateNote(_ context.Context, in rest.NoteInput) (model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Note{}, f.err
	}
	f.creates = append(f.creates, in)
	f.seq++
	return model.Note{ID: fmt.Sprintf("n%d", f.seq), Title: in.Title, Content: in.Content, Tags: in.Tags, UpdatedAt: time.Now()}, nil
}

func (f *fakeNoteAPI) UpdateNote(_ context.Context, id string, in rest.NoteInput) (model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Note{}, f.err
	}
	f.updates[id] = in
	return model.Note{ID: id, Title: in.Title, Content: in.Content, Tags: in.Tags, UpdatedAt: time.Now()}, nil
}

func (f *fakeNoteAPI) DeleteNote(context.Context, string) error { return f.err }

func (f *fakeNoteAPI) SetNotePinned(context.Context, string, bool) error { return f.err }

func (f *fakeNoteAPI) ListTags(context.Context) ([]string, error) {
	return []string{"work", "home", "work"}, f.err
}

func (f *fakeNoteAPI) counts() (creates, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates), len(f.updates)
}

func TestNotesPinnedFirstThenRecent(t *testing.T) {
	now := time.Now()
	s := NewNoteStore(newFakeNoteAPI(), 20, nil, nil)
	s.Upsert(model.Note{ID: "old-pinned", IsPinned: true, UpdatedAt: now.Add(-time.Hour)})
	s.Upsert(model.Note{ID: "new", UpdatedAt: now})
	s.Upsert(model.Note{ID: "older", UpdatedAt: now.Add(-time.Minute)})

	var ids []string
	for _, n := range s.Notes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"old-pinned", "new", "older"}, ids)
}

func TestNoteUpsertIgnoresOlderCopy(t *testing.T) {
	now := time.Now()
	s := NewNoteStore(newFakeNoteAPI(), 20, nil, nil)
	s.Upsert(model.Note{ID: "n1", Title: "new", UpdatedAt: now})
	assert.False(t, s.Upsert(model.Note{ID: "n1", Title: "stale", UpdatedAt: now.Add(-time.Second)}))
	n, _ := s.Get("n1")
	assert.Equal(t, "new", n.Title)
}

func TestNoteDeleteAndPinRevert(t *testing.T) {
	api := newFakeNoteAPI()
	s := NewNoteStore(api, 20, nil, nil)
	s.Upsert(model.Note{ID: "n1", UpdatedAt: time.Now()})
	api.err = errOffline

	assert.False(t, s.Delete(context.Background(), "n1"))
	_, ok := s.Get("n1")
	assert.True(t, ok)

	assert.False(t, s.TogglePin(context.Background(), "n1"))
	n, _ := s.Get("n1")
	assert.False(t, n.IsPinned)
}

func TestFetchTagsDeduplicates(t *testing.T) {
	s := NewNoteStore(newFakeNoteAPI(), 20, nil, nil)
	require.NoError(t, s.FetchTags(context.Background()))
	assert.Equal(t, []string{"home", "work"}, s.Tags())
}

func TestEditorAutosaveCreatesThenUpdates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	api := newFakeNoteAPI()
	notes := NewNoteStore(api, 20, nil, nil)
	e := NewNoteEditor(notes, clock, 2*time.Second, nil)
	defer e.Close()

	e.SetTitle("Groceries")
	e.SetContent("milk")
	assert.True(t, e.Draft().Dirty)

	clock.Advance(time.Second)
	e.SetContent("milk, eggs")
	clock.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	c, _ := api.counts()
	assert.Zero(t, c, "save must wait for edits to go quiet")

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { c, _ := api.counts(); return c == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !e.Draft().Dirty }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "n1", e.Draft().NoteID)

	e.SetContent("milk, eggs, bread")
	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { _, u := api.counts(); return u == 1 }, time.Second, 5*time.Millisecond)
	c, _ = api.counts()
	assert.Equal(t, 1, c, "an existing note is updated, not created again")
}

func TestEditorRejectsBadTags(t *testing.T) {
	api := newFakeNoteAPI()
	e := NewNoteEditor(NewNoteStore(api, 20, nil, nil), clockwork.NewFakeClock(), time.Second, nil)
	defer e.Close()

	require.NoError(t, e.AddTag("work"))
	assert.ErrorIs(t, e.AddTag("  "), rest.ErrValidation)
	assert.ErrorIs(t, e.AddTag("WORK"), rest.ErrValidation)
	assert.Equal(t, []string{"work"}, e.Draft().Tags)

	e.RemoveTag("Work")
	assert.Empty(t, e.Draft().Tags)
}

func TestEditorSaveNowAndClean(t *testing.T) {
	api := newFakeNoteAPI()
	e := NewNoteEditor(NewNoteStore(api, 20, nil, nil), clockwork.NewFakeClock(), time.Hour, nil)
	defer e.Close()

	require.NoError(t, e.Save(context.Background()))
	c, _ := api.counts()
	assert.Zero(t, c, "a clean draft is not sent")

	e.SetTitle("x")
	require.NoError(t, e.Save(context.Background()))
	c, _ = api.counts()
	assert.Equal(t, 1, c)
}
