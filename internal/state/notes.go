package state

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"go.uber.org/zap"
)

// NoteAPI is the REST surface the note store calls.
type NoteAPI interface {
	ListNotes(ctx context.Context, q rest.NoteQuery) (model.Page[model.Note], error)
	CreateNote(ctx context.Context, in rest.NoteInput) (model.Note, error)
	UpdateNote(ctx context.Context, id string, in rest.NoteInput) (model.Note, error)
	DeleteNote(ctx context.Context, id string) error
	SetNotePinned(ctx context.Context, id string, pinned bool) error
	ListTags(ctx context.Context) ([]string, error)
}

// NoteStore caches the local user's notes.
type NoteStore struct {
	*flags
	api   NoteAPI
	limit int

	mu    sync.RWMutex
	byID  map[string]model.Note
	tags  []string
	query rest.NoteQuery
	more  bool
}

// NewNoteStore creates an empty store. pageSize bounds each fetch.
func NewNoteStore(api NoteAPI, pageSize int, b *bus.Bus, logger *zap.Logger) *NoteStore {
	return &NoteStore{
		flags: newFlags(bus.NotesChanged, b, logger),
		api:   api,
		limit: pageSize,
		byID:  make(map[string]model.Note),
	}
}

// Fetch loads the first page matching search and tag, replacing the cache.
func (s *NoteStore) Fetch(ctx context.Context, search, tag string) error {
	q := rest.NoteQuery{Search: search, Tag: tag, PageRequest: rest.PageRequest{Limit: s.limit}}
	s.startLoading()
	page, err := s.api.ListNotes(ctx, q)
	if err != nil {
		return s.stopLoading("fetch notes", err)
	}
	s.mu.Lock()
	s.byID = make(map[string]model.Note, len(page.Items))
	for _, n := range page.Items {
		s.byID[n.ID] = n
	}
	q.Cursor = page.NextCursor
	s.query, s.more = q, page.HasMore
	s.mu.Unlock()
	s.notify("")
	return s.stopLoading("fetch notes", nil)
}

// FetchMore loads the next page of the last query.
func (s *NoteStore) FetchMore(ctx context.Context) error {
	s.mu.RLock()
	q, more := s.query, s.more
	s.mu.RUnlock()
	if !more {
		return nil
	}
	s.startLoading()
	page, err := s.api.ListNotes(ctx, q)
	if err != nil {
		return s.stopLoading("fetch more notes", err)
	}
	s.mu.Lock()
	for _, n := range page.Items {
		s.byID[n.ID] = n
	}
	s.query.Cursor, s.more = page.NextCursor, page.HasMore
	s.mu.Unlock()
	s.notify("")
	return s.stopLoading("fetch more notes", nil)
}

// HasMore reports whether another page can be fetched.
func (s *NoteStore) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.more
}

// FetchTags refreshes the tag list.
func (s *NoteStore) FetchTags(ctx context.Context) error {
	s.startLoading()
	tags, err := s.api.ListTags(ctx)
	if err != nil {
		return s.stopLoading("fetch tags", err)
	}
	slices.Sort(tags)
	s.mu.Lock()
	s.tags = slices.Compact(tags)
	s.mu.Unlock()
	s.notify("")
	return s.stopLoading("fetch tags", nil)
}

// Tags returns the known tags.
func (s *NoteStore) Tags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tags)
}

// Notes returns all cached notes, pinned first then most recently updated.
func (s *NoteStore) Notes() []model.Note {
	s.mu.RLock()
	out := slices.Collect(maps.Values(s.byID))
	s.mu.RUnlock()
	model.SortNotes(out)
	return out
}

// Get returns one note.
func (s *NoteStore) Get(id string) (model.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byID[id]
	return n, ok
}

// Upsert inserts or replaces a note by id. An older copy never overwrites
// a newer one.
func (s *NoteStore) Upsert(n model.Note) bool {
	if n.ID == "" {
		return false
	}
	s.mu.Lock()
	if old, ok := s.byID[n.ID]; ok && n.UpdatedAt.Before(old.UpdatedAt) {
		s.mu.Unlock()
		return false
	}
	s.byID[n.ID] = n
	for _, t := range n.Tags {
		if !slices.Contains(s.tags, t) {
			s.tags = append(s.tags, t)
		}
	}
	slices.Sort(s.tags)
	s.mu.Unlock()
	s.notify(n.ID)
	return true
}

// Remove drops a note from the cache.
func (s *NoteStore) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.byID[id]
	delete(s.byID, id)
	s.mu.Unlock()
	if ok {
		s.notify(id)
	}
	return ok
}

// Create creates a note.
func (s *NoteStore) Create(ctx context.Context, in rest.NoteInput) (model.Note, bool) {
	n, err := s.api.CreateNote(ctx, in)
	if err != nil {
		return n, s.fail("create note", err)
	}
	s.Upsert(n)
	return n, true
}

// Update replaces a note's fields.
func (s *NoteStore) Update(ctx context.Context, id string, in rest.NoteInput) (model.Note, bool) {
	var n model.Note
	ok := s.guard("update", id, func() bool {
		var err error
		n, err = s.api.UpdateNote(ctx, id, in)
		if err != nil {
			return s.fail("update note", err)
		}
		s.Upsert(n)
		return true
	})
	return n, ok
}

// Delete removes a note optimistically, restoring it if the server
// refuses.
func (s *NoteStore) Delete(ctx context.Context, id string) bool {
	return s.guard("delete", id, func() bool {
		prev, ok := s.Get(id)
		if !ok {
			return s.fail("delete note", fmt.Errorf("note %s not loaded", id))
		}
		s.Remove(id)
		if err := s.api.DeleteNote(ctx, id); err != nil {
			s.mu.Lock()
			s.byID[id] = prev
			s.mu.Unlock()
			s.notify(id)
			return s.fail("delete note", err)
		}
		return true
	})
}

// TogglePin flips a note's pinned flag, reverting if the server refuses.
func (s *NoteStore) TogglePin(ctx context.Context, id string) bool {
	return s.guard("pin", id, func() bool {
		s.mu.Lock()
		n, ok := s.byID[id]
		if ok {
			n.IsPinned = !n.IsPinned
			s.byID[id] = n
		}
		s.mu.Unlock()
		if !ok {
			return s.fail("pin note", fmt.Errorf("note %s not loaded", id))
		}
		s.notify(id)
		if err := s.api.SetNotePinned(ctx, id, n.IsPinned); err != nil {
			s.mu.Lock()
			if cur, ok := s.byID[id]; ok {
				cur.IsPinned = !n.IsPinned
				s.byID[id] = cur
			}
			s.mu.Unlock()
			s.notify(id)
			return s.fail("pin note", err)
		}
		return true
	})
}
