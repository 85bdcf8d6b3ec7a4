package state

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/rest"
	"github.com/matheus3301/chatsync/internal/timers"
	"go.uber.org/zap"
)

const autosaveKey = "note-autosave"

// NoteDraft is the editor's unsaved view of a note.
type NoteDraft struct {
	NoteID         string
	Title          string
	Content        string
	Tags           []string
	Visibility     model.NoteVisibility
	ConversationID string
	Dirty          bool
}

// NoteEditor holds a local draft of one note and saves it after edits go
// quiet. A draft without a note id is created on save; afterwards it
// updates that note.
type NoteEditor struct {
	notes  *NoteStore
	arena  *timers.Arena
	delay  time.Duration
	logger *zap.Logger

	saveMu sync.Mutex

	mu       sync.Mutex
	draft    NoteDraft
	gen      uint64 // bumped by Load so a late save cannot touch a newer draft
	rev      uint64
	savedRev uint64
	lastErr  error
}

// NewNoteEditor creates an editor with an empty draft. Auto-save fires
// delay after the last edit.
func NewNoteEditor(notes *NoteStore, clock clockwork.Clock, delay time.Duration, logger *zap.Logger) *NoteEditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoteEditor{
		notes:  notes,
		arena:  timers.NewArena(clock),
		delay:  delay,
		logger: logger,
		draft:  NoteDraft{Visibility: model.NotePrivate},
	}
}

// Load starts editing an existing note, discarding any pending save.
func (e *NoteEditor) Load(n model.Note) {
	e.arena.Cancel(autosaveKey)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft = NoteDraft{
		NoteID:         n.ID,
		Title:          n.Title,
		Content:        n.Content,
		Tags:           slices.Clone(n.Tags),
		Visibility:     n.Visibility,
		ConversationID: n.ConversationID,
	}
	e.gen++
	e.rev, e.savedRev, e.lastErr = 0, 0, nil
}

// Reset starts a new, empty note.
func (e *NoteEditor) Reset() {
	e.Load(model.Note{Visibility: model.NotePrivate})
}

// Draft returns the current draft.
func (e *NoteEditor) Draft() NoteDraft {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.draft
	d.Tags = slices.Clone(d.Tags)
	d.Dirty = e.rev != e.savedRev
	return d
}

// LastError returns the error of the most recent save, if it failed.
func (e *NoteEditor) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// SetTitle edits the title.
func (e *NoteEditor) SetTitle(title string) {
	e.edit(func(d *NoteDraft) { d.Title = title })
}

// SetContent edits the body.
func (e *NoteEditor) SetContent(content string) {
	e.edit(func(d *NoteDraft) { d.Content = content })
}

// Share makes the note visible in a conversation; an empty id makes it
// private again.
func (e *NoteEditor) Share(conversationID string) {
	e.edit(func(d *NoteDraft) {
		d.ConversationID = conversationID
		d.Visibility = model.NotePrivate
		if conversationID != "" {
			d.Visibility = model.NoteShared
		}
	})
}

// AddTag adds a tag. Blank tags and tags already present (ignoring case)
// are rejected immediately.
func (e *NoteEditor) AddTag(tag string) error {
	tag = strings.TrimSpace(tag)
	e.mu.Lock()
	err := rest.ValidateTags(append(slices.Clone(e.draft.Tags), tag))
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.edit(func(d *NoteDraft) { d.Tags = append(d.Tags, tag) })
	return nil
}

// RemoveTag removes a tag, ignoring case.
func (e *NoteEditor) RemoveTag(tag string) {
	e.edit(func(d *NoteDraft) {
		d.Tags = slices.DeleteFunc(d.Tags, func(t string) bool { return strings.EqualFold(t, tag) })
	})
}

func (e *NoteEditor) edit(fn func(*NoteDraft)) {
	e.mu.Lock()
	fn(&e.draft)
	e.rev++
	e.mu.Unlock()
	e.arena.Schedule(autosaveKey, e.delay, e.autosave)
}

func (e *NoteEditor) autosave() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Save(ctx); err != nil {
		e.logger.Warn("note auto-save failed", zap.Error(err))
	}
}

// Save writes the draft now, cancelling any pending auto-save. A clean
// draft is not sent.
func (e *NoteEditor) Save(ctx context.Context) error {
	e.arena.Cancel(autosaveKey)
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	if e.rev == e.savedRev {
		e.mu.Unlock()
		return nil
	}
	d, gen, rev := e.draft, e.gen, e.rev
	e.mu.Unlock()

	if err := rest.ValidateTags(d.Tags); err != nil {
		e.setErr(err)
		return err
	}
	in := rest.NoteInput{
		Title:          d.Title,
		Content:        d.Content,
		Tags:           slices.Clone(d.Tags),
		Visibility:     d.Visibility,
		ConversationID: d.ConversationID,
	}

	var (
		saved model.Note
		ok    bool
	)
	if d.NoteID == "" {
		saved, ok = e.notes.Create(ctx, in)
	} else {
		saved, ok = e.notes.Update(ctx, d.NoteID, in)
	}
	if !ok {
		err := fmt.Errorf("save note: %s", e.notes.LastError())
		e.setErr(err)
		return err
	}

	e.mu.Lock()
	if e.gen == gen {
		e.draft.NoteID = saved.ID
		if e.savedRev < rev {
			e.savedRev = rev
		}
		e.lastErr = nil
	}
	e.mu.Unlock()
	return nil
}

func (e *NoteEditor) setErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

// Close discards any pending auto-save.
func (e *NoteEditor) Close() {
	e.arena.Close()
}
