package sync

import (
	"context"

	"github.com/matheus3301/chatsync/internal/events"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/ws"
)

// NoteReconciler applies note pushes to the note store.
type NoteReconciler struct {
	*hook
	stream Stream
	notes  *state.NoteStore
}

// NewNoteReconciler creates a reconciler.
func NewNoteReconciler(stream Stream, notes *state.NoteStore) *NoteReconciler {
	return &NoteReconciler{hook: newHook(), stream: stream, notes: notes}
}

// Start subscribes to note events.
func (r *NoteReconciler) Start(context.Context) {
	r.subscribe(r.stream, map[events.Name]ws.Handler{
		events.NoteCreate: r.onNote,
		events.NoteUpdate: r.onNote,
		events.NoteDelete: r.onNote,
	})
}

// Stop unsubscribes.
func (r *NoteReconciler) Stop() {
	r.unsubscribe()
}

func (r *NoteReconciler) onNote(evt events.Event) {
	switch e := evt.(type) {
	case *events.NoteEvent:
		r.notes.Upsert(e.Note)
	case *events.NoteDeleted:
		r.notes.Remove(e.NoteID)
	}
}
