package rest

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/matheus3301/chatsync/internal/model"
)

// NoteInput creates or replaces a note.
type NoteInput struct {
	Title          string               `json:"title" validate:"max=200"`
	Content        string               `json:"content"`
	Tags           []string             `json:"tags" validate:"dive,required,max=50"`
	Visibility     model.NoteVisibility `json:"visibility,omitempty" validate:"omitempty,oneof=private shared"`
	ConversationID string               `json:"conversation_id,omitempty" validate:"required_if=Visibility shared"`
}

// NoteQuery filters the note listing.
type NoteQuery struct {
	Search string
	Tag    string
	PageRequest
}

// ListNotes returns one page of notes, optionally filtered by search text
// or tag.
func (c *Client) ListNotes(ctx context.Context, q NoteQuery) (model.Page[model.Note], error) {
	var out model.Page[model.Note]
	if err := c.check(q.PageRequest); err != nil {
		return out, err
	}
	query := q.query()
	if q.Search != "" {
		query.Set("q", q.Search)
	}
	if q.Tag != "" {
		query.Set("tag", q.Tag)
	}
	err := c.do(ctx, http.MethodGet, "/notes", query, nil, &out)
	return settle(out, q.Limit), err
}

// CreateNote creates a note.
func (c *Client) CreateNote(ctx context.Context, in NoteInput) (model.Note, error) {
	var out model.Note
	if err := c.checkNote(in); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPost, "/notes", nil, in, &out)
	return out, err
}

// UpdateNote replaces a note's fields.
func (c *Client) UpdateNote(ctx context.Context, id string, in NoteInput) (model.Note, error) {
	var out model.Note
	if err := c.checkNote(in); err != nil {
		return out, err
	}
	err := c.do(ctx, http.MethodPut, pathf("/notes/%s", id), nil, in, &out)
	return out, err
}

// DeleteNote deletes a note.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, pathf("/notes/%s", id), nil, nil, nil)
}

// SetNotePinned pins or unpins a note.
func (c *Client) SetNotePinned(ctx context.Context, id string, pinned bool) error {
	body := map[string]bool{"is_pinned": pinned}
	return c.do(ctx, http.MethodPut, pathf("/notes/%s/pin", id), nil, body, nil)
}

// ListTags returns every tag in use across the caller's notes.
func (c *Client) ListTags(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/notes/tags", nil, nil, &out)
	return out, err
}

func (c *Client) checkNote(in NoteInput) error {
	if err := ValidateTags(in.Tags); err != nil {
		return err
	}
	return c.check(in)
}

// ValidateTags rejects blank tags and tags that repeat case-insensitively.
func ValidateTags(tags []string) error {
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		norm := strings.ToLower(strings.TrimSpace(t))
		if norm == "" {
			return fmt.Errorf("%w: empty tag", ErrValidation)
		}
		if _, dup := seen[norm]; dup {
			return fmt.Errorf("%w: duplicate tag %q", ErrValidation, t)
		}
		seen[norm] = struct{}{}
	}
	return nil
}
