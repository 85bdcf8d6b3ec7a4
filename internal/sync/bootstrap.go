package sync

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/state"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Initial groups the stores loaded at startup. Nil stores are skipped.
type Initial struct {
	Conversations *state.ConversationStore
	Friends       *state.FriendStore
	Notes         *state.NoteStore
	Settings      *state.SettingsStore
	Drafts        *state.DraftStore
}

// Bootstrap loads the initial state concurrently. Every load runs to
// completion; the first failure is returned and the stores that loaded
// keep their data.
func Bootstrap(ctx context.Context, in Initial, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var g errgroup.Group
	g.SetLimit(4)

	run := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				logger.Warn("bootstrap load failed", zap.String("load", name), zap.Error(err))
				return fmt.Errorf("load %s: %w", name, err)
			}
			return nil
		})
	}

	if in.Conversations != nil {
		run("conversations", func() error { return in.Conversations.Fetch(ctx) })
	}
	if in.Friends != nil {
		run("friends", func() error { return in.Friends.FetchFriends(ctx) })
		run("friend requests", func() error { return in.Friends.FetchRequests(ctx) })
		run("blocked users", func() error { return in.Friends.FetchBlocked(ctx) })
	}
	if in.Notes != nil {
		run("notes", func() error { return in.Notes.Fetch(ctx, "", "") })
		run("note tags", func() error { return in.Notes.FetchTags(ctx) })
	}
	if in.Settings != nil {
		run("settings", in.Settings.Load)
	}
	if in.Drafts != nil {
		run("drafts", in.Drafts.Load)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("initial state loaded")
	return nil
}
