package state

import (
	"context"
	"maps"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"go.uber.org/zap"
)

// PresenceAPI is the polling path for presence.
type PresenceAPI interface {
	UserStatuses(ctx context.Context, userIDs []string) ([]model.UserPresence, error)
}

// PresenceStore holds the last known presence per user. Pushed and polled
// updates both go through Apply: the latest received wins, except that an
// update whose last_seen is older than the stored one is ignored when both
// are known.
type PresenceStore struct {
	*flags
	api PresenceAPI

	mu     sync.RWMutex
	byUser map[string]model.UserPresence
}

// NewPresenceStore creates an empty store.
func NewPresenceStore(api PresenceAPI, b *bus.Bus, logger *zap.Logger) *PresenceStore {
	return &PresenceStore{
		flags:  newFlags(bus.PresenceChanged, b, logger),
		api:    api,
		byUser: make(map[string]model.UserPresence),
	}
}

// Fetch polls the presence of userIDs.
func (s *PresenceStore) Fetch(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	s.startLoading()
	list, err := s.api.UserStatuses(ctx, userIDs)
	if err != nil {
		return s.stopLoading("fetch presence", err)
	}
	for _, p := range list {
		s.Apply(p)
	}
	return s.stopLoading("fetch presence", nil)
}

// Apply records one presence update. It reports whether it was kept.
func (s *PresenceStore) Apply(p model.UserPresence) bool {
	if p.UserID == "" || !p.Status.Valid() {
		return false
	}
	s.mu.Lock()
	old, ok := s.byUser[p.UserID]
	if ok && !old.LastSeen.IsZero() && !p.LastSeen.IsZero() && p.LastSeen.Before(old.LastSeen) {
		s.mu.Unlock()
		return false
	}
	if ok && old == p {
		s.mu.Unlock()
		return true
	}
	s.byUser[p.UserID] = p
	s.mu.Unlock()
	s.notify(p.UserID)
	return true
}

// Get returns a user's presence, if known.
func (s *PresenceStore) Get(userID string) (model.UserPresence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byUser[userID]
	return p, ok
}

// Status returns a user's status, offline when unknown.
func (s *PresenceStore) Status(userID string) model.PresenceStatus {
	if p, ok := s.Get(userID); ok {
		return p.Status
	}
	return model.PresenceOffline
}

// Snapshot returns every known presence.
func (s *PresenceStore) Snapshot() map[string]model.UserPresence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.byUser)
}
