package state

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/model"
	"go.uber.org/zap"
)

// FriendAPI is the REST surface the friendship store calls.
type FriendAPI interface {
	ListFriends(ctx context.Context) ([]model.User, error)
	ListFriendRequests(ctx context.Context) ([]model.FriendRequest, error)
	SendFriendRequest(ctx context.Context, userID string) (model.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, requestID string) (model.FriendRequest, error)
	RejectFriendRequest(ctx context.Context, requestID string) error
	RemoveFriend(ctx context.Context, userID string) error
	ListBlocked(ctx context.Context) ([]model.User, error)
	Block(ctx context.Context, userID string) error
	Unblock(ctx context.Context, userID string) error
}

// FriendStore caches friends, pending requests and blocks.
type FriendStore struct {
	*flags
	api    FriendAPI
	selfID string

	mu        sync.RWMutex
	friends   map[string]model.User
	requests  map[string]model.FriendRequest
	blocked   map[string]model.User
	blockedBy map[string]struct{}
}

// NewFriendStore creates an empty store for the user selfID.
func NewFriendStore(api FriendAPI, selfID string, b *bus.Bus, logger *zap.Logger) *FriendStore {
	return &FriendStore{
		flags:     newFlags(bus.FriendsChanged, b, logger),
		api:       api,
		selfID:    selfID,
		friends:   make(map[string]model.User),
		requests:  make(map[string]model.FriendRequest),
		blocked:   make(map[string]model.User),
		blockedBy: make(map[string]struct{}),
	}
}

// FetchFriends replaces the friend list.
func (s *FriendStore) FetchFriends(ctx context.Context) error {
	s.startLoading()
	users, err := s.api.ListFriends(ctx)
	if err != nil {
		return s.stopLoading("fetch friends", err)
	}
	s.mu.Lock()
	s.friends = indexUsers(users)
	s.mu.Unlock()
	s.notify("")
	return s.stopLoading("fetch friends", nil)
}

// FetchRequests replaces the pending request list.
func (s *FriendStore) FetchRequests(ctx context.Context) error {
	s.startLoading()
	reqs, err := s.api.ListFriendRequests(ctx)
	if err != nil {
		return s.stopLoading("fetch friend requests", err)
	}
	s.mu.Lock()
	s.requests = make(map[string]model.FriendRequest, len(reqs))
	for _, r := range reqs {
		if r.Status == "" || r.Status == model.FriendRequestPending {
			s.requests[r.ID] = r
		}
	}
	s.mu.Unlock()
	s.notify("")
	return s.stopLoading("fetch friend requests", nil)
}

// FetchBlocked replaces the block list.
func (s *FriendStore) FetchBlocked(ctx context.Context) error {
	s.startLoading()
	users, err := s.api.ListBlocked(ctx)
	if err != nil {
		return s.stopLoading("fetch blocked users", err)
	}
	s.mu.Lock()
	s.blocked = indexUsers(users)
	s.mu.Unlock()
	s.notify("")
	return s.stopLoading("fetch blocked users", nil)
}

// Friends returns friends ordered by display name.
func (s *FriendStore) Friends() []model.User {
	s.mu.RLock()
	out := slices.Collect(maps.Values(s.friends))
	s.mu.RUnlock()
	sortUsers(out)
	return out
}

// IsFriend reports whether userID is a friend.
func (s *FriendStore) IsFriend(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.friends[userID]
	return ok
}

// Incoming returns pending requests addressed to the local user.
func (s *FriendStore) Incoming() []model.FriendRequest {
	return s.pending(func(r model.FriendRequest) bool { return r.Receiver.ID == s.selfID })
}

// Outgoing returns pending requests the local user sent.
func (s *FriendStore) Outgoing() []model.FriendRequest {
	return s.pending(func(r model.FriendRequest) bool { return r.Sender.ID == s.selfID })
}

func (s *FriendStore) pending(keep func(model.FriendRequest) bool) []model.FriendRequest {
	s.mu.RLock()
	var out []model.FriendRequest
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.FriendRequest) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Blocked returns users the local user has blocked.
func (s *FriendStore) Blocked() []model.User {
	s.mu.RLock()
	out := slices.Collect(maps.Values(s.blocked))
	s.mu.RUnlock()
	sortUsers(out)
	return out
}

// IsBlocked reports whether the local user blocked userID.
func (s *FriendStore) IsBlocked(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocked[userID]
	return ok
}

// IsBlockedBy reports whether userID blocked the local user.
func (s *FriendStore) IsBlockedBy(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blockedBy[userID]
	return ok
}

// ApplyRequest folds a request in its new state into the store: pending
// requests are kept, accepted ones turn into a friend, rejected ones are
// dropped.
func (s *FriendStore) ApplyRequest(r model.FriendRequest) {
	if r.ID == "" {
		return
	}
	s.mu.Lock()
	switch r.Status {
	case model.FriendRequestAccepted:
		delete(s.requests, r.ID)
		other := r.Sender
		if other.ID == s.selfID {
			other = r.Receiver
		}
		if other.ID != "" {
			s.friends[other.ID] = other
		}
	case model.FriendRequestRejected:
		delete(s.requests, r.ID)
	default:
		s.requests[r.ID] = r
	}
	s.mu.Unlock()
	s.notify(r.ID)
}

// RemoveFriendLocal forgets a friendship.
func (s *FriendStore) RemoveFriendLocal(userID string) bool {
	s.mu.Lock()
	_, ok := s.friends[userID]
	delete(s.friends, userID)
	s.mu.Unlock()
	if ok {
		s.notify(userID)
	}
	return ok
}

// ApplyBlock records a block change. byMe distinguishes blocks the local
// user made from blocks imposed on them. Blocking ends the friendship.
func (s *FriendStore) ApplyBlock(userID string, blocked, byMe bool) {
	s.mu.Lock()
	switch {
	case byMe && blocked:
		u, ok := s.friends[userID]
		if !ok {
			u = model.User{ID: userID}
		}
		s.blocked[userID] = u
		delete(s.friends, userID)
	case byMe:
		delete(s.blocked, userID)
	case blocked:
		s.blockedBy[userID] = struct{}{}
		delete(s.friends, userID)
	default:
		delete(s.blockedBy, userID)
	}
	s.mu.Unlock()
	s.notify(userID)
}

// SendRequest sends a friend request.
func (s *FriendStore) SendRequest(ctx context.Context, userID string) bool {
	return s.guard("send request", userID, func() bool {
		r, err := s.api.SendFriendRequest(ctx, userID)
		if err != nil {
			return s.fail("send friend request", err)
		}
		s.ApplyRequest(r)
		return true
	})
}

// Accept accepts a pending request.
func (s *FriendStore) Accept(ctx context.Context, requestID string) bool {
	return s.guard("respond", requestID, func() bool {
		r, err := s.api.AcceptFriendRequest(ctx, requestID)
		if err != nil {
			return s.fail("accept friend request", err)
		}
		if r.ID == "" {
			s.mu.RLock()
			r = s.requests[requestID]
			s.mu.RUnlock()
		}
		r.Status = model.FriendRequestAccepted
		s.ApplyRequest(r)
		return true
	})
}

// Reject drops a pending request optimistically, restoring it if the
// server refuses.
func (s *FriendStore) Reject(ctx context.Context, requestID string) bool {
	return s.guard("respond", requestID, func() bool {
		s.mu.Lock()
		prev, had := s.requests[requestID]
		delete(s.requests, requestID)
		s.mu.Unlock()
		s.notify(requestID)
		if err := s.api.RejectFriendRequest(ctx, requestID); err != nil {
			if had {
				s.ApplyRequest(prev)
			}
			return s.fail("reject friend request", err)
		}
		return true
	})
}

// Unfriend ends a friendship, restoring it if the server refuses.
func (s *FriendStore) Unfriend(ctx context.Context, userID string) bool {
	return s.guard("unfriend", userID, func() bool {
		s.mu.RLock()
		prev, had := s.friends[userID]
		s.mu.RUnlock()
		s.RemoveFriendLocal(userID)
		if err := s.api.RemoveFriend(ctx, userID); err != nil {
			if had {
				s.mu.Lock()
				s.friends[userID] = prev
				s.mu.Unlock()
				s.notify(userID)
			}
			return s.fail("remove friend", err)
		}
		return true
	})
}

// Block blocks userID, reverting if the server refuses.
func (s *FriendStore) Block(ctx context.Context, userID string) bool {
	return s.guard("block", userID, func() bool {
		snap := s.snapshotUser(userID)
		s.ApplyBlock(userID, true, true)
		if err := s.api.Block(ctx, userID); err != nil {
			s.restoreUser(userID, snap)
			return s.fail("block user", err)
		}
		return true
	})
}

// Unblock lifts a block, reverting if the server refuses.
func (s *FriendStore) Unblock(ctx context.Context, userID string) bool {
	return s.guard("block", userID, func() bool {
		snap := s.snapshotUser(userID)
		s.ApplyBlock(userID, false, true)
		if err := s.api.Unblock(ctx, userID); err != nil {
			s.restoreUser(userID, snap)
			return s.fail("unblock user", err)
		}
		return true
	})
}

type userSnapshot struct {
	friend, blocked      model.User
	isFriend, wasBlocked bool
}

func (s *FriendStore) snapshotUser(userID string) userSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snap userSnapshot
	snap.friend, snap.isFriend = s.friends[userID]
	snap.blocked, snap.wasBlocked = s.blocked[userID]
	return snap
}

func (s *FriendStore) restoreUser(userID string, snap userSnapshot) {
	s.mu.Lock()
	delete(s.friends, userID)
	delete(s.blocked, userID)
	if snap.isFriend {
		s.friends[userID] = snap.friend
	}
	if snap.wasBlocked {
		s.blocked[userID] = snap.blocked
	}
	s.mu.Unlock()
	s.notify(userID)
}

func indexUsers(users []model.User) map[string]model.User {
	out := make(map[string]model.User, len(users))
	for _, u := range users {
		if u.ID != "" {
			out[u.ID] = u
		}
	}
	return out
}

func sortUsers(users []model.User) {
	slices.SortFunc(users, func(a, b model.User) int {
		return cmp.Or(cmp.Compare(a.Name(), b.Name()), cmp.Compare(a.ID, b.ID))
	})
}
