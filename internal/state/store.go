// Package state holds the client-side caches of server data. Each store
// owns one slice of state, exposes synchronous getters, local mutators used
// by reconcilers, and REST-backed actions that report success as a bool,
// revert their optimistic change on failure and record the error.
package state

import (
	"errors"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"go.uber.org/zap"
)

// ErrInFlight is recorded when an action is rejected because the same
// action on the same entity has not completed yet.
var ErrInFlight = errors.New("operation already in flight")

// flags is the loading/error bookkeeping and change notification shared by
// every store. It has its own lock so store locks never nest with it.
type flags struct {
	kind   string
	bus    *bus.Bus
	logger *zap.Logger

	mu       sync.Mutex
	loading  int
	lastErr  string
	inflight map[string]struct{}
}

func newFlags(kind string, b *bus.Bus, logger *zap.Logger) *flags {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &flags{kind: kind, bus: b, logger: logger, inflight: make(map[string]struct{})}
}

// IsLoading reports whether a fetch is running.
func (f *flags) IsLoading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading > 0
}

// LastError returns the message of the most recent failure, or "".
func (f *flags) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// ClearError forgets the last failure.
func (f *flags) ClearError() {
	f.mu.Lock()
	f.lastErr = ""
	f.mu.Unlock()
}

func (f *flags) startLoading() {
	f.mu.Lock()
	f.loading++
	f.mu.Unlock()
}

// stopLoading ends a fetch and records its outcome.
func (f *flags) stopLoading(op string, err error) error {
	f.mu.Lock()
	f.loading--
	if err != nil {
		f.lastErr = op + ": " + err.Error()
	} else {
		f.lastErr = ""
	}
	f.mu.Unlock()
	if err != nil {
		f.logger.Warn("fetch failed", zap.String("store", f.kind), zap.String("op", op), zap.Error(err))
	}
	return err
}

// fail records err for op and returns false, for use as an action's
// return value.
func (f *flags) fail(op string, err error) bool {
	f.mu.Lock()
	f.lastErr = op + ": " + err.Error()
	f.mu.Unlock()
	f.logger.Warn("action failed", zap.String("store", f.kind), zap.String("op", op), zap.Error(err))
	return false
}

// acquire marks key as in flight. It returns false if it already was.
func (f *flags) acquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.inflight[key]; busy {
		return false
	}
	f.inflight[key] = struct{}{}
	return true
}

func (f *flags) release(key string) {
	f.mu.Lock()
	delete(f.inflight, key)
	f.mu.Unlock()
}

// guard runs fn unless key is already in flight.
func (f *flags) guard(op, key string, fn func() bool) bool {
	if !f.acquire(op + ":" + key) {
		return f.fail(op, ErrInFlight)
	}
	defer f.release(op + ":" + key)
	return fn()
}

// notify announces a change of id on the bus.
func (f *flags) notify(id string) {
	f.bus.Emit(f.kind, id)
}
