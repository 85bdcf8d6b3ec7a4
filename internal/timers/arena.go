// Package timers owns the cancellable delayed tasks used by reconcilers and
// stores (typing expiry, draft debounce, note auto-save).
package timers

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Arena is a set of cancellable timers keyed by id. Scheduling a key that
// is already pending replaces it. Close cancels everything and makes later
// Schedule calls no-ops, so an owner can release all its timers at once.
type Arena struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	tasks  map[string]*task
	seq    uint64
	closed bool
}

type task struct {
	timer clockwork.Timer
	seq   uint64
	fn    func()
}

// NewArena returns an arena driven by clock. A nil clock means real time.
func NewArena(clock clockwork.Clock) *Arena {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Arena{clock: clock, tasks: make(map[string]*task)}
}

// Clock returns the arena's clock.
func (a *Arena) Clock() clockwork.Clock {
	return a.clock
}

// Schedule runs fn after d unless key is rescheduled or cancelled first.
func (a *Arena) Schedule(key string, d time.Duration, fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if old, ok := a.tasks[key]; ok {
		old.timer.Stop()
	}
	a.seq++
	seq := a.seq
	t := &task{seq: seq, fn: fn}
	t.timer = a.clock.AfterFunc(d, func() {
		// A replaced or cancelled timer may still fire if Stop lost the
		// race; only the current generation runs.
		a.mu.Lock()
		cur, ok := a.tasks[key]
		if !ok || cur.seq != seq {
			a.mu.Unlock()
			return
		}
		delete(a.tasks, key)
		a.mu.Unlock()
		fn()
	})
	a.tasks[key] = t
}

// Cancel stops the task for key. It reports whether a task was pending.
func (a *Arena) Cancel(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(a.tasks, key)
	return true
}

// Pending reports whether key has a scheduled task.
func (a *Arena) Pending(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.tasks[key]
	return ok
}

// Len returns the number of pending tasks.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}

// Flush runs the task for key immediately if one is pending.
func (a *Arena) Flush(key string) bool {
	a.mu.Lock()
	t, ok := a.tasks[key]
	if ok {
		t.timer.Stop()
		delete(a.tasks, key)
	}
	a.mu.Unlock()
	if !ok {
		return false
	}
	t.fn()
	return true
}

// FlushAll runs every pending task now, in no particular order.
func (a *Arena) FlushAll() int {
	a.mu.Lock()
	fns := make([]func(), 0, len(a.tasks))
	for key, t := range a.tasks {
		t.timer.Stop()
		delete(a.tasks, key)
		fns = append(fns, t.fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Close cancels every pending task. The arena stays closed.
func (a *Arena) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, t := range a.tasks {
		t.timer.Stop()
		delete(a.tasks, key)
	}
	a.closed = true
}
