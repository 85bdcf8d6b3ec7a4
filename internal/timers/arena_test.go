package timers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

func TestScheduleFiresAfterDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := NewArena(clock)

	var fired atomic.Int32
	a.Schedule("k", 5*time.Second, func() { fired.Add(1) })

	clock.Advance(5*time.Second - time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load(), "fired before the delay elapsed")
	assert.True(t, a.Pending("k"))

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, 5*time.Millisecond)
	assert.False(t, a.Pending("k"))
}

func TestRescheduleReplaces(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := NewArena(clock)

	var first, second atomic.Int32
	a.Schedule("k", 5*time.Second, func() { first.Add(1) })
	clock.Advance(3 * time.Second)
	a.Schedule("k", 5*time.Second, func() { second.Add(1) })

	clock.Advance(3 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load(), "replaced task must not run")
	assert.Equal(t, int32(0), second.Load())

	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return second.Load() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := NewArena(clock)

	var fired atomic.Int32
	a.Schedule("k", time.Second, func() { fired.Add(1) })
	assert.True(t, a.Cancel("k"))
	assert.False(t, a.Cancel("k"))

	clock.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestFlushRunsImmediately(t *testing.T) {
	a := NewArena(clockwork.NewFakeClock())

	var fired atomic.Int32
	a.Schedule("k", time.Hour, func() { fired.Add(1) })
	assert.True(t, a.Flush("k"))
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, a.Flush("k"))
}

func TestFlushAll(t *testing.T) {
	a := NewArena(clockwork.NewFakeClock())

	var fired atomic.Int32
	a.Schedule("a", time.Hour, func() { fired.Add(1) })
	a.Schedule("b", time.Hour, func() { fired.Add(1) })
	assert.Equal(t, 2, a.FlushAll())
	assert.Equal(t, int32(2), fired.Load())
	assert.Equal(t, 0, a.Len())
}

func TestCloseCancelsAll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := NewArena(clock)

	var fired atomic.Int32
	for _, k := range []string{"a", "b", "c"} {
		a.Schedule(k, time.Second, func() { fired.Add(1) })
	}
	require.Equal(t, 3, a.Len())

	a.Close()
	a.Schedule("d", time.Second, func() { fired.Add(1) })
	assert.Equal(t, 0, a.Len())

	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
