package throttle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualClock records scheduled callbacks so tests decide when they fire.
type manualClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every timer that was not stopped, the way the runtime would
// once the window elapses.
func (c *manualClock) fireAll() {
	c.mu.Lock()
	due := append([]*fakeTimer(nil), c.timers...)
	c.timers = nil
	c.mu.Unlock()
	for _, t := range due {
		if !t.stopped {
			t.f()
		}
	}
}

func TestScheduleCoalescesToLastPayload(t *testing.T) {
	clock := &manualClock{}
	e := NewEngine(WithAfterFunc(clock.AfterFunc))
	key := Key{SessionID: "s1", ObjectID: "o1", Kind: KindTransform}

	var fired []int
	for i := 1; i <= 5; i++ {
		i := i
		e.Schedule(key, "conn-a", func() { fired = append(fired, i) })
	}
	assert.Equal(t, 1, e.Pending())

	clock.fireAll()
	assert.Equal(t, []int{5}, fired)
	assert.Zero(t, e.Pending(), "slot not cleared after fire")
}

func TestKindsAreIndependent(t *testing.T) {
	clock := &manualClock{}
	e := NewEngine(WithAfterFunc(clock.AfterFunc))

	var got []string
	transform := Key{SessionID: "s1", ObjectID: "o1", Kind: KindTransform}
	color := Key{SessionID: "s1", ObjectID: "o1", Kind: KindColor}
	e.Schedule(transform, "a", func() { got = append(got, "t1") })
	e.Schedule(color, "a", func() { got = append(got, "c1") })
	e.Schedule(transform, "a", func() { got = append(got, "t2") })
	e.Schedule(color, "a", func() { got = append(got, "c2") })

	assert.Equal(t, 2, e.Pending())
	clock.fireAll()
	assert.ElementsMatch(t, []string{"t2", "c2"}, got)
}

func TestDelayPerKind(t *testing.T) {
	clock := &manualClock{}
	e := NewEngine(WithAfterFunc(clock.AfterFunc), WithDelay(KindColor, 50*time.Millisecond))

	e.Schedule(Key{ObjectID: "o", Kind: KindColor}, "a", func() {})
	e.Schedule(Key{ObjectID: "o", Kind: KindTransform}, "a", func() {})

	require.Len(t, clock.timers, 2)
	assert.Equal(t, 50*time.Millisecond, clock.timers[0].d, "color delay")
	assert.Equal(t, DefaultDelay, clock.timers[1].d, "transform delay")
}

func TestCancelOwnerDropsOnlyThatOwner(t *testing.T) {
	clock := &manualClock{}
	e := NewEngine(WithAfterFunc(clock.AfterFunc))

	var got []string
	e.Schedule(Key{ObjectID: "o1", Kind: KindTransform}, "a", func() { got = append(got, "a") })
	e.Schedule(Key{ObjectID: "o2", Kind: KindTransform}, "b", func() { got = append(got, "b") })

	assert.Equal(t, 1, e.CancelOwner("a"))
	clock.fireAll()
	assert.Equal(t, []string{"b"}, got)
}

func TestSupersedingOwnerTakesTheKey(t *testing.T) {
	clock := &manualClock{}
	e := NewEngine(WithAfterFunc(clock.AfterFunc))
	key := Key{SessionID: "s1", ObjectID: "o1", Kind: KindColor}

	var got []string
	e.Schedule(key, "a", func() { got = append(got, "a") })
	e.Schedule(key, "b", func() { got = append(got, "b") })

	assert.Zero(t, e.CancelOwner("a"), "a no longer owns the key")
	clock.fireAll()
	assert.Equal(t, []string{"b"}, got)
}

func TestFlushOwnerRunsImmediately(t *testing.T) {
	clock := &manualClock{}
	e := NewEngine(WithAfterFunc(clock.AfterFunc))

	var got []string
	e.Schedule(Key{ObjectID: "o1", Kind: KindTransform}, "a", func() { got = append(got, "t") })
	e.Schedule(Key{ObjectID: "o1", Kind: KindColor}, "a", func() { got = append(got, "c") })

	assert.Equal(t, 2, e.FlushOwner("a"))
	assert.ElementsMatch(t, []string{"t", "c"}, got)
	clock.fireAll()
	assert.Len(t, got, 2, "stopped timers fired again")
}

func TestStaleCallbackIsIgnored(t *testing.T) {
	clock := &manualClock{}
	e := NewEngine(WithAfterFunc(clock.AfterFunc))
	key := Key{ObjectID: "o1", Kind: KindTransform}

	var got []int
	e.Schedule(key, "a", func() { got = append(got, 1) })
	stale := clock.timers[0].f
	e.Schedule(key, "a", func() { got = append(got, 2) })

	// A timer that already started when Stop was called still runs its callback.
	stale()
	assert.Empty(t, got, "stale callback ran the new task")
	clock.fireAll()
	assert.Equal(t, []int{2}, got)
}

func TestRealTimersCoalesce(t *testing.T) {
	e := NewEngine(WithDelay(KindTransform, 20*time.Millisecond))
	key := Key{SessionID: "s1", ObjectID: "o1", Kind: KindTransform}

	done := make(chan int, 10)
	for i := 1; i <= 3; i++ {
		i := i
		e.Schedule(key, "a", func() { done <- i })
	}

	select {
	case v := <-done:
		assert.Equal(t, 3, v)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	select {
	case v := <-done:
		t.Fatalf("unexpected second emission %d", v)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestStopCancelsEverything(t *testing.T) {
	clock := &manualClock{}
	e := NewEngine(WithAfterFunc(clock.AfterFunc))
	fired := false
	e.Schedule(Key{ObjectID: "o1", Kind: KindTransform}, "a", func() { fired = true })
	e.Stop()
	clock.fireAll()
	assert.False(t, fired, "Stop left a task running")
	assert.Zero(t, e.Pending())
}
