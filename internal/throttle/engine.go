// Package throttle coalesces bursts of continuous mutations (drags of a
// transform gizmo or a color picker) into at most one emission per key and
// delay window. The latest payload wins; intermediate ones are discarded.
package throttle

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDelay is the throttle window used for kinds without an explicit delay.
const DefaultDelay = 30 * time.Millisecond

// Kind separates mutation streams that must not share a timer.
type Kind string

const (
	KindTransform Kind = "transform"
	KindColor     Kind = "color"
)

// Key identifies one throttled stream.
type Key struct {
	SessionID string
	ObjectID  string
	Kind      Kind
}

// Timer is the part of *time.Timer the engine needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through an adapter.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type task struct {
	owner string
	seq   uint64
	timer Timer
	fire  func()
}

// Engine holds at most one pending task per Key.
type Engine struct {
	mu        sync.Mutex
	tasks     map[Key]*task
	delays    map[Kind]time.Duration
	afterFunc AfterFunc
	seq       uint64
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDelay sets the throttle window for one kind.
func WithDelay(kind Kind, d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.delays[kind] = d
		}
	}
}

// WithAfterFunc replaces the timer factory, mostly for tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(e *Engine) { e.afterFunc = fn }
}

// NewEngine returns an engine using DefaultDelay and real timers unless
// opts say otherwise.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tasks:     make(map[Key]*task),
		delays:    make(map[Kind]time.Duration),
		afterFunc: realAfterFunc,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Delay returns the window used for kind.
func (e *Engine) Delay(kind Kind) time.Duration {
	if d, ok := e.delays[kind]; ok {
		return d
	}
	return DefaultDelay
}

// Schedule replaces whatever is pending for key with fire, to run once the
// window elapses. owner is recorded so the task can be canceled or flushed
// when that connection goes away; the latest scheduler owns the key.
func (e *Engine) Schedule(key Key, owner string, fire func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.tasks[key]; ok {
		prev.timer.Stop()
		log.Debug().Str("module", "throttle").Str("session", key.SessionID).Str("object", key.ObjectID).Str("kind", string(key.Kind)).Msg("superseded pending emission")
	}
	e.seq++
	t := &task{owner: owner, seq: e.seq, fire: fire}
	seq := t.seq
	t.timer = e.afterFunc(e.Delay(key.Kind), func() { e.run(key, seq) })
	e.tasks[key] = t
}

func (e *Engine) run(key Key, seq uint64) {
	e.mu.Lock()
	t, ok := e.tasks[key]
	if !ok || t.seq != seq {
		// Superseded or canceled after the timer had already started.
		e.mu.Unlock()
		return
	}
	delete(e.tasks, key)
	e.mu.Unlock()

	t.fire()
}

// CancelOwner drops every task owned by owner without running it and
// returns how many were dropped.
func (e *Engine) CancelOwner(owner string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for key, t := range e.tasks {
		if t.owner != owner {
			continue
		}
		t.timer.Stop()
		delete(e.tasks, key)
		n++
	}
	if n > 0 {
		log.Debug().Str("module", "throttle").Str("owner", owner).Int("canceled", n).Msg("canceled pending emissions")
	}
	return n
}

// FlushOwner runs every task owned by owner right away and returns how many ran.
func (e *Engine) FlushOwner(owner string) int {
	e.mu.Lock()
	var due []*task
	for key, t := range e.tasks {
		if t.owner != owner {
			continue
		}
		t.timer.Stop()
		delete(e.tasks, key)
		due = append(due, t)
	}
	e.mu.Unlock()

	for _, t := range due {
		t.fire()
	}
	return len(due)
}

// Pending reports how many tasks are waiting to fire.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// Stop cancels everything that is pending.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, t := range e.tasks {
		t.timer.Stop()
		delete(e.tasks, key)
	}
}
