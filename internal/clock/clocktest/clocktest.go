// Package clocktest provides hand-cranked timers for scheduler tests:
// nothing fires until the test calls Fire.
package clocktest

import (
	"sync"
	"time"

	"autosaved/internal/clock"
)

// Timer implements clock.Timer without real time. Fire invokes the
// armed callback the way an elapsed countdown would.
type Timer struct {
	mu sync.Mutex

	active bool
	closed bool

	Delay    time.Duration
	Interval time.Duration
	Spec     string

	fn func()

	Starts int
	Stops  int
}

func (t *Timer) Start(delay, interval time.Duration, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return clock.ErrClosed
	}
	t.active = true
	t.Delay = delay
	t.Interval = interval
	t.Spec = ""
	t.fn = fn
	t.Starts++
	return nil
}

func (t *Timer) StartSpec(spec string, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return clock.ErrClosed
	}
	t.active = true
	t.Spec = spec
	t.fn = fn
	t.Starts++
	return nil
}

func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	t.Stops++
}

func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	t.closed = true
}

func (t *Timer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Timer) IsClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Fire simulates the countdown elapsing. One-shots go inactive before
// the callback runs, like the real timer. No-op unless running.
func (t *Timer) Fire() {
	t.mu.Lock()
	if !t.active || t.closed {
		t.mu.Unlock()
		return
	}
	fn := t.fn
	if t.Interval <= 0 && t.Spec == "" {
		t.active = false
	}
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Factory hands out Timers and records them in creation order.
type Factory struct {
	mu     sync.Mutex
	Timers []*Timer

	// Err, when set, makes NewTimer fail (resource exhaustion path).
	Err error
}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) NewTimer() (clock.Timer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	t := &Timer{}
	f.Timers = append(f.Timers, t)
	return t, nil
}

// Made returns how many timers the factory handed out.
func (f *Factory) Made() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Timers)
}

// Last returns the most recently created timer, or nil.
func (f *Factory) Last() *Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Timers) == 0 {
		return nil
	}
	return f.Timers[len(f.Timers)-1]
}
