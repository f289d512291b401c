// Package throttle rate-limits handler invocation: while a cooldown
// window is open, calls are dropped, not queued. Each wrapped handler
// owns one cooldown timer in the shared registry, keyed by a
// caller-supplied label so repeated wrapping reuses the same slot.
package throttle

import (
	"sync"
	"time"

	"autosaved/internal/host"
	"autosaved/internal/registry"
	"autosaved/pkg/logx"
)

// Gate wraps one handler behind a cooldown window.
type Gate struct {
	reg    *registry.Registry
	label  string
	window time.Duration
	log    logx.Logger

	mu sync.Mutex
}

// New builds a gate for label. A window of zero disables throttling.
func New(reg *registry.Registry, label string, window time.Duration, log logx.Logger) *Gate {
	return &Gate{reg: reg, label: label, window: window, log: log}
}

// Wrap returns fn behind the gate. The first call inside an open window
// runs fn synchronously and opens the cooldown; calls arriving while
// the cooldown timer is running are dropped, arguments and all.
func (g *Gate) Wrap(fn func(host.EntityID)) func(host.EntityID) {
	if g.window <= 0 {
		return fn
	}
	return func(id host.EntityID) {
		if g.pass() {
			fn(id)
		}
	}
}

// pass reports whether the caller may run, opening the cooldown when it
// does. Check and rearm are atomic so concurrent bursts collapse to one
// invocation.
func (g *Gate) pass() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, err := g.reg.Acquire(registry.ThrottleKey(g.label))
	if err != nil {
		// No timer means no cooldown to enforce; run unthrottled
		// rather than silently dropping work.
		g.log.Warn("throttle: no timer available, running unthrottled",
			logx.String("label", g.label), logx.Err(err))
		return true
	}
	if t.IsActive() {
		return false
	}
	// The one-shot going inactive on fire is what ends the cooldown;
	// nothing to do in the callback.
	if err := t.Start(g.window, 0, func() {}); err != nil {
		g.log.Warn("throttle: failed to open cooldown",
			logx.String("label", g.label), logx.Err(err))
	}
	return true
}
