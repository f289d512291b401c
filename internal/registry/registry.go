// Package registry owns every live timer in the process. No other
// component stops or closes a timer it did not acquire here.
package registry

import (
	"fmt"
	"sync"

	"autosaved/internal/clock"
	"autosaved/internal/host"
	"autosaved/pkg/logx"
)

// KeyKind discriminates the registry keyspaces so an entity id can
// never collide with the sweep sentinel or a throttle label.
type KeyKind uint8

const (
	KindEntity KeyKind = iota
	KindSweep
	KindThrottle
)

// Key addresses one timer slot.
type Key struct {
	Kind   KeyKind
	Entity host.EntityID // KindEntity only
	Label  string        // KindThrottle only
}

func EntityKey(id host.EntityID) Key { return Key{Kind: KindEntity, Entity: id} }
func SweepKey() Key                  { return Key{Kind: KindSweep} }
func ThrottleKey(label string) Key   { return Key{Kind: KindThrottle, Label: label} }

func (k Key) String() string {
	switch k.Kind {
	case KindEntity:
		return fmt.Sprintf("entity:%d", k.Entity)
	case KindSweep:
		return "sweep"
	case KindThrottle:
		return "throttle:" + k.Label
	default:
		return fmt.Sprintf("key(%d)", k.Kind)
	}
}

// Registry maps keys to live timers. It is the single source of truth
// for "is there pending work under this key".
type Registry struct {
	factory clock.Factory
	log     logx.Logger

	mu     sync.Mutex
	timers map[Key]clock.Timer
}

func New(factory clock.Factory, log logx.Logger) *Registry {
	return &Registry{
		factory: factory,
		log:     log,
		timers:  map[Key]clock.Timer{},
	}
}

// Acquire returns the timer registered under key, allocating a fresh
// stopped one if absent. A timer that closed itself out from under its
// key is replaced, not returned.
func (r *Registry) Acquire(key Key) (clock.Timer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[key]; ok && !t.IsClosing() {
		return t, nil
	}
	t, err := r.factory.NewTimer()
	if err != nil {
		return nil, fmt.Errorf("registry: acquire %s: %w", key, err)
	}
	r.timers[key] = t
	return t, nil
}

// Lookup returns the live timer under key without allocating.
func (r *Registry) Lookup(key Key) (clock.Timer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[key]
	if !ok || t.IsClosing() {
		return nil, false
	}
	return t, true
}

// Pending reports whether a running timer exists under key.
func (r *Registry) Pending(key Key) bool {
	t, ok := r.Lookup(key)
	return ok && t.IsActive()
}

// StopAndDispose stops and closes the timer under key, if any, and
// removes the mapping. Safe to call for absent keys and for timers that
// already fired.
func (r *Registry) StopAndDispose(key Key) {
	r.mu.Lock()
	t, ok := r.timers[key]
	if ok {
		delete(r.timers, key)
	}
	r.mu.Unlock()

	if ok {
		t.Stop()
		t.Close()
	}
}

// StopAll stops every timer but keeps the mappings; timers stay
// reusable for a later enable.
func (r *Registry) StopAll() {
	for _, t := range r.snapshot() {
		t.Stop()
	}
}

// DisposeAll closes every timer and clears the registry. Only the full
// shutdown path calls this.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	timers := r.timers
	r.timers = map[Key]clock.Timer{}
	r.mu.Unlock()

	for key, t := range timers {
		t.Stop()
		t.Close()
		r.log.Debug("registry: disposed timer", logx.String("key", key.String()))
	}
}

// Len returns the number of tracked timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *Registry) snapshot() []clock.Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]clock.Timer, 0, len(r.timers))
	for _, t := range r.timers {
		out = append(out, t)
	}
	return out
}
