package engine

import (
	"fmt"

	"autosaved/internal/eventbus"
	"autosaved/internal/host"
	"autosaved/internal/registry"
	"autosaved/pkg/logx"
)

// Immediate forces synchronous commit evaluation for the given entity
// (the focused one when omitted). Any pending deferred save for the
// entity is superseded first, eligible or not.
func (s *Scheduler) Immediate(ids ...host.EntityID) { s.immediate(s.resolve(ids)) }

// Deferred schedules a commit after the configured delay, replacing any
// countdown already running for the entity.
func (s *Scheduler) Deferred(ids ...host.EntityID) { s.deferred(s.resolve(ids)) }

// Cancel tears down the entity's pending deferred save, if any. Safe
// with nothing pending; a commit already in flight is not interrupted.
func (s *Scheduler) Cancel(ids ...host.EntityID) { s.cancelEntity(s.resolve(ids)) }

// Destroy is the host telling us an entity is gone: cancel pending
// work and drop every reference to it.
func (s *Scheduler) Destroy(id host.EntityID) {
	if id == host.None {
		return
	}
	s.log.Debug("entity destroyed", logx.Int64("entity", int64(id)))
	s.cancelEntity(id)
}

func (s *Scheduler) resolve(ids []host.EntityID) host.EntityID {
	if len(ids) > 0 {
		return ids[0]
	}
	return s.deps.Host.CurrentEntity()
}

func (s *Scheduler) immediate(id host.EntityID) {
	if id == host.None {
		return
	}
	key := registry.EntityKey(id)

	s.mu.Lock()
	if s.shutDown || !s.enabled || s.states[id] == stateCommitting {
		s.mu.Unlock()
		return
	}
	hadPending := s.deps.Registry.Pending(key)
	delete(s.states, id)
	s.mu.Unlock()

	// Immediate always supersedes a pending deferred save, even when
	// the entity turns out ineligible.
	s.deps.Registry.StopAndDispose(key)
	if hadPending {
		s.deps.Notifier.End(progressTitle, fmt.Sprintf("deferred save superseded: %s", s.deps.Host.Name(id)))
	}

	if !s.chain.ShouldSave(id) {
		return
	}
	s.runHook("on_immediate", s.cfg.Hooks.OnImmediate, id)
	if s.commit(id, false) {
		s.runHook("on_immediate_done", s.cfg.Hooks.OnImmediateDone, id)
	}
}

func (s *Scheduler) deferred(id host.EntityID) {
	if id == host.None {
		return
	}
	key := registry.EntityKey(id)

	s.mu.Lock()
	if s.shutDown || !s.enabled || s.states[id] == stateCommitting {
		s.mu.Unlock()
		return
	}

	// Retrigger before fire stops and reuses the same timer handle.
	if t, ok := s.deps.Registry.Lookup(key); ok {
		t.Stop()
	}
	if !s.chain.ShouldSave(id) {
		delete(s.states, id)
		s.mu.Unlock()
		return
	}

	t, err := s.deps.Registry.Acquire(key)
	if err != nil {
		delete(s.states, id)
		s.mu.Unlock()
		s.degrade("deferred save", err)
		return
	}
	if err := t.Start(s.cfg.DeferDelay, 0, func() { s.fireDeferred(id) }); err != nil {
		delete(s.states, id)
		s.mu.Unlock()
		s.degrade("deferred save", err)
		return
	}
	s.states[id] = statePending
	s.mu.Unlock()

	// Every (re)schedule is a fresh schedule: the hook and the progress
	// bracket open again even when the timer handle was reused.
	s.runHook("on_deferred", s.cfg.Hooks.OnDeferred, id)
	name := s.deps.Host.Name(id)
	s.deps.Notifier.Begin(progressTitle, fmt.Sprintf("save scheduled: %s", name))
	s.publish(eventbus.TypeDeferred, id, true, nil)
	s.log.Trace("deferred save scheduled",
		logx.Int64("entity", int64(id)), logx.Duration("delay", s.cfg.DeferDelay))
}

// fireDeferred runs when an entity countdown elapses. The slot is
// disposed on fire; a later deferred trigger allocates fresh.
func (s *Scheduler) fireDeferred(id host.EntityID) {
	s.mu.Lock()
	if s.shutDown || !s.enabled || s.states[id] != statePending {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.deps.Registry.StopAndDispose(registry.EntityKey(id))
	s.commit(id, true)
}

func (s *Scheduler) cancelEntity(id host.EntityID) {
	if id == host.None {
		return
	}
	key := registry.EntityKey(id)

	s.mu.Lock()
	if s.shutDown || s.states[id] == stateCommitting {
		// In-flight commits run to completion; only future scheduling
		// is affected.
		s.mu.Unlock()
		return
	}
	hadPending := s.deps.Registry.Pending(key)
	delete(s.states, id)
	s.mu.Unlock()

	s.deps.Registry.StopAndDispose(key)
	if !hadPending {
		return
	}
	s.runHook("on_cancel", s.cfg.Hooks.OnCancel, id)
	s.deps.Notifier.End(progressTitle, fmt.Sprintf("save cancelled: %s", s.deps.Host.Name(id)))
	s.publish(eventbus.TypeSaveCancelled, id, true, nil)
}

// sweep re-evaluates every known entity and issues a deferred trigger
// for each eligible one. Iteration order is whatever the host
// enumerates; only per-entity ordering is guaranteed.
func (s *Scheduler) sweep() {
	s.mu.Lock()
	run := s.enabled && !s.shutDown
	s.mu.Unlock()
	if !run {
		return
	}

	s.deps.Bus.Publish(eventbus.Event{Type: eventbus.TypeSweepTick})
	for _, id := range s.deps.Host.ListEntities() {
		if s.chain.ShouldSave(id) {
			s.deferred(id)
		}
	}
}

func (s *Scheduler) publish(typ string, id host.EntityID, deferred bool, err error) {
	data := eventbus.SaveData{Entity: id, Name: s.deps.Host.Name(id), Deferred: deferred}
	if err != nil {
		data.Err = err.Error()
	}
	s.deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}
