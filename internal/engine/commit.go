package engine

import (
	"context"
	"fmt"
	"time"

	"autosaved/internal/eventbus"
	"autosaved/internal/host"
	"autosaved/internal/journal"
	"autosaved/internal/registry"
	"autosaved/pkg/logx"
)

// commit is the single write path for both trigger kinds. Eligibility
// is re-checked here because the entity may have changed between
// scheduling and firing; a failed re-check (or a blocking edit mode)
// turns the commit into a cancel. Returns true only when the host
// write succeeded.
func (s *Scheduler) commit(id host.EntityID, deferred bool) bool {
	s.mu.Lock()
	if s.states[id] == stateCommitting {
		s.mu.Unlock()
		return false
	}
	if !s.chain.ShouldSave(id) || s.deps.Host.InBlockingEdit(id) {
		delete(s.states, id)
		s.mu.Unlock()

		s.deps.Registry.StopAndDispose(registry.EntityKey(id))
		s.runHook("on_cancel", s.cfg.Hooks.OnCancel, id)
		if deferred {
			s.deps.Notifier.End(progressTitle, fmt.Sprintf("save cancelled: %s", s.deps.Host.Name(id)))
		}
		s.publish(eventbus.TypeSaveCancelled, id, deferred, nil)
		return false
	}
	// Committing blocks new transitions for this entity until the
	// write returns; triggers arriving meanwhile are dropped.
	s.states[id] = stateCommitting
	s.mu.Unlock()

	s.runHook("on_save", s.cfg.Hooks.OnSave, id)
	start := time.Now()
	err := s.deps.Host.WriteEntity(id)
	took := time.Since(start)
	s.runHook("on_save_done", s.cfg.Hooks.OnSaveDone, id)

	name := s.deps.Host.Name(id)
	s.appendJournal(id, name, deferred, took, err)

	if err != nil {
		// No retries here; the notification layer owns surfacing this.
		s.log.Warn("save failed",
			logx.Int64("entity", int64(id)), logx.String("name", name), logx.Err(err))
		s.deps.Notifier.Report(progressTitle, fmt.Sprintf("save failed: %s: %v", name, err))
		s.publish(eventbus.TypeSaveFailed, id, deferred, err)
	} else {
		s.log.Debug("saved",
			logx.Int64("entity", int64(id)), logx.String("name", name),
			logx.Bool("deferred", deferred), logx.Duration("took", took))
		s.publish(eventbus.TypeSaveOK, id, deferred, nil)
		if deferred {
			s.runHook("on_deferred_done", s.cfg.Hooks.OnDeferredDone, id)
		}
	}
	if deferred {
		s.deps.Notifier.End(progressTitle, fmt.Sprintf("save finished: %s", name))
	}

	s.mu.Lock()
	delete(s.states, id)
	s.mu.Unlock()
	return err == nil
}

func (s *Scheduler) appendJournal(id host.EntityID, name string, deferred bool, took time.Duration, saveErr error) {
	if s.deps.Journal == nil {
		return
	}
	e := journal.Entry{
		At:       time.Now(),
		Entity:   id,
		Name:     name,
		Deferred: deferred,
		TookMS:   took.Milliseconds(),
	}
	if saveErr != nil {
		e.Error = saveErr.Error()
	}
	if err := s.deps.Journal.AppendSave(context.Background(), e); err != nil {
		s.log.Debug("journal append failed", logx.Err(err))
	}
}
