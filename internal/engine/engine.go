package engine

import (
	"fmt"
	"sync"

	"autosaved/internal/conditions"
	"autosaved/internal/host"
	"autosaved/internal/registry"
	"autosaved/internal/throttle"
	"autosaved/pkg/logx"
)

const progressTitle = "autosave"

// Scheduler owns the per-entity state machine. One instance per
// process is the expected shape; nothing here is a package singleton.
type Scheduler struct {
	deps  Deps
	cfg   Config
	chain *conditions.Chain
	log   logx.Logger

	immediateGate *throttle.Gate
	deferredGate  *throttle.Gate

	mu       sync.Mutex
	states   map[host.EntityID]entityState
	subs     []host.Subscription
	enabled  bool
	shutDown bool
}

// New validates cfg and builds a scheduler. On error nothing is
// registered and no timer exists; the caller can fix the config and
// retry.
func New(deps Deps, cfg Config) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := deps.fillDefaults(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		deps:   deps,
		cfg:    cfg,
		chain:  conditions.NewChain(deps.Host, cfg.Conditions, deps.Log),
		log:    deps.Log.With(logx.String("component", "engine")),
		states: map[host.EntityID]entityState{},
	}
	s.immediateGate = throttle.New(deps.Registry, "immediate", cfg.ThrottleWindow, s.log)
	s.deferredGate = throttle.New(deps.Registry, "deferred", cfg.ThrottleWindow, s.log)
	return s, nil
}

// Enable (re)installs the event subscriptions and (re)starts the sweep
// timer, then immediately evaluates the focused entity for a deferred
// save. Calling Enable on an enabled scheduler re-wires cleanly.
func (s *Scheduler) Enable() error {
	s.mu.Lock()
	if s.shutDown {
		s.mu.Unlock()
		return fmt.Errorf("engine: already shut down")
	}
	s.unsubscribeLocked()

	type wiring struct {
		classes []string
		handler func(host.EntityID)
	}
	wirings := []wiring{
		{s.cfg.Events.Immediate, s.immediateGate.Wrap(s.immediate)},
		{s.cfg.Events.Deferred, s.deferredGate.Wrap(s.deferred)},
		{s.cfg.Events.Cancel, s.cancelEntity},
	}
	for _, w := range wirings {
		if len(w.classes) == 0 {
			continue
		}
		sub, err := s.deps.Events.Subscribe(w.classes, w.handler)
		if err != nil {
			s.unsubscribeLocked()
			s.mu.Unlock()
			return fmt.Errorf("engine: subscribe %v: %w", w.classes, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.enabled = true
	s.mu.Unlock()

	s.startSweep()

	// Kick the focused entity once so an already-dirty entity does not
	// have to wait for its next event.
	if id := s.deps.Host.CurrentEntity(); id != host.None {
		s.deferred(id)
	}

	s.log.Info("autosave enabled",
		logx.Duration("defer", s.cfg.DeferDelay),
		logx.Duration("throttle", s.cfg.ThrottleWindow),
		logx.Duration("sweep", s.cfg.SweepInterval),
		logx.String("sweep_spec", s.cfg.SweepSpec))
	return nil
}

// Disable removes event subscriptions and stops (without disposing)
// every timer, leaving them reusable for a later Enable.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	s.unsubscribeLocked()
	s.enabled = false
	// Pending entities fall back to idle; committing ones finish on
	// their own and reset themselves.
	for id, st := range s.states {
		if st == statePending {
			delete(s.states, id)
		}
	}
	s.mu.Unlock()

	s.deps.Registry.StopAll()
	s.log.Info("autosave disabled")
}

// Shutdown disables the scheduler and releases every timer resource.
// This is the only path that fully frees timers; call it before
// process exit. Safe to call more than once.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	already := s.shutDown
	s.shutDown = true
	s.mu.Unlock()

	s.Disable()
	s.deps.Registry.DisposeAll()
	if !already {
		s.log.Info("autosave shut down")
	}
}

func (s *Scheduler) unsubscribeLocked() {
	for _, sub := range s.subs {
		s.deps.Events.UnsubscribeAll(sub)
	}
	s.subs = nil
}

// startSweep arms the recurring sweep, reusing the registered sweep
// timer when one exists. Timer exhaustion degrades the sweep to a
// no-op with a warning instead of failing Enable.
func (s *Scheduler) startSweep() {
	t, err := s.deps.Registry.Acquire(registry.SweepKey())
	if err != nil {
		s.degrade("sweep", err)
		return
	}
	if s.cfg.SweepSpec != "" {
		err = t.StartSpec(s.cfg.SweepSpec, s.sweep)
	} else {
		err = t.Start(s.cfg.SweepInterval, s.cfg.SweepInterval, s.sweep)
	}
	if err != nil {
		s.degrade("sweep", err)
	}
}

// degrade reports a timer allocation failure through log and notifier;
// the named feature simply does not run.
func (s *Scheduler) degrade(what string, err error) {
	s.log.Warn("timer unavailable, feature degraded to no-op",
		logx.String("feature", what), logx.Err(err))
	s.deps.Notifier.Report(progressTitle, fmt.Sprintf("%s disabled: no timer available", what))
}

// runHook invokes a user hook behind a recover boundary.
func (s *Scheduler) runHook(name string, h Hook, id host.EntityID) {
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("hook panicked",
				logx.String("hook", name), logx.Int64("entity", int64(id)), logx.Any("panic", r))
		}
	}()
	h(id)
}
