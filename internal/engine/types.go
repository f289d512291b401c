package engine

import (
	"fmt"
	"strings"
	"time"

	"autosaved/internal/conditions"
	"autosaved/internal/eventbus"
	"autosaved/internal/host"
	"autosaved/internal/journal"
	"autosaved/internal/notify"
	"autosaved/internal/registry"
	"autosaved/pkg/logx"
)

// Hook is a user lifecycle callback. Hooks should be total functions;
// a panicking hook is recovered and logged so it cannot corrupt
// scheduling for other entities.
type Hook func(id host.EntityID)

// Hooks bundles the configurable lifecycle callbacks. Any of them may
// be nil.
type Hooks struct {
	OnImmediate     Hook
	OnImmediateDone Hook
	OnDeferred      Hook
	OnDeferredDone  Hook
	OnCancel        Hook
	OnSave          Hook
	OnSaveDone      Hook
}

// EventMap assigns host event classes to trigger kinds. A class may
// appear under at most one kind.
type EventMap struct {
	Immediate []string
	Deferred  []string
	Cancel    []string
}

// Config is the resolved scheduling configuration. It is read-only
// after New; changing it means building a new scheduler.
type Config struct {
	Events     EventMap
	Conditions []conditions.Predicate
	Hooks      Hooks

	// ThrottleWindow rate-limits the immediate and deferred event
	// handlers. Zero disables throttling.
	ThrottleWindow time.Duration
	// DeferDelay is the countdown armed by a deferred trigger.
	DeferDelay time.Duration
	// SweepInterval is the recurring re-evaluation period. Ignored when
	// SweepSpec is set.
	SweepInterval time.Duration
	// SweepSpec optionally gives the sweep as a cron expression.
	SweepSpec string
}

func (c Config) validate() error {
	if c.DeferDelay <= 0 {
		return fmt.Errorf("config: defer delay must be > 0")
	}
	if c.ThrottleWindow < 0 {
		return fmt.Errorf("config: throttle window must be >= 0")
	}
	if strings.TrimSpace(c.SweepSpec) == "" && c.SweepInterval <= 0 {
		return fmt.Errorf("config: sweep interval must be > 0 (or give a sweep spec)")
	}
	seen := map[string]string{}
	for kind, classes := range map[string][]string{
		"immediate": c.Events.Immediate,
		"deferred":  c.Events.Deferred,
		"cancel":    c.Events.Cancel,
	} {
		for _, class := range classes {
			class = strings.TrimSpace(class)
			if class == "" {
				return fmt.Errorf("config: empty event class under %s", kind)
			}
			if prev, dup := seen[class]; dup && prev != kind {
				return fmt.Errorf("config: event class %q mapped to both %s and %s", class, prev, kind)
			}
			seen[class] = kind
		}
	}
	return nil
}

// Deps are the external collaborators the scheduler runs against.
// Host, Events and Registry are required; Notifier, Bus and Journal
// default to no-op / fresh instances.
type Deps struct {
	Host     host.Host
	Events   host.Events
	Registry *registry.Registry
	Notifier notify.Sink
	Bus      eventbus.Bus
	Journal  journal.Store
	Log      logx.Logger
}

func (d *Deps) fillDefaults() error {
	if d.Host == nil {
		return fmt.Errorf("config: host is required")
	}
	if d.Events == nil {
		return fmt.Errorf("config: events source is required")
	}
	if d.Registry == nil {
		return fmt.Errorf("config: timer registry is required")
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.New()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return nil
}

type entityState uint8

const (
	stateIdle entityState = iota
	statePending
	stateCommitting
)
