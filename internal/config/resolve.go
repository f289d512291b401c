package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"autosaved/internal/conditions"
	"autosaved/internal/engine"
	"autosaved/internal/journal"
)

const (
	defaultThrottle   = 2 * time.Second
	defaultDefer      = 1 * time.Second
	defaultInterval   = 30 * time.Second
	defaultNotifyRate = 2
)

// Resolved is the fully-validated runtime view of a Config. Building
// it is the only place duration strings, condition names and cron
// specs are interpreted; past this point everything is typed.
type Resolved struct {
	Engine           engine.Config
	Journal          journal.Config
	NotifyRatePerSec int
}

// Resolve validates cfg and produces the typed runtime configuration.
// It fails on the first invalid field and mutates nothing.
func Resolve(cfg *Config) (*Resolved, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config: nil")
	}

	// An explicit "0s" disables throttling, so the default applies
	// only when the field is absent.
	throttle := defaultThrottle
	if strings.TrimSpace(cfg.Autosave.Throttle) != "" {
		d, err := ParseDurationField("autosave.throttle", cfg.Autosave.Throttle)
		if err != nil {
			return nil, err
		}
		throttle = d
	}
	deferDelay, err := ParseDurationOrDefault("autosave.defer", cfg.Autosave.Defer, defaultDefer)
	if err != nil {
		return nil, err
	}
	interval, err := ParseDurationOrDefault("autosave.interval", cfg.Autosave.Interval, defaultInterval)
	if err != nil {
		return nil, err
	}

	spec := strings.TrimSpace(cfg.Autosave.IntervalSpec)
	if spec != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(spec); err != nil {
			return nil, fmt.Errorf("autosave.interval_spec: %w", err)
		}
	}

	specs := cfg.Autosave.Conditions
	if len(specs) == 0 {
		specs = []ConditionConfig{{Name: "named"}, {Name: "file_exists"}}
	}
	preds := make([]conditions.Predicate, 0, len(specs))
	for i, cc := range specs {
		p, err := conditions.FromSpec(cc.Name, cc.Args)
		if err != nil {
			return nil, fmt.Errorf("autosave.conditions[%d]: %w", i, err)
		}
		preds = append(preds, p)
	}

	events := engine.EventMap{
		Immediate: cfg.Autosave.Events.Immediate,
		Deferred:  cfg.Autosave.Events.Deferred,
		Cancel:    cfg.Autosave.Events.Cancel,
	}
	if len(events.Immediate)+len(events.Deferred)+len(events.Cancel) == 0 {
		// fshost defaults: debounce content changes, cancel on removal.
		events = engine.EventMap{Deferred: []string{"changed"}, Cancel: []string{"removed"}}
	}

	rate := cfg.Autosave.NotifyRatePerSec
	if rate <= 0 {
		rate = defaultNotifyRate
	}

	r := &Resolved{
		Engine: engine.Config{
			Events:         events,
			Conditions:     preds,
			ThrottleWindow: throttle,
			DeferDelay:     deferDelay,
			SweepInterval:  interval,
			SweepSpec:      spec,
		},
		NotifyRatePerSec: rate,
	}

	if cfg.Journal != nil {
		busy, err := ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout)
		if err != nil {
			return nil, err
		}
		r.Journal = journal.Config{
			Driver:      cfg.Journal.Driver,
			Path:        cfg.Journal.Path,
			BusyTimeout: busy,
		}
	}
	return r, nil
}
