// Package app wires the daemon: config, logging, journal, the
// directory host and the scheduling engine, plus live reconfiguration
// when the config file changes.
package app

import (
	"context"
	"fmt"
	"sync"

	"autosaved/internal/clock"
	"autosaved/internal/config"
	"autosaved/internal/debugsrv"
	"autosaved/internal/engine"
	"autosaved/internal/eventbus"
	"autosaved/internal/fshost"
	"autosaved/internal/journal"
	"autosaved/internal/notify"
	"autosaved/internal/registry"
	"autosaved/internal/supervisor"
	logx "autosaved/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	clk   *clock.System
	reg   *registry.Registry
	bus   eventbus.Bus
	store journal.Store
	watch *fshost.Watcher
	debug *debugsrv.Service

	mu    sync.Mutex
	sched *engine.Scheduler

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	resolved, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		_, err := config.Resolve(c)
		return err
	})

	store, err := journal.Open(resolved.Journal, log.With(logx.String("comp", "journal")))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	watch, err := fshost.New(fshost.Options{
		Dir:         cfg.Watch.Dir,
		SnapshotDir: cfg.Watch.SnapshotDir,
		IgnoreExts:  cfg.Watch.IgnoreExts,
		Log:         log.With(logx.String("comp", "fshost")),
	})
	if err != nil {
		return nil, err
	}

	clk := clock.NewSystem(log.With(logx.String("comp", "clock")))
	reg := registry.New(clk, log.With(logx.String("comp", "registry")))
	bus := eventbus.New()

	var debug *debugsrv.Service
	if cfg.Debug != nil {
		debug = debugsrv.New(debugsrv.Config{
			Enabled:     cfg.Debug.Enabled,
			Addr:        cfg.Debug.Addr,
			AllowRemote: cfg.Debug.AllowRemote,
		}, log.With(logx.String("comp", "debug")))
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		clk:     clk,
		reg:     reg,
		bus:     bus,
		store:   store,
		watch:   watch,
		debug:   debug,
	}
	if err := a.buildScheduler(resolved); err != nil {
		return nil, err
	}
	return a, nil
}

// Bus exposes the lifecycle event stream (save.ok, save.failed, ...)
// for embedders and tests.
func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) buildScheduler(r *config.Resolved) error {
	sink := notify.RateLimited(
		notify.NewLogger(a.log.With(logx.String("comp", "notify"))),
		r.NotifyRatePerSec,
	)
	sched, err := engine.New(engine.Deps{
		Host:     a.watch,
		Events:   a.watch,
		Registry: a.reg,
		Notifier: sink,
		Bus:      a.bus,
		Journal:  a.store,
		Log:      a.log.With(logx.String("comp", "engine")),
	}, r.Engine)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.sched = sched
	a.mu.Unlock()
	return nil
}

// Start launches the directory watcher, the config watcher, the debug
// server and the scheduler. It returns once everything is running.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	// Directory watching must survive transient fsnotify failures.
	a.sup.GoRestart("fshost.watch", a.watch.Run, supervisor.RestartPolicy{})
	a.sup.Go("config.watch", a.cfgm.Watch)

	updates := a.cfgm.Subscribe(1)
	a.sup.Go("config.reload", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				a.reconfigure(cfg)
			}
		}
	})

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go("bus.log", func(ctx context.Context) error {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				a.logBusEvent(ev)
			}
		}
	})

	if a.debug != nil {
		if err := a.debug.Start(a.sup.Context()); err != nil {
			a.log.Warn("debug server not started", logx.Err(err))
		}
	}

	a.mu.Lock()
	sched := a.sched
	a.mu.Unlock()
	if err := sched.Enable(); err != nil {
		a.sup.Cancel()
		return err
	}
	a.log.Info("autosave running", logx.String("config", a.cfgPath))
	return nil
}

// logBusEvent mirrors scheduler lifecycle events into the operator log.
// Failures are warnings; everything else stays at debug.
func (a *App) logBusEvent(ev eventbus.Event) {
	data, _ := ev.Data.(eventbus.SaveData)
	fields := []logx.Field{
		logx.Int64("entity", int64(data.Entity)),
		logx.String("name", data.Name),
	}
	switch ev.Type {
	case eventbus.TypeSaveFailed:
		a.log.Warn("save failed", append(fields, logx.String("err", data.Err))...)
	case eventbus.TypeSaveOK:
		a.log.Debug("saved", fields...)
	case eventbus.TypeSaveCancelled:
		a.log.Debug("save cancelled", fields...)
	case eventbus.TypeDeferred:
		a.log.Debug("save deferred", fields...)
	}
}

// reconfigure tears down the current scheduler and builds a fresh one
// from the already-validated config. Logging is re-applied in place.
func (a *App) reconfigure(cfg *config.Config) {
	r, err := config.Resolve(cfg)
	if err != nil {
		// The watch validator resolves before publishing, so this is a bug.
		a.log.Error("reload resolve failed", logx.Err(err))
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.mu.Lock()
	old := a.sched
	a.mu.Unlock()
	old.Shutdown()

	if err := a.buildScheduler(r); err != nil {
		a.log.Error("reload failed; scheduler stopped", logx.Err(err))
		return
	}
	a.mu.Lock()
	sched := a.sched
	a.mu.Unlock()
	if err := sched.Enable(); err != nil {
		a.log.Error("reload enable failed", logx.Err(err))
		return
	}
	a.log.Info("configuration reloaded")
}

// Stop shuts the scheduler down, stops the watchers and closes the
// journal and log sinks.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	sched := a.sched
	a.mu.Unlock()
	if sched != nil {
		sched.Shutdown()
	}
	if a.debug != nil {
		a.debug.Stop(ctx)
	}

	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && ctx.Err() != nil {
			a.log.Warn("shutdown timed out waiting for watchers")
		} else if err != nil {
			a.log.Warn("watcher reported error during run", logx.Err(err))
		}
	}

	a.clk.Close()
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
	return nil
}
