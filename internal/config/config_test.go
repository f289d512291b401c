package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseBytesYAML(t *testing.T) {
	raw := []byte(`
logging:
  level: debug
  console: true
autosave:
  events:
    deferred: [text_changed]
    immediate: [focus_lost]
  conditions:
    - named
    - name: filetype_not
      args: [gitcommit]
  throttle: 3s
  defer: 500ms
journal:
  driver: file
  path: ./journal.jsonl
watch:
  dir: /tmp/notes
`)
	cfg, err := ParseBytes("cfg.yaml", raw)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if got := cfg.Autosave.Events.Deferred; len(got) != 1 || got[0] != "text_changed" {
		t.Fatalf("deferred events = %v", got)
	}
	if len(cfg.Autosave.Conditions) != 2 {
		t.Fatalf("conditions = %+v", cfg.Autosave.Conditions)
	}
	if cfg.Autosave.Conditions[0].Name != "named" {
		t.Fatalf("bare-string condition not normalized: %+v", cfg.Autosave.Conditions[0])
	}
	if c := cfg.Autosave.Conditions[1]; c.Name != "filetype_not" || len(c.Args) != 1 || c.Args[0] != "gitcommit" {
		t.Fatalf("object condition = %+v", c)
	}
	if cfg.Journal == nil || cfg.Journal.Driver != "file" {
		t.Fatalf("journal = %+v", cfg.Journal)
	}
	if cfg.Watch.Dir != "/tmp/notes" {
		t.Fatalf("watch dir = %q", cfg.Watch.Dir)
	}
}

func TestParseBytesRejectsUnknownField(t *testing.T) {
	raw := []byte("autosave:\n  defer: 1s\n  typo_field: true\n")
	if _, err := ParseBytes("cfg.yaml", raw); err == nil {
		t.Fatal("want error for unknown field")
	}
}

func TestParseBytesRejectsTrailingData(t *testing.T) {
	raw := []byte(`{"autosave":{}} {"logging":{}}`)
	if _, err := ParseBytes("cfg.json", raw); err == nil {
		t.Fatal("want error for trailing data")
	}
}

func TestConditionConfigRejectsUnknownKey(t *testing.T) {
	raw := []byte(`autosave:
  conditions:
    - name: named
      argz: [x]
`)
	if _, err := ParseBytes("cfg.yaml", raw); err == nil {
		t.Fatal("want error for unknown condition key")
	}
}

func TestResolveDefaults(t *testing.T) {
	r, err := Resolve(&Config{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Engine.ThrottleWindow != 2*time.Second {
		t.Fatalf("throttle = %v", r.Engine.ThrottleWindow)
	}
	if r.Engine.DeferDelay != time.Second {
		t.Fatalf("defer = %v", r.Engine.DeferDelay)
	}
	if r.Engine.SweepInterval != 30*time.Second {
		t.Fatalf("interval = %v", r.Engine.SweepInterval)
	}
	if r.NotifyRatePerSec != 2 {
		t.Fatalf("notify rate = %d", r.NotifyRatePerSec)
	}
	if len(r.Engine.Events.Deferred) == 0 || len(r.Engine.Events.Cancel) == 0 {
		t.Fatalf("default events = %+v", r.Engine.Events)
	}
	if len(r.Engine.Conditions) != 2 {
		t.Fatalf("default conditions = %d", len(r.Engine.Conditions))
	}
}

func TestResolveExplicitZeroThrottleDisables(t *testing.T) {
	cfg := &Config{}
	cfg.Autosave.Throttle = "0s"
	r, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Engine.ThrottleWindow != 0 {
		t.Fatalf("throttle = %v, want 0", r.Engine.ThrottleWindow)
	}
}

func TestResolveErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad duration", func(c *Config) { c.Autosave.Defer = "soon" }, "autosave.defer"},
		{"negative duration", func(c *Config) { c.Autosave.Throttle = "-1s" }, "autosave.throttle"},
		{"bad cron spec", func(c *Config) { c.Autosave.IntervalSpec = "not a spec" }, "interval_spec"},
		{"unknown condition", func(c *Config) {
			c.Autosave.Conditions = []ConditionConfig{{Name: "always"}}
		}, "conditions[0]"},
		{"bad journal timeout", func(c *Config) {
			c.Journal = &JournalConfig{Driver: "sqlite", Path: "j.db", BusyTimeout: "later"}
		}, "busy_timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			tc.mutate(cfg)
			_, err := Resolve(cfg)
			if err == nil {
				t.Fatal("want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestResolveCronSpecSweep(t *testing.T) {
	cfg := &Config{}
	cfg.Autosave.IntervalSpec = "*/5 * * * *"
	r, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Engine.SweepSpec != "*/5 * * * *" {
		t.Fatalf("spec = %q", r.Engine.SweepSpec)
	}
}

func TestManagerLoadCommitGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("autosave:\n  defer: 750ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Autosave.Defer != "750ms" {
		t.Fatalf("defer = %q", cfg.Autosave.Defer)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed snapshot")
	}
}

func TestManagerPublishDropsOldest(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got != second {
		t.Fatal("want newest config after overflow, got stale one")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra publish: %+v", extra)
	default:
	}
}

func TestManagerUnsubscribeCloses(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	// publishing after unsubscribe must not panic
	m.publish(&Config{})
}
