package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Autosave controls the scheduling engine.
	Autosave AutosaveConfig `json:"autosave"`

	// Journal controls the optional commit-attempt journal.
	// If omitted, the journal is disabled.
	Journal *JournalConfig `json:"journal,omitempty"`

	// Watch controls the directory the daemon autosaves (fshost mode).
	Watch WatchConfig `json:"watch"`

	// Debug optionally enables the pprof server. Off when omitted.
	Debug *DebugConfig `json:"debug,omitempty"`
}

// DebugConfig controls the loopback pprof server.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// AllowRemote permits binding beyond loopback. The endpoints expose
	// process internals, so leave this off unless the network is trusted.
	AllowRemote bool `json:"allow_remote,omitempty"`
}

// AutosaveConfig is the scheduling surface.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - throttle: "2s"
//   - defer: "1s"
//   - interval: "30s"
//   - notify_rate_per_sec: 2
type AutosaveConfig struct {
	Events EventsConfig `json:"events"`

	// Conditions is the ordered eligibility list. Each entry is either a
	// bare condition name or {"name": ..., "args": [...]}.
	Conditions []ConditionConfig `json:"conditions,omitempty"`

	// Throttle is the event handler cooldown window. "0s" disables it.
	Throttle string `json:"throttle,omitempty"`
	// Defer is the countdown between a deferred trigger and its commit.
	Defer string `json:"defer,omitempty"`
	// Interval is the recurring sweep period. Ignored when IntervalSpec
	// is set.
	Interval string `json:"interval,omitempty"`
	// IntervalSpec optionally gives the sweep as a cron expression
	// (e.g. "*/5 * * * *").
	IntervalSpec string `json:"interval_spec,omitempty"`

	// NotifyRatePerSec caps progress report notifications per second.
	NotifyRatePerSec int `json:"notify_rate_per_sec,omitempty"`
}

// EventsConfig maps host event classes to trigger kinds. A class may
// appear under at most one kind.
type EventsConfig struct {
	Immediate []string `json:"immediate,omitempty"`
	Deferred  []string `json:"deferred,omitempty"`
	Cancel    []string `json:"cancel,omitempty"`
}

// ConditionConfig names one eligibility condition. In config files a
// bare string is shorthand for {"name": <string>}.
type ConditionConfig struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// UnmarshalJSON accepts both the bare-string and object forms, and
// disallows unknown object keys so typos are caught during reload.
func (c *ConditionConfig) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = ConditionConfig{Name: s}
		return nil
	}
	type tmp struct {
		Name string   `json:"name"`
		Args []string `json:"args,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	*c = ConditionConfig{Name: t.Name, Args: t.Args}
	return nil
}

// JournalConfig controls the commit journal.
//
// Example:
//
//	"journal": { "driver": "file", "path": "./autosaved_journal.jsonl" }
type JournalConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// WatchConfig controls the fshost daemon mode.
type WatchConfig struct {
	// Dir is the directory whose files become autosave entities.
	Dir string `json:"dir"`
	// SnapshotDir receives commit snapshots. Defaults to <dir>/.autosaved.
	SnapshotDir string `json:"snapshot_dir,omitempty"`
	// IgnoreExts lists file extensions to skip (e.g. [".swp", ".tmp"]).
	IgnoreExts []string `json:"ignore_exts,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
