package journal

import (
	"errors"
	"time"

	"autosaved/internal/host"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the journal.
//
// Driver values:
//   - "file": JSON Lines file backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one commit attempt. Keep it compact and schema-stable.
type Entry struct {
	At       time.Time     `json:"at"`
	Entity   host.EntityID `json:"entity"`
	Name     string        `json:"name"`
	Deferred bool          `json:"deferred"`
	TookMS   int64         `json:"took_ms"`
	Error    string        `json:"error,omitempty"`
}
