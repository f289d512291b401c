// Package journal records commit attempts for later inspection.
//
// Backends:
//   - "file": dependency-free JSON Lines file with periodic compaction
//   - "sqlite": SQLite database file (build with -tags sqlite)
//
// The journal is best-effort: append failures are logged by callers,
// never surfaced into scheduling decisions.
package journal
