// Package notify is the progress/status sink the engine reports into.
// The engine calls it unconditionally; wiring decides whether anything
// is rendered.
package notify

import (
	"golang.org/x/time/rate"

	"autosaved/pkg/logx"
)

// Sink receives progress notifications. Implementations must be cheap
// and non-blocking; the engine calls them from scheduling paths.
type Sink interface {
	Begin(title, message string)
	Report(title, message string)
	End(title, message string)
}

// Nop returns a sink that discards everything.
func Nop() Sink { return nopSink{} }

type nopSink struct{}

func (nopSink) Begin(string, string)  {}
func (nopSink) Report(string, string) {}
func (nopSink) End(string, string)    {}

// NewLogger returns a sink that renders notifications as log lines:
// Begin/End at debug, Report at info (reports carry warnings and
// failures worth surfacing).
func NewLogger(log logx.Logger) Sink { return &logSink{log: log} }

type logSink struct{ log logx.Logger }

func (s *logSink) Begin(title, message string) {
	s.log.Debug("progress begin", logx.String("title", title), logx.String("msg", message))
}

func (s *logSink) Report(title, message string) {
	s.log.Info("progress", logx.String("title", title), logx.String("msg", message))
}

func (s *logSink) End(title, message string) {
	s.log.Debug("progress end", logx.String("title", title), logx.String("msg", message))
}

// RateLimited caps Report traffic at perSec per second, dropping the
// excess. Begin and End always pass so progress brackets stay balanced.
func RateLimited(next Sink, perSec int) Sink {
	if perSec <= 0 {
		perSec = 1
	}
	return &limitedSink{next: next, lim: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

type limitedSink struct {
	next Sink
	lim  *rate.Limiter
}

func (s *limitedSink) Begin(title, message string) { s.next.Begin(title, message) }

func (s *limitedSink) Report(title, message string) {
	if !s.lim.Allow() {
		return
	}
	s.next.Report(title, message)
}

func (s *limitedSink) End(title, message string) { s.next.End(title, message) }
