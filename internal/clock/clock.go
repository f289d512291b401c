package clock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"autosaved/pkg/logx"
)

var (
	// ErrClosed is returned when starting a timer whose resources are
	// already released.
	ErrClosed = errors.New("clock: timer closed")
	// ErrFactoryClosed is returned by NewTimer after the factory shut down.
	ErrFactoryClosed = errors.New("clock: factory closed")
)

// Timer is a restartable countdown.
//
// Start with interval <= 0 arms a one-shot that fires once after delay.
// Start with interval > 0 arms a recurring timer firing every interval
// (first fire after one interval). StartSpec arms a recurring timer on a
// cron expression. Starting an already-running timer rearms it.
//
// After a one-shot fires, the timer is stopped but reusable. Close
// releases the underlying resource; a closed timer cannot be restarted.
type Timer interface {
	Start(delay, interval time.Duration, fn func()) error
	StartSpec(spec string, fn func()) error
	Stop()
	Close()
	IsActive() bool
	IsClosing() bool
}

// Factory allocates timers. NewTimer may fail when the host is out of
// timer resources; callers degrade the affected schedule to a no-op.
type Factory interface {
	NewTimer() (Timer, error)
}

// System is the production Factory. One cron runner carries every
// recurring timer; one-shots never touch it.
type System struct {
	log logx.Logger

	mu      sync.Mutex
	parser  cron.Parser
	c       *cron.Cron
	started bool
	closed  bool
}

func NewSystem(log logx.Logger) *System {
	return &System{
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *System) NewTimer() (Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrFactoryClosed
	}
	return &systemTimer{sys: s}, nil
}

// ValidateSpec reports whether spec parses under the factory's cron parser.
func (s *System) ValidateSpec(spec string) error {
	_, err := s.parser.Parse(spec)
	return err
}

// Close stops the cron runner. Timers already handed out become inert:
// running one-shots are not tracked here and should be closed by their
// owners first.
func (s *System) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	s.started = false
}

// addEntry registers fn on the shared cron runner, starting it lazily.
func (s *System) addEntry(spec string, fn func()) (cron.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrFactoryClosed
	}
	if s.c == nil {
		s.c = cron.New(cron.WithParser(s.parser))
	}
	id, err := s.c.AddFunc(spec, fn)
	if err != nil {
		return 0, err
	}
	if !s.started {
		s.c.Start()
		s.started = true
		s.log.Debug("clock: cron runner started")
	}
	return id, nil
}

func (s *System) removeEntry(id cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		s.c.Remove(id)
	}
}

type systemTimer struct {
	sys *System

	mu       sync.Mutex
	oneshot  *time.Timer
	entry    cron.EntryID
	hasEntry bool
	active   bool
	closed   bool
}

func (t *systemTimer) Start(delay, interval time.Duration, fn func()) error {
	if interval > 0 {
		return t.StartSpec(fmt.Sprintf("@every %s", interval.String()), fn)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.stopLocked()
	t.active = true
	t.oneshot = time.AfterFunc(delay, func() {
		t.mu.Lock()
		fire := t.active && !t.closed
		t.active = false
		t.mu.Unlock()
		if fire {
			fn()
		}
	})
	return nil
}

func (t *systemTimer) StartSpec(spec string, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.stopLocked()

	id, err := t.sys.addEntry(spec, func() {
		t.mu.Lock()
		fire := t.active && !t.closed
		t.mu.Unlock()
		if fire {
			fn()
		}
	})
	if err != nil {
		return err
	}
	t.entry = id
	t.hasEntry = true
	t.active = true
	return nil
}

func (t *systemTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *systemTimer) stopLocked() {
	t.active = false
	if t.oneshot != nil {
		t.oneshot.Stop()
		t.oneshot = nil
	}
	if t.hasEntry {
		t.sys.removeEntry(t.entry)
		t.hasEntry = false
	}
}

func (t *systemTimer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.stopLocked()
	t.closed = true
}

func (t *systemTimer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *systemTimer) IsClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
