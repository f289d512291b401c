// Package fshost adapts a watched directory to the scheduler's host
// surface. Every regular file in the directory is an entity; fsnotify
// write events mark it modified and fan out as "changed" events, and a
// commit snapshots the file into the snapshot directory.
package fshost

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"autosaved/internal/host"
	logx "autosaved/pkg/logx"
)

// Event classes emitted to subscribers.
const (
	EventChanged = "changed"
	EventRemoved = "removed"
)

// settleWindow is how long after the last write event a file is
// considered mid-write. Snapshotting inside the window risks copying a
// half-flushed file, so the scheduler sees it as a blocking edit.
const settleWindow = 300 * time.Millisecond

type Options struct {
	// Dir is the watched directory. Only its direct children become
	// entities; subdirectories are ignored.
	Dir string
	// SnapshotDir receives commit snapshots. Defaults to Dir/.autosaved.
	SnapshotDir string
	// IgnoreExts lists extensions to skip, with or without the dot.
	IgnoreExts []string
	Log        logx.Logger
}

type entity struct {
	id       host.EntityID
	path     string
	exists   bool
	modified bool
	// lastWrite is the wall time of the newest write event.
	lastWrite time.Time
}

type subGroup struct {
	classes map[string]bool
	handler func(host.EntityID)
	active  bool
}

// Watcher implements host.Host and host.Events over one directory.
type Watcher struct {
	opts Options
	log  logx.Logger

	mu      sync.RWMutex
	byPath  map[string]*entity
	byID    map[host.EntityID]*entity
	nextID  host.EntityID
	current host.EntityID

	subsMu sync.Mutex
	subs   []*subGroup

	now func() time.Time
}

func New(opts Options) (*Watcher, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("fshost: watch dir not set")
	}
	if opts.SnapshotDir == "" {
		opts.SnapshotDir = filepath.Join(opts.Dir, ".autosaved")
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	w := &Watcher{
		opts:    opts,
		log:     log,
		byPath:  make(map[string]*entity),
		byID:    make(map[host.EntityID]*entity),
		current: host.None,
		now:     time.Now,
	}
	if err := w.scan(); err != nil {
		return nil, err
	}
	return w, nil
}

// scan seeds the entity table from the directory contents so a sweep
// sees pre-existing files before any fsnotify event arrives.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		return fmt.Errorf("fshost: scan %s: %w", w.opts.Dir, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.opts.Dir, e.Name())
		if w.ignored(path) {
			continue
		}
		w.upsertLocked(path)
	}
	return nil
}

func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, ig := range w.opts.IgnoreExts {
		ig = strings.ToLower(strings.TrimSpace(ig))
		if ig == "" {
			continue
		}
		if !strings.HasPrefix(ig, ".") {
			ig = "." + ig
		}
		if ext == ig {
			return true
		}
	}
	return false
}

func (w *Watcher) upsertLocked(path string) *entity {
	if ent, ok := w.byPath[path]; ok {
		ent.exists = true
		return ent
	}
	ent := &entity{id: w.nextID, path: path, exists: true}
	w.nextID++
	w.byPath[path] = ent
	w.byID[ent.id] = ent
	return ent
}

// Run watches the directory until ctx is cancelled. Events observed on
// watched files update entity state and fan out to subscribers.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fshost: watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.opts.Dir); err != nil {
		return fmt.Errorf("fshost: watch %s: %w", w.opts.Dir, err)
	}
	w.log.Info("watching directory", logx.String("dir", w.opts.Dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				w.log.Warn("watch error", logx.Err(err))
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}
	if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.mu.Lock()
		ent := w.upsertLocked(ev.Name)
		ent.modified = true
		ent.lastWrite = w.now()
		w.current = ent.id
		id := ent.id
		w.mu.Unlock()
		w.emit(EventChanged, id)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.mu.Lock()
		ent, ok := w.byPath[ev.Name]
		if !ok {
			w.mu.Unlock()
			return
		}
		ent.exists = false
		ent.modified = false
		if w.current == ent.id {
			w.current = host.None
		}
		id := ent.id
		w.mu.Unlock()
		w.emit(EventRemoved, id)
	}
}

// --- host.Host ---

func (w *Watcher) CurrentEntity() host.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) ListEntities() []host.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]host.EntityID, 0, len(w.byID))
	for id, ent := range w.byID {
		if ent.exists {
			ids = append(ids, id)
		}
	}
	return ids
}

// snap copies one entity's state under the read lock.
func (w *Watcher) snap(id host.EntityID) (entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ent, ok := w.byID[id]
	if !ok {
		return entity{}, false
	}
	return *ent, true
}

func (w *Watcher) IsValid(id host.EntityID) bool {
	ent, ok := w.snap(id)
	return ok && ent.exists
}

func (w *Watcher) IsModified(id host.EntityID) bool {
	ent, ok := w.snap(id)
	return ok && ent.exists && ent.modified
}

func (w *Watcher) Name(id host.EntityID) string {
	ent, ok := w.snap(id)
	if !ok {
		return ""
	}
	return filepath.Base(ent.path)
}

func (w *Watcher) HasErrors(id host.EntityID) bool { return false }

func (w *Watcher) FileExists(id host.EntityID) bool {
	ent, ok := w.snap(id)
	if !ok || !ent.exists {
		return false
	}
	_, err := os.Stat(ent.path)
	return err == nil
}

func (w *Watcher) Filetype(id host.EntityID) string {
	ent, ok := w.snap(id)
	if !ok {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(ent.path)), ".")
}

func (w *Watcher) InBlockingEdit(id host.EntityID) bool {
	ent, ok := w.snap(id)
	if !ok {
		return false
	}
	return !ent.lastWrite.IsZero() && w.now().Sub(ent.lastWrite) < settleWindow
}

// WriteEntity copies the file into the snapshot directory and clears
// the modified flag. One attempt; the caller owns failure policy.
func (w *Watcher) WriteEntity(id host.EntityID) error {
	ent, ok := w.snap(id)
	if !ok || !ent.exists {
		return host.ErrInvalidEntity
	}
	if err := os.MkdirAll(w.opts.SnapshotDir, 0o755); err != nil {
		return fmt.Errorf("fshost: snapshot dir: %w", err)
	}
	base := filepath.Base(ent.path)
	dst := filepath.Join(w.opts.SnapshotDir, base)
	if err := copyFile(ent.path, dst); err != nil {
		return fmt.Errorf("fshost: snapshot %s: %w", base, err)
	}

	w.mu.Lock()
	if live, ok := w.byID[id]; ok {
		live.modified = false
	}
	w.mu.Unlock()
	w.log.Debug("snapshot written", logx.String("file", base))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// --- host.Events ---

func (w *Watcher) Subscribe(classes []string, handler func(host.EntityID)) (host.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("fshost: nil handler")
	}
	g := &subGroup{classes: make(map[string]bool, len(classes)), handler: handler, active: true}
	for _, c := range classes {
		g.classes[c] = true
	}
	w.subsMu.Lock()
	w.subs = append(w.subs, g)
	w.subsMu.Unlock()
	return g, nil
}

func (w *Watcher) UnsubscribeAll(sub host.Subscription) {
	g, ok := sub.(*subGroup)
	if !ok || g == nil {
		return
	}
	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	g.active = false
	for i, s := range w.subs {
		if s == g {
			w.subs = append(w.subs[:i], w.subs[i+1:]...)
			break
		}
	}
}

func (w *Watcher) emit(class string, id host.EntityID) {
	w.subsMu.Lock()
	groups := make([]*subGroup, 0, len(w.subs))
	for _, g := range w.subs {
		if g.active && g.classes[class] {
			groups = append(groups, g)
		}
	}
	w.subsMu.Unlock()
	for _, g := range groups {
		g.handler(id)
	}
}
