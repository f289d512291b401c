package fshost

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"autosaved/internal/host"
)

func newWatcher(t *testing.T, opts Options) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	opts.Dir = dir
	w, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, dir
}

func seed(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeEvent(w *Watcher, path string) host.EntityID {
	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Write})
	return w.CurrentEntity()
}

func TestScanSeedsEntities(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, "notes.md", "hi")
	seed(t, dir, "draft.txt", "hi")
	seed(t, dir, "junk.swp", "hi")
	seed(t, dir, ".hidden", "hi")

	w, err := New(Options{Dir: dir, IgnoreExts: []string{"swp"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := len(w.ListEntities()); got != 2 {
		t.Fatalf("entities = %d, want 2 (swp and dotfile ignored)", got)
	}
	if w.CurrentEntity() != host.None {
		t.Fatal("no focus expected before any event")
	}
}

func TestWriteEventMarksModifiedAndFocuses(t *testing.T) {
	w, dir := newWatcher(t, Options{})
	path := seed(t, dir, "a.go", "package a")

	id := writeEvent(w, path)
	if id == host.None {
		t.Fatal("write event should set current entity")
	}
	if !w.IsValid(id) || !w.IsModified(id) {
		t.Fatal("entity should be valid and modified")
	}
	if w.Name(id) != "a.go" {
		t.Fatalf("name = %q", w.Name(id))
	}
	if w.Filetype(id) != "go" {
		t.Fatalf("filetype = %q", w.Filetype(id))
	}
}

func TestRemoveEventInvalidates(t *testing.T) {
	w, dir := newWatcher(t, Options{})
	path := seed(t, dir, "a.txt", "x")
	id := writeEvent(w, path)

	var removed []host.EntityID
	if _, err := w.Subscribe([]string{EventRemoved}, func(e host.EntityID) {
		removed = append(removed, e)
	}); err != nil {
		t.Fatal(err)
	}

	w.handle(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	if w.IsValid(id) || w.IsModified(id) {
		t.Fatal("removed entity should be invalid")
	}
	if w.CurrentEntity() != host.None {
		t.Fatal("focus should clear when the focused file is removed")
	}
	if len(removed) != 1 || removed[0] != id {
		t.Fatalf("removed events = %v", removed)
	}
	if len(w.ListEntities()) != 0 {
		t.Fatal("removed entity should not be listed")
	}
}

func TestIgnoredFilesEmitNothing(t *testing.T) {
	w, dir := newWatcher(t, Options{IgnoreExts: []string{".tmp"}})
	calls := 0
	if _, err := w.Subscribe([]string{EventChanged}, func(host.EntityID) { calls++ }); err != nil {
		t.Fatal(err)
	}
	w.handle(fsnotify.Event{Name: filepath.Join(dir, "scratch.tmp"), Op: fsnotify.Write})
	if calls != 0 {
		t.Fatal("ignored extension should not produce events")
	}
	if len(w.ListEntities()) != 0 {
		t.Fatal("ignored file should not become an entity")
	}
}

func TestWriteEntitySnapshots(t *testing.T) {
	snapDir := filepath.Join(t.TempDir(), "snaps")
	w, dir := newWatcher(t, Options{SnapshotDir: snapDir})
	path := seed(t, dir, "doc.md", "draft one")
	id := writeEvent(w, path)

	if err := w.WriteEntity(id); err != nil {
		t.Fatalf("WriteEntity: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(snapDir, "doc.md"))
	if err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	if string(got) != "draft one" {
		t.Fatalf("snapshot content = %q", got)
	}
	if w.IsModified(id) {
		t.Fatal("commit should clear the modified flag")
	}
	if err := w.WriteEntity(9999); err != host.ErrInvalidEntity {
		t.Fatalf("unknown entity err = %v", err)
	}
}

func TestInBlockingEditSettleWindow(t *testing.T) {
	w, dir := newWatcher(t, Options{})
	path := seed(t, dir, "a.txt", "x")

	now := time.Unix(1000, 0)
	w.now = func() time.Time { return now }
	id := writeEvent(w, path)

	if !w.InBlockingEdit(id) {
		t.Fatal("fresh write should count as blocking")
	}
	now = now.Add(settleWindow + time.Millisecond)
	if w.InBlockingEdit(id) {
		t.Fatal("settled file should not be blocking")
	}
}

func TestUnsubscribeAllStopsDelivery(t *testing.T) {
	w, dir := newWatcher(t, Options{})
	path := seed(t, dir, "a.txt", "x")

	calls := 0
	sub, err := w.Subscribe([]string{EventChanged}, func(host.EntityID) { calls++ })
	if err != nil {
		t.Fatal(err)
	}
	writeEvent(w, path)
	w.UnsubscribeAll(sub)
	w.UnsubscribeAll(sub) // idempotent
	writeEvent(w, path)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRunDeliversRealEvents(t *testing.T) {
	w, dir := newWatcher(t, Options{})

	changed := make(chan host.EntityID, 8)
	if _, err := w.Subscribe([]string{EventChanged}, func(id host.EntityID) {
		changed <- id
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to attach before producing events.
	time.Sleep(100 * time.Millisecond)
	seed(t, dir, "live.txt", "hello")

	select {
	case id := <-changed:
		if w.Name(id) != "live.txt" {
			t.Fatalf("name = %q", w.Name(id))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
