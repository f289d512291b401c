package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// End-to-end: a file written into the watched directory is snapshotted
// after the defer delay, with no trigger calls from the test.
func TestAppAutosavesChangedFile(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end test")
	}

	watchDir := t.TempDir()
	snapDir := filepath.Join(t.TempDir(), "snaps")
	cfgPath := filepath.Join(t.TempDir(), "autosaved.yaml")

	cfg := fmt.Sprintf(`
logging:
  level: error
  console: true
autosave:
  throttle: 0s
  defer: 400ms
  interval: 1m
watch:
  dir: %s
  snapshot_dir: %s
`, watchDir, snapDir)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx)
	}()

	// Let the directory watcher attach before producing events.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(watchDir, "notes.txt"), []byte("draft"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap := filepath.Join(snapDir, "notes.txt")
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(snap); err == nil {
			if string(b) != "draft" {
				t.Fatalf("snapshot content = %q", b)
			}
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("timed out waiting for snapshot")
}
