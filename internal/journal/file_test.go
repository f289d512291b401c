package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"autosaved/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q): expected nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	entries := []Entry{
		{At: now.Add(-2 * time.Minute), Entity: 1, Name: "a.txt", Deferred: true, TookMS: 12},
		{At: now.Add(-1 * time.Minute), Entity: 2, Name: "b.txt", TookMS: 3, Error: "disk full"},
		{At: now, Entity: 1, Name: "a.txt", Deferred: true, TookMS: 8},
	}
	for _, e := range entries {
		if err := st.AppendSave(ctx, e); err != nil {
			t.Fatalf("AppendSave: %v", err)
		}
	}

	got, err := st.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[1].Error != "disk full" || got[1].Entity != 2 {
		t.Fatalf("unexpected middle entry: %+v", got[1])
	}
	if !got[2].Deferred || got[2].TookMS != 8 {
		t.Fatalf("unexpected last entry: %+v", got[2])
	}

	// Limit returns the newest tail.
	got, err = st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent(2): %v", err)
	}
	if len(got) != 2 || got[0].Entity != 2 {
		t.Fatalf("expected newest 2 entries, got %+v", got)
	}
}

func TestFileCompaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	st, err := openFile(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	defer st.Close()

	fs := st.(*fileStore)
	fs.maxKeep = 10

	ctx := context.Background()
	for i := 0; i < fileCompactEvery; i++ {
		e := Entry{At: time.Now(), Entity: 7, Name: "x.txt", TookMS: int64(i)}
		if err := fs.AppendSave(ctx, e); err != nil {
			t.Fatalf("AppendSave #%d: %v", i, err)
		}
	}

	got, err := fs.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected compaction down to 10 entries, got %d", len(got))
	}
	if got[len(got)-1].TookMS != int64(fileCompactEvery-1) {
		t.Fatalf("compaction must keep the newest entries, last=%+v", got[len(got)-1])
	}

	// Appends after compaction land in the reopened handle.
	if err := fs.AppendSave(ctx, Entry{At: time.Now(), Entity: 8, Name: "y.txt"}); err != nil {
		t.Fatalf("AppendSave after compact: %v", err)
	}
	got, _ = fs.Recent(ctx, 0)
	if got[len(got)-1].Entity != 8 {
		t.Fatalf("append after compact missing, got %+v", got[len(got)-1])
	}
}
