package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/fopt/pkg/fopt/catalog"
)

// setupCatalog creates a catalog with one record per archive path and the
// archive files themselves.
func setupCatalog(t *testing.T, archives ...string) *catalog.Store {
	t.Helper()
	cat, err := catalog.OpenFile(filepath.Join(t.TempDir(), "catalog.json"))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	for _, a := range archives {
		if err := os.WriteFile(a, []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to create archive: %v", err)
		}
		rec := catalog.Record{OriginalPath: a + ".orig", ArchivePath: a}
		if err := cat.Upsert(rec); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	return cat
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSyncWatchesArchiveDirectories(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	cat := setupCatalog(t,
		filepath.Join(dirA, "one.fopt"),
		filepath.Join(dirA, "two.fopt"),
		filepath.Join(dirB, "three.fopt"),
	)

	w, err := New(cat, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	if err := w.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if got := w.Dirs(); len(got) != 2 {
		t.Fatalf("Dirs() = %v, want 2 directories", got)
	}

	if err := cat.Remove("three.fopt"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if got := w.Dirs(); len(got) != 1 || got[0] != dirA {
		t.Errorf("Dirs() after removal = %v, want [%s]", got, dirA)
	}
}

func TestDeletedArchiveRemovesRecord(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "movie.fopt")
	cat := setupCatalog(t, archive)

	removed := make(chan catalog.Record, 1)
	w, err := New(cat, func(rec catalog.Record) { removed <- rec })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.Remove(archive); err != nil {
		t.Fatalf("failed to remove archive: %v", err)
	}

	select {
	case rec := <-removed:
		if rec.ArchivePath != archive {
			t.Errorf("removed record = %q, want %q", rec.ArchivePath, archive)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("record was not removed after archive deletion")
	}
	if _, ok := cat.Get("movie.fopt"); ok {
		t.Error("catalog still holds the deleted archive")
	}
}

func TestRenamedArchiveRemovesRecord(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "disk.fopt")
	cat := setupCatalog(t, archive)

	w, err := New(cat, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()
	if err := w.Track(archive); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.Rename(archive, filepath.Join(dir, "elsewhere.bin")); err != nil {
		t.Fatalf("failed to rename archive: %v", err)
	}

	waitFor(t, func() bool {
		_, ok := cat.Get("disk.fopt")
		return !ok
	})
}

func TestUnrelatedEventsKeepRecords(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "keep.fopt")
	cat := setupCatalog(t, archive)

	w, err := New(cat, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	other := filepath.Join(dir, "other.txt")
	w.handleEvent(fsnotify.Event{Name: other, Op: fsnotify.Remove})
	w.handleEvent(fsnotify.Event{Name: archive, Op: fsnotify.Write})
	// still on disk
	w.handleEvent(fsnotify.Event{Name: archive, Op: fsnotify.Rename})

	if _, ok := cat.Get("keep.fopt"); !ok {
		t.Error("record removed for an archive that still exists")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := New(setupCatalog(t), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := w.Track("/tmp/x.fopt"); err != nil {
		t.Errorf("Track() after Close error = %v", err)
	}
}
