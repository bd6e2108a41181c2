// Package watcher keeps the catalog in step with archives that are deleted
// or renamed outside fopt.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/fopt/pkg/fopt/catalog"
	"github.com/jamesainslie/fopt/pkg/fopt/logging"
)

// Catalog is the part of the catalog store the watcher needs.
type Catalog interface {
	All() map[string]catalog.Record
	Remove(name string) error
}

// RemovedFunc is called after a record was dropped from the catalog.
type RemovedFunc func(rec catalog.Record)

// Watcher watches the directories holding cataloged archives. Watches are
// not recursive: only archive parent directories are added.
type Watcher struct {
	catalog   Catalog
	watcher   *fsnotify.Watcher
	onRemoved RemovedFunc
	log       *logging.Logger

	mu     sync.Mutex
	dirs   map[string]bool
	closed bool
}

// New creates a Watcher. Call Sync to add the current catalog's
// directories and Run to process events.
func New(cat Catalog, onRemoved RemovedFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		catalog:   cat,
		watcher:   fsw,
		onRemoved: onRemoved,
		log:       logging.Get("watcher"),
		dirs:      make(map[string]bool),
	}, nil
}

// Sync watches every directory that holds a cataloged archive and stops
// watching directories that no longer do.
func (w *Watcher) Sync() error {
	want := make(map[string]bool)
	for _, rec := range w.catalog.All() {
		want[filepath.Dir(rec.ArchivePath)] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	for dir := range w.dirs {
		if !want[dir] {
			_ = w.watcher.Remove(dir)
			delete(w.dirs, dir)
		}
	}

	var errs []error
	for dir := range want {
		if err := w.addLocked(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Track watches the directory of a newly written archive.
func (w *Watcher) Track(archivePath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.addLocked(filepath.Dir(archivePath))
}

func (w *Watcher) addLocked(dir string) error {
	if w.dirs[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		w.log.Warn("failed to add watch", "path", dir, "error", err)
		return err
	}
	w.dirs[dir] = true
	return nil
}

// Dirs returns the watched directories, sorted.
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// Run processes filesystem events until ctx is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

// handleEvent drops the catalog record of an archive that was removed or
// renamed away. A rename onto the same name leaves the file in place and
// keeps the record.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	name := filepath.Base(event.Name)
	rec, ok := w.catalog.All()[name]
	if !ok || filepath.Clean(rec.ArchivePath) != filepath.Clean(event.Name) {
		return
	}
	if _, err := os.Stat(rec.ArchivePath); !errors.Is(err, os.ErrNotExist) {
		return
	}

	if err := w.catalog.Remove(name); err != nil {
		w.log.Error("failed to remove catalog record", "archive", name, "error", err)
		return
	}
	w.log.Info("archive disappeared, record removed", "archive", name, "op", event.Op.String())

	if w.onRemoved != nil {
		w.onRemoved(rec)
	}
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.dirs = make(map[string]bool)
	return w.watcher.Close()
}
