// Package compactor turns a single file into a .fopt archive next to it and
// records the archive in the catalog. The source file is never modified.
package compactor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jamesainslie/fopt/pkg/fopt/archive"
	"github.com/jamesainslie/fopt/pkg/fopt/catalog"
	"github.com/jamesainslie/fopt/pkg/fopt/logging"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// Errors returned by Compact.
var (
	ErrCompactionInProgress = errors.New("compaction already in progress for this file")
	ErrNotRegularFile       = errors.New("not a regular file")
	ErrSourceUnreadable     = errors.New("source file is not readable")
)

// Recorder stores the record of a finished compaction. Names already
// recorded are never reused for a new archive.
type Recorder interface {
	Get(name string) (catalog.Record, bool)
	Upsert(catalog.Record) error
}

// Engine compacts files. Compactions of distinct paths run in parallel;
// a second request for a path that is still being compacted is rejected.
type Engine struct {
	catalog Recorder
	now     func() time.Time
	log     *logging.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	reserved map[string]struct{} // archive base names
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time used for catalog records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine that records archives in cat.
func New(cat Recorder, opts ...Option) *Engine {
	e := &Engine{
		catalog:  cat,
		now:      time.Now,
		log:      logging.Get("compactor"),
		inflight: make(map[string]struct{}),
		reserved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compact writes path's content into a new archive in the same directory.
// The result is always populated; the error is non-nil exactly when the
// result reports failure and can be matched with errors.Is.
func (e *Engine) Compact(ctx context.Context, path string, onProgress archive.ProgressFunc) (types.CompactResult, error) {
	src, err := filepath.Abs(path)
	if err != nil {
		return e.fail(path, fmt.Errorf("resolving path: %w", err))
	}

	if !e.acquire(src) {
		return e.fail(src, fmt.Errorf("%w: %s", ErrCompactionInProgress, src))
	}
	defer e.release(src)

	info, err := os.Stat(src)
	if err != nil {
		return e.fail(src, fmt.Errorf("checking source: %w", err))
	}
	if !info.Mode().IsRegular() {
		return e.fail(src, fmt.Errorf("%w: %s", ErrNotRegularFile, src))
	}
	if err := checkReadable(src); err != nil {
		return e.fail(src, fmt.Errorf("%w: %v", ErrSourceUnreadable, err))
	}

	dest, err := e.reserve(src)
	if err != nil {
		return e.fail(src, err)
	}
	defer e.unreserve(dest)

	if err := e.write(ctx, src, dest, info, onProgress); err != nil {
		return e.fail(src, err)
	}

	rec := catalog.Record{OriginalPath: src, ArchivePath: dest, CreatedAt: e.now()}
	if err := e.catalog.Upsert(rec); err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			e.log.Warn("removing unrecorded archive", "archive", dest, "error", rmErr)
		}
		return e.fail(src, fmt.Errorf("recording archive: %w", err))
	}

	e.log.Info("file compacted", "source", src, "archive", dest, "size", info.Size())
	return types.CompactResult{
		Success:     true,
		ArchivePath: dest,
		Message:     fmt.Sprintf("%s compacted to %s", filepath.Base(src), filepath.Base(dest)),
	}, nil
}

// write compresses src into a temp file in dest's directory and renames it
// to dest once complete.
func (e *Engine) write(ctx context.Context, src, dest string, info os.FileInfo, onProgress archive.ProgressFunc) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := archive.Write(ctx, tmp, filepath.Base(src), in, info.ModTime(), onProgress)
	if err != nil {
		return err
	}
	if n != info.Size() {
		return fmt.Errorf("source changed while reading: read %d of %d bytes", n, info.Size())
	}
	if err = tmp.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("setting archive permissions: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing archive: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return nil
}

func (e *Engine) fail(src string, err error) (types.CompactResult, error) {
	e.log.Warn("compaction failed", "source", src, "error", err)
	return types.CompactResult{
		Success: false,
		Message: fmt.Sprintf("Could not compact %s: %v", filepath.Base(src), err),
	}, err
}

func (e *Engine) acquire(src string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[src]; busy {
		return false
	}
	e.inflight[src] = struct{}{}
	return true
}

func (e *Engine) release(src string) {
	e.mu.Lock()
	delete(e.inflight, src)
	e.mu.Unlock()
}

// ArchiveName returns the first candidate archive name for src.
func ArchiveName(src string) string {
	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(filepath.Dir(src), stem+archive.Extension)
}

// reserve picks a free archive name: stem.fopt, then stem-1.fopt, stem-2.fopt
// and so on. A name is free when no file of that name is in the directory,
// the catalog has no record under it and no other compaction holds it.
// Catalog keys are base names, so the check spans directories.
func (e *Engine) reserve(src string) (string, error) {
	first := ArchiveName(src)
	stem := strings.TrimSuffix(first, archive.Extension)

	e.mu.Lock()
	defer e.mu.Unlock()

	candidate := first
	for i := 1; ; i++ {
		free, err := e.free(candidate)
		if err != nil {
			return "", err
		}
		if free {
			e.reserved[filepath.Base(candidate)] = struct{}{}
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, archive.Extension)
	}
}

func (e *Engine) free(candidate string) (bool, error) {
	name := filepath.Base(candidate)
	if _, held := e.reserved[name]; held {
		return false, nil
	}
	if _, recorded := e.catalog.Get(name); recorded {
		return false, nil
	}
	_, err := os.Lstat(candidate)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking archive name: %w", err)
	}
	return false, nil
}

func (e *Engine) unreserve(dest string) {
	e.mu.Lock()
	delete(e.reserved, filepath.Base(dest))
	e.mu.Unlock()
}
