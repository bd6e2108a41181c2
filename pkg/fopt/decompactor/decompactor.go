// Package decompactor extracts catalogued archives, either into a scratch
// area for viewing or back next to the original file.
package decompactor

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
	"github.com/jamesainslie/fopt/pkg/fopt/opener"
	"github.com/jamesainslie/fopt/pkg/fopt/scratch"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// Errors returned by the Service.
var (
	ErrUnknownArchive = errors.New("unknown archive")
	ErrExtraction     = errors.New("extraction failed")
)

// Catalog looks up compaction records.
type Catalog interface {
	Get(name string) (catalog.Record, bool)
}

// Service extracts archives. The catalog is only read, never changed.
type Service struct {
	catalog Catalog
	index   *scratch.Index
	dir     string
	opener  opener.Opener
	now     func() time.Time
	log     *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time recorded for extractions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service that extracts into scratchDir and launches files
// with op. A nil op disables launching.
func New(cat Catalog, index *scratch.Index, scratchDir string, op opener.Opener, opts ...Option) *Service {
	if op == nil {
		op = opener.Noop{}
	}
	s := &Service{
		catalog: cat,
		index:   index,
		dir:     scratchDir,
		opener:  op,
		now:     time.Now,
		log:     logging.Get("decompactor"),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScratchDir returns the directory extractions are written to.
func (s *Service) ScratchDir() string {
	return s.dir
}

// lock serializes work on one archive.
func (s *Service) lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Open extracts the archive into the scratch area and launches it. A copy
// extracted earlier is reused while both it and the archive still exist. originalName names the
// extracted file; when empty the name stored in the archive is used.
func (s *Service) Open(ctx context.Context, archiveName, originalName string) (types.OpenResult, error) {
	rec, ok := s.catalog.Get(archiveName)
	if !ok {
		return s.fail(archiveName, fmt.Errorf("%w: %s", ErrUnknownArchive, archiveName))
	}

	unlock := s.lock(archiveName)
	defer unlock()

	if _, err := os.Stat(rec.ArchivePath); err != nil {
		return s.fail(archiveName, fmt.Errorf("%w: archive unavailable: %v", ErrExtraction, err))
	}

	if prev, err := s.index.Get(archiveName); err == nil {
		if _, statErr := os.Stat(prev.ScratchPath); statErr == nil {
			s.log.Info("reusing extracted copy", "archive", archiveName, "path", prev.ScratchPath)
			return s.launch(ctx, prev.ScratchPath, "File opened from earlier extraction")
		}
	} else if !errors.Is(err, scratch.ErrNotFound) {
		s.log.Warn("reading scratch index", "archive", archiveName, "error", err)
	}

	name := ""
	if originalName != "" {
		name = filepath.Base(originalName)
	}
	dir := filepath.Join(s.dir, archiveName)
	path, err := s.extract(ctx, rec.ArchivePath, dir, name, false)
	if err != nil {
		return s.fail(archiveName, err)
	}

	if err := s.index.Put(scratch.Entry{ArchiveName: archiveName, ScratchPath: path, ExtractedAt: s.now()}); err != nil {
		s.log.Warn("recording extraction", "archive", archiveName, "error", err)
	}
	s.log.Info("archive extracted", "archive", archiveName, "path", path)

	return s.launch(ctx, path, "File opened")
}

func (s *Service) launch(ctx context.Context, path, msg string) (types.OpenResult, error) {
	if err := s.opener.Open(ctx, path); err != nil {
		s.log.Warn("launching extracted file", "path", path, "error", err)
		return types.OpenResult{
			Success: false,
			Path:    path,
			Message: fmt.Sprintf("Extracted to %s but could not open it: %v", path, err),
		}, err
	}
	return types.OpenResult{Success: true, Path: path, Message: msg}, nil
}

// Restore extracts the archive next to the file it was made from. If a file
// already exists at the original path, "-restored" (then "-restored-1" and
// so on) is added before the extension.
func (s *Service) Restore(ctx context.Context, archiveName string) (types.OpenResult, error) {
	rec, ok := s.catalog.Get(archiveName)
	if !ok {
		return s.fail(archiveName, fmt.Errorf("%w: %s", ErrUnknownArchive, archiveName))
	}

	unlock := s.lock(archiveName)
	defer unlock()

	path, err := s.extract(ctx, rec.ArchivePath, filepath.Dir(rec.OriginalPath), filepath.Base(rec.OriginalPath), true)
	if err != nil {
		return s.fail(archiveName, err)
	}
	s.log.Info("archive restored", "archive", archiveName, "path", path)
	return types.OpenResult{Success: true, Path: path, Message: "Restored to " + path}, nil
}

// extract writes the archive's entry into dir via a temp file and rename.
// An empty name uses the entry name. With keep set an existing file is
// never replaced.
func (s *Service) extract(ctx context.Context, archivePath, dir, name string, keep bool) (string, error) {
	entry, err := archive.Inspect(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = entry.Name
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", ErrExtraction, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := archive.Extract(ctx, archivePath, tmp); err != nil {
		cleanup()
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if !entry.Modified.IsZero() {
		_ = os.Chtimes(tmpName, entry.Modified, entry.Modified)
	}

	dest := filepath.Join(dir, name)
	if keep {
		dest = freeName(dest)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return dest, nil
}

func freeName(path string) string {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	candidate := stem + "-restored" + ext
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-restored-%d%s", stem, i, ext)
	}
}

func (s *Service) fail(archiveName string, err error) (types.OpenResult, error) {
	s.log.Warn("decompaction failed", "archive", archiveName, "error", err)
	return types.OpenResult{Success: false, Message: err.Error()}, err
}

// CleanupScratch removes extracted copies made before cutoff and forgets
// index entries whose copy is already gone. It returns how many copies were
// removed.
func (s *Service) CleanupScratch(cutoff time.Time) (int, error) {
	entries, err := s.index.List()
	if err != nil {
		return 0, fmt.Errorf("listing scratch index: %w", err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		_, statErr := os.Stat(e.ScratchPath)
		switch {
		case errors.Is(statErr, os.ErrNotExist):
		case e.ExtractedAt.Before(cutoff):
			if err := os.Remove(e.ScratchPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
			_ = os.Remove(filepath.Dir(e.ScratchPath))
			removed++
		default:
			continue
		}
		if err := s.index.Delete(e.ArchiveName); err != nil {
			errs = append(errs, err)
		}
	}

	if removed > 0 {
		s.log.Info("scratch cleaned", "removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	}
	return removed, errors.Join(errs...)
}
