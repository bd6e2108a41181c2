// Package daemon wires the fopt engine into one Service and serves it over
// HTTP on a Unix socket for the foptd daemon. The CLI uses the same Service
// in-process when no daemon is running.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/jamesainslie/fopt/pkg/daemon/broadcaster"
	"github.com/jamesainslie/fopt/pkg/daemon/watcher"
	"github.com/jamesainslie/fopt/pkg/fopt/archive"
	"github.com/jamesainslie/fopt/pkg/fopt/catalog"
	"github.com/jamesainslie/fopt/pkg/fopt/compactor"
	"github.com/jamesainslie/fopt/pkg/fopt/config"
	"github.com/jamesainslie/fopt/pkg/fopt/decompactor"
	"github.com/jamesainslie/fopt/pkg/fopt/filter"
	"github.com/jamesainslie/fopt/pkg/fopt/folders"
	"github.com/jamesainslie/fopt/pkg/fopt/logging"
	"github.com/jamesainslie/fopt/pkg/fopt/manifest"
	"github.com/jamesainslie/fopt/pkg/fopt/opener"
	"github.com/jamesainslie/fopt/pkg/fopt/progress"
	"github.com/jamesainslie/fopt/pkg/fopt/scanner"
	"github.com/jamesainslie/fopt/pkg/fopt/scratch"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// ErrHistoryDisabled is returned by history operations when the manifest is
// turned off in the configuration.
var ErrHistoryDisabled = errors.New("operation history is disabled")

// Status reports the health of a Service.
type Status struct {
	Running       bool     `json:"running"`
	PID           int      `json:"pid"`
	Version       string   `json:"version,omitempty"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	MemoryBytes   int64    `json:"memory_bytes"`
	ActiveJob     string   `json:"active_job,omitempty"`
	Subscribers   int      `json:"subscribers"`
	Archives      int      `json:"archives"`
	WatchedDirs   []string `json:"watched_dirs,omitempty"`
}

// JobSnapshot is a scan job with its latest results.
type JobSnapshot struct {
	types.JobInfo
	Files []types.FileEntry `json:"files"`
}

// Service is the façade over the scanner, compaction engine, catalog and
// decompaction service.
type Service struct {
	cfg *config.Config

	folders     *folders.Enumerator
	scans       *scanner.Manager
	compactor   *compactor.Engine
	catalog     *catalog.Store
	scratch     *scratch.Index
	decompactor *decompactor.Service
	history     *manifest.Manifest
	broadcaster *broadcaster.Broadcaster
	watcher     *watcher.Watcher

	opener    opener.Opener
	now       func() time.Time
	version   string
	startTime time.Time
	log       *logging.Logger

	closeOnce sync.Once
}

// Option configures a Service.
type Option func(*Service)

// WithOpener replaces the opener chosen from the configuration.
func WithOpener(op opener.Opener) Option {
	return func(s *Service) {
		s.opener = op
	}
}

// WithEnumerator replaces the default folder enumerator.
func WithEnumerator(e *folders.Enumerator) Option {
	return func(s *Service) {
		s.folders = e
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithVersion sets the version reported by Status.
func WithVersion(v string) Option {
	return func(s *Service) {
		s.version = v
	}
}

// NewService opens the catalog, scratch index and history named by cfg and
// assembles a Service. Close releases them.
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:       cfg,
		now:       time.Now,
		startTime: time.Now(),
		log:       logging.Get("daemon"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.folders == nil {
		s.folders = folders.New()
	}
	if s.opener == nil {
		if cfg.Opener.Enabled {
			s.opener = opener.NewSystem()
		} else {
			s.opener = opener.Noop{}
		}
	}

	f, err := filter.New(filter.WithTypeGroups(cfg.Types...), filter.WithExclude(cfg.Exclude...))
	if err != nil {
		return nil, fmt.Errorf("building scan filter: %w", err)
	}

	catalogPath := orDefault(cfg.Catalog.Path, config.DefaultCatalogPath())
	s.catalog, err = catalog.OpenFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	s.scratch, err = scratch.Open(orDefault(cfg.Scratch.IndexPath, config.DefaultScratchIndexPath()))
	if err != nil {
		return nil, fmt.Errorf("opening scratch index: %w", err)
	}

	if cfg.Manifest.Enabled {
		s.history, err = manifest.New(orDefault(cfg.Manifest.Path, config.DefaultManifestDir()))
		if err != nil {
			_ = s.scratch.Close()
			return nil, fmt.Errorf("opening history: %w", err)
		}
	}

	s.broadcaster = broadcaster.New()
	s.compactor = compactor.New(s.catalog, compactor.WithClock(s.now))
	s.decompactor = decompactor.New(s.catalog, s.scratch,
		orDefault(cfg.Scratch.Dir, config.DefaultScratchDir()), s.opener,
		decompactor.WithClock(s.now))

	scanOpts := scanner.DefaultOptions()
	scanOpts.Filter = f
	scanOpts.Clock = s.now
	if cfg.Progress.Interval > 0 {
		scanOpts.ProgressInterval = cfg.Progress.Interval
	}
	if cfg.Progress.Step > 0 {
		scanOpts.ProgressStep = cfg.Progress.Step
	}
	s.scans = scanner.NewManager(scanOpts, s.broadcaster.Publish,
		scanner.WithDefaultFolders(s.defaultFolders),
		scanner.WithOnFinish(s.recordScan))

	s.log.Info("service ready", "catalog", catalogPath, "archives", s.catalog.Len())
	return s, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *Service) defaultFolders() []string {
	if len(s.cfg.Folders) > 0 {
		return s.cfg.Folders
	}
	return s.folders.Defaults()
}

// EnableWatcher starts removing catalog records whose archive is deleted
// or renamed away. It runs until ctx is cancelled or the Service is closed.
func (s *Service) EnableWatcher(ctx context.Context) error {
	w, err := watcher.New(s.catalog, func(rec catalog.Record) {
		s.log.Info("archive removed externally", "archive", rec.Name(), "original", rec.OriginalPath)
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Sync(); err != nil {
		s.log.Warn("some archive directories are not watched", "error", err)
	}
	s.watcher = w
	go w.Run(ctx)
	return nil
}

// ListScannableFolders returns the folders a user can pick for a scan.
func (s *Service) ListScannableFolders() []string {
	return s.folders.List()
}

// StartScan starts a scan job and returns its id. Events for the job are
// published to subscribers. It fails with scanner.ErrScanInProgress while
// another job runs.
func (s *Service) StartScan(_ context.Context, thresholdBytes int64, folders []string) (string, error) {
	job, err := s.scans.Start(thresholdBytes, folders)
	if err != nil {
		return "", err
	}
	return job.ID(), nil
}

// StartScanTypes is StartScan restricted to the named type groups.
func (s *Service) StartScanTypes(_ context.Context, thresholdBytes int64, folders, groups []string) (string, error) {
	job, err := s.scans.StartWithTypes(thresholdBytes, folders, groups)
	if err != nil {
		return "", err
	}
	return job.ID(), nil
}

// CancelScan requests cancellation of a job.
func (s *Service) CancelScan(jobID string) error {
	return s.scans.Cancel(jobID)
}

// Job returns a snapshot of a running or recently finished job.
func (s *Service) Job(jobID string) (JobSnapshot, error) {
	job, ok := s.scans.Job(jobID)
	if !ok {
		return JobSnapshot{}, fmt.Errorf("%w: %s", scanner.ErrUnknownJob, jobID)
	}
	return JobSnapshot{JobInfo: job.Info(), Files: job.Results()}, nil
}

func (s *Service) recordScan(info types.JobInfo, files []types.FileEntry) {
	if s.history == nil {
		return
	}
	if _, err := s.history.LogScan(info, files); err != nil {
		s.log.Warn("recording scan history", "job", info.ID, "error", err)
	}
}

// Compact compacts one file into an archive beside it.
func (s *Service) Compact(ctx context.Context, path string) (types.CompactResult, error) {
	return s.CompactWithProgress(ctx, path, nil)
}

// CompactWithProgress is Compact reporting bytes read through onProgress.
func (s *Service) CompactWithProgress(ctx context.Context, path string, onProgress archive.ProgressFunc) (types.CompactResult, error) {
	res, err := s.compactor.Compact(ctx, path, onProgress)
	if err != nil {
		return res, err
	}

	if s.watcher != nil {
		if err := s.watcher.Track(res.ArchivePath); err != nil {
			s.log.Warn("watching archive directory", "archive", res.ArchivePath, "error", err)
		}
	}
	if s.history != nil {
		var size int64
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		if _, err := s.history.LogCompact(path, size, res.ArchivePath); err != nil {
			s.log.Warn("recording compaction history", "error", err)
		}
	}
	return res, nil
}

// ListCatalog returns a copy of the catalog keyed by archive name.
func (s *Service) ListCatalog() map[string]catalog.Record {
	return s.catalog.All()
}

// PruneCatalog removes records whose archive no longer exists.
func (s *Service) PruneCatalog() ([]string, error) {
	removed, err := s.catalog.Prune()
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.log.Info("catalog pruned", "removed", len(removed))
		if s.watcher != nil {
			_ = s.watcher.Sync()
		}
	}
	return removed, nil
}

// OpenArchive extracts an archive to the scratch area and opens it.
func (s *Service) OpenArchive(ctx context.Context, name, originalName string) (types.OpenResult, error) {
	res, err := s.decompactor.Open(ctx, name, originalName)
	if res.Path != "" && s.history != nil {
		if rec, ok := s.catalog.Get(name); ok {
			if _, herr := s.history.LogOpen(rec.ArchivePath, res.Path); herr != nil {
				s.log.Warn("recording open history", "error", herr)
			}
		}
	}
	return res, err
}

// RestoreArchive extracts an archive next to its original path.
func (s *Service) RestoreArchive(ctx context.Context, name string) (types.OpenResult, error) {
	res, err := s.decompactor.Restore(ctx, name)
	if err == nil && s.history != nil {
		if rec, ok := s.catalog.Get(name); ok {
			if _, herr := s.history.LogRestore(rec.ArchivePath, res.Path); herr != nil {
				s.log.Warn("recording restore history", "error", herr)
			}
		}
	}
	return res, err
}

// Subscribe registers a new event subscriber.
func (s *Service) Subscribe() *broadcaster.Subscriber {
	return s.broadcaster.Subscribe()
}

// Unsubscribe removes a subscriber.
func (s *Service) Unsubscribe(id string) {
	s.broadcaster.Unsubscribe(id)
}

// Stream subscribes and calls fn for each event until ctx is done, fn
// returns an error or the Service closes. A pending progress event is
// always delivered before the next non-progress event, and a terminal event
// comes after every log and result event queued before it.
func (s *Service) Stream(ctx context.Context, ready func(), fn func(types.Event) error) error {
	sub := s.Subscribe()
	if sub == nil {
		return errors.New("service closed")
	}
	defer s.Unsubscribe(sub.ID)
	if ready != nil {
		ready()
	}

	flush := func(box *progress.Mailbox[types.Event]) error {
		if ev, ok := box.TryTake(); ok {
			return fn(ev)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sub.Progress.C():
			if err := fn(ev); err != nil {
				return err
			}
		case ev := <-sub.Results.C():
			if err := flush(sub.Progress); err != nil {
				return err
			}
			if err := fn(ev); err != nil {
				return err
			}
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := flush(sub.Progress); err != nil {
				return err
			}
			if err := fn(ev); err != nil {
				return err
			}
		case ev := <-sub.Terminal:
			if err := drainEvents(sub, fn); err != nil {
				return err
			}
			if err := flush(sub.Progress); err != nil {
				return err
			}
			if err := flush(sub.Results); err != nil {
				return err
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
}

// drainEvents delivers the log events already buffered for sub.
func drainEvents(sub *broadcaster.Subscriber, fn func(types.Event) error) error {
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := fn(ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// History returns up to limit operations, newest first.
func (s *Service) History(limit int) ([]manifest.Entry, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.List(limit)
}

// HistoryEntry returns one operation by id.
func (s *Service) HistoryEntry(id string) (*manifest.Entry, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Get(id)
}

// CleanHistory removes history entries older than the configured retention.
func (s *Service) CleanHistory() (int, error) {
	if s.history == nil {
		return 0, ErrHistoryDisabled
	}
	return s.history.Cleanup(s.cfg.Manifest.RetentionDays)
}

// CleanupScratch removes extracted copies older than the configured
// retention.
func (s *Service) CleanupScratch() (int, error) {
	retention := s.cfg.ScratchRetention()
	if retention <= 0 {
		retention = time.Duration(config.DefaultScratchRetentionHours) * time.Hour
	}
	return s.decompactor.CleanupScratch(s.now().Add(-retention))
}

// Status reports the service health.
func (s *Service) Status() Status {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := Status{
		Running:       true,
		PID:           os.Getpid(),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		MemoryBytes:   int64(mem.Alloc),
		Subscribers:   s.broadcaster.SubscriberCount(),
		Archives:      s.catalog.Len(),
	}
	if job := s.scans.Active(); job != nil {
		st.ActiveJob = job.ID()
	}
	if s.watcher != nil {
		st.WatchedDirs = s.watcher.Dirs()
	}
	return st
}

// Close cancels any running scan and releases every resource.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.scans.Close()
		s.broadcaster.Close()
		var errs []error
		if s.watcher != nil {
			errs = append(errs, s.watcher.Close())
		}
		errs = append(errs, s.scratch.Close())
		err = errors.Join(errs...)
	})
	return err
}
