package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/fopt/pkg/fopt/filter"
	"github.com/jamesainslie/fopt/pkg/fopt/logging"
	"github.com/jamesainslie/fopt/pkg/fopt/progress"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// errCancelled stops a walk once the job is cancelled.
var errCancelled = errors.New("scan cancelled")

// Scanner runs the two passes of a scan job. Pass one counts regular files
// in parallel to size the progress bar. Pass two walks each folder depth
// first in lexical order and collects matches.
type Scanner struct {
	opts Options
	emit func(types.Event)
	log  *logging.Logger
}

// New creates a Scanner that sends events to emit. emit must not block.
func New(opts Options, emit func(types.Event)) *Scanner {
	opts.Validate()
	if emit == nil {
		emit = func(types.Event) {}
	}
	return &Scanner{
		opts: opts,
		emit: emit,
		log:  logging.Get("scanner"),
	}
}

// Run executes job and returns its terminal status together with the final
// matches. It emits progress, log and result events but not the terminal
// event, which belongs to whoever owns the job.
func (s *Scanner) Run(ctx context.Context, job *Job) (types.JobStatus, []types.FileEntry) {
	if job.filter == nil {
		job.filter = s.opts.Filter
	}
	s.info(job, fmt.Sprintf("Starting scan of %d folder(s) for files of %s or more",
		len(job.folders), types.FormatSize(job.threshold)))

	roots := s.resolveRoots(job)
	if len(roots) == 0 {
		s.send(job, types.Event{Type: types.EventLog, Kind: types.LogError,
			Message: "No accessible folders to scan"})
		return types.StatusFailed, nil
	}

	s.info(job, "Counting files...")
	total, err := s.count(ctx, job, roots)
	if errors.Is(err, errCancelled) {
		return s.cancelled(job)
	}
	s.info(job, fmt.Sprintf("Found %d files to analyze", total))

	reporter := progress.NewReporter(total, func(u progress.Update) {
		s.send(job, types.Event{
			Type:       types.EventProgress,
			Percentage: u.Percentage,
			ETAMinutes: u.ETAMinutes,
			Processed:  u.Processed,
			Total:      u.Total,
		})
	}, progress.WithInterval(s.opts.ProgressInterval),
		progress.WithStep(s.opts.ProgressStep),
		progress.WithClock(s.opts.Clock))

	var matches []types.FileEntry
	for _, root := range roots {
		s.info(job, "Analyzing folder: "+filepath.Base(root))
		matches, err = s.walk(ctx, job, root, matches, reporter)
		if errors.Is(err, errCancelled) {
			return s.cancelled(job)
		}
	}

	sorted := filter.SortBySizeDesc(matches)
	job.setResults(sorted)
	s.send(job, types.Event{Type: types.EventResult, Files: sorted})
	reporter.Finish()
	s.info(job, fmt.Sprintf("Scan complete: analyzed %d files, found %d at or above %s",
		job.processed.Load(), len(sorted), types.FormatSize(job.threshold)))

	return types.StatusCompleted, sorted
}

func (s *Scanner) cancelled(job *Job) (types.JobStatus, []types.FileEntry) {
	s.send(job, types.Event{Type: types.EventLog, Kind: types.LogCancelled,
		Message: "Scan cancelled by user"})
	return types.StatusCancelled, nil
}

func (s *Scanner) stopRequested(ctx context.Context, job *Job) bool {
	return job.CancelRequested() || ctx.Err() != nil
}

// resolveRoots keeps the folders that are accessible directories.
func (s *Scanner) resolveRoots(job *Job) []string {
	var roots []string
	seen := make(map[string]bool)
	for _, folder := range job.folders {
		abs, err := filepath.Abs(folder)
		if err != nil {
			s.send(job, types.Event{Type: types.EventLog, Kind: types.LogError,
				Message: fmt.Sprintf("Invalid folder %s: %v", folder, err)})
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			s.send(job, types.Event{Type: types.EventLog, Kind: types.LogError,
				Message: fmt.Sprintf("Cannot access folder %s: %v", abs, err)})
			continue
		}
		if !info.IsDir() {
			s.send(job, types.Event{Type: types.EventLog, Kind: types.LogError,
				Message: fmt.Sprintf("Not a folder: %s", abs)})
			continue
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		roots = append(roots, abs)
	}
	return roots
}

// count returns the number of regular files under roots that are not
// excluded.
func (s *Scanner) count(ctx context.Context, job *Job, roots []string) (int64, error) {
	var n atomic.Int64
	conf := fastwalk.Config{Follow: false}

	for _, root := range roots {
		err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
			if s.stopRequested(ctx, job) {
				return errCancelled
			}
			if err != nil {
				if d != nil && d.IsDir() {
					return fastwalk.SkipDir
				}
				return nil
			}
			if job.filter.Excluded(path) {
				if d.IsDir() {
					return fastwalk.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				n.Add(1)
			}
			return nil
		})
		if errors.Is(err, errCancelled) {
			return n.Load(), errCancelled
		}
		if err != nil {
			s.log.Debug("count walk error", "root", root, "error", err)
		}
	}
	return n.Load(), nil
}

// walk collects matches under root, appending to matches. Checkpoints go
// out together with progress updates, so their rate follows the progress
// throttle. A match becomes visible only after the cancel check that follows
// its comparison, and matches not yet checkpointed are lost on cancel.
func (s *Scanner) walk(ctx context.Context, job *Job, root string, matches []types.FileEntry, reporter *progress.Reporter) ([]types.FileEntry, error) {
	rootBase := filepath.Base(root)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d == nil || d.IsDir() {
				s.send(job, types.Event{Type: types.EventLog, Kind: types.LogIgnored,
					Message: fmt.Sprintf("Skipping folder %s: %v", path, err)})
				if d == nil {
					return nil
				}
				return filepath.SkipDir
			}
			s.send(job, types.Event{Type: types.EventLog, Kind: types.LogError,
				Message: fmt.Sprintf("Error accessing %s: %v", filepath.Base(path), err)})
			return nil
		}

		if d.IsDir() {
			if s.stopRequested(ctx, job) {
				return errCancelled
			}
			if job.filter.Excluded(path) {
				s.send(job, types.Event{Type: types.EventLog, Kind: types.LogIgnored,
					Message: "Excluded folder: " + path})
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || job.filter.Excluded(path) {
			return nil
		}

		processed := job.processed.Add(1)

		var found *types.FileEntry
		info, statErr := d.Info()
		switch {
		case statErr != nil:
			s.send(job, types.Event{Type: types.EventLog, Kind: types.LogError,
				Message: fmt.Sprintf("Error accessing %s: %v", filepath.Base(path), statErr)})
		case info.Size() >= job.threshold && job.filter.MatchType(path):
			found = &types.FileEntry{
				Path:          path,
				Name:          rootBase + "/" + d.Name(),
				SizeBytes:     info.Size(),
				SizeFormatted: types.FormatSize(info.Size()),
				Type:          filter.Category(path),
			}
		}

		if s.stopRequested(ctx, job) {
			return errCancelled
		}

		if found != nil {
			matches = append(matches, *found)
			s.send(job, types.Event{Type: types.EventLog, Kind: types.LogFound,
				Message: fmt.Sprintf("FOUND: %s (%s)", found.Name, found.SizeFormatted)})
		}

		if reporter.Observe(processed) && len(matches) > job.resultCount() {
			s.checkpoint(job, matches)
		}
		return nil
	})

	if err != nil && !errors.Is(err, errCancelled) {
		s.send(job, types.Event{Type: types.EventLog, Kind: types.LogError,
			Message: fmt.Sprintf("Error walking %s: %v", root, err)})
		return matches, nil
	}
	return matches, err
}

// checkpoint publishes the matches so far. The entries below len(matches)
// are never written again, so the checkpoint shares them.
func (s *Scanner) checkpoint(job *Job, matches []types.FileEntry) {
	files := matches[:len(matches):len(matches)]
	job.setResults(files)
	s.send(job, types.Event{Type: types.EventResult, Files: files})
}

func (s *Scanner) info(job *Job, msg string) {
	s.send(job, types.Event{Type: types.EventLog, Kind: types.LogInfo, Message: msg})
}

func (s *Scanner) send(job *Job, ev types.Event) {
	ev.JobID = job.id
	ev.Time = s.opts.Clock()
	if ev.Type == types.EventLog {
		switch ev.Kind {
		case types.LogError:
			s.log.Warn(ev.Message, "job", job.id)
		case types.LogIgnored:
			s.log.Debug(ev.Message, "job", job.id)
		default:
			s.log.Info(ev.Message, "job", job.id)
		}
	}
	s.emit(ev)
}
