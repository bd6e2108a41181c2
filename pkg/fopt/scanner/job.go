package scanner

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/fopt/pkg/fopt/filter"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// Job is one scan request. A job starts running and reaches exactly one
// terminal status. A cancel request is never withdrawn.
type Job struct {
	id        string
	threshold int64
	folders   []string
	filter    *filter.Filter
	startedAt time.Time

	cancelRequested atomic.Bool
	processed       atomic.Int64

	mu         sync.Mutex
	status     types.JobStatus
	finishedAt time.Time
	results    []types.FileEntry

	done chan struct{}
}

func newJob(id string, threshold int64, folders []string, now time.Time) *Job {
	return &Job{
		id:        id,
		threshold: threshold,
		folders:   slices.Clone(folders),
		startedAt: now,
		status:    types.StatusRunning,
		done:      make(chan struct{}),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Threshold returns the size threshold in bytes.
func (j *Job) Threshold() int64 { return j.threshold }

// Folders returns the folders being scanned.
func (j *Job) Folders() []string { return slices.Clone(j.folders) }

// Cancel asks the job to stop. It has no effect once the job is terminal.
func (j *Job) Cancel() {
	j.cancelRequested.Store(true)
}

// CancelRequested reports whether Cancel was called.
func (j *Job) CancelRequested() bool {
	return j.cancelRequested.Load()
}

// Status returns the current status.
func (j *Job) Status() types.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Done is closed when the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Results returns the matches from the most recent checkpoint, or the
// final sorted sequence once the job completed.
func (j *Job) Results() []types.FileEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.results)
}

// Info returns a snapshot of the job.
func (j *Job) Info() types.JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()

	info := types.JobInfo{
		ID:             j.id,
		ThresholdBytes: j.threshold,
		Folders:        slices.Clone(j.folders),
		Status:         j.status,
		CancelRequest:  j.cancelRequested.Load(),
		StartedAt:      j.startedAt,
		Processed:      j.processed.Load(),
		Matches:        len(j.results),
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		info.FinishedAt = &t
	}
	return info
}

func (j *Job) resultCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.results)
}

func (j *Job) setResults(files []types.FileEntry) {
	j.mu.Lock()
	j.results = files
	j.mu.Unlock()
}

// finish moves the job to a terminal status. It reports false if the job
// was already terminal.
func (j *Job) finish(status types.JobStatus, at time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status.IsTerminal() {
		return false
	}
	j.status = status
	j.finishedAt = at
	close(j.done)
	return true
}
