package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jamesainslie/fopt/pkg/fopt/filter"
	"github.com/jamesainslie/fopt/pkg/fopt/logging"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// Errors returned by the Manager.
var (
	ErrScanInProgress   = errors.New("a scan is already in progress")
	ErrUnknownJob       = errors.New("unknown scan job")
	ErrInvalidThreshold = errors.New("threshold cannot be negative")
	ErrManagerClosed    = errors.New("scan manager closed")
)

// maxRetainedJobs bounds how many finished jobs stay queryable.
const maxRetainedJobs = 16

// FinishFunc is called after a job reaches its terminal status.
type FinishFunc func(info types.JobInfo, files []types.FileEntry)

// Manager owns the single running scan job.
type Manager struct {
	scanner  *Scanner
	emit     func(types.Event)
	defaults func() []string
	onFinish FinishFunc
	log      *logging.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active *Job
	jobs   map[string]*Job
	order  []string
	closed bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultFolders supplies the folders scanned when a request names none.
func WithDefaultFolders(fn func() []string) ManagerOption {
	return func(m *Manager) {
		m.defaults = fn
	}
}

// WithOnFinish registers a callback invoked once per finished job.
func WithOnFinish(fn FinishFunc) ManagerOption {
	return func(m *Manager) {
		m.onFinish = fn
	}
}

// NewManager creates a Manager. Every event of every job is passed to emit.
func NewManager(opts Options, emit func(types.Event), mopts ...ManagerOption) *Manager {
	if emit == nil {
		emit = func(types.Event) {}
	}
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		emit:     emit,
		defaults: func() []string { return nil },
		log:      logging.Get("scanner"),
		base:     base,
		cancel:   cancel,
		jobs:     make(map[string]*Job),
	}
	for _, opt := range mopts {
		opt(m)
	}
	m.scanner = New(opts, emit)
	return m
}

// Start begins a scan of folders for files of at least threshold bytes and
// returns immediately. An empty folder list scans the default folders.
// Start fails with ErrScanInProgress while another job is running.
func (m *Manager) Start(threshold int64, folders []string) (*Job, error) {
	return m.start(threshold, folders, m.scanner.opts.Filter)
}

// StartWithTypes is Start restricted to the named type groups. The
// configured exclusions still apply. No groups means all types.
func (m *Manager) StartWithTypes(threshold int64, folders, groups []string) (*Job, error) {
	if len(groups) == 0 {
		return m.Start(threshold, folders)
	}
	f, err := filter.New(
		filter.WithTypeGroups(groups...),
		filter.WithExclude(m.scanner.opts.Filter.Patterns()...),
	)
	if err != nil {
		return nil, err
	}
	return m.start(threshold, folders, f)
}

func (m *Manager) start(threshold int64, folders []string, f *filter.Filter) (*Job, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
	}
	if len(folders) == 0 {
		folders = m.defaults()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.active != nil {
		return nil, fmt.Errorf("%w: job %s", ErrScanInProgress, m.active.id)
	}

	job := newJob(uuid.NewString(), threshold, folders, m.scanner.opts.Clock())
	job.filter = f
	m.active = job
	m.retain(job)

	m.log.Info("scan started", "job", job.id, "threshold", threshold, "folders", len(folders))

	m.wg.Add(1)
	go m.run(job)

	return job, nil
}

func (m *Manager) run(job *Job) {
	defer m.wg.Done()

	status, files := m.scanner.Run(m.base, job)
	if status == types.StatusCancelled {
		files = nil
	}
	job.finish(status, m.scanner.opts.Clock())

	m.mu.Lock()
	if m.active == job {
		m.active = nil
	}
	m.mu.Unlock()

	m.log.Info("scan finished", "job", job.id, "status", status, "matches", len(files))

	m.emit(types.Event{
		Type:   types.EventTerminal,
		JobID:  job.id,
		Time:   m.scanner.opts.Clock(),
		Status: status,
	})

	if m.onFinish != nil {
		m.onFinish(job.Info(), files)
	}
}

// retain must be called with m.mu held.
func (m *Manager) retain(job *Job) {
	m.jobs[job.id] = job
	m.order = append(m.order, job.id)
	for len(m.order) > maxRetainedJobs {
		delete(m.jobs, m.order[0])
		m.order = m.order[1:]
	}
}

// Cancel requests cancellation of a job. Cancelling a job that already
// finished is a no-op.
func (m *Manager) Cancel(id string) error {
	job, ok := m.Job(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if job.Status() == types.StatusRunning {
		job.Cancel()
		m.log.Info("scan cancel requested", "job", id)
	}
	return nil
}

// Job returns a running or recently finished job.
func (m *Manager) Job(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

// Active returns the running job, or nil.
func (m *Manager) Active() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Close cancels any running job and waits for it to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}
