package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs maintenance jobs on cron expressions.
type Scheduler struct {
	mu      sync.RWMutex
	c       *cron.Cron
	entries map[string]cron.EntryID
}

// NewScheduler creates a stopped Scheduler. Call Start to activate it.
func NewScheduler() *Scheduler {
	return &Scheduler{
		c:       cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// AddJob registers fn under name, replacing any job of the same name.
func (s *Scheduler) AddJob(name, expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.c.AddFunc(expr, fn)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if old, ok := s.entries[name]; ok {
		s.c.Remove(old)
	}
	s.entries[name] = id
	logger().Info("scheduler: job added", "job", name, "cron", expr)
	return nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.c.Stop().Done()
}

// NextRun returns the next run of a job, or nil if it is unknown or the
// scheduler is not started.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[name]
	if !ok {
		return nil
	}
	entry := s.c.Entry(id)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// maintenance removes expired scratch copies and old history entries.
func maintenance(svc *Service) func() {
	return func() {
		if n, err := svc.CleanupScratch(); err != nil {
			logger().Warn("scratch cleanup", "removed", n, "error", err)
		} else if n > 0 {
			logger().Info("scratch cleanup", "removed", n)
		}
		if n, err := svc.CleanHistory(); err == nil && n > 0 {
			logger().Info("history cleanup", "removed", n)
		}
	}
}
