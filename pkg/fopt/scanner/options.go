// Package scanner finds files at or above a size threshold under a set of
// folders. It runs one job at a time, reports progress through events and
// stops promptly when the job is cancelled.
package scanner

import (
	"time"

	"github.com/jamesainslie/fopt/pkg/fopt/filter"
	"github.com/jamesainslie/fopt/pkg/fopt/progress"
)

// Options configures the scanner behavior.
type Options struct {
	// Filter selects type groups and exclusions. Nil accepts everything.
	Filter *filter.Filter

	// ProgressInterval is the minimum time between progress events.
	ProgressInterval time.Duration

	// ProgressStep forces a progress event after this many files.
	ProgressStep int

	// Clock overrides time.Now for progress and timestamps.
	Clock func() time.Time
}

// DefaultOptions returns options with the default throttling.
func DefaultOptions() Options {
	return Options{
		ProgressInterval: progress.DefaultInterval,
		ProgressStep:     progress.DefaultStep,
	}
}

// Validate fills in defaults for unset values.
func (o *Options) Validate() {
	if o.Filter == nil {
		o.Filter = &filter.Filter{}
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = progress.DefaultInterval
	}
	if o.ProgressStep <= 0 {
		o.ProgressStep = progress.DefaultStep
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}
