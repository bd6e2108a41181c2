// Package progress computes scan completion percentages and remaining-time
// estimates, and throttles how often they are reported.
package progress

import (
	"math"
	"sync"
	"time"
)

// Estimate is a single progress observation.
type Estimate struct {
	Percentage int
	ETAMinutes int
}

// Compute derives a percentage and ETA from processed and total item counts.
//
// The percentage is floor(100*processed/total) clamped to [0, 100]. The ETA
// extrapolates the elapsed time per processed item over the remaining items
// and rounds to whole minutes. It is 0 until at least one item is processed.
func Compute(processed, total int64, elapsed time.Duration) Estimate {
	if processed < 0 {
		processed = 0
	}
	denom := total
	if denom < 1 {
		denom = 1
	}

	pct := int(processed * 100 / denom)
	pct = max(0, min(100, pct))

	eta := 0
	remaining := total - processed
	if processed > 0 && remaining > 0 && elapsed > 0 {
		perItem := float64(elapsed) / float64(processed)
		left := time.Duration(perItem * float64(remaining))
		eta = int(math.Round(left.Minutes()))
	}

	return Estimate{Percentage: pct, ETAMinutes: eta}
}

// Update is what a Reporter emits.
type Update struct {
	Estimate
	Processed int64
	Total     int64
	Final     bool
}

// Default throttling values.
const (
	DefaultInterval = 500 * time.Millisecond
	DefaultStep     = 200
)

// Reporter throttles progress updates. An update is emitted when either the
// interval has passed or step items were processed since the last emission.
// Non-final percentages are capped at 99 and never decrease.
type Reporter struct {
	mu            sync.Mutex
	total         int64
	interval      time.Duration
	step          int64
	now           func() time.Time
	start         time.Time
	lastEmit      time.Time
	lastProcessed int64
	lastPct       int
	finished      bool
	emit          func(Update)
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithInterval sets the minimum time between emissions.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithStep sets the item count that forces an emission.
func WithStep(n int) Option {
	return func(r *Reporter) {
		if n > 0 {
			r.step = int64(n)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReporter creates a Reporter for total items. emit is called
// synchronously and must not block.
func NewReporter(total int64, emit func(Update), opts ...Option) *Reporter {
	r := &Reporter{
		total:    total,
		interval: DefaultInterval,
		step:     DefaultStep,
		now:      time.Now,
		emit:     emit,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.start = r.now()
	r.lastEmit = r.start
	return r
}

// SetTotal replaces the expected item count.
func (r *Reporter) SetTotal(total int64) {
	r.mu.Lock()
	r.total = total
	r.mu.Unlock()
}

// Observe records that processed items are done and emits an update when
// the throttle allows. It reports whether an update was emitted.
func (r *Reporter) Observe(processed int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return false
	}

	now := r.now()
	if now.Sub(r.lastEmit) < r.interval && processed-r.lastProcessed < r.step {
		return false
	}

	total := r.total
	if processed > total {
		total = processed
	}
	est := Compute(processed, total, now.Sub(r.start))
	est.Percentage = max(r.lastPct, min(est.Percentage, 99))

	r.lastEmit = now
	r.lastProcessed = processed
	r.lastPct = est.Percentage

	if r.emit != nil {
		r.emit(Update{Estimate: est, Processed: processed, Total: r.total})
	}
	return true
}

// Finish emits the final 100% update. Later calls are ignored.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.finished = true
	r.lastPct = 100

	if r.emit != nil {
		r.emit(Update{
			Estimate:  Estimate{Percentage: 100},
			Processed: max(r.lastProcessed, r.total),
			Total:     r.total,
			Final:     true,
		})
	}
}

// Percentage returns the last reported percentage.
func (r *Reporter) Percentage() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPct
}
