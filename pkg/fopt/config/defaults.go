// Package config provides configuration management for fopt.
package config

import "time"

// Default configuration values for fopt.
const (
	// DefaultMinSize is the scan threshold used when none is given.
	DefaultMinSize = "250MB"

	// DefaultProgressInterval is the minimum time between progress events.
	DefaultProgressInterval = 500 * time.Millisecond

	// DefaultProgressStep is the number of processed files that forces a
	// progress event regardless of the interval.
	DefaultProgressStep = 200

	// DefaultScratchRetentionHours is how long an extracted copy is kept.
	DefaultScratchRetentionHours = 24

	// DefaultRetentionDays is the default number of days to retain manifests.
	DefaultRetentionDays = 30

	// DefaultCleanupSchedule is the cron spec for the daemon's scratch cleanup.
	DefaultCleanupSchedule = "@daily"
)

// DefaultExclusions contains glob patterns excluded from scanning by default.
var DefaultExclusions = []string{
	"/proc",
	"/sys",
	"/dev",
}
