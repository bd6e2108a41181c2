// Package types provides core data types for the fopt file optimizer.
// It includes the scan result entry, scan job status values, the event
// envelope shared by the scanner and its consumers, and utility functions
// for parsing and formatting file sizes.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// FileEntry is a single file that matched a scan.
// Entries are created during a scan pass and never mutated afterwards.
type FileEntry struct {
	// Path is the absolute path to the file.
	Path string `json:"path" yaml:"path"`

	// Name is the display name, "<scanned folder>/<file name>".
	Name string `json:"name" yaml:"name"`

	// SizeBytes is the file size in bytes.
	SizeBytes int64 `json:"size_bytes" yaml:"size_bytes"`

	// SizeFormatted is the human-readable file size.
	SizeFormatted string `json:"size_formatted" yaml:"size_formatted"`

	// Type is the category label derived from the file extension.
	Type string `json:"type" yaml:"type"`
}

// JobStatus is the lifecycle state of a scan job.
type JobStatus string

// Scan job states. A job starts Running and moves to exactly one terminal state.
const (
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusCancelled JobStatus = "cancelled"
	StatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status is one of the terminal states.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// CompactResult is the structured outcome of a compaction request.
type CompactResult struct {
	Success     bool   `json:"success"`
	ArchivePath string `json:"archive_path,omitempty"`
	Message     string `json:"message"`
}

// OpenResult is the structured outcome of an open or restore request.
type OpenResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// Suffixes K, M, G and T (optionally followed by B or iB) are binary
// multiples. A bare number is a byte count. Decimal values are truncated to
// the nearest byte.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable string using
// binary units, e.g. FormatSize(1536*1024) returns "1.5 MiB".
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
