// Package manifest keeps a history of fopt operations as one JSON file per
// operation.
package manifest

import "time"

// OperationType represents the type of operation.
type OperationType string

const (
	// OpScan represents a finished scan job.
	OpScan OperationType = "scan"
	// OpCompact represents a compaction.
	OpCompact OperationType = "compact"
	// OpOpen represents an archive opened for viewing.
	OpOpen OperationType = "open"
	// OpRestore represents an archive extracted back to its original place.
	OpRestore OperationType = "restore"
)

// Entry represents a single manifest entry.
type Entry struct {
	ID        string        `json:"id" yaml:"id"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
	Operation OperationType `json:"operation" yaml:"operation"`
	Status    string        `json:"status,omitempty" yaml:"status,omitempty"`
	JobID     string        `json:"job_id,omitempty" yaml:"job_id,omitempty"`
	Files     []FileRecord  `json:"files" yaml:"files"`
	Summary   Summary       `json:"summary" yaml:"summary"`
}

// FileRecord represents a file touched by an operation.
type FileRecord struct {
	Path        string `json:"path" yaml:"path"`
	Size        int64  `json:"size" yaml:"size"`
	ArchivePath string `json:"archive_path,omitempty" yaml:"archive_path,omitempty"`
}

// Summary contains operation summary.
type Summary struct {
	TotalFiles int64 `json:"total_files" yaml:"total_files"`
	TotalBytes int64 `json:"total_bytes" yaml:"total_bytes"`
}
