package types

import "time"

// EventType identifies the payload carried by an Event.
type EventType string

// Event types pushed to scan consumers.
const (
	EventProgress EventType = "progress"
	EventLog      EventType = "log"
	EventResult   EventType = "scan_result"
	EventTerminal EventType = "scan_terminal"
)

// LogKind classifies a log event for presentation.
type LogKind string

// Log event kinds.
const (
	LogInfo      LogKind = "info"
	LogFound     LogKind = "found"
	LogIgnored   LogKind = "ignored"
	LogError     LogKind = "error"
	LogCancelled LogKind = "cancelled"
)

// Event is the envelope for everything a scan job emits. Only the fields
// relevant to Type are set.
type Event struct {
	Type  EventType `json:"type"`
	JobID string    `json:"job_id"`
	Time  time.Time `json:"time"`

	// EventProgress
	Percentage int   `json:"percentage,omitempty"`
	ETAMinutes int   `json:"eta_minutes,omitempty"`
	Processed  int64 `json:"processed,omitempty"`
	Total      int64 `json:"total,omitempty"`

	// EventLog
	Kind    LogKind `json:"kind,omitempty"`
	Message string  `json:"message,omitempty"`

	// EventResult
	Files []FileEntry `json:"files,omitempty"`

	// EventTerminal
	Status JobStatus `json:"status,omitempty"`
}

// JobInfo is a point-in-time snapshot of a scan job.
type JobInfo struct {
	ID             string     `json:"id"`
	ThresholdBytes int64      `json:"threshold_bytes"`
	Folders        []string   `json:"folders"`
	Status         JobStatus  `json:"status"`
	CancelRequest  bool       `json:"cancel_requested"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Processed      int64      `json:"processed"`
	Matches        int        `json:"matches"`
}
