package output

import (
	"time"

	"github.com/jamesainslie/fopt/pkg/fopt/manifest"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// document is the structure shared by the machine-readable formatters.
type document struct {
	Kind     Kind           `json:"kind" yaml:"kind"`
	Scan     *scanDoc       `json:"scan,omitempty" yaml:"scan,omitempty"`
	Catalog  []catalogDoc   `json:"catalog,omitempty" yaml:"catalog,omitempty"`
	History  []historyDoc   `json:"history,omitempty" yaml:"history,omitempty"`
	Warnings []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Meta     map[string]int `json:"meta" yaml:"meta"`
}

type scanDoc struct {
	JobID          string            `json:"job_id,omitempty" yaml:"job_id,omitempty"`
	Status         types.JobStatus   `json:"status,omitempty" yaml:"status,omitempty"`
	ThresholdBytes int64             `json:"threshold_bytes" yaml:"threshold_bytes"`
	Folders        []string          `json:"folders,omitempty" yaml:"folders,omitempty"`
	Files          []types.FileEntry `json:"files" yaml:"files"`
	TotalBytes     int64             `json:"total_bytes" yaml:"total_bytes"`
	TotalHuman     string            `json:"total_human" yaml:"total_human"`
}

type catalogDoc struct {
	Name         string    `json:"name" yaml:"name"`
	OriginalPath string    `json:"original_path" yaml:"original_path"`
	ArchivePath  string    `json:"archive_path" yaml:"archive_path"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

type historyDoc struct {
	ID         string                 `json:"id" yaml:"id"`
	Timestamp  time.Time              `json:"timestamp" yaml:"timestamp"`
	Operation  manifest.OperationType `json:"operation" yaml:"operation"`
	Status     string                 `json:"status,omitempty" yaml:"status,omitempty"`
	Files      int64                  `json:"files" yaml:"files"`
	TotalBytes int64                  `json:"total_bytes" yaml:"total_bytes"`
}

// buildDocument converts a Result to the machine-readable structure.
func buildDocument(r *Result) document {
	doc := document{Kind: r.Kind, Warnings: r.Warnings, Meta: map[string]int{}}

	switch r.Kind {
	case KindScan:
		files := r.Files
		if files == nil {
			files = []types.FileEntry{}
		}
		total := r.TotalSize()
		doc.Scan = &scanDoc{
			JobID:          r.Job.ID,
			Status:         r.Job.Status,
			ThresholdBytes: r.Job.ThresholdBytes,
			Folders:        r.Job.Folders,
			Files:          files,
			TotalBytes:     total,
			TotalHuman:     types.FormatSize(total),
		}
		doc.Meta["total_files"] = len(files)
	case KindCatalog:
		doc.Catalog = make([]catalogDoc, 0, len(r.Records))
		for _, rec := range r.Records {
			doc.Catalog = append(doc.Catalog, catalogDoc{
				Name:         rec.Name(),
				OriginalPath: rec.OriginalPath,
				ArchivePath:  rec.ArchivePath,
				CreatedAt:    rec.CreatedAt,
			})
		}
		doc.Meta["total_archives"] = len(r.Records)
	case KindHistory:
		doc.History = make([]historyDoc, 0, len(r.History))
		for _, e := range r.History {
			doc.History = append(doc.History, historyDoc{
				ID:         e.ID,
				Timestamp:  e.Timestamp,
				Operation:  e.Operation,
				Status:     e.Status,
				Files:      e.Summary.TotalFiles,
				TotalBytes: e.Summary.TotalBytes,
			})
		}
		doc.Meta["total_entries"] = len(r.History)
	}
	return doc
}
