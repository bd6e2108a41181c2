package output

import (
	"bytes"
)

// PathsFormatter writes one path per line: matched files for scans and
// archive paths for catalog listings. History has no paths and renders
// nothing.
type PathsFormatter struct {
	// Null separates paths with NUL bytes for use with xargs -0.
	Null bool
}

// Format writes the formatted output to the buffer.
func (f *PathsFormatter) Format(w *bytes.Buffer, r *Result) error {
	sep := byte('\n')
	if f.Null {
		sep = 0
	}

	var paths []string
	switch r.Kind {
	case KindScan:
		for _, file := range r.Files {
			paths = append(paths, file.Path)
		}
	case KindCatalog:
		for _, rec := range r.Records {
			paths = append(paths, rec.ArchivePath)
		}
	}

	for _, p := range paths {
		w.WriteString(p)
		w.WriteByte(sep)
	}
	return nil
}

func init() {
	Register("paths", func() Formatter {
		return &PathsFormatter{}
	})
	Register("null", func() Formatter {
		return &PathsFormatter{Null: true}
	})
}

// Ensure PathsFormatter implements Formatter.
var _ Formatter = (*PathsFormatter)(nil)
