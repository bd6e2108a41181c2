package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// PlainFormatter formats output as an aligned table without colors,
// suitable for scripting and piping.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	switch r.Kind {
	case KindScan:
		fmt.Fprintln(tw, "SIZE\tTYPE\tPATH")
		for _, file := range r.Files {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", file.SizeFormatted, file.Type, file.Path)
		}
	case KindCatalog:
		fmt.Fprintln(tw, "ARCHIVE\tCREATED\tORIGINAL")
		for _, rec := range r.Records {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.Name(), rec.CreatedAt.Local().Format(time.DateTime), rec.OriginalPath)
		}
	case KindHistory:
		fmt.Fprintln(tw, "ID\tTIME\tOPERATION\tSTATUS\tFILES\tSIZE")
		for _, e := range r.History {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
				e.ID, e.Timestamp.Local().Format(time.DateTime), e.Operation,
				dash(e.Status), e.Summary.TotalFiles, types.FormatSize(e.Summary.TotalBytes))
		}
	}

	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
