package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	switch r.Kind {
	case KindScan:
		w.WriteString(f.scanHeader(r))
		w.WriteString("\n")
		w.WriteString(f.scanTable(r))
		w.WriteString(f.scanFooter(r))
	case KindCatalog:
		w.WriteString(f.catalogTable(r))
	case KindHistory:
		w.WriteString(f.historyTable(r))
	default:
		return fmt.Errorf("pretty: unsupported result kind %q", r.Kind)
	}

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.warnings(r.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) scanHeader(r *Result) string {
	var lines []string

	if len(r.Job.Folders) > 0 {
		lines = append(lines, LabelStyle.Render("Folders:")+" "+ValueStyle.Render(strings.Join(r.Job.Folders, ", ")))
	}

	parts := []string{
		LabelStyle.Render("Threshold:") + " " + SizeStyle.Render(types.FormatSize(r.Job.ThresholdBytes)),
	}
	if r.Job.Status != "" {
		parts = append(parts, LabelStyle.Render("Status:")+" "+StatusStyle(string(r.Job.Status)).Render(string(r.Job.Status)))
	}
	if r.Job.FinishedAt != nil && !r.Job.StartedAt.IsZero() {
		elapsed := r.Job.FinishedAt.Sub(r.Job.StartedAt).Round(10 * time.Millisecond)
		parts = append(parts, LabelStyle.Render("Took:")+" "+ValueStyle.Render(elapsed.String()))
	}
	lines = append(lines, strings.Join(parts, "  "))

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) scanTable(r *Result) string {
	if len(r.Files) == 0 {
		return MutedStyle.Render("  No files found matching criteria") + "\n"
	}

	sizeWidth, typeWidth := 8, 4
	for _, file := range r.Files {
		sizeWidth = max(sizeWidth, len(file.SizeFormatted))
		typeWidth = max(typeWidth, len(file.Type))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s  %s  %s\n",
		TableHeaderStyle.Render(padLeft("SIZE", sizeWidth)),
		TableHeaderStyle.Render(padRight("TYPE", typeWidth)),
		TableHeaderStyle.Render("NAME"))

	for _, file := range r.Files {
		fmt.Fprintf(&sb, "  %s  %s  %s\n",
			SizeStyle.Render(padLeft(file.SizeFormatted, sizeWidth)),
			TypeStyle.Render(padRight(file.Type, typeWidth)),
			PathStyle.Render(file.Name))
	}
	return sb.String()
}

func (f *PrettyFormatter) scanFooter(r *Result) string {
	parts := []string{
		LabelStyle.Render("Files:") + " " + ValueStyle.Render(fmt.Sprintf("%d", len(r.Files))),
		LabelStyle.Render("Total:") + " " + SizeStyle.Render(types.FormatSize(r.TotalSize())),
		MutedStyle.Render("Use -o plain for unformatted output"),
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) catalogTable(r *Result) string {
	if len(r.Records) == 0 {
		return MutedStyle.Render("  No compacted files") + "\n"
	}

	nameWidth := 7
	for _, rec := range r.Records {
		nameWidth = max(nameWidth, lipgloss.Width(rec.Name()))
	}

	var sb strings.Builder
	sb.WriteString(TitleStyle.Render(fmt.Sprintf("Catalog (%d)", len(r.Records))))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("ARCHIVE", nameWidth)),
		TableHeaderStyle.Render(padRight("CREATED", 14)),
		TableHeaderStyle.Render("ORIGINAL"))

	for _, rec := range r.Records {
		fmt.Fprintf(&sb, "  %s  %s  %s\n",
			ValueStyle.Render(padRight(rec.Name(), nameWidth)),
			MutedStyle.Render(padRight(humanize.Time(rec.CreatedAt), 14)),
			PathStyle.Render(rec.OriginalPath))
	}
	return sb.String()
}

func (f *PrettyFormatter) historyTable(r *Result) string {
	if len(r.History) == 0 {
		return MutedStyle.Render("  No history") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("History"))
	sb.WriteString("\n")
	for _, e := range r.History {
		status := dash(e.Status)
		fmt.Fprintf(&sb, "  %s  %s  %s  %s  %s\n",
			MutedStyle.Render(padRight(humanize.Time(e.Timestamp), 14)),
			TitleStyle.Render(padRight(string(e.Operation), 8)),
			StatusStyle(status).Render(padRight(status, 10)),
			ValueStyle.Render(fmt.Sprintf("%d files, %s", e.Summary.TotalFiles, types.FormatSize(e.Summary.TotalBytes))),
			MutedStyle.Render(e.ID))
	}
	return sb.String()
}

func (f *PrettyFormatter) warnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

// padLeft pads s with spaces on the left to the given display width.
func padLeft(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}

// padRight pads s with spaces on the right to the given display width.
func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
