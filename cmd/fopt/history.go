package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/fopt/pkg/fopt/config"
	"github.com/jamesainslie/fopt/pkg/fopt/output"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	Long: `View the history of scans, compactions, opens and restores.

Each operation is recorded with the files it touched and kept for the
configured retention period.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a specific operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show (0 for all)")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd.Context(), func(_ *config.Config, b backend) error {
		entries, err := b.History(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
		if len(entries) == 0 && !machineOutput() {
			printInfo("No history entries found.")
			return nil
		}
		return render(output.HistoryResult(entries))
	})
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	return withBackend(cmd.Context(), func(_ *config.Config, b backend) error {
		entry, err := b.HistoryEntry(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get entry: %w", err)
		}

		fmt.Println("\nOperation Details")
		fmt.Println(strings.Repeat("=", 60))
		fmt.Printf("ID:         %s\n", entry.ID)
		fmt.Printf("Timestamp:  %s\n", entry.Timestamp.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("Operation:  %s\n", entry.Operation)
		if entry.Status != "" {
			fmt.Printf("Status:     %s\n", entry.Status)
		}
		if entry.JobID != "" {
			fmt.Printf("Job:        %s\n", entry.JobID)
		}
		fmt.Printf("Files:      %d\n", entry.Summary.TotalFiles)
		fmt.Printf("Total Size: %s\n", types.FormatSize(entry.Summary.TotalBytes))

		if len(entry.Files) == 0 {
			return nil
		}

		fmt.Println("\nFiles:")
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("%-12s  %s\n", "SIZE", "PATH")
		fmt.Println(strings.Repeat("-", 60))

		limit := min(len(entry.Files), 50)
		for _, file := range entry.Files[:limit] {
			path := file.Path
			if file.ArchivePath != "" {
				path += " -> " + file.ArchivePath
			}
			fmt.Printf("%-12s  %s\n", types.FormatSize(file.Size), path)
		}
		if len(entry.Files) > limit {
			fmt.Printf("\n... and %d more files\n", len(entry.Files)-limit)
		}
		return nil
	})
}

func runHistoryClean(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd.Context(), func(cfg *config.Config, b backend) error {
		days := cfg.Manifest.RetentionDays
		if days <= 0 {
			days = config.DefaultRetentionDays
		}
		printVerbose("cleaning history entries older than %d days", days)

		n, err := b.CleanHistory(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to clean history: %w", err)
		}
		printInfo("Removed %d history entries.", n)
		return nil
	})
}
