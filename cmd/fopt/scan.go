package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/fopt/pkg/fopt/config"
	"github.com/jamesainslie/fopt/pkg/fopt/output"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// cancelGrace bounds how long a cancelled scan may take to wind down.
const cancelGrace = 30 * time.Second

// idlePoll is how long the event stream may stay silent before the job's
// status is fetched directly.
var idlePoll = 2 * time.Second

var (
	scanMinSize string
	scanTypes   string

	scanCmd = &cobra.Command{
		Use:   "scan [folders...]",
		Short: "Find files at or above a size threshold",
		Long: `Scan folders for files at or above the size threshold.

Without arguments the configured folders are scanned, or Downloads,
Documents, Pictures and Desktop when none are configured. Press Ctrl-C to
cancel; files found so far are still reported.`,
		RunE: runScan,
	}
)

func init() {
	scanCmd.Flags().StringVarP(&scanMinSize, "min-size", "s", "", "minimum file size (e.g. 250M, 1G)")
	scanCmd.Flags().StringVarP(&scanTypes, "types", "t", "", "comma-separated type groups (video,audio,image,document,archive,email,executable,other)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	threshold, err := scanThreshold(cfg, scanMinSize)
	if err != nil {
		return err
	}
	folders, err := resolveFolders(args)
	if err != nil {
		return err
	}
	groups := parseCommaSeparated(scanTypes)
	if groups == nil {
		groups = cfg.Types
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx := context.WithoutCancel(cmd.Context())
	return withBackend(ctx, func(_ *config.Config, b backend) error {
		var progressOut io.Writer
		if !getQuiet() && isTerminal(os.Stderr) {
			progressOut = os.Stderr
		}

		res, err := runScanJob(ctx, b, threshold, folders, groups, sigCtx.Done(), progressOut)
		if err != nil {
			return err
		}
		if renderErr := render(res); renderErr != nil {
			return renderErr
		}
		if res.Job.Status == types.StatusFailed {
			return errors.New("scan failed")
		}
		return nil
	})
}

// scanThreshold returns the threshold from the flag or the configuration.
func scanThreshold(cfg *config.Config, flag string) (int64, error) {
	if flag == "" {
		return cfg.ThresholdBytes()
	}
	n, err := types.ParseSize(flag)
	if err != nil {
		return 0, fmt.Errorf("invalid min-size %q: %w", flag, err)
	}
	return n, nil
}

// resolveFolders expands ~ and makes each argument absolute.
func resolveFolders(args []string) ([]string, error) {
	folders := make([]string, 0, len(args))
	for _, arg := range args {
		expanded, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path: %w", err)
		}
		folders = append(folders, abs)
	}
	return folders, nil
}

// runScanJob starts a scan and follows it to its terminal event. When the
// stream is silent for idlePoll, or ends early, the job is polled instead.
// A value on interrupt requests cancellation once. Progress is drawn to
// progressOut when it is non-nil.
func runScanJob(
	ctx context.Context,
	b backend,
	threshold int64,
	folders, groups []string,
	interrupt <-chan struct{},
	progressOut io.Writer,
) (*output.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := b.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribing to scan events: %w", err)
	}

	id, err := b.StartScan(ctx, threshold, folders, groups)
	if err != nil {
		return nil, err
	}
	printVerbose("scan %s started", id)

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	var warnings []string
	var deadline <-chan time.Time

	draw := func(pct int) {
		if progressOut != nil {
			fmt.Fprintf(progressOut, "\r%s", bar.ViewAs(float64(pct)/100))
		}
	}
	clearLine := func() {
		if progressOut != nil {
			fmt.Fprint(progressOut, "\r\033[K")
		}
	}

	finish := func() (*output.Result, error) {
		clearLine()
		snap, err := b.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		res := output.ScanResult(snap.JobInfo, snap.Files)
		res.Warnings = warnings
		return res, nil
	}

	idle := time.NewTimer(idlePoll)
	defer idle.Stop()

	for {
		select {
		case <-interrupt:
			interrupt = nil
			clearLine()
			fmt.Fprintln(os.Stderr, "Cancelling scan...")
			if err := b.CancelScan(ctx, id); err != nil {
				printVerbose("cancel: %v", err)
			}
			deadline = time.After(cancelGrace)

		case <-deadline:
			return nil, errors.New("scan did not stop after cancellation")

		case <-idle.C:
			snap, err := b.Job(ctx, id)
			if err != nil {
				clearLine()
				return nil, err
			}
			if snap.Status.IsTerminal() {
				return finish()
			}
			idle.Reset(idlePoll)

		case ev, ok := <-events:
			if !ok {
				printVerbose("event stream closed, polling scan %s", id)
				events = nil
				idle.Reset(0)
				continue
			}
			idle.Reset(idlePoll)
			if ev.JobID != id {
				continue
			}
			switch ev.Type {
			case types.EventProgress:
				draw(ev.Percentage)
			case types.EventLog:
				switch ev.Kind {
				case types.LogError:
					warnings = append(warnings, ev.Message)
				case types.LogFound:
					printVerbose("%s", ev.Message)
				}
			case types.EventTerminal:
				return finish()
			}
		}
	}
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
