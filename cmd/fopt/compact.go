package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/fopt/pkg/fopt/config"
	"github.com/jamesainslie/fopt/pkg/fopt/output"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

var (
	compactJobs int

	compactCmd = &cobra.Command{
		Use:   "compact <file>...",
		Short: "Compact files into .fopt archives",
		Long: `Compact each file into a .fopt archive in the same folder. The original
is left untouched. Archives are recorded in the catalog so they can be
opened or restored later.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCompact,
	}
)

func init() {
	compactCmd.Flags().IntVarP(&compactJobs, "jobs", "j", 2, "files compacted at once")
	rootCmd.AddCommand(compactCmd)
}

// compactOutcome is the result for one argument, in argument order.
type compactOutcome struct {
	Path   string              `json:"path"`
	Result types.CompactResult `json:"result"`
}

func runCompact(cmd *cobra.Command, args []string) error {
	paths, err := resolveFolders(args)
	if err != nil {
		return err
	}

	return withBackend(cmd.Context(), func(_ *config.Config, b backend) error {
		outcomes := compactAll(cmd.Context(), b, paths, compactJobs)
		if err := writeCompactOutcomes(os.Stdout, outputFormat(), outcomes); err != nil {
			return err
		}

		failed := 0
		for _, o := range outcomes {
			if !o.Result.Success {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be compacted", failed, len(outcomes))
		}
		return nil
	})
}

// compactAll compacts paths with at most jobs in flight. A failure does not
// stop the others.
func compactAll(ctx context.Context, b backend, paths []string, jobs int) []compactOutcome {
	outcomes := make([]compactOutcome, len(paths))

	var g errgroup.Group
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, path := range paths {
		g.Go(func() error {
			res, err := b.Compact(ctx, path)
			if err != nil && res.Message == "" {
				res = types.CompactResult{Message: err.Error()}
			}
			outcomes[i] = compactOutcome{Path: path, Result: res}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func writeCompactOutcomes(w io.Writer, format string, outcomes []compactOutcome) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	case "paths", "null":
		sep := "\n"
		if format == "null" {
			sep = "\x00"
		}
		for _, o := range outcomes {
			if o.Result.Success {
				fmt.Fprint(w, o.Result.ArchivePath+sep)
			}
		}
		return nil
	case "pretty":
		for _, o := range outcomes {
			if o.Result.Success {
				fmt.Fprintf(w, "%s %s\n", output.SuccessStyle.Render("✓"), o.Result.Message)
			} else {
				fmt.Fprintf(w, "%s %s\n", output.ErrorStyle.Render("✗"), o.Result.Message)
			}
		}
		return nil
	case "plain", "yaml":
		for _, o := range outcomes {
			status := "ok"
			if !o.Result.Success {
				status = "failed"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", status, o.Path, o.Result.Message)
		}
		return nil
	}
	return errors.New("unknown output format: " + format)
}
