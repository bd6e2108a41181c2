package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/fopt/pkg/fopt/config"
	"github.com/jamesainslie/fopt/pkg/fopt/output"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

var (
	openAs string

	catalogCmd = &cobra.Command{
		Use:   "catalog",
		Short: "List compacted archives",
		Long: `List every archive in the catalog with the path it was compacted from.

Use 'fopt catalog prune' to forget archives that no longer exist on disk.`,
		Args: cobra.NoArgs,
		RunE: runCatalogList,
	}

	catalogListCmd = &cobra.Command{
		Use:   "list",
		Short: "List compacted archives",
		Args:  cobra.NoArgs,
		RunE:  runCatalogList,
	}

	catalogPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Forget archives missing from disk",
		Args:  cobra.NoArgs,
		RunE:  runCatalogPrune,
	}

	openCmd = &cobra.Command{
		Use:   "open <archive>",
		Short: "Extract an archive to scratch and open it",
		Long: `Extract a cataloged archive into the scratch area and open it with the
system's default application. The archive stays in place and the
extracted copy is removed once it expires.`,
		Args: cobra.ExactArgs(1),
		RunE: runOpen,
	}

	restoreCmd = &cobra.Command{
		Use:   "restore <archive>",
		Short: "Restore the original file next to its old path",
		Long: `Extract a cataloged archive back to the folder it was compacted from.
If a file already exists at the original path a numbered name is used.`,
		Args: cobra.ExactArgs(1),
		RunE: runRestore,
	}
)

func init() {
	openCmd.Flags().StringVar(&openAs, "as", "", "file name for the extracted copy")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogPruneCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(restoreCmd)
}

func runCatalogList(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd.Context(), func(_ *config.Config, b backend) error {
		records, err := b.Catalog(cmd.Context())
		if err != nil {
			return err
		}
		return render(output.CatalogResult(records))
	})
}

func runCatalogPrune(cmd *cobra.Command, _ []string) error {
	return withBackend(cmd.Context(), func(_ *config.Config, b backend) error {
		removed, err := b.PruneCatalog(cmd.Context())
		if err != nil {
			return err
		}
		if len(removed) == 0 {
			printInfo("Catalog is up to date.")
			return nil
		}
		for _, name := range removed {
			printVerbose("removed %s", name)
		}
		printInfo("Removed %d missing archive(s) from the catalog.", len(removed))
		return nil
	})
}

// archiveName accepts an archive name or a path to one.
func archiveName(arg string) string {
	return filepath.Base(arg)
}

func runOpen(cmd *cobra.Command, args []string) error {
	return withBackend(cmd.Context(), func(_ *config.Config, b backend) error {
		res, err := b.Open(cmd.Context(), archiveName(args[0]), openAs)
		return reportExtraction(res, err)
	})
}

func runRestore(cmd *cobra.Command, args []string) error {
	return withBackend(cmd.Context(), func(_ *config.Config, b backend) error {
		res, err := b.Restore(cmd.Context(), archiveName(args[0]))
		return reportExtraction(res, err)
	})
}

// reportExtraction prints the outcome of an open or restore. The extracted
// path is printed even when the opener failed, since the file exists.
func reportExtraction(res types.OpenResult, err error) error {
	if res.Path != "" {
		if machineOutput() {
			printInfo("%s", res.Path)
		} else {
			printInfo("%s", res.Message)
		}
	}
	return err
}
