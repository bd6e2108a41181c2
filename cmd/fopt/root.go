package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/fopt/pkg/fopt/config"
	"github.com/jamesainslie/fopt/pkg/fopt/logging"
)

var (
	cfgFile  string
	noDaemon bool

	// loaded is the configuration for this invocation, read on first use.
	loaded *config.Config

	rootCmd = &cobra.Command{
		Use:   "fopt",
		Short: "Find large files and compact them into archives",
		Long: `fopt finds large files in your folders, compacts them into .fopt
archives and keeps a catalog so they can be opened or restored later.

Commands run against the foptd daemon when it is running and fall back to
an in-process engine otherwise.

Examples:
  fopt folders                     # Folders a scan looks at by default
  fopt scan -s 500M                # Files of 500MB or more in the default folders
  fopt scan ~/Movies --types video # Only videos under ~/Movies
  fopt compact ~/Movies/big.mkv    # Compact a file into big.fopt beside it
  fopt catalog                     # List compacted archives
  fopt open big.fopt               # Extract to scratch and open it
  fopt restore big.fopt            # Extract next to the original path`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/fopt/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noDaemon, "no-daemon", false, "run in-process even if the daemon is running")
	rootCmd.PersistentFlags().StringP("output", "o", "pretty", "output format (pretty, plain, json, yaml, paths)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// loadConfig reads the configuration once per invocation.
func loadConfig() (*config.Config, error) {
	if loaded != nil {
		return loaded, nil
	}
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, err
	}
	loaded = cfg
	return cfg, nil
}

// setupLogging initialises the log file from configuration. A broken
// config is reported by the command that needs it, not here.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printVerbose("config not loaded, logging disabled: %v", err)
		return nil
	}
	opts, err := cfg.Logging.LoggingOptions()
	if err != nil {
		return err
	}
	if getVerbose() {
		opts.ConsoleLevel = "debug"
	}
	if err := logging.Init(opts); err != nil {
		printVerbose("logging disabled: %v", err)
	}
	return nil
}

// withBackend loads the configuration, opens a backend and runs fn.
func withBackend(ctx context.Context, fn func(*config.Config, backend) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			printVerbose("closing backend: %v", cerr)
		}
	}()
	return fn(cfg, b)
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = logging.Close() }()
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
