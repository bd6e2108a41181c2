// Package main provides foptd, the fopt background daemon.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/fopt/pkg/daemon"
	"github.com/jamesainslie/fopt/pkg/fopt/config"
	"github.com/jamesainslie/fopt/pkg/fopt/logging"
)

// Set by go build -ldflags.
var version = "dev"

var (
	cfgFile    string
	socketPath string
	pidPath    string
	foreground bool
)

var rootCmd = &cobra.Command{
	Use:           "foptd",
	Short:         "Background daemon for fopt",
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/fopt/config.yaml)")
	rootCmd.Flags().StringVar(&socketPath, "socket", "", "unix socket to listen on")
	rootCmd.Flags().StringVar(&pidPath, "pid-file", "", "pid file path")
	rootCmd.Flags().BoolVar(&foreground, "foreground", false, "also log to stderr")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return err
	}
	if socketPath != "" {
		cfg.Daemon.SocketPath = socketPath
	}
	if pidPath != "" {
		cfg.Daemon.PIDPath = pidPath
	}

	opts, err := cfg.Logging.LoggingOptions()
	if err != nil {
		return err
	}
	if foreground && opts.ConsoleLevel == "" {
		opts.ConsoleLevel = opts.Level
	}
	if err := logging.Init(opts); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer func() { _ = logging.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return daemon.Run(ctx, cfg, version)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
			fmt.Fprintln(os.Stderr, "foptd is already running")
		} else {
			fmt.Fprintf(os.Stderr, "foptd: %v\n", err)
		}
		os.Exit(1)
	}
}
