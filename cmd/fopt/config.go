package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/fopt/pkg/fopt/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage fopt configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/fopt/config.yaml (if set)
  2. ~/.config/fopt/config.yaml

Environment variables can override config file settings using the FOPT_ prefix:
  FOPT_MIN_SIZE=500M
  FOPT_DAEMON_AUTO_START=false`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from file, environment and defaults.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.File != "" {
		fmt.Printf("# Config file: %s\n", cfg.File)
	} else {
		fmt.Println("# Config file: (using defaults, no file found)")
	}
	if overrides := envOverrides(); len(overrides) > 0 {
		fmt.Printf("# Environment overrides: %s\n", strings.Join(overrides, ", "))
	}

	out, err := yaml.Marshal(configView(cfg))
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

// configView mirrors the file layout for display.
func configView(cfg *config.Config) map[string]any {
	return map[string]any{
		"min_size": cfg.MinSize,
		"folders":  cfg.Folders,
		"types":    cfg.Types,
		"exclude":  cfg.Exclude,
		"progress": map[string]any{
			"interval": cfg.Progress.Interval.String(),
			"step":     cfg.Progress.Step,
		},
		"catalog": map[string]any{"path": cfg.Catalog.Path},
		"scratch": map[string]any{
			"dir":             cfg.Scratch.Dir,
			"index_path":      cfg.Scratch.IndexPath,
			"retention_hours": cfg.Scratch.RetentionHours,
		},
		"opener": map[string]any{"enabled": cfg.Opener.Enabled},
		"manifest": map[string]any{
			"enabled":        cfg.Manifest.Enabled,
			"path":           cfg.Manifest.Path,
			"retention_days": cfg.Manifest.RetentionDays,
		},
		"logging": map[string]any{
			"level":      cfg.Logging.Level,
			"path":       cfg.Logging.Path,
			"console":    cfg.Logging.Console,
			"components": cfg.Logging.Components,
			"rotation": map[string]any{
				"max_size":    cfg.Logging.Rotation.MaxSize,
				"max_age":     cfg.Logging.Rotation.MaxAge,
				"max_backups": cfg.Logging.Rotation.MaxBackups,
			},
		},
		"daemon": map[string]any{
			"auto_start":       cfg.Daemon.AutoStart,
			"binary_path":      cfg.Daemon.BinaryPath,
			"socket_path":      cfg.SocketPath(),
			"pid_path":         cfg.PIDPath(),
			"cleanup_schedule": cfg.Daemon.CleanupSchedule,
			"watch":            cfg.Daemon.Watch,
		},
	}
}

// envOverrides lists the FOPT_ variables set in the environment.
func envOverrides() []string {
	var names []string
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "FOPT_") {
			names = append(names, name)
		}
	}
	return names
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		printInfo("Config file already exists: %s", path)
		return nil
	}

	path, err = config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	printInfo("Created default config file: %s", path)
	return nil
}

func runConfigPath(_ *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		var err error
		path, err = config.ConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}
	fmt.Println(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
