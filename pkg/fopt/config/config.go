package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/fopt/pkg/fopt/logging"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Console    string            `mapstructure:"console"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// ProgressConfig configures progress event throttling.
type ProgressConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Step     int           `mapstructure:"step"`
}

// ScratchConfig configures where opened archives are extracted.
type ScratchConfig struct {
	Dir            string `mapstructure:"dir"`
	IndexPath      string `mapstructure:"index_path"`
	RetentionHours int    `mapstructure:"retention_hours"`
}

// DaemonConfig configures the background daemon.
type DaemonConfig struct {
	AutoStart       bool   `mapstructure:"auto_start"`
	BinaryPath      string `mapstructure:"binary_path"`
	SocketPath      string `mapstructure:"socket_path"`
	PIDPath         string `mapstructure:"pid_path"`
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
	Watch           bool   `mapstructure:"watch"`
}

// Config represents the application configuration.
type Config struct {
	MinSize  string         `mapstructure:"min_size"`
	Folders  []string       `mapstructure:"folders"`
	Types    []string       `mapstructure:"types"`
	Exclude  []string       `mapstructure:"exclude"`
	Progress ProgressConfig `mapstructure:"progress"`
	Catalog  struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"catalog"`
	Scratch ScratchConfig `mapstructure:"scratch"`
	Opener  struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"opener"`
	Manifest struct {
		Enabled       bool   `mapstructure:"enabled"`
		Path          string `mapstructure:"path"`
		RetentionDays int    `mapstructure:"retention_days"`
	} `mapstructure:"manifest"`
	Logging LoggingConfig `mapstructure:"logging"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`

	// File is the config file that was read, empty when only defaults and
	// environment applied.
	File string `mapstructure:"-" yaml:"-"`
}

// Load loads configuration from file and environment variables.
// The config file is $XDG_CONFIG_HOME/fopt/config.yaml, falling back to
// $HOME/.config/fopt/config.yaml.
//
// Environment variables are prefixed with FOPT_ (e.g., FOPT_MIN_SIZE).
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load reading the given file instead of the default location.
// A missing explicit file is an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix("FOPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	for _, p := range []*string{&cfg.Catalog.Path, &cfg.Scratch.Dir, &cfg.Scratch.IndexPath, &cfg.Manifest.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("min_size", DefaultMinSize)
	v.SetDefault("folders", []string{})
	v.SetDefault("types", []string{})
	v.SetDefault("exclude", DefaultExclusions)
	v.SetDefault("progress.interval", DefaultProgressInterval)
	v.SetDefault("progress.step", DefaultProgressStep)

	v.SetDefault("catalog.path", DefaultCatalogPath())
	v.SetDefault("scratch.dir", DefaultScratchDir())
	v.SetDefault("scratch.index_path", DefaultScratchIndexPath())
	v.SetDefault("scratch.retention_hours", DefaultScratchRetentionHours)
	v.SetDefault("opener.enabled", true)

	v.SetDefault("manifest.enabled", true)
	v.SetDefault("manifest.path", DefaultManifestDir())
	v.SetDefault("manifest.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.console", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.components", map[string]string{
		"daemon":  "info",
		"watcher": "warn",
		"scanner": "info",
	})

	v.SetDefault("daemon.auto_start", true)
	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.cleanup_schedule", DefaultCleanupSchedule)
	v.SetDefault("daemon.watch", true)
}

// ThresholdBytes parses MinSize.
func (c *Config) ThresholdBytes() (int64, error) {
	n, err := types.ParseSize(c.MinSize)
	if err != nil {
		return 0, fmt.Errorf("min_size: %w", err)
	}
	return n, nil
}

// ScratchRetention returns the scratch retention as a duration.
func (c *Config) ScratchRetention() time.Duration {
	return time.Duration(c.Scratch.RetentionHours) * time.Hour
}

// SocketPath returns the configured socket path or the default.
func (c *Config) SocketPath() string {
	if c.Daemon.SocketPath != "" {
		return c.Daemon.SocketPath
	}
	return DefaultSocketPath()
}

// PIDPath returns the configured PID file path or the default.
func (c *Config) PIDPath() string {
	if c.Daemon.PIDPath != "" {
		return c.Daemon.PIDPath
	}
	return DefaultPIDPath()
}

// LoggingOptions converts the logging section for logging.Init.
func (l LoggingConfig) LoggingOptions() (logging.Config, error) {
	maxSizeMB := 0
	if l.Rotation.MaxSize != "" {
		n, err := types.ParseSize(l.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		maxSizeMB = int(n / types.MiB)
		if maxSizeMB < 1 {
			maxSizeMB = 1
		}
	}
	return logging.Config{
		Level:        l.Level,
		Path:         l.Path,
		ConsoleLevel: l.Console,
		Components:   l.Components,
		Rotation: logging.RotationConfig{
			MaxSize:    maxSizeMB,
			MaxAge:     l.Rotation.MaxAge,
			MaxBackups: l.Rotation.MaxBackups,
		},
	}, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "fopt"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "fopt"), nil
}

// ConfigPath returns the config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	content := fmt.Sprintf(`# fopt configuration

# Files at or above this size are reported by scans
min_size: %s

# Folders to scan when none are given (empty means Downloads, Documents,
# Pictures and Desktop)
folders: []

# Type groups to include (video, audio, image, document, archive, email,
# executable, other). Empty includes every file.
types: []

# Glob patterns excluded from scanning
exclude:
  - /proc
  - /sys
  - /dev

progress:
  interval: %s
  step: %d

catalog:
  path: %s

scratch:
  dir: %s
  retention_hours: %d

opener:
  enabled: true

manifest:
  enabled: true
  path: %s
  retention_days: %d

logging:
  level: info
  # Empty means $XDG_STATE_HOME/fopt/fopt.log
  path: ""
  # Mirror log lines at this level or above to stderr (empty disables)
  console: ""
  rotation:
    max_size: 10MB
    max_age: 30
    max_backups: 5

daemon:
  auto_start: true
  socket_path: ""
  pid_path: ""
  cleanup_schedule: "%s"
  watch: true
`, DefaultMinSize, DefaultProgressInterval, DefaultProgressStep,
		DefaultCatalogPath(), DefaultScratchDir(), DefaultScratchRetentionHours,
		DefaultManifestDir(), DefaultRetentionDays, DefaultCleanupSchedule)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/fopt/ for the catalog, scratch and daemon files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "fopt")
}

// StateDir returns $XDG_STATE_HOME/fopt/ for logs and history.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "fopt")
}

// DefaultCatalogPath returns the default catalog file path.
func DefaultCatalogPath() string {
	return filepath.Join(DataDir(), "catalog.json")
}

// DefaultScratchDir returns the directory opened archives are extracted to.
func DefaultScratchDir() string {
	return filepath.Join(DataDir(), "tmp")
}

// DefaultScratchIndexPath returns the badger directory for the scratch index.
func DefaultScratchIndexPath() string {
	return filepath.Join(DataDir(), "scratch.db")
}

// DefaultManifestDir returns the default operation history directory.
func DefaultManifestDir() string {
	return filepath.Join(StateDir(), "history")
}

// DefaultSocketPath returns the default Unix socket path.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), "foptd.sock")
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "foptd.pid")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// DefaultBinaryPath returns the first foptd found in GOBIN, GOPATH/bin or
// $HOME/go/bin, or "" if there is none.
func DefaultBinaryPath() string {
	var dirs []string
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		dirs = append(dirs, gobin)
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		dirs = append(dirs, filepath.Join(gopath, "bin"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "go", "bin"))
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, "foptd")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}
