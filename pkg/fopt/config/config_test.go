package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
)

// isolate points HOME and the XDG directories at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", filepath.Join(tempDir, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tempDir, "state"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return tempDir
}

func TestLoad_Defaults(t *testing.T) {
	tempDir := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MinSize != DefaultMinSize {
		t.Errorf("MinSize = %q, want %q", cfg.MinSize, DefaultMinSize)
	}
	if cfg.Progress.Interval != DefaultProgressInterval {
		t.Errorf("Progress.Interval = %v, want %v", cfg.Progress.Interval, DefaultProgressInterval)
	}
	if cfg.Progress.Step != DefaultProgressStep {
		t.Errorf("Progress.Step = %d, want %d", cfg.Progress.Step, DefaultProgressStep)
	}
	if len(cfg.Folders) != 0 {
		t.Errorf("Folders = %v, want empty", cfg.Folders)
	}
	if len(cfg.Exclude) != len(DefaultExclusions) {
		t.Errorf("len(Exclude) = %d, want %d", len(cfg.Exclude), len(DefaultExclusions))
	}
	if !cfg.Opener.Enabled {
		t.Error("Opener.Enabled = false, want true")
	}

	wantCatalog := filepath.Join(tempDir, "data", "fopt", "catalog.json")
	if cfg.Catalog.Path != wantCatalog {
		t.Errorf("Catalog.Path = %q, want %q", cfg.Catalog.Path, wantCatalog)
	}
	if cfg.ScratchRetention() != 24*time.Hour {
		t.Errorf("ScratchRetention() = %v, want 24h", cfg.ScratchRetention())
	}

	threshold, err := cfg.ThresholdBytes()
	if err != nil {
		t.Fatalf("ThresholdBytes() error = %v", err)
	}
	if threshold != 250*1024*1024 {
		t.Errorf("ThresholdBytes() = %d, want %d", threshold, 250*1024*1024)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tempDir := isolate(t)
	configDir := filepath.Join(tempDir, ".config", "fopt")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `
min_size: 50MB
folders:
  - /srv/media
types:
  - video
progress:
  interval: 2s
  step: 50
catalog:
  path: ~/catalog.json
opener:
  enabled: false
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MinSize != "50MB" {
		t.Errorf("MinSize = %q, want %q", cfg.MinSize, "50MB")
	}
	if len(cfg.Folders) != 1 || cfg.Folders[0] != "/srv/media" {
		t.Errorf("Folders = %v", cfg.Folders)
	}
	if len(cfg.Types) != 1 || cfg.Types[0] != "video" {
		t.Errorf("Types = %v", cfg.Types)
	}
	if cfg.Progress.Interval != 2*time.Second {
		t.Errorf("Progress.Interval = %v, want 2s", cfg.Progress.Interval)
	}
	if cfg.Progress.Step != 50 {
		t.Errorf("Progress.Step = %d, want 50", cfg.Progress.Step)
	}
	if cfg.Catalog.Path != filepath.Join(tempDir, "catalog.json") {
		t.Errorf("Catalog.Path = %q, want expanded home path", cfg.Catalog.Path)
	}
	if cfg.Opener.Enabled {
		t.Error("Opener.Enabled = true, want false")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("FOPT_MIN_SIZE", "1G")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MinSize != "1G" {
		t.Errorf("MinSize = %q, want %q", cfg.MinSize, "1G")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	tempDir := isolate(t)
	configDir := filepath.Join(tempDir, ".config", "fopt")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte("min_size: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for malformed YAML")
	}
}

func TestLoadFile(t *testing.T) {
	tempDir := isolate(t)
	path := filepath.Join(tempDir, "elsewhere.yaml")
	if err := os.WriteFile(path, []byte("min_size: 5G\ndaemon:\n  auto_start: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.MinSize != "5G" {
		t.Errorf("MinSize = %q, want %q", cfg.MinSize, "5G")
	}
	if cfg.Daemon.AutoStart {
		t.Error("Daemon.AutoStart = true, want false")
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}

	if _, err := LoadFile(filepath.Join(tempDir, "absent.yaml")); err == nil {
		t.Error("LoadFile() expected error for a missing explicit file")
	}

	defaults, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if defaults.File != "" {
		t.Errorf("File = %q, want empty without a config file", defaults.File)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}
		if dir != "/custom/config/fopt" {
			t.Errorf("ConfigDir() = %q, want %q", dir, "/custom/config/fopt")
		}
	})

	t.Run("falls back to HOME/.config", func(t *testing.T) {
		tempDir := isolate(t)
		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}
		if dir != filepath.Join(tempDir, ".config", "fopt") {
			t.Errorf("ConfigDir() = %q", dir)
		}
	})
}

func TestWriteDefault(t *testing.T) {
	isolate(t)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() after WriteDefault error = %v", err)
	}
	if cfg.MinSize != DefaultMinSize {
		t.Errorf("MinSize = %q, want %q", cfg.MinSize, DefaultMinSize)
	}

	if err := os.WriteFile(path, []byte("min_size: 1MB\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteDefault(); err != nil {
		t.Fatalf("second WriteDefault() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "min_size: 1MB\n" {
		t.Error("WriteDefault() overwrote an existing config")
	}
}

func TestLoggingOptions(t *testing.T) {
	lc := LoggingConfig{
		Level:    "debug",
		Rotation: RotationConfig{MaxSize: "20MB", MaxBackups: 2},
	}
	opts, err := lc.LoggingOptions()
	if err != nil {
		t.Fatalf("LoggingOptions() error = %v", err)
	}
	if opts.Rotation.MaxSize != 20 {
		t.Errorf("Rotation.MaxSize = %d, want 20", opts.Rotation.MaxSize)
	}
	if opts.Level != "debug" {
		t.Errorf("Level = %q", opts.Level)
	}

	lc.Rotation.MaxSize = "huge"
	if _, err := lc.LoggingOptions(); err == nil {
		t.Error("expected error for invalid max_size")
	}
}

func TestDaemonPaths(t *testing.T) {
	tempDir := isolate(t)
	cfg := &Config{}

	if got := cfg.SocketPath(); got != filepath.Join(tempDir, "data", "fopt", "foptd.sock") {
		t.Errorf("SocketPath() = %q", got)
	}
	cfg.Daemon.PIDPath = "/run/foptd.pid"
	if got := cfg.PIDPath(); got != "/run/foptd.pid" {
		t.Errorf("PIDPath() = %q", got)
	}
}

func TestExpandPath(t *testing.T) {
	tempDir := isolate(t)

	tests := []struct {
		in   string
		want string
	}{
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"~/x/y", filepath.Join(tempDir, "x", "y")},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
