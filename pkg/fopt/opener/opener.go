// Package opener hands a file to the desktop's default application.
package opener

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// commandTimeout is the maximum time to wait for the launcher to return.
const commandTimeout = 30 * time.Second

// ErrNoLauncher indicates no default-application launcher is available.
var ErrNoLauncher = errors.New("no launcher available to open files")

// Opener opens a file with its default application.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// System launches files with the platform's launcher: xdg-open or gio on
// Linux and BSDs, open on macOS, rundll32 on Windows.
type System struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewSystem returns an Opener for the running platform.
func NewSystem() *System {
	return &System{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Open launches path.
func (s *System) Open(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path for %q: %w", path, err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("cannot open %q: %w", absPath, err)
	}

	name, args, err := s.command(absPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := s.run(ctx, name, args...); err != nil {
		return fmt.Errorf("launching %s: %w", filepath.Base(name), err)
	}
	return nil
}

func (s *System) command(path string) (string, []string, error) {
	switch s.goos {
	case "darwin":
		return "open", []string{path}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", path}, nil
	default:
		if p, err := s.lookPath("xdg-open"); err == nil {
			return p, []string{path}, nil
		}
		if p, err := s.lookPath("gio"); err == nil {
			return p, []string{"open", path}, nil
		}
		return "", nil, ErrNoLauncher
	}
}

// Noop records nothing and opens nothing. It is used when opening is
// disabled, for example on a headless daemon.
type Noop struct{}

// Open implements Opener.
func (Noop) Open(context.Context, string) error { return nil }
