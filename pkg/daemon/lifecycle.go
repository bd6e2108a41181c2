package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/jamesainslie/fopt/pkg/fopt/config"
)

// ErrDaemonAlreadyRunning is returned when trying to start a daemon that's already running.
var ErrDaemonAlreadyRunning = errors.New("daemon already running")

// Paths names the files a running daemon owns.
type Paths struct {
	Socket string
	PID    string
	Status string
	// ScratchIndex is the badger directory whose LOCK file a crashed
	// daemon leaves behind.
	ScratchIndex string
}

// PathsFor resolves the daemon paths from cfg.
func PathsFor(cfg *config.Config) Paths {
	socket := cfg.SocketPath()
	return Paths{
		Socket:       socket,
		PID:          cfg.PIDPath(),
		Status:       StatusPath(filepath.Dir(socket)),
		ScratchIndex: orDefault(cfg.Scratch.IndexPath, config.DefaultScratchIndexPath()),
	}
}

// WritePIDFile writes the current process ID to a file.
func WritePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPIDFile reads a PID from a file.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(path string) error {
	return os.Remove(path)
}

// IsDaemonRunning reports whether the PID file names a live process.
func IsDaemonRunning(pidPath string) bool {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return false
	}
	return IsProcessRunning(pid)
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// RecoverFromStaleDaemon removes the files left by a daemon that died
// without cleaning up. It returns ErrDaemonAlreadyRunning when the PID file
// names a live process, and nil when there was nothing to recover.
func RecoverFromStaleDaemon(p Paths) error {
	pid, err := ReadPIDFile(p.PID)
	if err != nil {
		return nil //nolint:nilerr // missing or invalid PID file means no daemon
	}
	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	logger().Warn("cleaning up stale daemon files", "stale_pid", pid)

	_ = os.Remove(p.PID)
	_ = os.Remove(p.Socket)
	if p.Status != "" {
		_ = os.Remove(p.Status)
	}
	if p.ScratchIndex != "" {
		_ = os.Remove(filepath.Join(p.ScratchIndex, "LOCK"))
	}
	return nil
}
