package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Startup states written to the status file.
const (
	StartupReady  = "ready"
	StartupFailed = "error"
)

// StatusFile tells a launching client whether the daemon came up.
type StatusFile struct {
	Status  string `json:"status"`
	PID     int    `json:"pid,omitempty"`
	Socket  string `json:"socket,omitempty"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteStatusReady records a successful start.
func WriteStatusReady(path, socket, version string) error {
	return writeStatus(path, &StatusFile{
		Status:  StartupReady,
		PID:     os.Getpid(),
		Socket:  socket,
		Version: version,
	})
}

// WriteStatusError records why the daemon failed to start.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, &StatusFile{
		Status: StartupFailed,
		Error:  err.Error(),
	})
}

func writeStatus(path string, status *StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus removes the status file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}

// StatusPath returns the status file path inside dir.
func StatusPath(dir string) string {
	return filepath.Join(dir, "foptd.status")
}
