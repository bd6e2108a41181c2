package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// MaxSize is the size in megabytes that triggers rotation. Zero uses 10.
	MaxSize int

	// MaxAge is the number of days to keep rotated files. Zero keeps them forever.
	MaxAge int

	// MaxBackups is the number of rotated files to keep. Zero uses 3.
	MaxBackups int
}

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
	backupTimeFormat  = "2006-01-02-150405"
)

// RotatingWriter is an io.WriteCloser that rotates its file once it grows
// past MaxSize. Rotated files are renamed to base.<timestamp>.ext.
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	cfg     RotationConfig
	file    *os.File
	size    int64
	nowFunc func() time.Time
}

// NewRotatingWriter opens (or creates) the log file at path.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = defaultMaxBackups
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg, nowFunc: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	limit := int64(w.cfg.MaxSize) * 1024 * 1024
	if w.size > 0 && w.size+int64(len(p)) > limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Rotate forces a rotation of the current file.
func (w *RotatingWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotate()
}

func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}
		w.file = nil
	}

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.backupName(w.nowFunc())); err != nil {
			return fmt.Errorf("renaming log file: %w", err)
		}
	}

	if err := w.open(); err != nil {
		return err
	}
	w.cleanup()
	return nil
}

func (w *RotatingWriter) backupName(t time.Time) string {
	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	name := fmt.Sprintf("%s.%s%s", base, t.Format(backupTimeFormat), ext)
	for i := 1; fileExists(name); i++ {
		name = fmt.Sprintf("%s.%s-%d%s", base, t.Format(backupTimeFormat), i, ext)
	}
	return name
}

// backups returns rotated files, newest first.
func (w *RotatingWriter) backups() []string {
	ext := filepath.Ext(w.path)
	prefix := strings.TrimSuffix(filepath.Base(w.path), ext) + "."

	entries, err := os.ReadDir(filepath.Dir(w.path))
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == filepath.Base(w.path) {
			continue
		}
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			names = append(names, filepath.Join(filepath.Dir(w.path), name))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}

func (w *RotatingWriter) cleanup() {
	cutoff := time.Time{}
	if w.cfg.MaxAge > 0 {
		cutoff = w.nowFunc().AddDate(0, 0, -w.cfg.MaxAge)
	}

	for i, name := range w.backups() {
		if i >= w.cfg.MaxBackups {
			_ = os.Remove(name)
			continue
		}
		if !cutoff.IsZero() {
			if info, err := os.Stat(name); err == nil && info.ModTime().Before(cutoff) {
				_ = os.Remove(name)
			}
		}
	}
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
