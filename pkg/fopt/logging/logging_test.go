package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{" error ", log.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.True(t, errors.Is(err, ErrInvalidLevel))
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fopt.log")

	early := Get("scanner")
	require.NoError(t, Init(Config{Level: "debug", Path: path}))
	t.Cleanup(func() { _ = Close() })

	early.Info("scan started", "job", "abc")
	Get("compactor").Debug("archive written")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "scan started")
	assert.Contains(t, out, "job=abc")
	assert.Contains(t, out, "archive written")
}

func TestComponentLevelOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fopt.log")
	require.NoError(t, Init(Config{
		Level:      "info",
		Path:       path,
		Components: map[string]string{"quiet": "error"},
	}))
	t.Cleanup(func() { _ = Close() })

	Get("quiet").Info("hidden line")
	Get("quiet").Error("visible line")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden line")
	assert.Contains(t, string(data), "visible line")
}

func TestInitRejectsBadComponentLevel(t *testing.T) {
	err := Init(Config{
		Path:       filepath.Join(t.TempDir(), "fopt.log"),
		Components: map[string]string{"x": "nope"},
	})
	assert.Error(t, err)
}

func TestRotatingWriterRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fopt.log")

	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 1, MaxBackups: 2})
	require.NoError(t, err)
	defer w.Close()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.nowFunc = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	chunk := []byte(strings.Repeat("x", 512*1024))
	for i := 0; i < 8; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}

	backups := w.backups()
	assert.Len(t, backups, 2)
	for _, b := range backups {
		assert.True(t, strings.HasPrefix(filepath.Base(b), "fopt.2026-01-01-"), b)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(1024*1024))
}

func TestRotatingWriterClosed(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "a.log"), RotationConfig{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
