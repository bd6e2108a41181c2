package daemon_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/fopt/pkg/daemon"
)

func TestStatusFileReady(t *testing.T) {
	path := daemon.StatusPath(t.TempDir())

	require.NoError(t, daemon.WriteStatusReady(path, "/run/foptd.sock", "1.2.3"))

	st, err := daemon.ReadStatus(path)
	require.NoError(t, err)
	assert.Equal(t, daemon.StartupReady, st.Status)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, "/run/foptd.sock", st.Socket)
	assert.Equal(t, "1.2.3", st.Version)
	assert.Empty(t, st.Error)
}

func TestStatusFileError(t *testing.T) {
	path := daemon.StatusPath(t.TempDir())

	require.NoError(t, daemon.WriteStatusError(path, errors.New("socket in use")))

	st, err := daemon.ReadStatus(path)
	require.NoError(t, err)
	assert.Equal(t, daemon.StartupFailed, st.Status)
	assert.Equal(t, "socket in use", st.Error)
	assert.Zero(t, st.PID)

	require.NoError(t, daemon.RemoveStatus(path))
	_, err = daemon.ReadStatus(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStatusPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "foptd.status"), daemon.StatusPath("/data"))
}

func TestPathsFor(t *testing.T) {
	cfg := testConfig(t)
	p := daemon.PathsFor(cfg)

	assert.Equal(t, cfg.Daemon.SocketPath, p.Socket)
	assert.Equal(t, cfg.Daemon.PIDPath, p.PID)
	assert.Equal(t, daemon.StatusPath(filepath.Dir(cfg.Daemon.SocketPath)), p.Status)
	assert.Equal(t, cfg.Scratch.IndexPath, p.ScratchIndex)
}

func TestScheduler(t *testing.T) {
	s := daemon.NewScheduler()

	assert.Error(t, s.AddJob("bad", "not a cron", func() {}))
	require.NoError(t, s.AddJob("cleanup", "@hourly", func() {}))
	assert.Nil(t, s.NextRun("missing"))

	s.Start()
	defer s.Stop()

	next := s.NextRun("cleanup")
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))
	assert.WithinDuration(t, time.Now(), *next, time.Hour+time.Second)
}
