package opener

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

func fakeSystem(goos string, available map[string]bool) (*System, *[]call) {
	var calls []call
	s := &System{
		goos: goos,
		lookPath: func(name string) (string, error) {
			if available[name] {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		},
		run: func(_ context.Context, name string, args ...string) error {
			calls = append(calls, call{name, args})
			return nil
		},
	}
	return s, &calls
}

func tempFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestOpenCommands(t *testing.T) {
	path := tempFile(t)

	tests := []struct {
		goos      string
		available map[string]bool
		want      call
	}{
		{"darwin", nil, call{"open", []string{path}}},
		{"windows", nil, call{"rundll32", []string{"url.dll,FileProtocolHandler", path}}},
		{"linux", map[string]bool{"xdg-open": true, "gio": true}, call{"/usr/bin/xdg-open", []string{path}}},
		{"freebsd", map[string]bool{"gio": true}, call{"/usr/bin/gio", []string{"open", path}}},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			s, calls := fakeSystem(tt.goos, tt.available)
			require.NoError(t, s.Open(context.Background(), path))
			require.Len(t, *calls, 1)
			assert.Equal(t, tt.want, (*calls)[0])
		})
	}
}

func TestOpenWithoutLauncher(t *testing.T) {
	s, calls := fakeSystem("linux", nil)
	err := s.Open(context.Background(), tempFile(t))
	assert.ErrorIs(t, err, ErrNoLauncher)
	assert.Empty(t, *calls)
}

func TestOpenMissingFile(t *testing.T) {
	s, calls := fakeSystem("darwin", nil)
	err := s.Open(context.Background(), filepath.Join(t.TempDir(), "gone"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Empty(t, *calls)
}

func TestOpenLauncherFailure(t *testing.T) {
	s, _ := fakeSystem("darwin", nil)
	s.run = func(context.Context, string, ...string) error { return errors.New("exit status 1") }
	assert.Error(t, s.Open(context.Background(), tempFile(t)))
}

func TestNoop(t *testing.T) {
	var o Opener = Noop{}
	assert.NoError(t, o.Open(context.Background(), "/does/not/matter"))
}
