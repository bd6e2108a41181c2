package folders

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, n), 0o755))
	}
}

func TestListHomeChildrenThenDefaults(t *testing.T) {
	home := t.TempDir()
	elsewhere := t.TempDir()
	mkdirs(t, home, "Videos", "Documents", ".cache", "Music")
	require.NoError(t, os.WriteFile(filepath.Join(home, "notes.txt"), []byte("x"), 0o644))
	mkdirs(t, elsewhere, "Downloads")

	e := New(
		WithHome(home),
		WithDefaults(
			filepath.Join(elsewhere, "Downloads"),
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Missing"),
		),
	)

	want := []string{
		filepath.Join(home, "Documents"),
		filepath.Join(home, "Music"),
		filepath.Join(home, "Videos"),
		filepath.Join(elsewhere, "Downloads"),
	}
	assert.Equal(t, want, e.List())
}

func TestListFollowsSymlinkedDirs(t *testing.T) {
	home := t.TempDir()
	target := t.TempDir()
	require.NoError(t, os.Symlink(target, filepath.Join(home, "Linked")))
	require.NoError(t, os.Symlink(filepath.Join(home, "nowhere"), filepath.Join(home, "Dangling")))

	e := New(WithHome(home), WithDefaults())
	assert.Equal(t, []string{filepath.Join(home, "Linked")}, e.List())
}

func TestListUnreadableHomeFallsBackToDefaults(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "Pictures")

	e := New(
		WithHome(filepath.Join(root, "does-not-exist")),
		WithDefaults(filepath.Join(root, "Pictures"), filepath.Join(root, "Desktop")),
	)

	_, err := e.homeChildren()
	assert.True(t, errors.Is(err, ErrEnumeration))
	assert.Equal(t, []string{filepath.Join(root, "Pictures")}, e.List())
}

func TestListNothingAvailable(t *testing.T) {
	e := New(WithHome(""), WithDefaults())
	assert.Empty(t, e.List())
}

func TestDefaultFolders(t *testing.T) {
	assert.Len(t, DefaultFolders(), 4)
}
