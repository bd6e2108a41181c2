package catalog

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogPath = "/var/lib/fopt/catalog.json"

func record(archive, original string) Record {
	return Record{
		OriginalPath: original,
		ArchivePath:  archive,
		CreatedAt:    time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC),
	}
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s, err := Open(afero.NewMemMapFs(), catalogPath)
	require.NoError(t, err)
	assert.Empty(t, s.All())
	assert.Equal(t, 0, s.Len())
}

func TestUpsertRoundTripsAcrossReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := Open(fs, catalogPath)
	require.NoError(t, err)

	r := record("/data/a.fopt", "/data/a.bin")
	require.NoError(t, s.Upsert(r))

	reopened, err := Open(fs, catalogPath)
	require.NoError(t, err)
	got, ok := reopened.Get("a.fopt")
	require.True(t, ok)
	assert.Equal(t, r.OriginalPath, got.OriginalPath)
	assert.Equal(t, r.ArchivePath, got.ArchivePath)
	assert.True(t, r.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, map[string]Record{"a.fopt": got}, reopened.All())
}

func TestUpsertOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.json")
	s, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(record("/data/a.fopt", "/data/a.bin")))
	require.NoError(t, s.Upsert(record("/data/a-1.fopt", "/data/a.bin")))

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1.fopt", "a.fopt"}, reopened.Names())

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".catalog-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "no temp files left behind")
}

func TestCorruptFileIsQuarantined(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, catalogPath, []byte("{not json"), 0o644))

	s, err := Open(fs, catalogPath)
	require.NoError(t, err)
	assert.Empty(t, s.All())

	saved, err := afero.ReadFile(fs, catalogPath+CorruptSuffix)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(saved))

	require.NoError(t, s.Upsert(record("/x/b.fopt", "/x/b.iso")))
	_, ok := s.Get("b.fopt")
	assert.True(t, ok)
}

func TestEmptyAndNullFiles(t *testing.T) {
	for _, content := range []string{"", "null"} {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, catalogPath, []byte(content), 0o644))
		s, err := Open(fs, catalogPath)
		require.NoError(t, err, content)
		require.NoError(t, s.Upsert(record("/x/c.fopt", "/x/c")), content)
	}
}

func TestUpsertRejectsIncompleteRecord(t *testing.T) {
	s, err := Open(afero.NewMemMapFs(), catalogPath)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Upsert(Record{ArchivePath: "/a.fopt"}), ErrInvalidRecord)
	assert.ErrorIs(t, s.Upsert(Record{OriginalPath: "/a"}), ErrInvalidRecord)
}

func TestUpsertKeepsNameBoundToArchive(t *testing.T) {
	s, err := Open(afero.NewMemMapFs(), catalogPath)
	require.NoError(t, err)

	require.NoError(t, s.Upsert(record("/x/a.fopt", "/x/a.bin")))
	assert.ErrorIs(t, s.Upsert(record("/y/a.fopt", "/y/a.bin")), ErrNameTaken)

	got, ok := s.Get("a.fopt")
	require.True(t, ok)
	assert.Equal(t, "/x/a.fopt", got.ArchivePath)
	assert.Equal(t, "/x/a.bin", got.OriginalPath)

	require.NoError(t, s.Upsert(record("/x/a.fopt", "/x/a.bin")))
	assert.Equal(t, 1, s.Len())
}

func TestFailedPersistLeavesCatalogUnchanged(t *testing.T) {
	base := afero.NewMemMapFs()
	seed, err := Open(base, catalogPath)
	require.NoError(t, err)
	require.NoError(t, seed.Upsert(record("/data/a.fopt", "/data/a.bin")))

	s, err := Open(afero.NewReadOnlyFs(base), catalogPath)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	assert.Error(t, s.Upsert(record("/data/b.fopt", "/data/b.bin")))
	assert.Error(t, s.Remove("a.fopt"))

	assert.Equal(t, []string{"a.fopt"}, s.Names())
}

func TestRemoveAndPrune(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/keep.fopt", []byte("x"), 0o644))

	s, err := Open(fs, catalogPath)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(record("/data/keep.fopt", "/data/keep.mkv")))
	require.NoError(t, s.Upsert(record("/data/gone.fopt", "/data/gone.mkv")))
	require.NoError(t, s.Upsert(record("/data/also-gone.fopt", "/data/also-gone.mkv")))

	removed, err := s.Prune()
	require.NoError(t, err)
	assert.Equal(t, []string{"also-gone.fopt", "gone.fopt"}, removed)
	assert.Equal(t, []string{"keep.fopt"}, s.Names())

	require.NoError(t, s.Remove("keep.fopt"))
	require.NoError(t, s.Remove("never-there.fopt"))
	assert.Equal(t, 0, s.Len())

	reopened, err := Open(fs, catalogPath)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Len())
}

func TestConcurrentUpserts(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := Open(fs, catalogPath)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := filepath.Join("/data", string(rune('a'+i))+".fopt")
			assert.NoError(t, s.Upsert(record(name, "/data/src")))
			_ = s.All()
		}(i)
	}
	wg.Wait()

	reopened, err := Open(fs, catalogPath)
	require.NoError(t, err)
	assert.Equal(t, 20, reopened.Len())
}
