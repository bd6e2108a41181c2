package decompactor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/fopt/pkg/fopt/catalog"
	"github.com/jamesainslie/fopt/pkg/fopt/compactor"
	"github.com/jamesainslie/fopt/pkg/fopt/scratch"
)

type recordingOpener struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (o *recordingOpener) Open(_ context.Context, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	return o.err
}

type fixture struct {
	catalog *catalog.Store
	index   *scratch.Index
	opener  *recordingOpener
	svc     *Service
	src     string
	archive string
	content []byte
}

func setup(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	cat, err := catalog.OpenFile(filepath.Join(root, "catalog.json"))
	require.NoError(t, err)
	idx, err := scratch.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	src := filepath.Join(root, "data", "report.pdf")
	content := []byte("quarterly numbers, compressed")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, content, 0o644))

	res, err := compactor.New(cat).Compact(context.Background(), src, nil)
	require.NoError(t, err)

	op := &recordingOpener{}
	return &fixture{
		catalog: cat,
		index:   idx,
		opener:  op,
		svc:     New(cat, idx, filepath.Join(root, "tmp"), op),
		src:     src,
		archive: res.ArchivePath,
		content: content,
	}
}

func TestOpenUnknownArchive(t *testing.T) {
	f := setup(t)
	before := f.catalog.All()

	res, err := f.svc.Open(context.Background(), "nope.fopt", "nope.txt")
	assert.ErrorIs(t, err, ErrUnknownArchive)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, before, f.catalog.All())
	assert.Empty(t, f.opener.opened)
}

func TestOpenExtractsAndLaunches(t *testing.T) {
	f := setup(t)

	res, err := f.svc.Open(context.Background(), "report.fopt", f.src)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, filepath.Join(f.svc.ScratchDir(), "report.fopt", "report.pdf"), res.Path)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, f.content, got)
	assert.Equal(t, []string{res.Path}, f.opener.opened)

	entry, err := f.index.Get("report.fopt")
	require.NoError(t, err)
	assert.Equal(t, res.Path, entry.ScratchPath)
}

func TestOpenReusesEarlierExtraction(t *testing.T) {
	f := setup(t)

	first, err := f.svc.Open(context.Background(), "report.fopt", "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first.Path, []byte("edited in viewer"), 0o644))

	second, err := f.svc.Open(context.Background(), "report.fopt", "")
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path)

	got, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, "edited in viewer", string(got), "existing copy is reused, not re-extracted")
	assert.Len(t, f.opener.opened, 2)

	require.NoError(t, os.Remove(first.Path))
	third, err := f.svc.Open(context.Background(), "report.fopt", "")
	require.NoError(t, err)
	got, err = os.ReadFile(third.Path)
	require.NoError(t, err)
	assert.Equal(t, f.content, got)
}

func TestOpenEarlierExtractionOfMissingArchive(t *testing.T) {
	f := setup(t)

	first, err := f.svc.Open(context.Background(), "report.fopt", "")
	require.NoError(t, err)
	require.FileExists(t, first.Path)

	require.NoError(t, os.Remove(f.archive))

	res, err := f.svc.Open(context.Background(), "report.fopt", "")
	assert.ErrorIs(t, err, ErrExtraction)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
	assert.Len(t, f.opener.opened, 1, "stale copy must not be launched")

	_, ok := f.catalog.Get("report.fopt")
	assert.True(t, ok, "catalog record is left for the watcher or prune")
}

func TestOpenCorruptArchive(t *testing.T) {
	f := setup(t)
	require.NoError(t, os.WriteFile(f.archive, []byte("garbage"), 0o644))
	before := f.catalog.All()

	res, err := f.svc.Open(context.Background(), "report.fopt", "")
	assert.ErrorIs(t, err, ErrExtraction)
	assert.False(t, res.Success)
	assert.Equal(t, before, f.catalog.All())

	entries, _ := os.ReadDir(filepath.Join(f.svc.ScratchDir(), "report.fopt"))
	assert.Empty(t, entries, "no partial extraction left behind")
}

func TestOpenMissingArchive(t *testing.T) {
	f := setup(t)
	require.NoError(t, os.Remove(f.archive))

	_, err := f.svc.Open(context.Background(), "report.fopt", "")
	assert.ErrorIs(t, err, ErrExtraction)
	_, ok := f.catalog.Get("report.fopt")
	assert.True(t, ok)
}

func TestOpenLauncherFailureKeepsExtraction(t *testing.T) {
	f := setup(t)
	f.opener.err = errors.New("no display")

	res, err := f.svc.Open(context.Background(), "report.fopt", "")
	assert.Error(t, err)
	assert.False(t, res.Success)
	assert.FileExists(t, res.Path)
}

func TestRestore(t *testing.T) {
	f := setup(t)

	require.NoError(t, os.Remove(f.src))
	res, err := f.svc.Restore(context.Background(), "report.fopt")
	require.NoError(t, err)
	assert.Equal(t, f.src, res.Path)
	got, err := os.ReadFile(f.src)
	require.NoError(t, err)
	assert.Equal(t, f.content, got)

	res, err = f.svc.Restore(context.Background(), "report.fopt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(f.src), "report-restored.pdf"), res.Path)

	res, err = f.svc.Restore(context.Background(), "report.fopt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(f.src), "report-restored-1.pdf"), res.Path)

	_, err = f.svc.Restore(context.Background(), "missing.fopt")
	assert.ErrorIs(t, err, ErrUnknownArchive)
}

func TestCleanupScratch(t *testing.T) {
	f := setup(t)
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now.Add(-48 * time.Hour) }

	res, err := f.svc.Open(context.Background(), "report.fopt", "")
	require.NoError(t, err)

	fresh := filepath.Join(f.svc.ScratchDir(), "fresh.fopt", "fresh.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(fresh), 0o755))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	require.NoError(t, f.index.Put(scratch.Entry{ArchiveName: "fresh.fopt", ScratchPath: fresh, ExtractedAt: now}))
	require.NoError(t, f.index.Put(scratch.Entry{ArchiveName: "gone.fopt", ScratchPath: "/nonexistent/gone", ExtractedAt: now}))

	removed, err := f.svc.CleanupScratch(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, res.Path)
	assert.FileExists(t, fresh)

	_, err = f.index.Get("report.fopt")
	assert.ErrorIs(t, err, scratch.ErrNotFound)
	_, err = f.index.Get("gone.fopt")
	assert.ErrorIs(t, err, scratch.ErrNotFound)
	_, err = f.index.Get("fresh.fopt")
	assert.NoError(t, err)
}
