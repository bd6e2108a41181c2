package archive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, dir, entry string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, "out"+Extension)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	n, err := Write(context.Background(), f, entry, bytes.NewReader(content), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), n)
	return path
}

func TestWriteExtractRoundTrip(t *testing.T) {
	content := []byte(strings.Repeat("fopt compresses repetitive data well. ", 4096))
	path := writeArchive(t, t.TempDir(), "/some/dir/report.pdf", content)

	entry, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", entry.Name)
	assert.Equal(t, int64(len(content)), entry.Size)
	assert.Less(t, entry.Compressed, entry.Size)

	var out bytes.Buffer
	got, err := Extract(context.Background(), path, &out)
	require.NoError(t, err)
	assert.Equal(t, entry.Name, got.Name)
	assert.Equal(t, content, out.Bytes())
}

func TestArchiveCarriesFormatTag(t *testing.T) {
	path := writeArchive(t, t.TempDir(), "a.bin", []byte("hello"))

	rc, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, FormatTag, rc.Comment)
	require.Len(t, rc.File, 1)
	assert.Equal(t, uint16(MethodZstd), rc.File[0].Method)
}

func TestWriteReportsProgress(t *testing.T) {
	content := bytes.Repeat([]byte{7}, 100_000)
	var last int64
	_, err := Write(context.Background(), &bytes.Buffer{}, "x.dat", bytes.NewReader(content), time.Now(), func(done int64) {
		assert.GreaterOrEqual(t, done, last)
		last = done
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), last)
}

func TestWriteHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Write(ctx, &bytes.Buffer{}, "x.dat", strings.NewReader("data"), time.Now(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteRejectsBadName(t *testing.T) {
	_, err := Write(context.Background(), &bytes.Buffer{}, "..", strings.NewReader("x"), time.Now(), nil)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestInvalidArchives(t *testing.T) {
	dir := t.TempDir()

	notZip := filepath.Join(dir, "garbage.fopt")
	require.NoError(t, os.WriteFile(notZip, []byte("not a zip file"), 0o644))

	twoEntries := filepath.Join(dir, "two.fopt")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"a", "b"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, _ = w.Write([]byte(name))
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(twoEntries, buf.Bytes(), 0o644))

	traversal := filepath.Join(dir, "traversal.fopt")
	buf.Reset()
	zw = zip.NewWriter(&buf)
	w, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("x"))
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(traversal, buf.Bytes(), 0o644))

	for _, path := range []string{notZip, twoEntries, traversal, filepath.Join(dir, "missing.fopt")} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := Inspect(path)
			assert.True(t, errors.Is(err, ErrInvalidArchive), "Inspect error = %v", err)

			_, err = Extract(context.Background(), path, &bytes.Buffer{})
			assert.True(t, errors.Is(err, ErrInvalidArchive), "Extract error = %v", err)
		})
	}
}
