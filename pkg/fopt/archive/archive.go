// Package archive reads and writes .fopt files. A .fopt file is a ZIP
// container holding exactly one Zstandard-compressed entry named after the
// original file. The archive comment carries the format tag.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const (
	// Extension is the file extension of compacted archives.
	Extension = ".fopt"

	// FormatTag is stored as the ZIP comment of every archive.
	FormatTag = "fopt/1"

	// MethodZstd is the ZIP compression method id for Zstandard.
	MethodZstd = zstd.ZipMethodWinZip
)

// ErrInvalidArchive indicates the file is not a well-formed .fopt archive.
var ErrInvalidArchive = errors.New("invalid fopt archive")

// Entry describes the single file stored in an archive.
type Entry struct {
	Name       string
	Size       int64
	Compressed int64
	Modified   time.Time
}

// ProgressFunc receives the number of source bytes consumed so far.
type ProgressFunc func(done int64)

// Write compresses src into w as an archive whose entry is called name.
// It returns the number of source bytes written. The context is checked
// between reads.
func Write(ctx context.Context, w io.Writer, name string, src io.Reader, modTime time.Time, onProgress ProgressFunc) (int64, error) {
	name = filepath.Base(name)
	if !validName(name) {
		return 0, fmt.Errorf("%w: entry name %q", ErrInvalidArchive, name)
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(MethodZstd, zstd.ZipCompressor(zstd.WithEncoderLevel(zstd.SpeedBetterCompression)))

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   MethodZstd,
		Modified: modTime,
	}
	ew, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, fmt.Errorf("creating archive entry: %w", err)
	}

	n, err := io.Copy(ew, &contextReader{ctx: ctx, r: src, onProgress: onProgress})
	if err != nil {
		return n, fmt.Errorf("compressing %s: %w", name, err)
	}

	if err := zw.SetComment(FormatTag); err != nil {
		return n, fmt.Errorf("setting archive comment: %w", err)
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("finalizing archive: %w", err)
	}
	return n, nil
}

// Inspect returns the entry stored in the archive at path.
func Inspect(path string) (Entry, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer rc.Close()

	f, err := single(&rc.Reader)
	if err != nil {
		return Entry{}, err
	}
	return entryOf(f), nil
}

// Extract decompresses the archive at path into dst.
func Extract(ctx context.Context, path string, dst io.Writer) (Entry, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer rc.Close()

	rc.RegisterDecompressor(MethodZstd, zstd.ZipDecompressor())

	f, err := single(&rc.Reader)
	if err != nil {
		return Entry{}, err
	}

	r, err := f.Open()
	if err != nil {
		return Entry{}, fmt.Errorf("%w: opening entry: %v", ErrInvalidArchive, err)
	}
	defer r.Close()

	if _, err := io.Copy(dst, &contextReader{ctx: ctx, r: r}); err != nil {
		if ctx.Err() != nil {
			return Entry{}, ctx.Err()
		}
		return Entry{}, fmt.Errorf("%w: decompressing %s: %v", ErrInvalidArchive, f.Name, err)
	}
	return entryOf(f), nil
}

func single(r *zip.Reader) (*zip.File, error) {
	if r.Comment != "" && r.Comment != FormatTag {
		return nil, fmt.Errorf("%w: unexpected format tag %q", ErrInvalidArchive, r.Comment)
	}
	if len(r.File) != 1 {
		return nil, fmt.Errorf("%w: expected one entry, found %d", ErrInvalidArchive, len(r.File))
	}
	f := r.File[0]
	if !validName(f.Name) || filepath.Base(f.Name) != f.Name {
		return nil, fmt.Errorf("%w: unsafe entry name %q", ErrInvalidArchive, f.Name)
	}
	return f, nil
}

func entryOf(f *zip.File) Entry {
	return Entry{
		Name:       f.Name,
		Size:       int64(f.UncompressedSize64),
		Compressed: int64(f.CompressedSize64),
		Modified:   f.Modified,
	}
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && name != string(filepath.Separator)
}

// contextReader stops reading once its context is done.
type contextReader struct {
	ctx        context.Context
	r          io.Reader
	n          int64
	onProgress ProgressFunc
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		if c.onProgress != nil {
			c.onProgress(c.n)
		}
	}
	return n, err
}
