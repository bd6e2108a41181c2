// Package filter categorizes scanned files by extension and decides which
// entries a scan reports. It supports type-group filtering, glob exclusions
// and size-descending ordering of results.
package filter

import (
	"cmp"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// CategoryOther labels files whose extension belongs to no group.
const CategoryOther = "other"

// TypeGroups maps category names to their file extensions.
var TypeGroups = map[string][]string{
	"video": {
		".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv", ".webm", ".m4v", ".mpeg", ".mpg",
		".3gp", ".m2ts", ".mts", ".ts",
	},
	"audio": {
		".mp3", ".flac", ".wav", ".aac", ".ogg", ".wma", ".m4a", ".opus", ".aiff", ".alac",
	},
	"image": {
		".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif", ".webp", ".svg", ".ico",
		".heic", ".heif", ".raw", ".cr2", ".nef", ".psd", ".ai", ".indd",
	},
	"document": {
		".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".odt", ".ods", ".odp",
		".rtf", ".txt", ".epub", ".mobi", ".pages", ".numbers", ".key", ".csv", ".md",
		".json", ".xml", ".log",
	},
	"archive": {
		".zip", ".tar", ".gz", ".bz2", ".xz", ".7z", ".rar", ".tgz", ".zst", ".iso", ".dmg",
	},
	"email": {
		".pst", ".ost", ".mbox", ".eml",
	},
	"executable": {
		".exe", ".msi", ".app", ".deb", ".rpm", ".appimage", ".bin",
	},
}

// ErrUnknownTypeGroup indicates a type group name not present in TypeGroups.
var ErrUnknownTypeGroup = errors.New("unknown type group")

// ErrInvalidPattern indicates an exclusion glob that does not compile.
var ErrInvalidPattern = errors.New("invalid exclude pattern")

var extCategory = func() map[string]string {
	m := make(map[string]string)
	for group, exts := range TypeGroups {
		for _, ext := range exts {
			m[ext] = group
		}
	}
	return m
}()

// Category returns the type group for a file path, or CategoryOther.
func Category(path string) string {
	if group, ok := extCategory[strings.ToLower(filepath.Ext(path))]; ok {
		return group
	}
	return CategoryOther
}

// GroupNames returns the known type group names in sorted order.
func GroupNames() []string {
	names := make([]string, 0, len(TypeGroups)+1)
	for name := range TypeGroups {
		names = append(names, name)
	}
	names = append(names, CategoryOther)
	sort.Strings(names)
	return names
}

// Filter decides whether a path is reported by a scan. The zero value
// accepts everything.
type Filter struct {
	groups   map[string]bool
	exclude  []glob.Glob
	patterns []string
}

// Option configures a Filter.
type Option func(*Filter) error

// New creates a Filter with the given options.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// WithTypeGroups restricts matches to files in the named groups. An empty
// list keeps every type. "other" selects files that belong to no group.
func WithTypeGroups(groups ...string) Option {
	return func(f *Filter) error {
		for _, g := range groups {
			g = strings.ToLower(strings.TrimSpace(g))
			if g == "" {
				continue
			}
			if _, ok := TypeGroups[g]; !ok && g != CategoryOther {
				return fmt.Errorf("%w: %q", ErrUnknownTypeGroup, g)
			}
			if f.groups == nil {
				f.groups = make(map[string]bool)
			}
			f.groups[g] = true
		}
		return nil
	}
}

// WithExclude skips any path matching one of the glob patterns. Patterns use
// '/' as separator, so "*" stays within one path segment and "**" crosses them.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) error {
		for _, p := range patterns {
			if p == "" {
				continue
			}
			g, err := glob.Compile(p, '/')
			if err != nil {
				return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
			}
			f.exclude = append(f.exclude, g)
			f.patterns = append(f.patterns, p)
		}
		return nil
	}
}

// MatchType reports whether the file's category passes the type filter.
func (f *Filter) MatchType(path string) bool {
	if len(f.groups) == 0 {
		return true
	}
	return f.groups[Category(path)]
}

// Excluded reports whether the path matches an exclusion pattern.
func (f *Filter) Excluded(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, g := range f.exclude {
		if g.Match(slashed) {
			return true
		}
	}
	return false
}

// Patterns returns the exclusion patterns as given.
func (f *Filter) Patterns() []string {
	return slices.Clone(f.patterns)
}

// SortBySizeDesc returns a copy of entries ordered by size, largest first.
// Equal sizes are ordered by path.
func SortBySizeDesc(entries []types.FileEntry) []types.FileEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b types.FileEntry) int {
		if c := cmp.Compare(b.SizeBytes, a.SizeBytes); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return out
}
