// Package folders lists the top-level folders a user can scan.
package folders

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/xdg"

	"github.com/jamesainslie/fopt/pkg/fopt/logging"
)

// ErrEnumeration indicates the home directory could not be listed.
var ErrEnumeration = errors.New("folder enumeration failed")

// Enumerator lists scannable folders: the non-hidden child directories of
// the home directory followed by the default user folders.
type Enumerator struct {
	home     string
	defaults []string
}

// Option configures an Enumerator.
type Option func(*Enumerator)

// WithHome overrides the home directory.
func WithHome(dir string) Option {
	return func(e *Enumerator) {
		e.home = dir
	}
}

// WithDefaults overrides the default folders.
func WithDefaults(dirs ...string) Option {
	return func(e *Enumerator) {
		e.defaults = dirs
	}
}

// New creates an Enumerator for the current user.
func New(opts ...Option) *Enumerator {
	e := &Enumerator{
		home:     xdg.Home,
		defaults: DefaultFolders(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultFolders returns the user's Downloads, Documents, Pictures and
// Desktop directories.
func DefaultFolders() []string {
	return []string{
		xdg.UserDirs.Download,
		xdg.UserDirs.Documents,
		xdg.UserDirs.Pictures,
		xdg.UserDirs.Desktop,
	}
}

// List returns the scannable folders. Home children come first in lexical
// order, then the defaults not already listed. If the home directory cannot
// be read, a warning is logged and only the existing defaults are returned.
func (e *Enumerator) List() []string {
	log := logging.Get("folders")

	children, err := e.homeChildren()
	if err != nil {
		log.Warn("listing home directory", "home", e.home, "error", err)
		children = nil
	}

	seen := make(map[string]bool, len(children))
	out := make([]string, 0, len(children)+len(e.defaults))
	for _, c := range children {
		seen[c] = true
		out = append(out, c)
	}
	for _, d := range e.Defaults() {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// Defaults returns the default folders that exist as directories.
func (e *Enumerator) Defaults() []string {
	var out []string
	for _, d := range e.defaults {
		if d == "" {
			continue
		}
		d = filepath.Clean(d)
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			out = append(out, d)
		}
	}
	return out
}

func (e *Enumerator) homeChildren() ([]string, error) {
	if e.home == "" {
		return nil, fmt.Errorf("%w: home directory unknown", ErrEnumeration)
	}
	entries, err := os.ReadDir(e.home)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumeration, err)
	}

	var dirs []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(e.home, entry.Name())
		if !entry.IsDir() {
			// Follow symlinks to directories.
			if entry.Type()&os.ModeSymlink == 0 {
				continue
			}
			if info, err := os.Stat(path); err != nil || !info.IsDir() {
				continue
			}
		}
		dirs = append(dirs, filepath.Clean(path))
	}
	sort.Strings(dirs)
	return dirs, nil
}
