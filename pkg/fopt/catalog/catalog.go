// Package catalog persists the mapping from archive name to the file it
// was compacted from. The catalog is a single JSON file rewritten
// atomically on every change.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/jamesainslie/fopt/pkg/fopt/logging"
)

// CorruptSuffix is appended to a catalog file that could not be parsed.
const CorruptSuffix = ".corrupt"

// Errors returned by Upsert.
var (
	ErrInvalidRecord = errors.New("invalid catalog record")
	ErrNameTaken     = errors.New("archive name already recorded for another archive")
)

// Record describes one compacted file. Records are immutable once written.
type Record struct {
	OriginalPath string    `json:"original_path" yaml:"original_path"`
	ArchivePath  string    `json:"archive_path" yaml:"archive_path"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// Name returns the catalog key for the record, the archive's base name.
func (r Record) Name() string {
	return filepath.Base(r.ArchivePath)
}

// Store is the catalog. Readers run concurrently; writers are exclusive.
type Store struct {
	fs   afero.Fs
	path string
	log  *logging.Logger

	mu      sync.RWMutex
	records map[string]Record
}

// Open loads the catalog at path on fs. A missing file yields an empty
// catalog. A file that cannot be parsed is moved aside to path+".corrupt"
// and the catalog starts empty.
func Open(fs afero.Fs, path string) (*Store, error) {
	s := &Store{
		fs:      fs,
		path:    path,
		log:     logging.Get("catalog"),
		records: make(map[string]Record),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenFile opens a catalog on the local filesystem.
func OpenFile(path string) (*Store, error) {
	return Open(afero.NewOsFs(), path)
}

// Path returns the catalog file path.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory catalog with the file contents.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Warn("catalog not found, starting empty", "path", s.path)
			s.records = make(map[string]Record)
			return nil
		}
		return fmt.Errorf("reading catalog: %w", err)
	}

	records := make(map[string]Record)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			s.quarantine(err)
			s.records = make(map[string]Record)
			return nil
		}
	}
	if records == nil {
		records = make(map[string]Record)
	}
	s.records = records
	return nil
}

// quarantine must be called with s.mu held.
func (s *Store) quarantine(cause error) {
	dest := s.path + CorruptSuffix
	if err := s.fs.Rename(s.path, dest); err != nil {
		s.log.Error("catalog corrupt and could not be moved aside", "path", s.path, "parse_error", cause, "error", err)
		return
	}
	s.log.Error("catalog corrupt, starting empty", "path", s.path, "saved_as", dest, "error", cause)
}

// All returns a copy of every record keyed by archive name.
func (s *Store) All() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.records)
}

// Names returns the archive names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the record for an archive name.
func (s *Store) Get(name string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[name]
	return r, ok
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Upsert inserts the record under its archive name and persists the
// catalog. Writing the same archive path again replaces its record; a name
// held by an archive at a different path is rejected with ErrNameTaken.
// On a persistence failure the in-memory catalog is unchanged.
func (s *Store) Upsert(r Record) error {
	if r.ArchivePath == "" || r.OriginalPath == "" {
		return ErrInvalidRecord
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.CreatedAt = r.CreatedAt.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	name := r.Name()
	prev, existed := s.records[name]
	if existed && prev.ArchivePath != r.ArchivePath {
		return fmt.Errorf("%w: %s is %s", ErrNameTaken, name, prev.ArchivePath)
	}
	s.records[name] = r
	if err := s.persist(); err != nil {
		if existed {
			s.records[name] = prev
		} else {
			delete(s.records, name)
		}
		return err
	}
	return nil
}

// Remove deletes a record. Removing an absent name is not an error.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[name]
	if !ok {
		return nil
	}
	delete(s.records, name)
	if err := s.persist(); err != nil {
		s.records[name] = prev
		return err
	}
	return nil
}

// Prune removes records whose archive file no longer exists and returns
// their names.
func (s *Store) Prune() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for name, r := range s.records {
		if _, err := s.fs.Stat(r.ArchivePath); errors.Is(err, os.ErrNotExist) {
			removed = append(removed, name)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}

	prev := maps.Clone(s.records)
	for _, name := range removed {
		delete(s.records, name)
	}
	if err := s.persist(); err != nil {
		s.records = prev
		return nil, err
	}
	sort.Strings(removed)
	return removed, nil
}

// persist writes the catalog to a temp file beside it and renames it into
// place. Must be called with s.mu held.
func (s *Store) persist() error {
	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating catalog directory: %w", err)
	}

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".catalog-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp catalog: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("writing temp catalog: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("syncing temp catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("closing temp catalog: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("replacing catalog: %w", err)
	}
	return nil
}
