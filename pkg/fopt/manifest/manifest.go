package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// ErrEntryNotFound is returned by Get for an unknown ID.
var ErrEntryNotFound = errors.New("manifest entry not found")

// Manifest manages operation logging to the filesystem.
type Manifest struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// New creates a new Manifest with the given directory. The directory is
// created on first write.
func New(dir string) (*Manifest, error) {
	if dir == "" {
		return nil, errors.New("manifest directory cannot be empty")
	}
	return &Manifest{dir: dir, now: time.Now}, nil
}

// Dir returns the manifest directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// LogScan records a finished scan job and its matches.
func (m *Manifest) LogScan(info types.JobInfo, files []types.FileEntry) (*Entry, error) {
	records := make([]FileRecord, 0, len(files))
	for _, f := range files {
		records = append(records, FileRecord{Path: f.Path, Size: f.SizeBytes})
	}
	return m.log(&Entry{
		Operation: OpScan,
		Status:    string(info.Status),
		JobID:     info.ID,
		Files:     records,
	})
}

// LogCompact records a compaction of src into archivePath.
func (m *Manifest) LogCompact(src string, size int64, archivePath string) (*Entry, error) {
	return m.log(&Entry{
		Operation: OpCompact,
		Status:    "success",
		Files:     []FileRecord{{Path: src, Size: size, ArchivePath: archivePath}},
	})
}

// LogOpen records an archive opened for viewing at path.
func (m *Manifest) LogOpen(archivePath, path string) (*Entry, error) {
	return m.logExtraction(OpOpen, archivePath, path)
}

// LogRestore records an archive restored to path.
func (m *Manifest) LogRestore(archivePath, path string) (*Entry, error) {
	return m.logExtraction(OpRestore, archivePath, path)
}

func (m *Manifest) logExtraction(op OperationType, archivePath, path string) (*Entry, error) {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	return m.log(&Entry{
		Operation: op,
		Status:    "success",
		Files:     []FileRecord{{Path: path, Size: size, ArchivePath: archivePath}},
	})
}

func (m *Manifest) log(entry *Entry) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.Timestamp = m.now().UTC()
	entry.ID = generateID(entry.Operation, entry.Timestamp)
	if entry.Files == nil {
		entry.Files = []FileRecord{}
	}
	for _, f := range entry.Files {
		entry.Summary.TotalBytes += f.Size
	}
	entry.Summary.TotalFiles = int64(len(entry.Files))

	if err := m.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("failed to write manifest entry: %w", err)
	}
	return entry, nil
}

// writeEntry writes an entry to <id>.json via a temp file and rename.
func (m *Manifest) writeEntry(entry *Entry) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	filePath := filepath.Join(m.dir, entry.ID+".json")
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns entries newest first. A limit of 0 or less returns all.
func (m *Manifest) List(limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.readAll()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get retrieves a specific entry by ID.
func (m *Manifest) Get(id string) (*Entry, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.readEntryFile(id + ".json")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		return nil, err
	}
	return entry, nil
}

func (m *Manifest) readAll() ([]Entry, error) {
	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := m.readEntryFile(f.Name())
		if err != nil {
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (m *Manifest) readEntryFile(filename string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Cleanup removes entries older than retentionDays and returns how many
// were removed.
func (m *Manifest) Cleanup(retentionDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.readAll()
	if err != nil {
		return 0, err
	}

	cutoff := m.now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, e.ID+".json")); err == nil {
			removed++
		}
	}
	return removed, nil
}

// generateID creates an ID like "scan-2026-06-15T10-30-00-1b4e28ba".
func generateID(op OperationType, ts time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%s-%s", op, ts.Format("2006-01-02T15-04-05"), suffix)
}
