// Package output renders fopt scan results, catalog listings and operation
// history in several formats (pretty, plain, json, yaml, paths).
//
// Formatters are looked up by name from a registry so the CLI can select one
// at runtime:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, output.ScanResult(info, files)); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jamesainslie/fopt/pkg/fopt/catalog"
	"github.com/jamesainslie/fopt/pkg/fopt/logging"
	"github.com/jamesainslie/fopt/pkg/fopt/manifest"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// logger is the package-level logger for output operations.
var logger = logging.Get("output")

// ErrUnknownFormatter is returned when no formatter is registered under a name.
var ErrUnknownFormatter = errors.New("unknown formatter")

// Kind selects which part of a Result is rendered.
type Kind string

// Result kinds.
const (
	KindScan    Kind = "scan"
	KindCatalog Kind = "catalog"
	KindHistory Kind = "history"
)

// Result contains the data handed to a formatter. Only the fields relevant
// to Kind are set.
type Result struct {
	Kind Kind

	// KindScan
	Job   types.JobInfo
	Files []types.FileEntry

	// KindCatalog, sorted by archive name.
	Records []catalog.Record

	// KindHistory, newest first.
	History []manifest.Entry

	// Warnings are rendered after the main content by human formats.
	Warnings []string
}

// ScanResult builds a Result for a finished (or checkpointed) scan.
func ScanResult(job types.JobInfo, files []types.FileEntry) *Result {
	return &Result{Kind: KindScan, Job: job, Files: files}
}

// CatalogResult builds a Result from a catalog mapping.
func CatalogResult(records map[string]catalog.Record) *Result {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]catalog.Record, 0, len(names))
	for _, name := range names {
		list = append(list, records[name])
	}
	return &Result{Kind: KindCatalog, Records: list}
}

// HistoryResult builds a Result from manifest entries.
func HistoryResult(entries []manifest.Entry) *Result {
	return &Result{Kind: KindHistory, History: entries}
}

// TotalSize returns the sum of all matched file sizes.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.SizeBytes
	}
	return total
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any existing
// formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		logger.Debug("formatter lookup failed", "name", name)
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormatter, name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns the names registered in the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
