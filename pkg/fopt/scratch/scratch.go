// Package scratch tracks files extracted from archives for viewing. The
// catalog stays immutable; when and where an archive was last extracted is
// kept here instead.
package scratch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no extraction is recorded for an archive.
var ErrNotFound = errors.New("scratch entry not found")

var keyPrefix = []byte("scratch/")

// Entry records one extracted copy.
type Entry struct {
	ArchiveName string    `json:"archive_name"`
	ScratchPath string    `json:"scratch_path"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Index wraps Badger for scratch bookkeeping.
type Index struct {
	db *badger.DB
}

// Open opens or creates the index in dir. An empty dir keeps the index in
// memory.
func Open(dir string) (*Index, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening scratch index: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the index.
func (i *Index) Close() error {
	return i.db.Close()
}

func key(archiveName string) []byte {
	return append(append([]byte{}, keyPrefix...), archiveName...)
}

// Get returns the entry for an archive.
func (i *Index) Get(archiveName string) (Entry, error) {
	var e Entry
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(archiveName))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Put records an extraction, replacing any earlier one for the archive.
func (i *Index) Put(e Entry) error {
	if e.ArchiveName == "" {
		return errors.New("scratch entry needs an archive name")
	}
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return i.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(e.ArchiveName), val)
	})
}

// Delete removes the entry for an archive.
func (i *Index) Delete(archiveName string) error {
	return i.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(archiveName))
	})
}

// List returns every entry in key order.
func (i *Index) List() ([]Entry, error) {
	var entries []Entry
	err := i.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}
