// Package gallery persists the mirrored-extension state for one market as a
// gallery.json file in the market directory. The file is the source of truth
// read by the query server and is always replaced atomically, so a reader
// never observes a partially written store.
package gallery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/vsixmirror/internal/marketplace"
)

// FileName is the store file within a market directory.
const FileName = "gallery.json"

// Entry records one mirrored extension: the release that was mirrored, the
// full upstream metadata blob for it, and the artifact filename relative to
// the market directory.
type Entry struct {
	ID       string          `json:"id"`
	Version  string          `json:"version"`
	Metadata json.RawMessage `json:"metadata"`
	VSIXPath string          `json:"vsix_path"`
}

// Store reads and writes the gallery file of one market directory.
type Store struct {
	dir string
}

// NewStore creates a Store for the given market directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the market directory this store is bound to.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path() string {
	return filepath.Join(s.dir, FileName)
}

// Load reads the gallery file. A missing or unreadable file yields an empty
// mapping, never an error: the store is rebuilt by the next sync pass, and
// treating corruption as fatal would take the serving path down with it.
func (s *Store) Load() map[string]Entry {
	entries := make(map[string]Entry)

	data, err := os.ReadFile(s.path())
	if err != nil {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return make(map[string]Entry)
	}
	return entries
}

// Save replaces the gallery file with the given mapping. The file is written
// to a temporary name in the same directory and renamed into place.
func (s *Store) Save(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal gallery: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".gallery-*")
	if err != nil {
		return fmt.Errorf("create gallery temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close gallery temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace gallery: %w", err)
	}
	return nil
}

// Put upserts a single entry, keyed by the lower-cased extension id, and
// saves immediately. Sync calls this after every successful mirror so a
// crash mid-batch loses at most the in-flight extension.
func (s *Store) Put(entry Entry) error {
	entries := s.Load()
	entries[marketplace.NormalizeID(entry.ID)] = entry
	return s.Save(entries)
}

// Delete removes entries by id and saves. Missing ids are ignored.
func (s *Store) Delete(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	entries := s.Load()
	for _, id := range ids {
		delete(entries, marketplace.NormalizeID(id))
	}
	return s.Save(entries)
}
