// Package cache stores term snapshots on disk, one JSON artifact per term.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/sandboxnu/searchneu-sub001/catalog"
)

const ext = ".json"

// Entry is the on-disk artifact: the snapshot plus when it was written.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	catalog.Snapshot
}

// Store keeps artifacts in Dir, named by term code.
type Store struct {
	Dir string
}

func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) Path(term string) string {
	return filepath.Join(s.Dir, term+ext)
}

func (s *Store) Exists(term string) (bool, error) {
	_, err := os.Stat(s.Path(term))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	}
	return false, fmt.Errorf("cache: stat %s: %w", term, err)
}

// Terms lists the term codes that have an artifact, sorted.
func (s *Store) Terms() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: list %s: %w", s.Dir, err)
	}

	var terms []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		terms = append(terms, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(terms)
	return terms, nil
}

// Write validates snapshot and replaces the term's artifact atomically.
func (s *Store) Write(snapshot *catalog.Snapshot) (string, error) {
	if err := catalog.Validate(snapshot); err != nil {
		return "", fmt.Errorf("cache: refusing to write %s: %w", snapshot.Term.Code, err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("cache: create %s: %w", s.Dir, err)
	}

	data, err := json.MarshalIndent(Entry{Timestamp: time.Now().UTC(), Snapshot: *snapshot}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cache: encode %s: %w", snapshot.Term.Code, err)
	}

	path := s.Path(snapshot.Term.Code)
	tmp, err := os.CreateTemp(s.Dir, "."+snapshot.Term.Code+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("cache: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("cache: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("cache: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("cache: rename %s: %w", path, err)
	}
	return path, nil
}

// Read loads and validates a term's artifact. A version mismatch fails with
// catalog.ErrVersionMismatch before the rest of the document is decoded.
func (s *Store) Read(term string) (*Entry, error) {
	path := s.Path(term)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cache: read %s: %w", term, err)
	}

	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", path, err)
	}
	if header.Version != catalog.Version {
		return nil, fmt.Errorf("cache: %s: %w: got %d, want %d", path, catalog.ErrVersionMismatch, header.Version, catalog.Version)
	}

	var entry Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entry); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", path, err)
	}
	if entry.Term.Code != term {
		return nil, fmt.Errorf("cache: %s holds term %s", path, entry.Term.Code)
	}
	if err := catalog.Validate(&entry.Snapshot); err != nil {
		return nil, fmt.Errorf("cache: %s: %w", path, err)
	}
	return &entry, nil
}
