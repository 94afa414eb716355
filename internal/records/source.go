// Package records enumerates pending input documents and moves them through
// their lifecycle. A record's state is defined by where its file lives.
package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrMalformedRecord is returned for documents that cannot be parsed or
// carry no title.
var ErrMalformedRecord = errors.New("malformed record")

// State is a record's lifecycle position.
type State int

const (
	Pending State = iota
	Processed
	// Errored records stay in the pending directory and are retried by a
	// later run.
	Errored
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Processed:
		return "processed"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Record is one input document.
type Record struct {
	ID    string // file name within the pending directory
	Path  string
	Topic string
	State State
}

// Source lists the pending directory. Nothing is cached: every call
// re-reads the directory so newly dropped files are picked up.
type Source struct {
	dir string
}

// NewSource creates a Source over dir.
func NewSource(dir string) *Source {
	return &Source{dir: dir}
}

// Dir returns the pending directory.
func (s *Source) Dir() string { return s.dir }

// List returns the IDs of all pending .json records in name order.
// A missing directory has no records.
func (s *Source) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Next returns the first pending record ID for which skip reports false.
// found is false when none is left.
func (s *Source) Next(skip func(id string) bool) (id string, found bool, err error) {
	ids, err := s.List()
	if err != nil {
		return "", false, err
	}
	for _, id := range ids {
		if skip == nil || !skip(id) {
			return id, true, nil
		}
	}
	return "", false, nil
}

type document struct {
	Title *string `json:"title"`
}

// Load reads a pending record and extracts its topic from the title field.
// The returned Record is valid (ID and Path set) even when err wraps
// ErrMalformedRecord.
func (s *Source) Load(id string) (Record, error) {
	rec := Record{ID: id, Path: filepath.Join(s.dir, id), State: Pending}

	data, err := os.ReadFile(rec.Path)
	if err != nil {
		return rec, fmt.Errorf("reading %s: %w", id, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return rec, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, id, err)
	}
	if doc.Title == nil || strings.TrimSpace(*doc.Title) == "" {
		return rec, fmt.Errorf("%w: %s has no title", ErrMalformedRecord, id)
	}
	rec.Topic = strings.TrimSpace(*doc.Title)
	return rec, nil
}
