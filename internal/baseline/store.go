// Package baseline persists the comparison baseline: the snapshot from the
// previous run, stored as a readable JSON document at a configured path.
package baseline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"shopwatch/internal/catalog"
)

const schemaVersion = 1

type document struct {
	Version int              `json:"version"`
	Items   catalog.Snapshot `json:"items"`
}

type Store struct {
	path string
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("baseline path is empty")
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

// Load reads the baseline. ok=false with a nil error means no baseline exists
// yet (first-run bootstrap). Malformed or unvalidatable content is an error;
// a broken baseline must fail the run rather than masquerade as a first run.
func (s *Store) Load() (catalog.Snapshot, bool, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("baseline %s: %w", s.path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, false, fmt.Errorf("baseline %s: malformed document: %w", s.path, err)
	}
	if dec.More() {
		return nil, false, fmt.Errorf("baseline %s: trailing content after document", s.path)
	}
	if doc.Version != schemaVersion {
		return nil, false, fmt.Errorf("baseline %s: unsupported version %d", s.path, doc.Version)
	}
	if err := doc.Items.Validate(); err != nil {
		return nil, false, fmt.Errorf("baseline %s: %w", s.path, err)
	}
	return doc.Items, true, nil
}

// Save atomically replaces the baseline (temp file + rename). Serialization
// is deterministic: saving an identical snapshot rewrites identical bytes.
func (s *Store) Save(snap catalog.Snapshot) error {
	if snap == nil {
		snap = catalog.Snapshot{}
	}
	doc := document{Version: schemaVersion, Items: snap}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("baseline %s: encode: %w", s.path, err)
	}
	b = append(b, '\n')

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("baseline %s: %w", s.path, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("baseline %s: write: %w", s.path, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("baseline %s: replace: %w", s.path, err)
	}
	return nil
}
