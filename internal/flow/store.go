// ABOUTME: Atomic replace-on-write persistence for the FlowState document.
// ABOUTME: Temp file in the same directory, fsync, rename; never a partial read.

package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists FlowState documents at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the given file path. Parent directories are
// created on first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (st *Store) Path() string {
	return st.path
}

// Exists reports whether a persisted state is present.
func (st *Store) Exists() bool {
	_, err := os.Stat(st.path)
	return err == nil
}

// Load reads and validates the persisted state. A missing file returns an
// error wrapping os.ErrNotExist so callers can distinguish "fresh run".
func (st *Store) Load() (*State, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		return nil, fmt.Errorf("loading flow state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing flow state %s: %w", st.path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", st.path, err)
	}
	return &s, nil
}

// Save atomically replaces the persisted state. The document is written to
// a temp file in the destination directory, fsynced, then renamed into
// place, so a concurrent reader sees either the old or the new document.
func (st *Store) Save(s *State) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid flow state: %w", err)
	}

	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding flow state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".flow-state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, st.path); err != nil {
		return fmt.Errorf("replacing flow state: %w", err)
	}
	return nil
}
