package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the wallet session as a small JSON file, standing in
// for the browser-local key-value store of the original integration.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed session store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted session. A missing file means no session and
// returns (nil, nil). A structurally invalid file is treated the same,
// so a corrupt session never blocks a fresh connect.
func (f *FileStore) Load() (*PersistedSession, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s PersistedSession
	if err := json.Unmarshal(raw, &s); err != nil || s.Address == "" {
		return nil, nil
	}
	return &s, nil
}

// Save writes the session record, creating parent directories as needed.
func (f *FileStore) Save(s *PersistedSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create session dir: %w", err)
		}
	}
	if err := os.WriteFile(f.path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Clear removes the persisted session. Clearing an absent session is not
// an error.
func (f *FileStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
