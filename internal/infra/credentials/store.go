package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists the session bearer token on the local filesystem so a
// restarted client can restore its credential without re-authenticating.
type FileStore struct {
	path string
}

// NewFileStore initializes a FileStore at the given path. Parent directories
// are created on first save, not here.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("credentials: path is required")
	}
	return &FileStore{path: path}, nil
}

// Load returns the persisted token, or "" when none has been saved.
func (s *FileStore) Load() (string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: read token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Save persists the token, replacing any previous one. Tokens are secrets, so
// the file is created owner-readable only.
func (s *FileStore) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credentials: token is required")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credentials: ensure directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("credentials: write token: %w", err)
	}
	return nil
}

// Clear removes the persisted token. Clearing an absent token is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credentials: remove token: %w", err)
	}
	return nil
}
