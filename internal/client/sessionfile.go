package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/studentfund/studentfund/internal/provider"
)

// SessionFile persists the current session between runs.
type SessionFile struct {
	path string
}

// NewSessionFile returns a SessionFile at path. If path is empty,
// ~/.studentfund/session.json is used.
func NewSessionFile(path string) (*SessionFile, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".studentfund", "session.json")
	}
	return &SessionFile{path: path}, nil
}

// Path returns the file location.
func (f *SessionFile) Path() string {
	return f.path
}

// Load reads the persisted session. A missing file yields nil, nil.
func (f *SessionFile) Load() (*provider.Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sess provider.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if sess.Token == nil {
		return nil, nil
	}
	return &sess, nil
}

// Save writes sess atomically with owner-only permissions.
func (f *SessionFile) Save(sess *provider.Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear removes the persisted session.
func (f *SessionFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
