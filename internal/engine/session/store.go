// Package session persists and renews credentials for sources that need an
// authenticated session.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Bundle is the persisted session material.
type Bundle struct {
	Token     string    `json:"token"`
	Cookie    string    `json:"cookie"`
	Nickname  string    `json:"nickname,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the bundle carries a cookie and is not yet expired.
func (b Bundle) Valid(now time.Time) bool {
	return b.Cookie != "" && now.Before(b.ExpiresAt)
}

// Store loads and saves one credential bundle.
type Store interface {
	// Load returns nil when no usable bundle is stored.
	Load() (*Bundle, error)
	Save(Bundle) error
	Clear() error
}

// FileStore keeps a bundle in a JSON file readable only by its owner.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the bundle. A missing or corrupt file means no session.
func (s *FileStore) Load() (*Bundle, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		slog.Warn("session file unreadable, ignoring", slog.String("path", s.Path), slog.Any("error", err))
		return nil, nil
	}
	if b.Cookie == "" {
		return nil, nil
	}
	return &b, nil
}

// Save writes the bundle atomically with owner-only permissions.
func (s *FileStore) Save(b Bundle) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace session file: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(s.Path, 0o600); err != nil {
			return fmt.Errorf("chmod session file: %w", err)
		}
	}
	return nil
}

// Clear removes the stored bundle.
func (s *FileStore) Clear() error {
	err := os.Remove(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
