package client

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// TokenCache persists the refresh token between runs so a restart can
// resume the session without re-entering credentials. Implementations
// must tolerate concurrent Controller use.
type TokenCache interface {
	Load() (string, error)
	Store(refreshToken string) error
	Clear() error
}

type cachedToken struct {
	RefreshToken string `json:"refresh_token"`
}

// FileTokenCache stores the refresh token in a mode-0600 JSON file.
type FileTokenCache struct {
	path string
}

func NewFileTokenCache(path string) (*FileTokenCache, error) {
	if path == "" {
		return nil, errors.New("cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &FileTokenCache{path: path}, nil
}

// Load returns the cached refresh token, or empty when none is cached.
func (c *FileTokenCache) Load() (string, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	var cached cachedToken
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupt cache reads as empty; the next Store overwrites it.
		return "", nil
	}
	return cached.RefreshToken, nil
}

func (c *FileTokenCache) Store(refreshToken string) error {
	data, err := json.Marshal(cachedToken{RefreshToken: refreshToken})
	if err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

func (c *FileTokenCache) Clear() error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
