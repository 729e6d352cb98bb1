package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for keys that would escape the store.
var ErrInvalidKey = errors.New("invalid storage key")

// Store is a flat key-value store for serialized documents.
type Store interface {
	// Get returns the value and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key.
	Clear(ctx context.Context) error
}

// FileStore keeps one file per key under a base directory. Writes replace
// the target atomically, so readers never observe a partial document.
type FileStore struct {
	basePath string
}

// NewFileStore creates a new FileStore and ensures the base directory exists.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath is the directory the store writes into.
func (s *FileStore) BasePath() string {
	return s.basePath
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.basePath, key), nil
}

// Get reads the file stored under key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, true, nil
}

// Put writes to a temporary file in the same directory and renames it over the target.
func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.basePath, ".tmp-"+key+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Clear removes every JSON document and leftover temp file.
func (s *FileStore) Clear(_ context.Context) error {
	for _, pattern := range []string{"*.json", ".tmp-*"} {
		matches, err := filepath.Glob(filepath.Join(s.basePath, pattern))
		if err != nil {
			return fmt.Errorf("failed to glob %s: %w", pattern, err)
		}
		for _, match := range matches {
			if err := os.Remove(match); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove file %s: %w", match, err)
			}
		}
	}
	return nil
}
