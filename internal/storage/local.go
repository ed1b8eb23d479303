package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalStore keeps objects on the local filesystem. Used in tests and for
// offline runs where the inference backend can reach the files directly.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a filesystem-backed store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path := filepath.Join(s.dir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	// Atomic write: temp file + rename.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".obj-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename: %w", err)
	}
	return "file://" + path, nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *LocalStore) Type() string { return "local" }

// CacheSet stores a cache value as a file under cache/. TTL is ignored.
func (s *LocalStore) CacheSet(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.Put(ctx, filepath.Join("cache", key), []byte(value), "application/json")
	return err
}

// CacheGet reads a cache value written by CacheSet.
func (s *LocalStore) CacheGet(ctx context.Context, key string) (string, error) {
	data, err := s.Get(ctx, filepath.Join("cache", key))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
