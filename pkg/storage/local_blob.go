package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalBlobStore keeps objects on the local filesystem, keyed by relative path.
type LocalBlobStore struct {
	baseDir string
	baseURL string
}

// NewLocalBlobStore ensures baseDir exists. baseURL prefixes URLs returned by URL.
func NewLocalBlobStore(baseDir, baseURL string) (*LocalBlobStore, error) {
	if baseDir == "" {
		baseDir = "./blobs"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	if baseURL == "" {
		abs, err := filepath.Abs(baseDir)
		if err != nil {
			abs = baseDir
		}
		baseURL = "file://" + filepath.ToSlash(abs)
	}
	return &LocalBlobStore{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalBlobStore) PutObject(_ context.Context, key string, data []byte, _ string) (int64, error) {
	path, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("prepare blob directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write blob: %w", err)
	}
	return int64(len(data)), nil
}

func (s *LocalBlobStore) GetObject(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("get object %s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *LocalBlobStore) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (s *LocalBlobStore) resolve(key string) (string, error) {
	base := filepath.Clean(s.baseDir)
	path := filepath.Clean(filepath.Join(base, filepath.FromSlash(key)))
	if !strings.HasPrefix(path, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("blob key %q escapes store", key)
	}
	return path, nil
}
