package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const runDirPattern = "run-*"

// Scratch hands out per-run temporary directories under a base directory.
type Scratch struct {
	baseDir string
}

// NewScratch ensures the base directory exists. An empty baseDir uses the OS temp dir.
func NewScratch(baseDir string) (*Scratch, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "bpreports-scratch")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	return &Scratch{baseDir: baseDir}, nil
}

// NewRun creates a fresh directory owned by a single report run.
func (s *Scratch) NewRun() (*RunDir, error) {
	dir, err := os.MkdirTemp(s.baseDir, runDirPattern)
	if err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return &RunDir{dir: dir}, nil
}

// CleanupOlderThan removes run directories left behind by crashed runs and returns their names.
func (s *Scratch) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list scratch directory: %w", err)
	}
	deleted := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "run-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return deleted, fmt.Errorf("stat scratch run: %w", err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.baseDir, entry.Name())); err != nil {
			return deleted, fmt.Errorf("remove scratch run: %w", err)
		}
		deleted = append(deleted, entry.Name())
	}
	return deleted, nil
}

// RunDir is a temporary directory removed by Cleanup.
type RunDir struct {
	dir string
}

// Save writes data to a path relative to the run directory and returns the absolute path.
func (r *RunDir) Save(rel string, data []byte) (string, error) {
	path, err := r.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare scratch directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return path, nil
}

// Read returns the contents of a file saved in this run.
func (r *RunDir) Read(rel string) ([]byte, error) {
	path, err := r.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scratch file: %w", err)
	}
	return data, nil
}

// Path exposes the run directory.
func (r *RunDir) Path() string {
	return r.dir
}

// Cleanup removes the run directory and everything in it.
func (r *RunDir) Cleanup() error {
	if err := os.RemoveAll(r.dir); err != nil {
		return fmt.Errorf("remove run directory: %w", err)
	}
	return nil
}

func (r *RunDir) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.Join(r.dir, rel))
	if clean != r.dir && !strings.HasPrefix(clean, r.dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes run directory", rel)
	}
	return clean, nil
}
