package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MaxymDv/CloudDrive-System/internal/metrics"
)

// Local stores content as flat files in a directory. Storage names are
// generated server-side and never contain path separators, but the check
// stays as a guard against a corrupted record.
type Local struct {
	dir string
}

// NewLocal creates the directory if needed and returns a local backend.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid storage name %q", name)
	}
	return filepath.Join(l.dir, name), nil
}

func (l *Local) Put(ctx context.Context, name string, content io.Reader, size int64) error {
	start := time.Now()
	p, err := l.path(name)
	if err != nil {
		return err
	}

	// Write to a temp file first so a failed upload never truncates the
	// previous version.
	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		metrics.RecordStorageOperation("local", "put", time.Since(start), false)
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		metrics.RecordStorageOperation("local", "put", time.Since(start), false)
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		metrics.RecordStorageOperation("local", "put", time.Since(start), false)
		return err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		metrics.RecordStorageOperation("local", "put", time.Since(start), false)
		return fmt.Errorf("commit content: %w", err)
	}

	metrics.RecordStorageOperation("local", "put", time.Since(start), true)
	return nil
}

func (l *Local) Get(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	start := time.Now()
	p, err := l.path(name)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(p)
	if os.IsNotExist(err) {
		metrics.RecordStorageOperation("local", "get", time.Since(start), false)
		return nil, 0, ErrNotFound
	}
	if err != nil {
		metrics.RecordStorageOperation("local", "get", time.Since(start), false)
		return nil, 0, fmt.Errorf("open content: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		metrics.RecordStorageOperation("local", "get", time.Since(start), false)
		return nil, 0, err
	}

	metrics.RecordStorageOperation("local", "get", time.Since(start), true)
	return f, info.Size(), nil
}

func (l *Local) Delete(ctx context.Context, name string) error {
	start := time.Now()
	p, err := l.path(name)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if err != nil && !os.IsNotExist(err) {
		metrics.RecordStorageOperation("local", "delete", time.Since(start), false)
		return fmt.Errorf("delete content: %w", err)
	}
	metrics.RecordStorageOperation("local", "delete", time.Since(start), true)
	return nil
}

func (l *Local) Type() string { return "local" }

func (l *Local) Close() error { return nil }
