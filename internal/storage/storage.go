// Package storage provides content backends addressed by storage name.
// Metadata lives elsewhere; a backend only moves bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when no object exists under a storage name.
var ErrNotFound = errors.New("storage: object not found")

// Backend stores and retrieves file content by storage name.
type Backend interface {
	// Put stores content under the given name, replacing any previous
	// version.
	Put(ctx context.Context, name string, content io.Reader, size int64) error
	// Get opens the content stored under the name.
	Get(ctx context.Context, name string) (io.ReadCloser, int64, error)
	// Delete removes the content. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, name string) error
	// Type identifies the backend kind.
	Type() string
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend string `mapstructure:"backend" validate:"oneof=local s3"`

	// Local backend.
	Dir string `mapstructure:"dir"`

	// S3 backend.
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Open constructs the backend the config names.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocal(cfg.Dir)
	case "s3":
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
