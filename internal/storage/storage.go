package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/doctrans/doctrans/internal/config"
)

// ErrNotFound is returned by Open when no blob exists at the given path.
var ErrNotFound = errors.New("blob not found")

// Storage is the blob collaborator: byte streams addressed by slash-separated
// relative paths. The core never assumes a specific filesystem behind it.
type Storage interface {
	Write(ctx context.Context, path string, r io.Reader, size int64) error
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

const (
	TypeLocal = "local"
	TypeMinio = "minio"
)

func NewStorage(cfg config.Storage) (Storage, error) {
	switch cfg.Type {
	case TypeMinio:
		return NewMinioStorage(cfg)
	case TypeLocal, "":
		return NewLocalStorage(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}
