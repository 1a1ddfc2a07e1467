package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps blobs under a single root directory.
type LocalStorage struct {
	root string
}

var _ Storage = (*LocalStorage)(nil)

func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		return nil, errors.New("storage root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

// resolve maps a storage path to a location under the root, refusing
// anything that would escape it.
func (s *LocalStorage) resolve(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid storage path: %q", path)
	}
	return filepath.Join(s.root, cleaned), nil
}

func (s *LocalStorage) Write(ctx context.Context, path string, r io.Reader, size int64) error {
	target, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating blob: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return fmt.Errorf("writing blob: %w", err)
	}
	return f.Close()
}

func (s *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	target, err := s.resolve(path)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("opening blob: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stating blob: %w", err)
	}
	return f, fi.Size(), nil
}

func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	target, err := s.resolve(path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	target, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting blob: %w", err)
	}
	return nil
}
