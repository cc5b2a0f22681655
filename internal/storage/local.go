// Package storage persists uploaded files. The only implementation writes
// to the local filesystem; callers depend on the handler-side interface so
// an object store can slot in later without touching the pipeline.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// LocalStore saves uploads beneath a base directory. Content is written to
// a temporary file first and moved into place, so a half-written upload
// never becomes visible under its final name.
type LocalStore struct {
	Dir string
}

// NewLocalStore builds a store rooted at dir. The directory is created
// lazily on first save.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

// SaveImage streams r into dir/name and returns the stored path.
func (s *LocalStore) SaveImage(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name()) // no-op once the rename succeeded

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return dst, nil
}
