// Package filesystem provides a BlobStorage implementation backed by the
// local filesystem. It stores uploaded image files as immutable blobs named
// by their object key.
package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mbogdanowicz/imaginarium/internal/store"
)

// Ensure BlobStore implements store.BlobStorage
var _ store.BlobStorage = (*BlobStore)(nil)

// BlobStore implements store.BlobStorage using the local filesystem.
type BlobStore struct {
	root string
}

// New returns a filesystem-backed blob store rooted at dir. The directory
// must already exist with secure permissions (0700 recommended).
func New(root string) (*BlobStore, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.New("blob root is not a directory")
	}
	return &BlobStore{root: root}, nil
}

// path constructs the full path to the blob file for a given object key.
func (b *BlobStore) path(key string) string { return filepath.Join(b.root, key) }

// validateKey rejects keys that could escape the root directory.
func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return errors.New("invalid object key")
	}
	return nil
}

// Write stores exactly size bytes from r into a file associated with key.
func (b *BlobStore) Write(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	p := b.path(key)
	// #nosec G304: path is constructed from a fixed root plus a validated key; no traversal possible.
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.CopyN(f, r, size)
	if err != nil {
		// delete partial file on error
		_ = os.Remove(p)
		return err
	}
	if err = f.Sync(); err != nil {
		_ = os.Remove(p)
		return err
	}
	return nil
}

// Open returns a reader over the stored bytes for key.
func (b *BlobStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	// #nosec G304: see Write.
	return os.Open(b.path(key))
}

// Delete removes the blob file for key. Missing files are not an error.
func (b *BlobStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(b.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// List returns all object keys present under the root.
func (b *BlobStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		keys = append(keys, e.Name())
	}
	return keys, nil
}
