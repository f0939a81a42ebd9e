package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileBlobStore is the dev/reference AtomicBlobStore: write-temp, fsync
// temp, rename, fsync directory, so a reader never observes a partially
// written blob.
type FileBlobStore struct{}

func NewFileBlobStore() *FileBlobStore { return &FileBlobStore{} }

func (FileBlobStore) Read(path string) ([]byte, bool, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- path is caller-controlled, derived from operator data dir.
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blobstore read %s: %w", path, err)
	}
	return b, true, nil
}

func (FileBlobStore) WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("blobstore mkdir %s: %w", dir, err)
	}
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 -- tmp path derived from operator-controlled path.
	if err != nil {
		return fmt.Errorf("blobstore open tmp: %w", err)
	}
	_, werr := f.Write(data)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("blobstore write tmp: %w", werr)
	}
	if serr != nil {
		return fmt.Errorf("blobstore fsync tmp: %w", serr)
	}
	if cerr != nil {
		return fmt.Errorf("blobstore close tmp: %w", cerr)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("blobstore rename: %w", err)
	}

	d, err := os.Open(dir) // #nosec G304 -- dir derived from operator-controlled path.
	if err != nil {
		return fmt.Errorf("blobstore fsync dir open: %w", err)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return fmt.Errorf("blobstore fsync dir: %w", err)
	}
	return d.Close()
}

func (FileBlobStore) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blobstore delete %s: %w", path, err)
	}
	return nil
}
