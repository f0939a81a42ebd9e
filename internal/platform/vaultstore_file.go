package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalVaultFileStore is the dev/reference VaultFileStore: a single
// os.File opened for random access, with the same fsync-then-rename
// discipline as FileBlobStore used for ReplaceAtomic (compaction).
type LocalVaultFileStore struct {
	path string
	f    *os.File
}

// OpenLocalVaultFileStore opens (creating if absent) the vault file at path.
func OpenLocalVaultFileStore(path string) (*LocalVaultFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("vaultstore mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 -- path derived from operator-controlled account dir.
	if err != nil {
		return nil, fmt.Errorf("vaultstore open: %w", err)
	}
	return &LocalVaultFileStore{path: path, f: f}, nil
}

func (s *LocalVaultFileStore) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }

func (s *LocalVaultFileStore) WriteAt(p []byte, off int64) (int, error) { return s.f.WriteAt(p, off) }

func (s *LocalVaultFileStore) Truncate(size int64) error { return s.f.Truncate(size) }

func (s *LocalVaultFileStore) Flush() error { return s.f.Sync() }

func (s *LocalVaultFileStore) Size() (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (s *LocalVaultFileStore) Close() error { return s.f.Close() }

// ReplaceAtomic swaps the current file for srcPath's contents (used by
// compaction's "rewrite into a fresh vault file and atomically replace"
// step). It closes the current handle, renames srcPath over the
// live path, fsyncs the containing directory, then reopens.
func (s *LocalVaultFileStore) ReplaceAtomic(srcPath string) error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("vaultstore close before replace: %w", err)
	}
	if err := os.Rename(srcPath, s.path); err != nil {
		return fmt.Errorf("vaultstore replace rename: %w", err)
	}
	dir := filepath.Dir(s.path)
	d, err := os.Open(dir) // #nosec G304 -- dir derived from operator-controlled account path.
	if err != nil {
		return fmt.Errorf("vaultstore fsync dir open: %w", err)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return fmt.Errorf("vaultstore fsync dir: %w", err)
	}
	if err := d.Close(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 -- path derived from operator-controlled account dir.
	if err != nil {
		return fmt.Errorf("vaultstore reopen after replace: %w", err)
	}
	s.f = f
	return nil
}
