// Package platform defines the capability sets the vault core depends on
// plus dev/reference adapters for each.
// Production platform adapters (a real secure-element keystore, a durable
// blob store, etc.) are expected to live outside this module and satisfy
// these same interfaces; nothing here is part of the core's trust boundary.
package platform

import "worldid.dev/vault/internal/vformat"

// AtomicBlobStore is a small, all-or-nothing key-value store for
// device-sealed blobs (AccountState, PendingActionStore).
type AtomicBlobStore interface {
	// Read returns the blob at path, or ok=false if it does not exist.
	Read(path string) (data []byte, ok bool, err error)
	// WriteAtomic durably writes data to path, replacing any prior content
	// as a single all-or-nothing operation.
	WriteAtomic(path string, data []byte) error
	// Delete removes the blob at path. Deleting a missing path is not an
	// error.
	Delete(path string) error
}

// DeviceKeystore binds a device-specific, non-exportable key. Correctness
// of seal/open depends entirely on the adapter; the core treats it as an
// opaque capability.
type DeviceKeystore interface {
	Seal(associatedData, plaintext []byte) (ciphertext []byte, err error)
	Open(associatedData, ciphertext []byte) (plaintext []byte, err error)
}

// VaultFileStore is random-access byte storage for a single vault file.
type VaultFileStore interface {
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
	Truncate(size int64) error
	Flush() error
	Size() (int64, error)
	// ReplaceAtomic atomically swaps the underlying file for the contents
	// of srcPath (used by compaction) and keeps the store usable
	// afterwards.
	ReplaceAtomic(srcPath string) error
	Close() error
}

// Lock is a scoped handle on a single account's write lock. Release must be
// safe to call more than once and must be reachable from every exit path.
type Lock interface {
	Release() error
}

// AccountLockManager grants exactly one writer per account at a time.
type AccountLockManager interface {
	Acquire(accountID vformat.AccountID) (Lock, error)
}
