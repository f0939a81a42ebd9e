package vault

import (
	"fmt"
	"strings"
	"time"

	"worldid.dev/vault/internal/pending"
	"worldid.dev/vault/internal/platform"
)

// Options configures a WorldIdStore. The zero value is not usable —
// construct one with DefaultOptions and override only what you need.
type Options struct {
	// RootPath is the directory under which every account's
	// <account_id>/{account_keys.bin,vault.bin,pending.bin,.lock} lives.
	RootPath string

	// Keystore binds the device-specific key used to seal AccountState and
	// the pending-action store. Required.
	Keystore platform.DeviceKeystore

	// BlobStore is the atomic small-blob store for AccountState and the
	// pending-action store. Defaults to platform.NewFileBlobStore().
	BlobStore platform.AtomicBlobStore

	// LockManager grants the per-account write lock. Defaults to a
	// filesystem lock manager rooted at RootPath.
	LockManager platform.AccountLockManager

	// PendingRetention is how long confirmed disclosures are kept before
	// gc() removes them. Zero means DefaultOptions' value.
	PendingRetention time.Duration

	// EnableRelCache turns on the bbolt-backed listing accelerator. It is
	// purely an optimization; disabling it never changes query results.
	EnableRelCache bool
}

// DefaultOptions returns an Options with filesystem-backed adapters rooted
// at rootPath. Keystore is left nil — callers must supply one, since there
// is no safe default device keystore.
func DefaultOptions(rootPath string) Options {
	return Options{
		RootPath:         rootPath,
		BlobStore:        platform.NewFileBlobStore(),
		LockManager:      platform.NewFileLockManager(rootPath),
		PendingRetention: pending.DefaultRetention,
		EnableRelCache:   true,
	}
}

// Validate checks Options field by field, returning an InvalidInput error
// naming the first problem found.
func (o Options) Validate() error {
	if strings.TrimSpace(o.RootPath) == "" {
		return newError(KindInvalidInput, "Options.Validate", fmt.Errorf("root_path is required"))
	}
	if o.Keystore == nil {
		return newError(KindInvalidInput, "Options.Validate", fmt.Errorf("keystore is required"))
	}
	if o.BlobStore == nil {
		return newError(KindInvalidInput, "Options.Validate", fmt.Errorf("blob_store is required"))
	}
	if o.LockManager == nil {
		return newError(KindInvalidInput, "Options.Validate", fmt.Errorf("lock_manager is required"))
	}
	if o.PendingRetention < 0 {
		return newError(KindInvalidInput, "Options.Validate", fmt.Errorf("pending_retention must be >= 0"))
	}
	return nil
}
