package vault

import (
	"crypto/rand"
	"os"
	"path/filepath"

	"worldid.dev/vault/internal/accountstate"
	"worldid.dev/vault/internal/keys"
	"worldid.dev/vault/internal/platform"
	"worldid.dev/vault/internal/vaultfile"
	"worldid.dev/vault/internal/vformat"
)

// AccountDescriptor is a lightweight, keystore-free summary of an on-disk
// account, returned by ListAccounts.
type AccountDescriptor struct {
	AccountID vformat.AccountID
	CreatedAt int64
	VaultPath string
}

// WorldIdStore is the root of the credential vault: it creates, opens,
// deletes and enumerates accounts. It holds no per-account state itself —
// every account's live state lives in the AccountHandle returned by
// OpenAccount.
type WorldIdStore struct {
	opts Options
}

// Open validates opts and returns a WorldIdStore rooted at opts.RootPath,
// creating the root directory if it does not exist.
func Open(opts Options) (*WorldIdStore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.RootPath, 0o755); err != nil {
		return nil, newError(KindStorageIO, "WorldIdStore.Open", err)
	}
	return &WorldIdStore{opts: opts}, nil
}

// CreateAccount generates a fresh account root, derives its key hierarchy,
// writes the sealed AccountState, and initializes an empty committed
// vault. It returns the new account's id.
func (s *WorldIdStore) CreateAccount() (vformat.AccountID, error) {
	var rootSecret [32]byte
	if _, err := rand.Read(rootSecret[:]); err != nil {
		return vformat.AccountID{}, newError(KindCryptoFailure, "WorldIdStore.CreateAccount", err)
	}

	accountID, err := keys.DeriveAccountID(rootSecret[:])
	if err != nil {
		return vformat.AccountID{}, err
	}

	var deviceEntropy [32]byte
	if _, err := rand.Read(deviceEntropy[:]); err != nil {
		return vformat.AccountID{}, newError(KindCryptoFailure, "WorldIdStore.CreateAccount", err)
	}
	deviceID, err := keys.DeriveDeviceID(deviceEntropy[:])
	if err != nil {
		return vformat.AccountID{}, err
	}

	bundle, err := keys.DeriveBundle(rootSecret[:])
	if err != nil {
		return vformat.AccountID{}, err
	}

	lock, err := s.opts.LockManager.Acquire(accountID)
	if err != nil {
		return vformat.AccountID{}, newError(KindLockUnavailable, "WorldIdStore.CreateAccount", err)
	}
	defer func() { _ = lock.Release() }()

	now := vformat.NowNanos()
	if _, err := accountstate.Create(s.opts.BlobStore, s.opts.Keystore, s.opts.RootPath,
		rootSecret, deviceID, bundle.IssuerBlindSeed, bundle.SessionRSeed, accountID, now); err != nil {
		return vformat.AccountID{}, err
	}

	fileStore, err := platform.OpenLocalVaultFileStore(s.vaultPath(accountID))
	if err != nil {
		_ = accountstate.Delete(s.opts.BlobStore, s.opts.RootPath, accountID)
		return vformat.AccountID{}, newError(KindStorageIO, "WorldIdStore.CreateAccount", err)
	}
	if _, err := vaultfile.Create(fileStore, accountID, bundle.VaultKey); err != nil {
		_ = fileStore.Close()
		_ = accountstate.Delete(s.opts.BlobStore, s.opts.RootPath, accountID)
		return vformat.AccountID{}, err
	}
	if err := fileStore.Close(); err != nil {
		return vformat.AccountID{}, newError(KindStorageIO, "WorldIdStore.CreateAccount", err)
	}

	return accountID, nil
}

// OpenAccount acquires the account's write lock and returns a handle
// supporting the full credential and disclosure lifecycle. The caller must
// call Close to release the lock.
func (s *WorldIdStore) OpenAccount(accountID vformat.AccountID) (*AccountHandle, error) {
	return s.openAccount(accountID, true)
}

// OpenAccountSnapshot opens a read-only view of the account's vault: it
// does not take the write lock, and its index is a fixed snapshot as of
// this call — later commits from a writer are not observed until a new
// snapshot is opened. Mutating methods on the returned handle fail with
// InvalidInput.
func (s *WorldIdStore) OpenAccountSnapshot(accountID vformat.AccountID) (*AccountHandle, error) {
	return s.openAccount(accountID, false)
}

func (s *WorldIdStore) openAccount(accountID vformat.AccountID, writer bool) (*AccountHandle, error) {
	var lock platform.Lock
	if writer {
		l, err := s.opts.LockManager.Acquire(accountID)
		if err != nil {
			return nil, newError(KindLockUnavailable, "WorldIdStore.OpenAccount", err)
		}
		lock = l
	}
	release := func() {
		if lock != nil {
			_ = lock.Release()
		}
	}

	state, err := accountstate.Load(s.opts.BlobStore, s.opts.Keystore, s.opts.RootPath, accountID)
	if err != nil {
		release()
		return nil, err
	}
	vaultKey, err := keys.DeriveVaultKey(state.RootSecret[:])
	if err != nil {
		release()
		return nil, err
	}

	fileStore, err := platform.OpenLocalVaultFileStore(s.vaultPath(accountID))
	if err != nil {
		release()
		return nil, newError(KindStorageIO, "WorldIdStore.OpenAccount", err)
	}
	vf, err := vaultfile.Open(fileStore, accountID, vaultKey)
	if err != nil {
		_ = fileStore.Close()
		release()
		return nil, err
	}

	handle := &AccountHandle{
		store:     s,
		accountID: accountID,
		state:     state,
		fileStore: fileStore,
		vf:        vf,
		lock:      lock,
		readOnly:  !writer,
	}

	if writer {
		pendingStore, err := pendingOpen(s, accountID)
		if err != nil {
			_ = fileStore.Close()
			release()
			return nil, err
		}
		handle.pending = pendingStore

		if s.opts.EnableRelCache {
			cache, err := relcacheOpen(s, accountID)
			if err == nil {
				handle.cache = cache
				_ = handle.cache.Rebuild(vf.Index())
			}
			// A cache that fails to open is not fatal; listing falls back
			// to scanning the in-memory index.
		}
	}

	return handle, nil
}

// DeleteAccount removes an account's vault file and account state under
// its write lock. Missing files are not an error.
func (s *WorldIdStore) DeleteAccount(accountID vformat.AccountID) error {
	lock, err := s.opts.LockManager.Acquire(accountID)
	if err != nil {
		return newError(KindLockUnavailable, "WorldIdStore.DeleteAccount", err)
	}

	if err := os.Remove(s.vaultPath(accountID)); err != nil && !os.IsNotExist(err) {
		_ = lock.Release()
		return newError(KindStorageIO, "WorldIdStore.DeleteAccount", err)
	}
	if err := accountstate.Delete(s.opts.BlobStore, s.opts.RootPath, accountID); err != nil {
		_ = lock.Release()
		return err
	}
	_ = os.Remove(filepath.Join(s.opts.RootPath, accountID.String(), "pending.bin"))
	_ = os.Remove(relcachePath(s.opts.RootPath, accountID))

	if err := lock.Release(); err != nil {
		return newError(KindStorageIO, "WorldIdStore.DeleteAccount", err)
	}
	_ = os.Remove(filepath.Join(s.opts.RootPath, accountID.String()))
	return nil
}

// ListAccounts enumerates account directories under RootPath, returning a
// descriptor for each that contains a vault.bin file. It never touches
// the device keystore.
func (s *WorldIdStore) ListAccounts() ([]AccountDescriptor, error) {
	entries, err := os.ReadDir(s.opts.RootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, newError(KindStorageIO, "WorldIdStore.ListAccounts", err)
	}

	var out []AccountDescriptor
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		accountID, err := vformat.AccountIDFromHex(entry.Name())
		if err != nil {
			continue
		}
		path := s.vaultPath(accountID)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		out = append(out, AccountDescriptor{
			AccountID: accountID,
			CreatedAt: info.ModTime().UnixNano(),
			VaultPath: path,
		})
	}
	return out, nil
}

func (s *WorldIdStore) vaultPath(accountID vformat.AccountID) string {
	return filepath.Join(s.opts.RootPath, accountID.String(), "vault.bin")
}

func relcachePath(root string, accountID vformat.AccountID) string {
	return filepath.Join(root, accountID.String(), "relcache.bolt")
}
