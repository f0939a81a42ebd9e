// Package accountstate implements the small device-sealed blob that binds
// an account to its key material. The vault file is unreadable until this
// blob has been opened, since it is the only place the account root lives
// at rest.
package accountstate

import (
	"fmt"
	"path/filepath"

	"worldid.dev/vault/internal/platform"
	"worldid.dev/vault/internal/vformat"
)

const stateFileName = "account_keys.bin"

// State is the on-disk-shaped, in-memory form of an account's key
// material. RootSecret never leaves volatile memory once loaded; it is the
// only copy of the account root and everything else in the hierarchy is
// re-derived from it on demand.
type State struct {
	Version         uint32
	AccountID       vformat.AccountID
	DeviceID        [32]byte
	RootSecret      [32]byte
	IssuerBlindSeed [32]byte
	SessionRSeed    [32]byte
	CreatedAt       int64
}

// Path returns the atomic-blob-store path for an account's state blob.
func Path(root string, accountID vformat.AccountID) string {
	return filepath.Join(root, accountID.String(), stateFileName)
}

// Create builds a State for a brand-new account from the root secret and
// the already-derived device id, seeds and account id supplied by the
// caller, seals it, and writes it atomically. It fails with AlreadyExists
// if a blob is already present at the target path.
func Create(store platform.AtomicBlobStore, keystore platform.DeviceKeystore, root string, rootSecret [32]byte, deviceID [32]byte, issuerBlindSeed, sessionRSeed [32]byte, accountID vformat.AccountID, createdAt int64) (*State, error) {
	path := Path(root, accountID)
	if _, ok, err := store.Read(path); err != nil {
		return nil, vformat.NewError(vformat.KindStorageIO, "accountstate.Create", err)
	} else if ok {
		return nil, vformat.NewError(vformat.KindAlreadyExists, "accountstate.Create", fmt.Errorf("account state already exists"))
	}

	st := &State{
		Version:         vformat.AccountStateVersion,
		AccountID:       accountID,
		DeviceID:        deviceID,
		RootSecret:      rootSecret,
		IssuerBlindSeed: issuerBlindSeed,
		SessionRSeed:    sessionRSeed,
		CreatedAt:       createdAt,
	}
	if err := save(store, keystore, path, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Load reads and opens the account state blob. A version newer than this
// build understands is UnsupportedVersion rather than a silent upgrade
// attempt.
func Load(store platform.AtomicBlobStore, keystore platform.DeviceKeystore, root string, accountID vformat.AccountID) (*State, error) {
	path := Path(root, accountID)
	sealed, ok, err := store.Read(path)
	if err != nil {
		return nil, vformat.NewError(vformat.KindStorageIO, "accountstate.Load", err)
	}
	if !ok {
		return nil, vformat.NewError(vformat.KindNotFound, "accountstate.Load", fmt.Errorf("no account state at %s", path))
	}
	plaintext, err := keystore.Open(vformat.LabelAccountEnvelope, sealed)
	if err != nil {
		return nil, vformat.NewError(vformat.KindKeyUnavailable, "accountstate.Load", err)
	}
	st, err := decode(plaintext)
	if err != nil {
		return nil, err
	}
	if st.Version != vformat.AccountStateVersion {
		return nil, vformat.NewError(vformat.KindUnsupportedVersion, "accountstate.Load",
			fmt.Errorf("account state version %d, expected %d", st.Version, vformat.AccountStateVersion))
	}
	if st.AccountID != accountID {
		return nil, vformat.NewError(vformat.KindCorruptVault, "accountstate.Load", fmt.Errorf("account id mismatch in sealed state"))
	}
	return st, nil
}

// Save re-seals and atomically overwrites the account state blob. Called
// only by rotation operations — ordinary reads never write this blob back.
func (st *State) Save(store platform.AtomicBlobStore, keystore platform.DeviceKeystore, root string) error {
	return save(store, keystore, Path(root, st.AccountID), st)
}

func save(store platform.AtomicBlobStore, keystore platform.DeviceKeystore, path string, st *State) error {
	plaintext := encode(st)
	sealed, err := keystore.Seal(vformat.LabelAccountEnvelope, plaintext)
	if err != nil {
		return vformat.NewError(vformat.KindKeyUnavailable, "accountstate.save", err)
	}
	if err := store.WriteAtomic(path, sealed); err != nil {
		return vformat.NewError(vformat.KindStorageIO, "accountstate.save", err)
	}
	return nil
}

// Delete removes the account state blob. Missing is not an error.
func Delete(store platform.AtomicBlobStore, root string, accountID vformat.AccountID) error {
	if err := store.Delete(Path(root, accountID)); err != nil {
		return vformat.NewError(vformat.KindStorageIO, "accountstate.Delete", err)
	}
	return nil
}
