package accountstate

import (
	"path/filepath"
	"testing"

	"worldid.dev/vault/internal/platform"
	"worldid.dev/vault/internal/vformat"
)

func testKeystore(t *testing.T) platform.DeviceKeystore {
	t.Helper()
	ks, err := platform.NewFileKeystore(filepath.Join(t.TempDir(), "device.kek"))
	if err != nil {
		t.Fatalf("NewFileKeystore: %v", err)
	}
	return ks
}

func TestCreate_LoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := platform.NewFileBlobStore()
	keystore := testKeystore(t)

	var accountID vformat.AccountID
	accountID[0] = 1
	var rootSecret, deviceID, issuerBlind, sessionR [32]byte
	rootSecret[0] = 0xAA

	st, err := Create(store, keystore, root, rootSecret, deviceID, issuerBlind, sessionR, accountID, 1000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.Version != vformat.AccountStateVersion {
		t.Fatalf("Version = %d, want %d", st.Version, vformat.AccountStateVersion)
	}

	loaded, err := Load(store, keystore, root, accountID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.AccountID != accountID || loaded.RootSecret != rootSecret || loaded.CreatedAt != 1000 {
		t.Fatalf("loaded state mismatch: %+v", loaded)
	}
}

func TestCreate_RejectsDuplicateAccount(t *testing.T) {
	root := t.TempDir()
	store := platform.NewFileBlobStore()
	keystore := testKeystore(t)

	var accountID vformat.AccountID
	accountID[0] = 2
	var secret [32]byte

	if _, err := Create(store, keystore, root, secret, secret, secret, secret, accountID, 1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := Create(store, keystore, root, secret, secret, secret, secret, accountID, 2); err == nil {
		t.Fatalf("expected second Create for same account to fail")
	} else if kind, ok := vformat.KindOf(err); !ok || kind != vformat.KindAlreadyExists {
		t.Fatalf("kind = %v, ok=%v, want AlreadyExists", kind, ok)
	}
}

func TestLoad_MissingAccountReportsNotFound(t *testing.T) {
	root := t.TempDir()
	store := platform.NewFileBlobStore()
	keystore := testKeystore(t)

	var accountID vformat.AccountID
	accountID[0] = 3

	if _, err := Load(store, keystore, root, accountID); err == nil {
		t.Fatalf("expected error loading nonexistent account")
	} else if kind, ok := vformat.KindOf(err); !ok || kind != vformat.KindNotFound {
		t.Fatalf("kind = %v, ok=%v, want NotFound", kind, ok)
	}
}

func TestLoad_WrongKeystoreFailsWithKeyUnavailable(t *testing.T) {
	root := t.TempDir()
	store := platform.NewFileBlobStore()
	keystoreA := testKeystore(t)
	keystoreB := testKeystore(t)

	var accountID vformat.AccountID
	accountID[0] = 4
	var secret [32]byte

	if _, err := Create(store, keystoreA, root, secret, secret, secret, secret, accountID, 1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := Load(store, keystoreB, root, accountID); err == nil {
		t.Fatalf("expected Load with wrong keystore to fail")
	} else if kind, ok := vformat.KindOf(err); !ok || kind != vformat.KindKeyUnavailable {
		t.Fatalf("kind = %v, ok=%v, want KeyUnavailable", kind, ok)
	}
}

func TestSave_PersistsMutation(t *testing.T) {
	root := t.TempDir()
	store := platform.NewFileBlobStore()
	keystore := testKeystore(t)

	var accountID vformat.AccountID
	accountID[0] = 5
	var secret [32]byte

	st, err := Create(store, keystore, root, secret, secret, secret, secret, accountID, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	st.CreatedAt = 9999
	if err := st.Save(store, keystore, root); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(store, keystore, root, accountID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.CreatedAt != 9999 {
		t.Fatalf("CreatedAt = %d, want 9999", reloaded.CreatedAt)
	}
}

func TestDelete_RemovesState(t *testing.T) {
	root := t.TempDir()
	store := platform.NewFileBlobStore()
	keystore := testKeystore(t)

	var accountID vformat.AccountID
	accountID[0] = 6
	var secret [32]byte

	if _, err := Create(store, keystore, root, secret, secret, secret, secret, accountID, 1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := Delete(store, root, accountID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := Load(store, keystore, root, accountID); err == nil {
		t.Fatalf("expected Load to fail after Delete")
	}
}

func TestDelete_MissingIsNotAnError(t *testing.T) {
	root := t.TempDir()
	store := platform.NewFileBlobStore()

	var accountID vformat.AccountID
	accountID[0] = 7
	if err := Delete(store, root, accountID); err != nil {
		t.Fatalf("Delete on missing account should not error: %v", err)
	}
}
