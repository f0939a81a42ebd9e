package vaultfile

import (
	"path/filepath"
	"testing"

	"worldid.dev/vault/internal/platform"
	"worldid.dev/vault/internal/vformat"
)

func TestCompact_PreservesLiveData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.bin")
	accountID := vformat.AccountID{20}
	key := testVaultKey(20)

	store, err := platform.OpenLocalVaultFileStore(path)
	if err != nil {
		t.Fatalf("OpenLocalVaultFileStore: %v", err)
	}
	defer store.Close()

	vf, err := Create(store, accountID, key)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Commit three credentials, then update one, to leave stale bytes
	// in the log that compaction should reclaim.
	var ids []vformat.CredentialID
	for i := byte(1); i <= 3; i++ {
		txn, err := vf.Begin()
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		ptr, err := txn.StageBlob(vformat.BlobKindCredential, []byte{'c', 'r', 'e', 'd', i})
		if err != nil {
			t.Fatalf("StageBlob: %v", err)
		}
		var credID vformat.CredentialID
		credID[0] = i
		txn.Staging().Insert(vindexEntry(credID, ptr))
		if err := txn.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		ids = append(ids, credID)
	}

	// Update credential 1 with new content, producing an orphaned older
	// blob that compaction must drop.
	txn, err := vf.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	newPtr, err := txn.StageBlob(vformat.BlobKindCredential, []byte("cred1-updated"))
	if err != nil {
		t.Fatalf("StageBlob: %v", err)
	}
	entry := vindexEntry(ids[0], newPtr)
	txn.Staging().Insert(entry)
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	sizeBeforeCompact, err := store.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}

	if err := vf.Compact(path + ".compact-tmp"); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	sizeAfterCompact, err := store.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if sizeAfterCompact >= sizeBeforeCompact {
		t.Fatalf("expected compaction to reclaim space: before=%d after=%d", sizeBeforeCompact, sizeAfterCompact)
	}

	if vf.Index().Len() != 3 {
		t.Fatalf("expected 3 live entries after compact, got %d", vf.Index().Len())
	}
	for i, id := range ids {
		e, ok := vf.Index().Get(id)
		if !ok {
			t.Fatalf("credential %d missing after compact", i)
		}
		plaintext, err := vf.ReadBlob(e.Blob)
		if err != nil {
			t.Fatalf("ReadBlob after compact: %v", err)
		}
		if i == 0 {
			if string(plaintext) != "cred1-updated" {
				t.Fatalf("got %q, want updated content", plaintext)
			}
		}
	}
}

func TestCompact_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.bin")
	accountID := vformat.AccountID{21}
	key := testVaultKey(21)

	store, err := platform.OpenLocalVaultFileStore(path)
	if err != nil {
		t.Fatalf("OpenLocalVaultFileStore: %v", err)
	}
	vf, err := Create(store, accountID, key)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	txn, err := vf.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	ptr, err := txn.StageBlob(vformat.BlobKindCredential, []byte("payload"))
	if err != nil {
		t.Fatalf("StageBlob: %v", err)
	}
	var credID vformat.CredentialID
	credID[0] = 1
	txn.Staging().Insert(vindexEntry(credID, ptr))
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := vf.Compact(path + ".compact-tmp"); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store2, err := platform.OpenLocalVaultFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()
	vf2, err := Open(store2, accountID, key)
	if err != nil {
		t.Fatalf("Open after compact: %v", err)
	}
	e, ok := vf2.Index().Get(credID)
	if !ok {
		t.Fatalf("entry missing after reopen")
	}
	plaintext, err := vf2.ReadBlob(e.Blob)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(plaintext) != "payload" {
		t.Fatalf("got %q", plaintext)
	}
}
