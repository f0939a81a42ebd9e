package pending

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

func testCredentialID(b byte) vformat.CredentialID {
	var id vformat.CredentialID
	id[0] = b
	return id
}

func TestOpen_EmptyWhenNothingPersisted(t *testing.T) {
	root := t.TempDir()
	store := platform.NewFileBlobStore()
	keystore := testKeystore(t)
	var accountID vformat.AccountID
	accountID[0] = 1

	s, err := Open(store, keystore, root, accountID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(s.ListUnfinished()) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestBeginDisclosure_RejectsDuplicatePair(t *testing.T) {
	s := &Store{entries: make(map[ID]Entry)}
	credID := testCredentialID(1)
	extNullifier := []byte("external-nullifier-a")
	var hash [32]byte

	if _, err := s.BeginDisclosure(credID, extNullifier, hash, 1000); err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}
	if _, err := s.BeginDisclosure(credID, extNullifier, hash, 1001); err == nil {
		t.Fatalf("expected duplicate (credential, external nullifier) to be rejected")
	} else if kind, ok := vformat.KindOf(err); !ok || kind != vformat.KindDuplicateDisclosure {
		t.Fatalf("kind = %v, ok=%v, want DuplicateDisclosure", kind, ok)
	}
}

func TestBeginDisclosure_AllowedAfterConfirm(t *testing.T) {
	s := &Store{entries: make(map[ID]Entry)}
	credID := testCredentialID(2)
	extNullifier := []byte("external-nullifier-b")
	var hash [32]byte

	id1, err := s.BeginDisclosure(credID, extNullifier, hash, 1000)
	if err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}
	if err := s.MarkPending(id1); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	if err := s.Confirm(id1); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	// Once the earlier entry is terminal, the same pair may disclose again.
	if _, err := s.BeginDisclosure(credID, extNullifier, hash, 2000); err != nil {
		t.Fatalf("expected BeginDisclosure to succeed after prior entry confirmed: %v", err)
	}
}

func TestBeginDisclosure_DistinctNullifiersDoNotConflict(t *testing.T) {
	s := &Store{entries: make(map[ID]Entry)}
	credID := testCredentialID(3)
	var hash [32]byte

	if _, err := s.BeginDisclosure(credID, []byte("nullifier-a"), hash, 1000); err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}
	if _, err := s.BeginDisclosure(credID, []byte("nullifier-b"), hash, 1001); err != nil {
		t.Fatalf("expected distinct nullifier to be independent: %v", err)
	}
}

func TestStageTransitions(t *testing.T) {
	s := &Store{entries: make(map[ID]Entry)}
	credID := testCredentialID(4)
	var hash [32]byte

	id, err := s.BeginDisclosure(credID, []byte("n"), hash, 1000)
	if err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}
	if e := s.entries[id]; e.Stage != vformat.PendingStageDisclosing {
		t.Fatalf("initial stage = %v, want Disclosing", e.Stage)
	}

	if err := s.MarkPending(id); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	if e := s.entries[id]; e.Stage != vformat.PendingStagePending {
		t.Fatalf("stage after MarkPending = %v, want Pending", e.Stage)
	}

	if err := s.Confirm(id); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if e := s.entries[id]; e.Stage != vformat.PendingStageConfirmed {
		t.Fatalf("stage after Confirm = %v, want Confirmed", e.Stage)
	}
}

func TestTransition_MissingEntryNotFound(t *testing.T) {
	s := &Store{entries: make(map[ID]Entry)}
	if err := s.MarkPending(ID{0xFF}); err == nil {
		t.Fatalf("expected error transitioning missing entry")
	} else if kind, ok := vformat.KindOf(err); !ok || kind != vformat.KindNotFound {
		t.Fatalf("kind = %v, ok=%v, want NotFound", kind, ok)
	}
}

func TestListUnfinished_ExcludesTerminalAndIsOrdered(t *testing.T) {
	s := &Store{entries: make(map[ID]Entry)}
	var hash [32]byte

	idA, err := s.BeginDisclosure(testCredentialID(5), []byte("a"), hash, 3000)
	if err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}
	idB, err := s.BeginDisclosure(testCredentialID(6), []byte("b"), hash, 1000)
	if err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}
	idC, err := s.BeginDisclosure(testCredentialID(7), []byte("c"), hash, 2000)
	if err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}
	if err := s.Confirm(idC); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	unfinished := s.ListUnfinished()
	if len(unfinished) != 2 {
		t.Fatalf("expected 2 unfinished entries, got %d", len(unfinished))
	}
	if unfinished[0].ID != idB || unfinished[1].ID != idA {
		t.Fatalf("expected entries ordered by CreatedAt ascending, got %+v", unfinished)
	}
}

func TestGC_RemovesOldTerminalEntriesOnly(t *testing.T) {
	s := &Store{entries: make(map[ID]Entry)}
	var hash [32]byte
	now := DefaultRetention.Nanoseconds() * 10

	idOldConfirmed, err := s.BeginDisclosure(testCredentialID(8), []byte("old"), hash, 0)
	if err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}
	if err := s.Confirm(idOldConfirmed); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	idRecentConfirmed, err := s.BeginDisclosure(testCredentialID(9), []byte("recent"), hash, now)
	if err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}
	if err := s.Confirm(idRecentConfirmed); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	idUnfinished, err := s.BeginDisclosure(testCredentialID(10), []byte("pending"), hash, 0)
	if err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}

	removed := s.GC(now)
	if removed != 1 {
		t.Fatalf("GC removed %d entries, want 1", removed)
	}
	if _, ok := s.entries[idOldConfirmed]; ok {
		t.Fatalf("expected old confirmed entry to be removed")
	}
	if _, ok := s.entries[idRecentConfirmed]; !ok {
		t.Fatalf("recent confirmed entry should survive GC")
	}
	if _, ok := s.entries[idUnfinished]; !ok {
		t.Fatalf("unfinished entry must never be GC'd regardless of age")
	}
}

func TestSaveOpen_RoundTrip(t *testing.T) {
	root := t.TempDir()
	store := platform.NewFileBlobStore()
	keystore := testKeystore(t)
	var accountID vformat.AccountID
	accountID[0] = 11

	s, err := Open(store, keystore, root, accountID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var hash [32]byte
	id, err := s.BeginDisclosure(testCredentialID(1), []byte("n"), hash, 1000)
	if err != nil {
		t.Fatalf("BeginDisclosure: %v", err)
	}
	if err := s.Save(store, keystore, root, accountID); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Open(store, keystore, root, accountID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	unfinished := reloaded.ListUnfinished()
	if len(unfinished) != 1 || unfinished[0].ID != id {
		t.Fatalf("expected persisted entry to survive reload: %+v", unfinished)
	}
}
