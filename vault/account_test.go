package vault

import (
	"testing"

	"worldid.dev/vault/internal/vformat"
)

func mustCreateAccountHandle(t *testing.T) (*WorldIdStore, *AccountHandle) {
	t.Helper()
	s := openTestStore(t)
	accountID, err := s.CreateAccount()
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	h, err := s.OpenAccount(accountID)
	if err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	return s, h
}

func TestStoreCredential_GeneratesIDWhenZero(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	id, err := h.StoreCredential(CredentialRecord{
		IssuerSchemaID: "schema-a",
		CredentialBlob: []byte("blob-bytes"),
	})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}
	if id.IsZero() {
		t.Fatalf("expected a generated credential id")
	}

	rec, err := h.GetCredential(id)
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if string(rec.CredentialBlob) != "blob-bytes" || rec.IssuerSchemaID != "schema-a" {
		t.Fatalf("GetCredential mismatch: %+v", rec)
	}
	if rec.Status != vformat.StatusActive {
		t.Fatalf("Status = %v, want Active default", rec.Status)
	}
}

func TestStoreCredential_RejectsDuplicateID(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	var credID vformat.CredentialID
	credID[0] = 7
	rec := CredentialRecord{CredentialID: credID, CredentialBlob: []byte("a")}
	if _, err := h.StoreCredential(rec); err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}
	if _, err := h.StoreCredential(rec); err == nil {
		t.Fatalf("expected duplicate credential id to be rejected")
	} else if kind, ok := KindOf(err); !ok || kind != KindAlreadyExists {
		t.Fatalf("kind = %v, ok=%v, want AlreadyExists", kind, ok)
	}
}

func TestStoreCredential_WithAssociatedData(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	id, err := h.StoreCredential(CredentialRecord{
		CredentialBlob: []byte("cred"),
		AssociatedData: []byte("extra"),
	})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}

	rec, err := h.GetCredential(id)
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if string(rec.AssociatedData) != "extra" {
		t.Fatalf("AssociatedData = %q, want %q", rec.AssociatedData, "extra")
	}
}

func TestGetCredential_MissingNotFound(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	var id vformat.CredentialID
	id[0] = 0xFF
	if _, err := h.GetCredential(id); err == nil {
		t.Fatalf("expected error for missing credential")
	} else if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		t.Fatalf("kind = %v, ok=%v, want NotFound", kind, ok)
	}
}

func TestListCredentials_FiltersByStatus(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	activeID, err := h.StoreCredential(CredentialRecord{CredentialBlob: []byte("a"), Status: vformat.StatusActive})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}
	revokedID, err := h.StoreCredential(CredentialRecord{CredentialBlob: []byte("b"), Status: vformat.StatusRevoked})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}

	active := vformat.StatusActive
	creds, err := h.ListCredentials(CredentialFilter{Status: &active})
	if err != nil {
		t.Fatalf("ListCredentials: %v", err)
	}
	if len(creds) != 1 || creds[0].CredentialID != activeID {
		t.Fatalf("expected only the active credential, got %+v", creds)
	}

	all, err := h.ListCredentials(CredentialFilter{})
	if err != nil {
		t.Fatalf("ListCredentials: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 credentials unfiltered, got %d", len(all))
	}
	_ = revokedID
}

func TestListCredentials_FiltersBySchema(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	aID, err := h.StoreCredential(CredentialRecord{CredentialBlob: []byte("a"), IssuerSchemaID: "schema-a"})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}
	if _, err := h.StoreCredential(CredentialRecord{CredentialBlob: []byte("b"), IssuerSchemaID: "schema-b"}); err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}

	schemaA := "schema-a"
	creds, err := h.ListCredentials(CredentialFilter{IssuerSchemaID: &schemaA})
	if err != nil {
		t.Fatalf("ListCredentials: %v", err)
	}
	if len(creds) != 1 || creds[0].CredentialID != aID {
		t.Fatalf("expected only the schema-a credential, got %+v", creds)
	}
}

// Status narrows the cache lookup but ExpiresAfter must still be applied
// against the looked-up entries, not dropped once the cache has answered.
func TestListCredentials_CacheNarrowedResultStillHonorsSecondFilter(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	soonID, err := h.StoreCredential(CredentialRecord{
		CredentialBlob: []byte("soon"),
		Status:         vformat.StatusActive,
		ExpiresAt:      100,
	})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}
	if _, err := h.StoreCredential(CredentialRecord{
		CredentialBlob: []byte("later"),
		Status:         vformat.StatusActive,
		ExpiresAt:      100000,
	}); err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}

	active := vformat.StatusActive
	before := int64(1000)
	creds, err := h.ListCredentials(CredentialFilter{Status: &active, ExpiresBefore: &before})
	if err != nil {
		t.Fatalf("ListCredentials: %v", err)
	}
	if len(creds) != 1 || creds[0].CredentialID != soonID {
		t.Fatalf("expected only the credential expiring before cutoff, got %+v", creds)
	}
}

func TestUpdateStatus_TransitionsAndRejectsInvalid(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	id, err := h.StoreCredential(CredentialRecord{CredentialBlob: []byte("a")})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}

	if err := h.UpdateStatus(id, vformat.StatusRevoked); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	rec, err := h.GetCredential(id)
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if rec.Status != vformat.StatusRevoked {
		t.Fatalf("Status = %v, want Revoked", rec.Status)
	}

	if err := h.UpdateStatus(id, vformat.CredentialStatus(99)); err == nil {
		t.Fatalf("expected invalid status to be rejected")
	} else if kind, ok := KindOf(err); !ok || kind != KindInvalidInput {
		t.Fatalf("kind = %v, ok=%v, want InvalidInput", kind, ok)
	}
}

func TestUpdateStatus_MissingCredentialNotFound(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	var id vformat.CredentialID
	id[0] = 0xEE
	if err := h.UpdateStatus(id, vformat.StatusRevoked); err == nil {
		t.Fatalf("expected error updating missing credential")
	} else if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		t.Fatalf("kind = %v, ok=%v, want NotFound", kind, ok)
	}
}

func TestUpdateAssociatedData_ReplacesBlob(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	id, err := h.StoreCredential(CredentialRecord{CredentialBlob: []byte("a"), AssociatedData: []byte("old")})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}

	if err := h.UpdateAssociatedData(id, []byte("new")); err != nil {
		t.Fatalf("UpdateAssociatedData: %v", err)
	}
	rec, err := h.GetCredential(id)
	if err != nil {
		t.Fatalf("GetCredential: %v", err)
	}
	if string(rec.AssociatedData) != "new" {
		t.Fatalf("AssociatedData = %q, want %q", rec.AssociatedData, "new")
	}
}

func TestDeleteCredential_RemovesFromIndex(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	id, err := h.StoreCredential(CredentialRecord{CredentialBlob: []byte("a")})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}
	if err := h.DeleteCredential(id); err != nil {
		t.Fatalf("DeleteCredential: %v", err)
	}
	if _, err := h.GetCredential(id); err == nil {
		t.Fatalf("expected GetCredential to fail after delete")
	}
}

func TestDeleteCredential_MissingNotFound(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	var id vformat.CredentialID
	id[0] = 0xDD
	if err := h.DeleteCredential(id); err == nil {
		t.Fatalf("expected error deleting missing credential")
	} else if kind, ok := KindOf(err); !ok || kind != KindNotFound {
		t.Fatalf("kind = %v, ok=%v, want NotFound", kind, ok)
	}
}

func TestCompact_PreservesLiveCredentialsAcrossHandle(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	defer h.Close()

	keepID, err := h.StoreCredential(CredentialRecord{CredentialBlob: []byte("keep")})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}
	dropID, err := h.StoreCredential(CredentialRecord{CredentialBlob: []byte("drop")})
	if err != nil {
		t.Fatalf("StoreCredential: %v", err)
	}
	if err := h.DeleteCredential(dropID); err != nil {
		t.Fatalf("DeleteCredential: %v", err)
	}

	if err := h.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	rec, err := h.GetCredential(keepID)
	if err != nil {
		t.Fatalf("GetCredential after compact: %v", err)
	}
	if string(rec.CredentialBlob) != "keep" {
		t.Fatalf("CredentialBlob after compact = %q, want %q", rec.CredentialBlob, "keep")
	}
}

func TestAccountHandle_CloseIsIdempotent(t *testing.T) {
	_, h := mustCreateAccountHandle(t)
	if err := h.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}
