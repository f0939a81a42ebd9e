package vault

import (
	"fmt"

	"worldid.dev/vault/internal/pending"
	"worldid.dev/vault/internal/vformat"
)

// PendingID identifies one in-flight disclosure.
type PendingID = pending.ID

// BeginDisclosure records the start of a nullifier disclosure for
// credentialID. It fails with DuplicateDisclosure if this (credential,
// external nullifier) pair already has a non-terminal entry.
func (h *AccountHandle) BeginDisclosure(credentialID vformat.CredentialID, externalNullifier []byte, nullifierHash [32]byte) (PendingID, error) {
	if err := h.requireWriter("AccountHandle.BeginDisclosure"); err != nil {
		return PendingID{}, err
	}
	if _, ok := h.vf.Index().Get(credentialID); !ok {
		return PendingID{}, newError(KindNotFound, "AccountHandle.BeginDisclosure", fmt.Errorf("credential %s not found", credentialID))
	}
	return h.pending.BeginDisclosure(credentialID, externalNullifier, nullifierHash, vformat.NowNanos())
}

// MarkDisclosurePending transitions a disclosure from Disclosing to
// Pending, once the caller has submitted it to the external
// nullifier-pool service.
func (h *AccountHandle) MarkDisclosurePending(id PendingID) error {
	if err := h.requireWriter("AccountHandle.MarkDisclosurePending"); err != nil {
		return err
	}
	return h.pending.MarkPending(id)
}

// ConfirmDisclosure transitions a disclosure to its terminal Confirmed
// stage, freeing the (credential, external nullifier) pair for GC after
// the retention window.
func (h *AccountHandle) ConfirmDisclosure(id PendingID) error {
	if err := h.requireWriter("AccountHandle.ConfirmDisclosure"); err != nil {
		return err
	}
	return h.pending.Confirm(id)
}

// ListUnfinishedDisclosures returns every non-terminal pending action, for
// reconciliation against the external nullifier-pool service after a
// restart.
func (h *AccountHandle) ListUnfinishedDisclosures() []pending.Entry {
	return h.pending.ListUnfinished()
}

// GCDisclosures removes terminal disclosures older than the configured
// retention window, returning the number removed.
func (h *AccountHandle) GCDisclosures(now int64) int {
	retention := h.store.opts.PendingRetention
	if retention == 0 {
		retention = pending.DefaultRetention
	}
	// pending.GC cuts off at now - DefaultRetention; shifting now moves that
	// cutoff to now - retention.
	return h.pending.GC(now + pending.DefaultRetention.Nanoseconds() - retention.Nanoseconds())
}
