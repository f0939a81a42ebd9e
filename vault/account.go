package vault

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"sort"

	"worldid.dev/vault/internal/accountstate"
	"worldid.dev/vault/internal/pending"
	"worldid.dev/vault/internal/platform"
	"worldid.dev/vault/internal/relcache"
	"worldid.dev/vault/internal/vaultfile"
	"worldid.dev/vault/internal/vformat"
	"worldid.dev/vault/internal/vindex"
)

// CredentialRecord is the application-visible view of a stored credential.
type CredentialRecord struct {
	CredentialID    vformat.CredentialID
	IssuerSchemaID  string
	GenesisIssuedAt int64
	ExpiresAt       int64
	CredentialBlob  []byte
	AssociatedData  []byte // nil if none
	Status          vformat.CredentialStatus
	CreatedAt       int64
	UpdatedAt       int64
}

// CredentialFilter constrains ListCredentials. All fields are optional;
// nil/zero means unconstrained.
type CredentialFilter struct {
	Status         *vformat.CredentialStatus
	IssuerSchemaID *string
	ExpiresBefore  *int64
	ExpiresAfter   *int64
}

func (f CredentialFilter) toIndexFilter() vindex.Filter {
	return vindex.Filter{
		Status:         f.Status,
		IssuerSchemaID: f.IssuerSchemaID,
		ExpiresBefore:  f.ExpiresBefore,
		ExpiresAfter:   f.ExpiresAfter,
	}
}

// AccountHandle is a live handle on one account: its vault file, pending
// disclosures, and (if enabled) listing cache. A writer handle (from
// OpenAccount) holds the account's write lock for its entire lifetime; a
// snapshot handle (from OpenAccountSnapshot) holds no lock and rejects
// mutating calls.
type AccountHandle struct {
	store     *WorldIdStore
	accountID vformat.AccountID
	state     *accountstate.State
	fileStore platform.VaultFileStore
	vf        *vaultfile.VaultFile
	lock      platform.Lock
	pending   *pending.Store
	cache     *relcache.Cache
	readOnly  bool
	closed    bool
}

// AccountID returns the handle's account.
func (h *AccountHandle) AccountID() vformat.AccountID { return h.accountID }

// Close releases the account write lock (if held) and closes the
// underlying file handles. Calls after the first are no-ops returning nil.
func (h *AccountHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	var firstErr error
	if h.pending != nil {
		if err := h.pending.Save(h.store.opts.BlobStore, h.store.opts.Keystore, h.store.opts.RootPath, h.accountID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.cache != nil {
		if err := h.cache.Close(); err != nil && firstErr == nil {
			firstErr = newError(KindStorageIO, "AccountHandle.Close", err)
		}
	}
	if err := h.fileStore.Close(); err != nil && firstErr == nil {
		firstErr = newError(KindStorageIO, "AccountHandle.Close", err)
	}
	if h.lock != nil {
		if err := h.lock.Release(); err != nil && firstErr == nil {
			firstErr = newError(KindLockUnavailable, "AccountHandle.Close", err)
		}
	}
	return firstErr
}

func (h *AccountHandle) requireWriter(op string) error {
	if h.readOnly {
		return newError(KindInvalidInput, op, fmt.Errorf("handle is a read-only snapshot"))
	}
	return nil
}

func pendingOpen(s *WorldIdStore, accountID vformat.AccountID) (*pending.Store, error) {
	return pending.Open(s.opts.BlobStore, s.opts.Keystore, s.opts.RootPath, accountID)
}

func relcacheOpen(s *WorldIdStore, accountID vformat.AccountID) (*relcache.Cache, error) {
	return relcache.Open(filepath.Join(s.opts.RootPath, accountID.String(), "relcache.bolt"))
}

func (h *AccountHandle) refreshCache() {
	if h.cache != nil {
		_ = h.cache.Rebuild(h.vf.Index())
	}
}

func entryToRecord(h *AccountHandle, entry vindex.Entry) (CredentialRecord, error) {
	blob, err := h.vf.ReadBlob(entry.Blob)
	if err != nil {
		return CredentialRecord{}, err
	}
	var ad []byte
	if entry.AssociatedData != nil {
		ad, err = h.vf.ReadBlob(*entry.AssociatedData)
		if err != nil {
			return CredentialRecord{}, err
		}
	}
	return CredentialRecord{
		CredentialID:    entry.CredentialID,
		IssuerSchemaID:  entry.IssuerSchemaID,
		GenesisIssuedAt: entry.GenesisIssuedAt,
		ExpiresAt:       entry.ExpiresAt,
		CredentialBlob:  blob,
		AssociatedData:  ad,
		Status:          entry.Status,
		CreatedAt:       entry.CreatedAt,
		UpdatedAt:       entry.UpdatedAt,
	}, nil
}

// StoreCredential stages and commits a new credential. If rec.CredentialID
// is zero, a fresh one is generated. If rec.Status is zero, it defaults to
// Active.
func (h *AccountHandle) StoreCredential(rec CredentialRecord) (vformat.CredentialID, error) {
	if err := h.requireWriter("AccountHandle.StoreCredential"); err != nil {
		return vformat.CredentialID{}, err
	}

	id := rec.CredentialID
	if id.IsZero() {
		var err error
		id, err = vformat.NewCredentialID()
		if err != nil {
			return vformat.CredentialID{}, err
		}
	}
	if _, exists := h.vf.Index().Get(id); exists {
		return vformat.CredentialID{}, newError(KindAlreadyExists, "AccountHandle.StoreCredential", fmt.Errorf("credential %s already exists", id))
	}

	status := rec.Status
	if status == 0 {
		status = vformat.StatusActive
	}
	now := vformat.NowNanos()

	txn, err := h.vf.Begin()
	if err != nil {
		return vformat.CredentialID{}, err
	}

	blobPtr, err := txn.StageBlob(vformat.BlobKindCredential, rec.CredentialBlob)
	if err != nil {
		txn.Abort()
		return vformat.CredentialID{}, err
	}

	var adPtr *vformat.BlobPointer
	var adDigest [32]byte
	if len(rec.AssociatedData) > 0 {
		ptr, err := txn.StageBlob(vformat.BlobKindAssociated, rec.AssociatedData)
		if err != nil {
			txn.Abort()
			return vformat.CredentialID{}, err
		}
		adPtr = &ptr
		adDigest = sha256.Sum256(rec.AssociatedData)
	}

	txn.Staging().Insert(vindex.Entry{
		CredentialID:         id,
		Blob:                 blobPtr,
		AssociatedData:       adPtr,
		IssuerSchemaID:       rec.IssuerSchemaID,
		Status:               status,
		GenesisIssuedAt:      rec.GenesisIssuedAt,
		ExpiresAt:            rec.ExpiresAt,
		CreatedAt:            now,
		UpdatedAt:            now,
		AssociatedDataDigest: adDigest,
	})

	if err := txn.Commit(); err != nil {
		return vformat.CredentialID{}, err
	}
	h.refreshCache()
	return id, nil
}

// GetCredential returns the decrypted record for id.
func (h *AccountHandle) GetCredential(id vformat.CredentialID) (CredentialRecord, error) {
	entry, ok := h.vf.Index().Get(id)
	if !ok {
		return CredentialRecord{}, newError(KindNotFound, "AccountHandle.GetCredential", fmt.Errorf("credential %s not found", id))
	}
	return entryToRecord(h, entry)
}

// ListCredentials returns every credential matching filter, sorted by
// credential id. When the cache is available and filter narrows by status
// or issuer schema, the lookup starts from the cached id set instead of a
// full index scan; every other filter field is still applied against the
// looked-up entries, so narrowing through the cache never changes the
// result relative to a full scan.
func (h *AccountHandle) ListCredentials(filter CredentialFilter) ([]CredentialRecord, error) {
	idxFilter := filter.toIndexFilter()

	var ids []vformat.CredentialID
	var fromCache bool
	switch {
	case h.cache != nil && filter.Status != nil:
		cached, err := h.cache.ListByStatus(*filter.Status)
		if err != nil {
			return nil, newError(KindStorageIO, "AccountHandle.ListCredentials", err)
		}
		ids, fromCache = cached, true
	case h.cache != nil && filter.IssuerSchemaID != nil:
		cached, err := h.cache.ListBySchema(*filter.IssuerSchemaID)
		if err != nil {
			return nil, newError(KindStorageIO, "AccountHandle.ListCredentials", err)
		}
		ids, fromCache = cached, true
	}

	var entries []vindex.Entry
	if fromCache {
		entries = make([]vindex.Entry, 0, len(ids))
		for _, id := range ids {
			entry, ok := h.vf.Index().Get(id)
			if !ok {
				continue
			}
			if idxFilter.Matches(entry) {
				entries = append(entries, entry)
			}
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].CredentialID.Less(entries[j].CredentialID)
		})
	} else {
		entries = h.vf.Index().List(idxFilter)
	}

	out := make([]CredentialRecord, 0, len(entries))
	for _, entry := range entries {
		rec, err := entryToRecord(h, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpdateStatus transitions a credential's status under its own transaction.
func (h *AccountHandle) UpdateStatus(id vformat.CredentialID, status vformat.CredentialStatus) error {
	if err := h.requireWriter("AccountHandle.UpdateStatus"); err != nil {
		return err
	}
	if !status.Valid() {
		return newError(KindInvalidInput, "AccountHandle.UpdateStatus", fmt.Errorf("invalid status %d", status))
	}
	txn, err := h.vf.Begin()
	if err != nil {
		return err
	}
	now := vformat.NowNanos()
	ok := txn.Staging().UpdateMetadata(id, func(e *vindex.Entry) {
		e.Status = status
		e.UpdatedAt = now
	})
	if !ok {
		txn.Abort()
		return newError(KindNotFound, "AccountHandle.UpdateStatus", fmt.Errorf("credential %s not found", id))
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	h.refreshCache()
	return nil
}

// UpdateAssociatedData replaces a credential's associated-data blob,
// sealing the new bytes under a fresh nonce.
func (h *AccountHandle) UpdateAssociatedData(id vformat.CredentialID, data []byte) error {
	if err := h.requireWriter("AccountHandle.UpdateAssociatedData"); err != nil {
		return err
	}
	if _, ok := h.vf.Index().Get(id); !ok {
		return newError(KindNotFound, "AccountHandle.UpdateAssociatedData", fmt.Errorf("credential %s not found", id))
	}

	txn, err := h.vf.Begin()
	if err != nil {
		return err
	}

	var ptr *vformat.BlobPointer
	var digest [32]byte
	if len(data) > 0 {
		p, err := txn.StageBlob(vformat.BlobKindAssociated, data)
		if err != nil {
			txn.Abort()
			return err
		}
		ptr = &p
		digest = sha256.Sum256(data)
	}

	now := vformat.NowNanos()
	ok := txn.Staging().UpdateMetadata(id, func(e *vindex.Entry) {
		e.AssociatedData = ptr
		e.AssociatedDataDigest = digest
		e.UpdatedAt = now
	})
	if !ok {
		txn.Abort()
		return newError(KindNotFound, "AccountHandle.UpdateAssociatedData", fmt.Errorf("credential %s not found", id))
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	h.refreshCache()
	return nil
}

// DeleteCredential removes a credential from the index. The underlying
// blob bytes become unreachable scratch and are reclaimed only by Compact.
func (h *AccountHandle) DeleteCredential(id vformat.CredentialID) error {
	if err := h.requireWriter("AccountHandle.DeleteCredential"); err != nil {
		return err
	}
	txn, err := h.vf.Begin()
	if err != nil {
		return err
	}
	if !txn.Staging().Remove(id) {
		txn.Abort()
		return newError(KindNotFound, "AccountHandle.DeleteCredential", fmt.Errorf("credential %s not found", id))
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	h.refreshCache()
	return nil
}

// Compact rewrites the vault file to reclaim space occupied by
// unreachable (deleted, superseded) blobs. It is never triggered
// automatically; callers decide when the tradeoff (I/O now, smaller file
// later) is worth it.
func (h *AccountHandle) Compact() error {
	if err := h.requireWriter("AccountHandle.Compact"); err != nil {
		return err
	}
	tmpPath := h.store.vaultPath(h.accountID) + ".compact"
	if err := h.vf.Compact(tmpPath); err != nil {
		return err
	}
	h.refreshCache()
	return nil
}
