package vaultfile

import (
	"fmt"

	"github.com/google/uuid"

	"worldid.dev/vault/internal/vcrypto"
	"worldid.dev/vault/internal/vformat"
	"worldid.dev/vault/internal/vindex"
)

// Txn is one in-flight transaction against a VaultFile. It
// holds no external lock itself — the caller (AccountHandle) acquires the
// account write lock before calling Begin and releases it only after
// Commit or Abort returns, so the lock is held across the whole
// transaction.
type Txn struct {
	vf          *VaultFile
	txnID       [vformat.TxnIDSize]byte
	beginOffset uint64
	writeOffset uint64
	staging     *vindex.Index
	hasher      *vcrypto.BodyHasher
	done        bool
}

// Begin starts a transaction: seeks (logically) to the current
// last_commit_offset and appends a TxnBegin record there.
func (vf *VaultFile) Begin() (*Txn, error) {
	txnID, err := randomTxnID()
	if err != nil {
		return nil, err
	}
	t := &Txn{
		vf:          vf,
		txnID:       txnID,
		beginOffset: vf.lastCommitOffset,
		writeOffset: vf.lastCommitOffset,
		staging:     vf.index.Clone(),
		hasher:      vcrypto.NewBodyHasher(),
	}
	begin := vformat.TxnBegin{TxnID: txnID, Timestamp: vformat.NowNanos()}
	rec := vformat.RecordEnvelope{Type: vformat.RecordTypeTxnBegin, Body: begin.Encode()}
	if err := t.append(rec); err != nil {
		return nil, err
	}
	return t, nil
}

// Staging returns the transaction's staging index, mutable by the caller
// before Commit.
func (t *Txn) Staging() *vindex.Index { return t.staging }

// id returns the transaction's id formatted as a UUID, for use in error
// messages and logs. The on-disk TxnBegin/TxnCommit records always carry
// the raw 16 bytes (vformat.TxnIDSize); this formatting is a debugging aid
// at the boundary, never a wire type.
func (t *Txn) id() uuid.UUID { return uuid.UUID(t.txnID) }

func (t *Txn) append(rec vformat.RecordEnvelope) error {
	encoded := rec.Encode()
	if _, err := t.vf.store.WriteAt(encoded, int64(t.writeOffset)); err != nil {
		return vformat.NewError(vformat.KindStorageIO, "vaultfile.Txn.append", fmt.Errorf("txn %s: %w", t.id(), err))
	}
	t.writeOffset += uint64(len(encoded))
	return nil
}

// StageBlob encrypts plaintext under the vault key with a fresh nonce and
// the AD label matching kind, appends an EncryptedBlob record, and returns
// the BlobPointer for it. It does not touch the
// staging index — the caller inserts/updates the returned pointer into
// Staging() itself, since only the caller knows which credential it
// belongs to.
func (t *Txn) StageBlob(kind vformat.BlobKind, plaintext []byte) (vformat.BlobPointer, error) {
	if t.done {
		return vformat.BlobPointer{}, vformat.NewError(vformat.KindInvalidInput, "vaultfile.Txn.StageBlob", fmt.Errorf("transaction already finished"))
	}
	label := labelFor(kind)
	nonce, ciphertext, err := vcrypto.Seal(t.vf.vaultKey, label, plaintext)
	if err != nil {
		return vformat.BlobPointer{}, err
	}
	contentID := vcrypto.ContentID(ciphertext)
	body := vformat.EncryptedBlob{Kind: kind, Nonce: nonce, Ciphertext: ciphertext}
	rec := vformat.RecordEnvelope{Type: vformat.RecordTypeEncryptedBlob, Body: body.Encode()}

	recordOffset := t.writeOffset
	encoded := rec.Encode()
	t.hasher.Write(rec.Body)
	if _, err := t.vf.store.WriteAt(encoded, int64(recordOffset)); err != nil {
		return vformat.BlobPointer{}, vformat.NewError(vformat.KindStorageIO, "vaultfile.Txn.StageBlob", fmt.Errorf("txn %s: %w", t.id(), err))
	}
	t.writeOffset += uint64(len(encoded))

	return vformat.BlobPointer{
		Kind:      kind,
		ContentID: contentID,
		Offset:    recordOffset,
		Length:    uint32(len(encoded)),
	}, nil
}

// Commit serializes + seals the
// staging index, append the snapshot and TxnCommit records, flush, write
// the non-authoritative superblock slot, flush again, then swap the
// in-memory authoritative pointer. Commit takes and releases no lock; the
// transaction is finished on every exit path, including errors.
func (t *Txn) Commit() error {
	if t.done {
		return vformat.NewError(vformat.KindInvalidInput, "vaultfile.Txn.Commit", fmt.Errorf("transaction already finished"))
	}
	defer func() { t.done = true }()

	plaintext := t.staging.Serialize()
	nonce, ciphertext, err := vcrypto.Seal(t.vf.vaultKey, vformat.LabelVaultIndex, plaintext)
	if err != nil {
		return err
	}
	indexContentID := vcrypto.ContentID(ciphertext)

	snapshot := vformat.EncryptedIndexSnapshot{Nonce: nonce, Ciphertext: ciphertext, PrevCommitOffset: t.beginOffset}
	snapRec := vformat.RecordEnvelope{Type: vformat.RecordTypeEncryptedIndexSnapshot, Body: snapshot.Encode()}
	t.hasher.Write(snapRec.Body)
	if err := t.append(snapRec); err != nil {
		return err
	}

	bodyHash := t.hasher.Sum()
	commit := vformat.TxnCommit{TxnID: t.txnID, IndexContentID: indexContentID, BodyHash: bodyHash}
	commitRec := vformat.RecordEnvelope{Type: vformat.RecordTypeTxnCommit, Body: commit.Encode()}
	if err := t.append(commitRec); err != nil {
		return err
	}

	// Durability fence: the new records must be stable before either
	// superblock can be made to point at them.
	if err := t.vf.store.Flush(); err != nil {
		return vformat.NewError(vformat.KindStorageIO, "vaultfile.Txn.Commit", err)
	}

	targetSlot := 1 - t.vf.authoritativeSlot
	newSB := vformat.Superblock{
		SequenceNumber:     t.vf.superblocks[t.vf.authoritativeSlot].SequenceNumber + 1,
		LastCommitOffset:   t.writeOffset,
		LastIndexContentID: indexContentID,
		BodyHash:           bodyHash,
	}
	if _, err := t.vf.store.WriteAt(newSB.Encode(), slotOffset(targetSlot)); err != nil {
		return vformat.NewError(vformat.KindStorageIO, "vaultfile.Txn.Commit", err)
	}
	if err := t.vf.store.Flush(); err != nil {
		return vformat.NewError(vformat.KindStorageIO, "vaultfile.Txn.Commit", err)
	}

	// Atomic pointer swap (in memory; on disk the two slots already each
	// describe a complete, self-consistent state).
	t.vf.authoritativeSlot = targetSlot
	t.vf.superblocks[targetSlot] = newSB
	t.vf.lastCommitOffset = t.writeOffset
	t.vf.lastIndexContentID = indexContentID
	t.vf.index = t.staging

	return nil
}

// Abort drops the staging state. No rollback record is written: the next
// transaction's Begin reseeks to last_commit_offset and overwrites the
// scratch bytes this transaction left behind.
func (t *Txn) Abort() {
	t.done = true
	t.staging = nil
}
