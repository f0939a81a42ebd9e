// Package vaultfile implements the vault file engine: the
// (header | superblock A | superblock B | append-only data region) layout,
// load/recovery, the dual-superblock commit protocol, and transactions.
package vaultfile

import (
	"crypto/rand"
	"fmt"

	"worldid.dev/vault/internal/platform"
	"worldid.dev/vault/internal/vcrypto"
	"worldid.dev/vault/internal/vformat"
	"worldid.dev/vault/internal/vindex"
)

// VaultFile is one open handle on a single account's vault.bin. It is not
// safe for concurrent transactions; the caller (AccountHandle) serializes
// writers via platform.AccountLockManager and opens a fresh VaultFile per
// reader so concurrent readers see a stable, consistent snapshot.
type VaultFile struct {
	store     platform.VaultFileStore
	accountID vformat.AccountID
	vaultKey  vcrypto.VaultKey

	authoritativeSlot  int // 0 = superblock A, 1 = superblock B
	superblocks        [2]vformat.Superblock
	lastCommitOffset   uint64
	lastIndexContentID vformat.ContentID
	index              *vindex.Index
}

// AccountID returns the account this vault file belongs to.
func (vf *VaultFile) AccountID() vformat.AccountID { return vf.accountID }

// Index returns the live, authoritative VaultIndex snapshot. Callers must
// not mutate the returned Index directly; mutations go through a
// transaction's staging copy.
func (vf *VaultFile) Index() *vindex.Index { return vf.index }

// LastCommitOffset returns the current authoritative commit offset.
func (vf *VaultFile) LastCommitOffset() uint64 { return vf.lastCommitOffset }

func slotOffset(slot int) int64 {
	if slot == 0 {
		return int64(vformat.OffsetSuperblockA)
	}
	return int64(vformat.OffsetSuperblockB)
}

// Create initializes a brand-new vault file: file header, both superblocks
// (slot A authoritative at sequence 1), and an initial commit containing an
// empty index.
func Create(store platform.VaultFileStore, accountID vformat.AccountID, vaultKey vcrypto.VaultKey) (*VaultFile, error) {
	size, err := store.Size()
	if err != nil {
		return nil, fmt.Errorf("vaultfile create: stat: %w", err)
	}
	if size != 0 {
		return nil, vformat.NewError(vformat.KindAlreadyExists, "vaultfile.Create", fmt.Errorf("vault file already initialized"))
	}

	header := vformat.FileHeader{AccountID: accountID}
	if _, err := store.WriteAt(header.Encode(), 0); err != nil {
		return nil, fmt.Errorf("vaultfile create: write header: %w", err)
	}

	emptyIndex := vindex.New()
	plaintext := emptyIndex.Serialize()
	nonce, ciphertext, err := vcrypto.Seal(vaultKey, vformat.LabelVaultIndex, plaintext)
	if err != nil {
		return nil, err
	}
	indexContentID := vcrypto.ContentID(ciphertext)

	snapshot := vformat.EncryptedIndexSnapshot{Nonce: nonce, Ciphertext: ciphertext, PrevCommitOffset: 0}
	rec := vformat.RecordEnvelope{Type: vformat.RecordTypeEncryptedIndexSnapshot, Body: snapshot.Encode()}
	encoded := rec.Encode()

	dataOffset := int64(vformat.OffsetDataRegion)
	if _, err := store.WriteAt(encoded, dataOffset); err != nil {
		return nil, fmt.Errorf("vaultfile create: write initial snapshot: %w", err)
	}

	hasher := vcrypto.NewBodyHasher()
	hasher.Write(snapshot.Encode())
	bodyHash := hasher.Sum()

	endOffset := uint64(dataOffset) + uint64(len(encoded))
	sb := vformat.Superblock{
		SequenceNumber:     1,
		LastCommitOffset:   endOffset,
		LastIndexContentID: indexContentID,
		BodyHash:           bodyHash,
	}
	if _, err := store.WriteAt(sb.Encode(), slotOffset(0)); err != nil {
		return nil, fmt.Errorf("vaultfile create: write superblock A: %w", err)
	}
	// Superblock B starts invalid (zeroed); DecodeSuperblock will reject it,
	// which is correct — it becomes authoritative only after a real commit.
	if _, err := store.WriteAt(make([]byte, vformat.SuperblockSize), slotOffset(1)); err != nil {
		return nil, fmt.Errorf("vaultfile create: zero superblock B: %w", err)
	}
	if err := store.Flush(); err != nil {
		return nil, fmt.Errorf("vaultfile create: flush: %w", err)
	}

	return &VaultFile{
		store:              store,
		accountID:          accountID,
		vaultKey:           vaultKey,
		authoritativeSlot:  0,
		superblocks:        [2]vformat.Superblock{sb, {}},
		lastCommitOffset:   endOffset,
		lastIndexContentID: indexContentID,
		index:              emptyIndex,
	}, nil
}

func randomTxnID() ([vformat.TxnIDSize]byte, error) {
	var id [vformat.TxnIDSize]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, vformat.NewError(vformat.KindCryptoFailure, "vaultfile.randomTxnID", err)
	}
	return id, nil
}
