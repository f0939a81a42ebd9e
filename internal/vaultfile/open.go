package vaultfile

import (
	"fmt"

	"worldid.dev/vault/internal/platform"
	"worldid.dev/vault/internal/vcrypto"
	"worldid.dev/vault/internal/vformat"
	"worldid.dev/vault/internal/vindex"
)

// Open loads a vault file:
//  1. validate file header
//  2. read + validate both superblocks
//  3. select the authoritative slot (greatest valid sequence number; a tie
//     between two valid slots is CorruptVault)
//  4. scan the committed region, verifying every record and that the
//     index's blob pointers are all reachable
//  5. decrypt and populate the live VaultIndex
func Open(store platform.VaultFileStore, accountID vformat.AccountID, vaultKey vcrypto.VaultKey) (*VaultFile, error) {
	size, err := store.Size()
	if err != nil {
		return nil, fmt.Errorf("vaultfile open: stat: %w", err)
	}
	if size < int64(vformat.OffsetDataRegion) {
		return nil, vformat.NewError(vformat.KindInvalidInput, "vaultfile.Open", fmt.Errorf("file too small to be a vault"))
	}

	headerBuf := make([]byte, vformat.FileHeaderSize)
	if _, err := store.ReadAt(headerBuf, 0); err != nil {
		return nil, fmt.Errorf("vaultfile open: read header: %w", err)
	}
	header, err := vformat.DecodeFileHeader(headerBuf)
	if err != nil {
		return nil, err
	}
	if header.AccountID != accountID {
		return nil, vformat.NewError(vformat.KindInvalidInput, "vaultfile.Open", fmt.Errorf("account id mismatch"))
	}

	sbA, okA := readSuperblock(store, 0)
	sbB, okB := readSuperblock(store, 1)

	authSlot, err := selectAuthoritative(sbA, okA, sbB, okB)
	if err != nil {
		return nil, err
	}
	var authSB vformat.Superblock
	if authSlot == 0 {
		authSB = sbA
	} else {
		authSB = sbB
	}

	index, err := scanAndDecrypt(store, vaultKey, authSB)
	if err != nil {
		return nil, err
	}

	return &VaultFile{
		store:              store,
		accountID:          accountID,
		vaultKey:           vaultKey,
		authoritativeSlot:  authSlot,
		superblocks:        [2]vformat.Superblock{sbA, sbB},
		lastCommitOffset:   authSB.LastCommitOffset,
		lastIndexContentID: authSB.LastIndexContentID,
		index:              index,
	}, nil
}

func readSuperblock(store platform.VaultFileStore, slot int) (vformat.Superblock, bool) {
	buf := make([]byte, vformat.SuperblockSize)
	if _, err := store.ReadAt(buf, slotOffset(slot)); err != nil {
		return vformat.Superblock{}, false
	}
	return vformat.DecodeSuperblock(buf)
}

// selectAuthoritative picks the authoritative slot: the higher sequence number
// among valid superblocks wins; a tie between two valid slots is
// unrecoverable (CorruptVault), since the protocol guarantees sequence
// numbers are always distinct across the two slots.
func selectAuthoritative(a vformat.Superblock, okA bool, b vformat.Superblock, okB bool) (int, error) {
	switch {
	case okA && !okB:
		return 0, nil
	case okB && !okA:
		return 1, nil
	case okA && okB:
		switch {
		case a.SequenceNumber > b.SequenceNumber:
			return 0, nil
		case b.SequenceNumber > a.SequenceNumber:
			return 1, nil
		default:
			return 0, vformat.NewError(vformat.KindCorruptVault, "vaultfile.selectAuthoritative", fmt.Errorf("superblock sequence number tie"))
		}
	default:
		return 0, vformat.NewError(vformat.KindCorruptVault, "vaultfile.selectAuthoritative", fmt.Errorf("no valid superblock"))
	}
}

// scanAndDecrypt walks the committed data region [OffsetDataRegion,
// authSB.LastCommitOffset), verifying every record envelope, tracking
// which content ids are reachable, and decrypting the index snapshot named
// by the authoritative superblock. Any failure in this range is
// CorruptVault: any failure at or below last_commit_offset is fatal.
func scanAndDecrypt(store platform.VaultFileStore, vaultKey vcrypto.VaultKey, authSB vformat.Superblock) (*vindex.Index, error) {
	committedLen := authSB.LastCommitOffset - uint64(vformat.OffsetDataRegion)
	buf := make([]byte, committedLen)
	if committedLen > 0 {
		if _, err := store.ReadAt(buf, int64(vformat.OffsetDataRegion)); err != nil {
			return nil, vformat.NewError(vformat.KindCorruptVault, "vaultfile.scanAndDecrypt", err)
		}
	}

	reachable := make(map[vformat.ContentID]struct{})
	var snapshot *vformat.EncryptedIndexSnapshot

	pos := 0
	for pos < len(buf) {
		rec, consumed, err := vformat.DecodeRecord(buf[pos:])
		if err != nil {
			return nil, err // already a CorruptVault *Error
		}
		switch rec.Type {
		case vformat.RecordTypeEncryptedBlob:
			blob, err := vformat.DecodeEncryptedBlob(rec.Body)
			if err != nil {
				return nil, err
			}
			reachable[vcrypto.ContentID(blob.Ciphertext)] = struct{}{}
		case vformat.RecordTypeEncryptedIndexSnapshot:
			snap, err := vformat.DecodeEncryptedIndexSnapshot(rec.Body)
			if err != nil {
				return nil, err
			}
			cid := vcrypto.ContentID(snap.Ciphertext)
			reachable[cid] = struct{}{}
			if cid == authSB.LastIndexContentID {
				s := snap
				snapshot = &s
			}
		case vformat.RecordTypeTxnBegin, vformat.RecordTypeTxnCommit:
			// No reachability contribution; presence is implied by the
			// fact that the scan reached this far without error.
		}
		pos += consumed
	}

	if snapshot == nil {
		return nil, vformat.NewError(vformat.KindCorruptVault, "vaultfile.scanAndDecrypt", fmt.Errorf("committed index snapshot not found"))
	}

	plaintext, err := vcrypto.Open(vaultKey, snapshot.Nonce, vformat.LabelVaultIndex, snapshot.Ciphertext)
	if err != nil {
		return nil, err // KindCryptoFailure
	}
	index, err := vindex.Deserialize(plaintext)
	if err != nil {
		return nil, err
	}

	// Every pointer named by the live index must be reachable in the data
	// region at or before last_commit_offset.
	for _, id := range index.SortedIDs() {
		entry, _ := index.Get(id)
		if _, ok := reachable[entry.Blob.ContentID]; !ok {
			return nil, vformat.NewError(vformat.KindCorruptVault, "vaultfile.scanAndDecrypt",
				fmt.Errorf("credential %s: blob content id not reachable", id))
		}
		if entry.AssociatedData != nil {
			if _, ok := reachable[entry.AssociatedData.ContentID]; !ok {
				return nil, vformat.NewError(vformat.KindCorruptVault, "vaultfile.scanAndDecrypt",
					fmt.Errorf("credential %s: associated-data content id not reachable", id))
			}
		}
	}

	return index, nil
}
