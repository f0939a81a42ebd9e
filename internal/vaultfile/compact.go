package vaultfile

import (
	"fmt"

	"worldid.dev/vault/internal/platform"
	"worldid.dev/vault/internal/vcrypto"
	"worldid.dev/vault/internal/vformat"
	"worldid.dev/vault/internal/vindex"
)

// Compact rewrites every live blob into a fresh vault file at tmpPath and
// atomically replaces the current file with it. From the caller's
// viewpoint this is a single commit: the
// account lock must be held across the call exactly as for Begin/Commit.
func (vf *VaultFile) Compact(tmpPath string) error {
	fresh, err := platform.OpenLocalVaultFileStore(tmpPath)
	if err != nil {
		return fmt.Errorf("vaultfile compact: open temp: %w", err)
	}

	header := vformat.FileHeader{AccountID: vf.accountID}
	if _, err := fresh.WriteAt(header.Encode(), 0); err != nil {
		return fmt.Errorf("vaultfile compact: write header: %w", err)
	}

	newIndex := vindex.New()
	hasher := vcrypto.NewBodyHasher()
	writeOffset := uint64(vformat.OffsetDataRegion)

	for _, id := range vf.index.SortedIDs() {
		entry, _ := vf.index.Get(id)

		newCred, credLen, err := rewriteBlob(vf, fresh, writeOffset, entry.Blob, hasher)
		if err != nil {
			_ = fresh.Close()
			return err
		}
		entry.Blob = newCred
		writeOffset += uint64(credLen)

		if entry.AssociatedData != nil {
			newAD, adLen, err := rewriteBlob(vf, fresh, writeOffset, *entry.AssociatedData, hasher)
			if err != nil {
				_ = fresh.Close()
				return err
			}
			entry.AssociatedData = &newAD
			writeOffset += uint64(adLen)
		}

		newIndex.Insert(entry)
	}

	plaintext := newIndex.Serialize()
	nonce, ciphertext, err := vcrypto.Seal(vf.vaultKey, vformat.LabelVaultIndex, plaintext)
	if err != nil {
		_ = fresh.Close()
		return err
	}
	indexContentID := vcrypto.ContentID(ciphertext)
	snapshot := vformat.EncryptedIndexSnapshot{Nonce: nonce, Ciphertext: ciphertext, PrevCommitOffset: 0}
	rec := vformat.RecordEnvelope{Type: vformat.RecordTypeEncryptedIndexSnapshot, Body: snapshot.Encode()}
	encoded := rec.Encode()
	if _, err := fresh.WriteAt(encoded, int64(writeOffset)); err != nil {
		_ = fresh.Close()
		return fmt.Errorf("vaultfile compact: write snapshot: %w", err)
	}
	hasher.Write(rec.Body)
	writeOffset += uint64(len(encoded))
	bodyHash := hasher.Sum()

	sb := vformat.Superblock{
		SequenceNumber:     1,
		LastCommitOffset:   writeOffset,
		LastIndexContentID: indexContentID,
		BodyHash:           bodyHash,
	}
	if _, err := fresh.WriteAt(sb.Encode(), slotOffset(0)); err != nil {
		_ = fresh.Close()
		return fmt.Errorf("vaultfile compact: write superblock A: %w", err)
	}
	if _, err := fresh.WriteAt(make([]byte, vformat.SuperblockSize), slotOffset(1)); err != nil {
		_ = fresh.Close()
		return fmt.Errorf("vaultfile compact: zero superblock B: %w", err)
	}
	if err := fresh.Flush(); err != nil {
		_ = fresh.Close()
		return fmt.Errorf("vaultfile compact: flush: %w", err)
	}
	if err := fresh.Close(); err != nil {
		return fmt.Errorf("vaultfile compact: close temp: %w", err)
	}

	if err := vf.store.ReplaceAtomic(tmpPath); err != nil {
		return fmt.Errorf("vaultfile compact: replace: %w", err)
	}

	vf.authoritativeSlot = 0
	vf.superblocks = [2]vformat.Superblock{sb, {}}
	vf.lastCommitOffset = writeOffset
	vf.lastIndexContentID = indexContentID
	vf.index = newIndex
	return nil
}

// rewriteBlob decrypts the blob named by ptr from the live vault and
// re-seals it (fresh nonce) into fresh at offset, returning the new pointer
// and the number of bytes written.
func rewriteBlob(vf *VaultFile, fresh platform.VaultFileStore, offset uint64, ptr vformat.BlobPointer, hasher *vcrypto.BodyHasher) (vformat.BlobPointer, int, error) {
	plaintext, err := vf.ReadBlob(ptr)
	if err != nil {
		return vformat.BlobPointer{}, 0, err
	}
	label := labelFor(ptr.Kind)
	nonce, ciphertext, err := vcrypto.Seal(vf.vaultKey, label, plaintext)
	if err != nil {
		return vformat.BlobPointer{}, 0, err
	}
	body := vformat.EncryptedBlob{Kind: ptr.Kind, Nonce: nonce, Ciphertext: ciphertext}
	rec := vformat.RecordEnvelope{Type: vformat.RecordTypeEncryptedBlob, Body: body.Encode()}
	encoded := rec.Encode()
	if _, err := fresh.WriteAt(encoded, int64(offset)); err != nil {
		return vformat.BlobPointer{}, 0, fmt.Errorf("vaultfile compact: write blob: %w", err)
	}
	hasher.Write(rec.Body)
	newPtr := vformat.BlobPointer{
		Kind:      ptr.Kind,
		ContentID: vcrypto.ContentID(ciphertext),
		Offset:    offset,
		Length:    uint32(len(encoded)),
	}
	return newPtr, len(encoded), nil
}
