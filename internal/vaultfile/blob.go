package vaultfile

import (
	"fmt"

	"worldid.dev/vault/internal/vcrypto"
	"worldid.dev/vault/internal/vformat"
)

// ReadBlob resolves a BlobPointer to its decrypted plaintext. Offset/Length
// address the full record envelope in the data region (not just the
// ciphertext), so a pointer can always be resolved without consulting any
// other structure. Verifies that the record's ciphertext content
// id must equal the pointer's ContentID.
func (vf *VaultFile) ReadBlob(ptr vformat.BlobPointer) ([]byte, error) {
	buf := make([]byte, ptr.Length)
	if _, err := vf.store.ReadAt(buf, int64(ptr.Offset)); err != nil {
		return nil, vformat.NewError(vformat.KindStorageIO, "vaultfile.ReadBlob", err)
	}
	rec, _, err := vformat.DecodeRecord(buf)
	if err != nil {
		return nil, err
	}
	if rec.Type != vformat.RecordTypeEncryptedBlob {
		return nil, vformat.NewError(vformat.KindCorruptVault, "vaultfile.ReadBlob", fmt.Errorf("pointer does not name an EncryptedBlob record"))
	}
	blob, err := vformat.DecodeEncryptedBlob(rec.Body)
	if err != nil {
		return nil, err
	}
	if blob.Kind != ptr.Kind {
		return nil, vformat.NewError(vformat.KindCorruptVault, "vaultfile.ReadBlob", fmt.Errorf("blob kind mismatch"))
	}
	if vcrypto.ContentID(blob.Ciphertext) != ptr.ContentID {
		return nil, vformat.NewError(vformat.KindCorruptVault, "vaultfile.ReadBlob", fmt.Errorf("blob content id mismatch"))
	}
	label := labelFor(blob.Kind)
	return vcrypto.Open(vf.vaultKey, blob.Nonce, label, blob.Ciphertext)
}

func labelFor(kind vformat.BlobKind) []byte {
	if kind == vformat.BlobKindAssociated {
		return vformat.LabelVaultBlobAD
	}
	return vformat.LabelVaultBlobCred
}
