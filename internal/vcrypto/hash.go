package vcrypto

import (
	"crypto/sha256"
	"hash"

	"worldid.dev/vault/internal/vformat"
)

// BodyHasher accumulates the SHA-256 digest over every record body written
// since a TxnBegin, producing the TxnCommit.BodyHash.
type BodyHasher struct {
	h hash.Hash
}

func NewBodyHasher() *BodyHasher {
	return &BodyHasher{h: sha256.New()}
}

func (b *BodyHasher) Write(body []byte) {
	_, _ = b.h.Write(body)
}

func (b *BodyHasher) Sum() [vformat.HashSize]byte {
	var out [vformat.HashSize]byte
	copy(out[:], b.h.Sum(nil))
	return out
}
