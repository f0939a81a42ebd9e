// Package vcrypto implements the vault's authenticated-encryption layer:
// XChaCha20-Poly1305 seal/open with domain-separated associated data, and
// SHA-256 content-id hashing.
package vcrypto

import (
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/chacha20poly1305"

	"worldid.dev/vault/internal/vformat"
)

// VaultKey is the symmetric AEAD key derived from the account root
// (internal/keys). It is never written to disk.
type VaultKey [32]byte

// Seal encrypts plaintext under key with a fresh random nonce and the given
// associated-data label, returning the nonce and the ciphertext (including
// the trailing Poly1305 tag). Nonce reuse is a correctness bug — a fresh
// nonce is drawn from crypto/rand on every call.
func Seal(key VaultKey, ad []byte, plaintext []byte) (nonce [vformat.NonceSize]byte, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nonce, nil, vformat.NewError(vformat.KindCryptoFailure, "vcrypto.Seal", err)
	}
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, nil, vformat.NewError(vformat.KindCryptoFailure, "vcrypto.Seal", err)
	}
	ciphertext = aead.Seal(nil, nonce[:], plaintext, ad)
	return nonce, ciphertext, nil
}

// Open verifies and decrypts ciphertext under key, nonce, and ad. Tag
// mismatch is reported as KindCryptoFailure — always fatal to the current
// transaction.
func Open(key VaultKey, nonce [vformat.NonceSize]byte, ad []byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, vformat.NewError(vformat.KindCryptoFailure, "vcrypto.Open", err)
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, vformat.NewError(vformat.KindCryptoFailure, "vcrypto.Open", err)
	}
	return plaintext, nil
}

// ContentID computes the stable identifier of a stored ciphertext blob:
// SHA-256 over the exact bytes that were sealed (ciphertext || tag). This
// lets the engine verify blob integrity without access to the key.
func ContentID(recordBody []byte) vformat.ContentID {
	return vformat.ContentID(sha256.Sum256(recordBody))
}
