package platform

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// sealWithKEK and openWithKEK implement the shared AES-256-GCM envelope used
// by both dev DeviceKeystore adapters (FileKeystore, KeyringKeystore); only
// where the 32-byte KEK itself comes from differs between them.
func sealWithKEK(kek, associatedData, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keystore nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, associatedData)
	return append(nonce, ct...), nil
}

func openWithKEK(kek, associatedData, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	n := aead.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("keystore: ciphertext too short")
	}
	nonce, ct := ciphertext[:n], ciphertext[n:]
	pt, err := aead.Open(nil, nonce, ct, associatedData)
	if err != nil {
		return nil, fmt.Errorf("keystore open: %w", err)
	}
	return pt, nil
}

func newGCM(kek []byte) (cipher.AEAD, error) {
	if len(kek) != 32 {
		return nil, fmt.Errorf("keystore: kek must be 32 bytes, got %d", len(kek))
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("keystore aes: %w", err)
	}
	return cipher.NewGCM(block)
}
