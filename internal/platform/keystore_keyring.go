package platform

import (
	"crypto/rand"
	"fmt"

	"github.com/99designs/keyring"
)

// KeyringKeystore is a dev/reference DeviceKeystore backed by the OS
// credential store (macOS Keychain, Secret Service, Windows Credential
// Manager, or an encrypted-file fallback), via github.com/99designs/keyring.
// It is the adapter cmd/vaultctl uses by default on a developer machine;
// like FileKeystore it is not a secure-element binding and is not a
// substitute for a real platform keystore in production.
type KeyringKeystore struct {
	ring keyring.Keyring
	item string
}

// NewKeyringKeystore opens (or creates) ring under serviceName, using item
// as the key under which the 32-byte device KEK is stored.
func NewKeyringKeystore(serviceName, item string) (*KeyringKeystore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
	})
	if err != nil {
		return nil, fmt.Errorf("keyring open: %w", err)
	}
	k := &KeyringKeystore{ring: ring, item: item}
	if err := k.ensureKEK(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *KeyringKeystore) ensureKEK() error {
	if _, err := k.ring.Get(k.item); err == nil {
		return nil
	}
	kek := make([]byte, 32)
	if _, err := rand.Read(kek); err != nil {
		return fmt.Errorf("keyring generate kek: %w", err)
	}
	return k.ring.Set(keyring.Item{
		Key:  k.item,
		Data: kek,
	})
}

func (k *KeyringKeystore) kek() ([]byte, error) {
	item, err := k.ring.Get(k.item)
	if err != nil {
		return nil, fmt.Errorf("keyring read kek: %w", err)
	}
	return item.Data, nil
}

// Seal implements platform.DeviceKeystore.
func (k *KeyringKeystore) Seal(associatedData, plaintext []byte) ([]byte, error) {
	kek, err := k.kek()
	if err != nil {
		return nil, err
	}
	return sealWithKEK(kek, associatedData, plaintext)
}

// Open implements platform.DeviceKeystore.
func (k *KeyringKeystore) Open(associatedData, ciphertext []byte) ([]byte, error) {
	kek, err := k.kek()
	if err != nil {
		return nil, err
	}
	return openWithKEK(kek, associatedData, ciphertext)
}
