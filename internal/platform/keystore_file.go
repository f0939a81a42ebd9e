package platform

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// FileKeystore is a dev/reference DeviceKeystore. It is NOT a secure
// element: the device key lives in a plain file on disk. It exists only to
// unblock local development and tests; production deployments must supply
// a real platform.DeviceKeystore backed by a secure element or HSM.
type FileKeystore struct {
	kekPath string
}

// NewFileKeystore opens (creating if absent) a 32-byte device KEK stored at
// kekPath.
func NewFileKeystore(kekPath string) (*FileKeystore, error) {
	if err := ensureKEK(kekPath); err != nil {
		return nil, err
	}
	return &FileKeystore{kekPath: kekPath}, nil
}

func ensureKEK(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("keystore mkdir: %w", err)
	}
	kek := make([]byte, 32)
	if _, err := rand.Read(kek); err != nil {
		return fmt.Errorf("keystore generate kek: %w", err)
	}
	return os.WriteFile(path, kek, 0o600) // #nosec G304 -- path is operator-controlled.
}

func (k *FileKeystore) kek() ([]byte, error) {
	b, err := os.ReadFile(k.kekPath) // #nosec G304 -- path is operator-controlled.
	if err != nil {
		return nil, fmt.Errorf("keystore read kek: %w", err)
	}
	return b, nil
}

// Seal implements platform.DeviceKeystore.
func (k *FileKeystore) Seal(associatedData, plaintext []byte) ([]byte, error) {
	kek, err := k.kek()
	if err != nil {
		return nil, err
	}
	return sealWithKEK(kek, associatedData, plaintext)
}

// Open implements platform.DeviceKeystore.
func (k *FileKeystore) Open(associatedData, ciphertext []byte) ([]byte, error) {
	kek, err := k.kek()
	if err != nil {
		return nil, err
	}
	return openWithKEK(kek, associatedData, ciphertext)
}
