package vault

import (
	"path/filepath"
	"testing"

	"worldid.dev/vault/internal/platform"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	root := t.TempDir()
	keystore, err := platform.NewFileKeystore(filepath.Join(root, "device.kek"))
	if err != nil {
		t.Fatalf("NewFileKeystore: %v", err)
	}
	opts := DefaultOptions(root)
	opts.Keystore = keystore
	return opts
}

func openTestStore(t *testing.T) *WorldIdStore {
	t.Helper()
	s, err := Open(testOptions(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}
