package platform

import "os"

// writeStaleLockFile writes a lock file at path (creating it, since Release
// removed the previous one) holding a pid that cannot belong to a live
// process, simulating a crash that left the lock file behind.
func writeStaleLockFile(path string) error {
	return os.WriteFile(path, []byte("999999999\n"), 0o600)
}
