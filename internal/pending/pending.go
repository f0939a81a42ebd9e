// Package pending implements the device-sealed record of in-flight
// nullifier disclosures. Its job is narrow: make sure the same credential
// can never have two concurrent disclosures against the same external
// nullifier, even across a crash between begin_disclosure and confirm.
package pending

import (
	"crypto/rand"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"worldid.dev/vault/internal/platform"
	"worldid.dev/vault/internal/vformat"
)

const fileName = "pending.bin"

// DefaultRetention is how long a terminal (Confirmed) entry is kept before
// GC removes it.
const DefaultRetention = 72 * time.Hour

// ID identifies one pending disclosure action.
type ID [16]byte

func (id ID) String() string { return fmt.Sprintf("%x", id[:]) }

func newID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return id, vformat.NewError(vformat.KindCryptoFailure, "pending.newID", err)
	}
	return id, nil
}

// Entry is one disclosure action tracked across its lifecycle.
type Entry struct {
	ID                ID
	CredentialID      vformat.CredentialID
	ExternalNullifier []byte
	NullifierHash     [32]byte
	CreatedAt         int64
	Stage             vformat.PendingStage
}

func pairKey(credentialID vformat.CredentialID, externalNullifier []byte) string {
	return credentialID.String() + ":" + string(externalNullifier)
}

// Store is the live, in-memory set of pending disclosure entries for one
// account.
type Store struct {
	mu      sync.RWMutex
	entries map[ID]Entry
}

// Path returns the atomic-blob-store path for an account's pending store.
func Path(root string, accountID vformat.AccountID) string {
	return filepath.Join(root, accountID.String(), fileName)
}

// Open loads the pending store for an account, or returns an empty one if
// none has been persisted yet.
func Open(store platform.AtomicBlobStore, keystore platform.DeviceKeystore, root string, accountID vformat.AccountID) (*Store, error) {
	path := Path(root, accountID)
	sealed, ok, err := store.Read(path)
	if err != nil {
		return nil, vformat.NewError(vformat.KindStorageIO, "pending.Open", err)
	}
	if !ok {
		return &Store{entries: make(map[ID]Entry)}, nil
	}
	plaintext, err := keystore.Open(vformat.LabelPendingStore, sealed)
	if err != nil {
		return nil, vformat.NewError(vformat.KindKeyUnavailable, "pending.Open", err)
	}
	entries, err := decode(plaintext)
	if err != nil {
		return nil, err
	}
	return &Store{entries: entries}, nil
}

// Save seals and atomically overwrites the persisted pending store.
func (s *Store) Save(store platform.AtomicBlobStore, keystore platform.DeviceKeystore, root string, accountID vformat.AccountID) error {
	s.mu.RLock()
	plaintext := encode(s.entries)
	s.mu.RUnlock()

	sealed, err := keystore.Seal(vformat.LabelPendingStore, plaintext)
	if err != nil {
		return vformat.NewError(vformat.KindKeyUnavailable, "pending.Store.Save", err)
	}
	if err := store.WriteAtomic(Path(root, accountID), sealed); err != nil {
		return vformat.NewError(vformat.KindStorageIO, "pending.Store.Save", err)
	}
	return nil
}

// BeginDisclosure records the start of a new disclosure. It fails with
// DuplicateDisclosure if this (credential id, external nullifier) pair
// already has a non-terminal entry.
func (s *Store) BeginDisclosure(credentialID vformat.CredentialID, externalNullifier []byte, nullifierHash [32]byte, now int64) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(credentialID, externalNullifier)
	for _, e := range s.entries {
		if !e.Stage.Terminal() && pairKey(e.CredentialID, e.ExternalNullifier) == key {
			return ID{}, vformat.NewError(vformat.KindDuplicateDisclosure, "pending.Store.BeginDisclosure",
				fmt.Errorf("credential %s already has a non-terminal disclosure for this external nullifier", credentialID))
		}
	}

	id, err := newID()
	if err != nil {
		return ID{}, err
	}
	s.entries[id] = Entry{
		ID:                id,
		CredentialID:      credentialID,
		ExternalNullifier: append([]byte(nil), externalNullifier...),
		NullifierHash:     nullifierHash,
		CreatedAt:         now,
		Stage:             vformat.PendingStageDisclosing,
	}
	return id, nil
}

// MarkPending transitions an entry from Disclosing to Pending.
func (s *Store) MarkPending(id ID) error {
	return s.transition(id, vformat.PendingStagePending)
}

// Confirm transitions a non-terminal entry to its terminal Confirmed stage.
func (s *Store) Confirm(id ID) error {
	return s.transition(id, vformat.PendingStageConfirmed)
}

func (s *Store) transition(id ID, next vformat.PendingStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return vformat.NewError(vformat.KindNotFound, "pending.Store.transition", fmt.Errorf("pending action %s not found", id))
	}
	if e.Stage.Terminal() || (next == vformat.PendingStagePending && e.Stage != vformat.PendingStageDisclosing) {
		return vformat.NewError(vformat.KindInvalidInput, "pending.Store.transition",
			fmt.Errorf("pending action %s cannot move from %s to %s", id, e.Stage, next))
	}
	e.Stage = next
	s.entries[id] = e
	return nil
}

// ListUnfinished returns every non-terminal entry, sorted by CreatedAt then
// ID for a stable order across calls.
func (s *Store) ListUnfinished() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Stage.Terminal() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return string(out[i].ID[:]) < string(out[j].ID[:])
	})
	return out
}

// GC removes terminal entries older than DefaultRetention relative to now
// (unix nanoseconds), returning the number removed.
func (s *Store) GC(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now - DefaultRetention.Nanoseconds()
	removed := 0
	for id, e := range s.entries {
		if e.Stage.Terminal() && e.CreatedAt < cutoff {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
