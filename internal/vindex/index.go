// Package vindex implements the in-memory VaultIndex: the map from
// CredentialId to its current encrypted-blob pointer plus metadata, and its
// deterministic serialized form.
package vindex

import (
	"sort"
	"sync"

	"worldid.dev/vault/internal/vformat"
)

// Entry is one VaultIndex record.
type Entry struct {
	CredentialID         vformat.CredentialID
	Blob                 vformat.BlobPointer
	AssociatedData       *vformat.BlobPointer // nil if no associated data
	IssuerSchemaID       string
	Status               vformat.CredentialStatus
	GenesisIssuedAt      int64
	ExpiresAt            int64 // 0 means no expiry
	CreatedAt            int64
	UpdatedAt            int64
	AssociatedDataDigest [32]byte // zero if AssociatedData == nil
}

// Index is the live, in-memory VaultIndex. Each method takes the index's
// own lock, but a sequence of calls is not atomic; the vault file engine
// serializes mutation under the account write lock / read-snapshot
// discipline.
type Index struct {
	mu      sync.RWMutex
	entries map[vformat.CredentialID]Entry
}

// New creates an empty index.
func New() *Index {
	return &Index{entries: make(map[vformat.CredentialID]Entry)}
}

// Clone returns a deep copy suitable for staging mutations during a
// transaction without affecting the live, committed index.
func (idx *Index) Clone() *Index {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := New()
	for k, v := range idx.entries {
		out.entries[k] = v
	}
	return out
}

func (idx *Index) Get(id vformat.CredentialID) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[id]
	return e, ok
}

func (idx *Index) Insert(e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[e.CredentialID] = e
}

// UpdateMetadata applies fn to the entry for id if present, returning false
// if no such entry exists.
func (idx *Index) UpdateMetadata(id vformat.CredentialID, fn func(*Entry)) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[id]
	if !ok {
		return false
	}
	fn(&e)
	idx.entries[id] = e
	return true
}

func (idx *Index) Remove(id vformat.CredentialID) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.entries[id]; !ok {
		return false
	}
	delete(idx.entries, id)
	return true
}

// Filter narrows List results. A nil/zero field means unconstrained.
type Filter struct {
	Status         *vformat.CredentialStatus
	IssuerSchemaID *string
	ExpiresBefore  *int64
	ExpiresAfter   *int64
}

// Matches reports whether e satisfies every constraint in f. Exported so
// callers that narrow candidates some other way (e.g. a secondary index)
// can still apply the full filter before accepting a match.
func (f Filter) Matches(e Entry) bool {
	return f.matches(e)
}

func (f Filter) matches(e Entry) bool {
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.IssuerSchemaID != nil && e.IssuerSchemaID != *f.IssuerSchemaID {
		return false
	}
	if f.ExpiresBefore != nil && (e.ExpiresAt == 0 || e.ExpiresAt >= *f.ExpiresBefore) {
		return false
	}
	if f.ExpiresAfter != nil && e.ExpiresAt < *f.ExpiresAfter {
		return false
	}
	return true
}

// List returns every entry matching filter, sorted by CredentialID for a
// stable, reproducible ordering.
func (idx *Index) List(filter Filter) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CredentialID.Less(out[j].CredentialID)
	})
	return out
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// SortedIDs returns every CredentialID present, sorted.
func (idx *Index) SortedIDs() []vformat.CredentialID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]vformat.CredentialID, 0, len(idx.entries))
	for id := range idx.entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
