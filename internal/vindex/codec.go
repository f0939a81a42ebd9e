package vindex

import (
	"worldid.dev/vault/internal/vformat"
)

// Serialize produces the deterministic plaintext form of the index: a
// count, followed by entries sorted by CredentialID, each length-prefixed.
// Byte-identical input always produces byte-identical output, which is
// required for the index snapshot's
// ContentID to be stable across re-commits of an unchanged logical index.
func (idx *Index) Serialize() []byte {
	ids := idx.SortedIDs()
	e := vformat.NewEncoder(64 * (len(ids) + 1))
	e.WriteU32LE(uint32(len(ids)))
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, id := range ids {
		entry := idx.entries[id]
		body := encodeEntry(entry)
		e.WriteU32LE(uint32(len(body)))
		e.WriteRaw(body)
	}
	return e.Bytes()
}

func encodeEntry(e Entry) []byte {
	body := vformat.NewEncoder(128)
	body.WriteRaw(e.CredentialID[:])
	vformat.EncodeBlobPointer(body, e.Blob)
	if e.AssociatedData != nil {
		body.WriteU8(1)
		vformat.EncodeBlobPointer(body, *e.AssociatedData)
	} else {
		body.WriteU8(0)
	}
	schema := []byte(e.IssuerSchemaID)
	body.WriteU16LE(uint16(len(schema)))
	body.WriteRaw(schema)
	body.WriteU8(uint8(e.Status))
	body.WriteU64LE(uint64(e.GenesisIssuedAt))
	body.WriteU64LE(uint64(e.ExpiresAt))
	body.WriteU64LE(uint64(e.CreatedAt))
	body.WriteU64LE(uint64(e.UpdatedAt))
	body.WriteRaw(e.AssociatedDataDigest[:])
	return body.Bytes()
}

// Deserialize parses the plaintext form produced by Serialize. Any
// malformed entry is reported as vformat.KindCorruptVault — the index
// snapshot lives inside the committed region, so any failure decoding it is
// fatal, never "end of committed region".
func Deserialize(plaintext []byte) (*Index, error) {
	c := vformat.NewCursor(plaintext)
	count, err := c.ReadU32LE()
	if err != nil {
		return nil, vformat.NewError(vformat.KindCorruptVault, "vindex.Deserialize", err)
	}
	idx := New()
	for i := uint32(0); i < count; i++ {
		length, err := c.ReadU32LE()
		if err != nil {
			return nil, vformat.NewError(vformat.KindCorruptVault, "vindex.Deserialize", err)
		}
		body, err := c.ReadExact(int(length))
		if err != nil {
			return nil, vformat.NewError(vformat.KindCorruptVault, "vindex.Deserialize", err)
		}
		entry, err := decodeEntry(body)
		if err != nil {
			return nil, vformat.NewError(vformat.KindCorruptVault, "vindex.Deserialize", err)
		}
		idx.entries[entry.CredentialID] = entry
	}
	return idx, nil
}

func decodeEntry(body []byte) (Entry, error) {
	c := vformat.NewCursor(body)
	var e Entry
	idBytes, err := c.ReadExact(vformat.CredentialIDSize)
	if err != nil {
		return e, err
	}
	copy(e.CredentialID[:], idBytes)
	blob, err := vformat.DecodeBlobPointer(c)
	if err != nil {
		return e, err
	}
	e.Blob = blob
	hasAD, err := c.ReadU8()
	if err != nil {
		return e, err
	}
	if hasAD == 1 {
		ad, err := vformat.DecodeBlobPointer(c)
		if err != nil {
			return e, err
		}
		e.AssociatedData = &ad
	}
	schemaLen, err := c.ReadU16LE()
	if err != nil {
		return e, err
	}
	schema, err := c.ReadExact(int(schemaLen))
	if err != nil {
		return e, err
	}
	e.IssuerSchemaID = string(schema)
	status, err := c.ReadU8()
	if err != nil {
		return e, err
	}
	e.Status = vformat.CredentialStatus(status)
	genesis, err := c.ReadU64LE()
	if err != nil {
		return e, err
	}
	e.GenesisIssuedAt = int64(genesis)
	expires, err := c.ReadU64LE()
	if err != nil {
		return e, err
	}
	e.ExpiresAt = int64(expires)
	created, err := c.ReadU64LE()
	if err != nil {
		return e, err
	}
	e.CreatedAt = int64(created)
	updated, err := c.ReadU64LE()
	if err != nil {
		return e, err
	}
	e.UpdatedAt = int64(updated)
	digest, err := c.ReadExact(32)
	if err != nil {
		return e, err
	}
	copy(e.AssociatedDataDigest[:], digest)
	return e, nil
}
