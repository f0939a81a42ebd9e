package pending

import (
	"fmt"

	"worldid.dev/vault/internal/vformat"
)

// encode serializes the entry set as a length-prefixed sequence, sorted by
// ID for a deterministic plaintext (not load-bearing for content-id
// stability the way the vault index is, but cheap to keep anyway).
func encode(entries map[ID]Entry) []byte {
	ids := make([]ID, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sortIDs(ids)

	e := vformat.NewEncoder(64 * len(ids))
	e.WriteU32LE(uint32(len(ids)))
	for _, id := range ids {
		entry := entries[id]
		body := encodeEntry(entry)
		e.WriteU32LE(uint32(len(body)))
		e.WriteRaw(body)
	}
	return e.Bytes()
}

func sortIDs(ids []ID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && string(ids[j-1][:]) > string(ids[j][:]); j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

func encodeEntry(entry Entry) []byte {
	e := vformat.NewEncoder(16 + vformat.CredentialIDSize + 2 + len(entry.ExternalNullifier) + 32 + 8 + 1)
	e.WriteRaw(entry.ID[:])
	e.WriteRaw(entry.CredentialID[:])
	e.WriteU16LE(uint16(len(entry.ExternalNullifier)))
	e.WriteRaw(entry.ExternalNullifier)
	e.WriteRaw(entry.NullifierHash[:])
	e.WriteU64LE(uint64(entry.CreatedAt))
	e.WriteU8(uint8(entry.Stage))
	return e.Bytes()
}

func decode(plaintext []byte) (map[ID]Entry, error) {
	c := vformat.NewCursor(plaintext)
	count, err := c.ReadU32LE()
	if err != nil {
		return nil, corrupt(err)
	}
	entries := make(map[ID]Entry, count)
	for i := uint32(0); i < count; i++ {
		length, err := c.ReadU32LE()
		if err != nil {
			return nil, corrupt(err)
		}
		body, err := c.ReadExact(int(length))
		if err != nil {
			return nil, corrupt(err)
		}
		entry, err := decodeEntry(body)
		if err != nil {
			return nil, err
		}
		entries[entry.ID] = entry
	}
	return entries, nil
}

func decodeEntry(body []byte) (Entry, error) {
	c := vformat.NewCursor(body)
	idBytes, err := c.ReadExact(16)
	if err != nil {
		return Entry{}, corrupt(err)
	}
	credBytes, err := c.ReadExact(vformat.CredentialIDSize)
	if err != nil {
		return Entry{}, corrupt(err)
	}
	enLen, err := c.ReadU16LE()
	if err != nil {
		return Entry{}, corrupt(err)
	}
	en, err := c.ReadExact(int(enLen))
	if err != nil {
		return Entry{}, corrupt(err)
	}
	hash, err := c.ReadExact(32)
	if err != nil {
		return Entry{}, corrupt(err)
	}
	createdAt, err := c.ReadU64LE()
	if err != nil {
		return Entry{}, corrupt(err)
	}
	stage, err := c.ReadU8()
	if err != nil {
		return Entry{}, corrupt(err)
	}
	if !vformat.PendingStage(stage).Valid() {
		return Entry{}, vformat.NewError(vformat.KindCorruptVault, "pending.decodeEntry", fmt.Errorf("unknown pending stage %d", stage))
	}

	var entry Entry
	copy(entry.ID[:], idBytes)
	copy(entry.CredentialID[:], credBytes)
	entry.ExternalNullifier = append([]byte(nil), en...)
	copy(entry.NullifierHash[:], hash)
	entry.CreatedAt = int64(createdAt)
	entry.Stage = vformat.PendingStage(stage)
	return entry, nil
}

func corrupt(err error) error {
	return vformat.NewError(vformat.KindCorruptVault, "pending.decode", fmt.Errorf("truncated pending store: %w", err))
}
