package accountstate

import (
	"fmt"

	"worldid.dev/vault/internal/vformat"
)

// encode produces the plaintext sealed into the account state blob. Field
// order is fixed; version is always first so a future format can be
// recognized before the rest of the layout is parsed.
func encode(st *State) []byte {
	e := vformat.NewEncoder(4 + vformat.AccountIDSize + 32*4 + 8)
	e.WriteU32LE(st.Version)
	e.WriteRaw(st.AccountID[:])
	e.WriteRaw(st.DeviceID[:])
	e.WriteRaw(st.RootSecret[:])
	e.WriteRaw(st.IssuerBlindSeed[:])
	e.WriteRaw(st.SessionRSeed[:])
	e.WriteU64LE(uint64(st.CreatedAt))
	return e.Bytes()
}

func decode(b []byte) (*State, error) {
	c := vformat.NewCursor(b)
	version, err := c.ReadU32LE()
	if err != nil {
		return nil, corrupt(err)
	}
	accountIDBytes, err := c.ReadExact(vformat.AccountIDSize)
	if err != nil {
		return nil, corrupt(err)
	}
	deviceID, err := c.ReadExact(32)
	if err != nil {
		return nil, corrupt(err)
	}
	rootSecret, err := c.ReadExact(32)
	if err != nil {
		return nil, corrupt(err)
	}
	issuerBlindSeed, err := c.ReadExact(32)
	if err != nil {
		return nil, corrupt(err)
	}
	sessionRSeed, err := c.ReadExact(32)
	if err != nil {
		return nil, corrupt(err)
	}
	createdAt, err := c.ReadU64LE()
	if err != nil {
		return nil, corrupt(err)
	}

	var st State
	st.Version = version
	copy(st.AccountID[:], accountIDBytes)
	copy(st.DeviceID[:], deviceID)
	copy(st.RootSecret[:], rootSecret)
	copy(st.IssuerBlindSeed[:], issuerBlindSeed)
	copy(st.SessionRSeed[:], sessionRSeed)
	st.CreatedAt = int64(createdAt)
	return &st, nil
}

func corrupt(err error) error {
	return vformat.NewError(vformat.KindCorruptVault, "accountstate.decode", fmt.Errorf("truncated account state: %w", err))
}
