package vformat

import (
	"encoding/binary"
	"hash/crc32"
)

// TransferEnvelope is the self-describing wire form used by export/import:
// a format version, the origin account id, and the credential payload
// fields needed to reconstruct a CredentialRecord on the receiving side.
// It is validated with the same magic/version/CRC discipline as a vault
// record, under TransferMagic rather than RecordMagic.
type TransferEnvelope struct {
	FormatVersion     uint8
	OriginAccountID   AccountID
	CredentialID      CredentialID
	IssuerSchemaID    string
	GenesisIssuedAt   int64
	ExpiresAt         int64
	CredentialBlob    []byte
	AssociatedData    []byte // empty if none
	CreatedAt         int64
}

func (t TransferEnvelope) Encode() []byte {
	e := NewEncoder(128 + len(t.CredentialBlob) + len(t.AssociatedData))
	e.WriteRaw([]byte(TransferMagic))
	e.WriteU8(t.FormatVersion)
	e.WriteRaw(t.OriginAccountID[:])
	e.WriteRaw(t.CredentialID[:])
	e.WriteU16LE(uint16(len(t.IssuerSchemaID)))
	e.WriteRaw([]byte(t.IssuerSchemaID))
	e.WriteU64LE(uint64(t.GenesisIssuedAt))
	e.WriteU64LE(uint64(t.ExpiresAt))
	e.WriteU32LE(uint32(len(t.CredentialBlob)))
	e.WriteRaw(t.CredentialBlob)
	e.WriteU32LE(uint32(len(t.AssociatedData)))
	e.WriteRaw(t.AssociatedData)
	e.WriteU64LE(uint64(t.CreatedAt))

	body := e.Bytes()
	crc := crc32.ChecksumIEEE(body)
	out := make([]byte, 0, len(body)+RecordCRCSize)
	out = append(out, body...)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	out = append(out, crcBuf[:]...)
	return out
}

func DecodeTransferEnvelope(b []byte) (TransferEnvelope, error) {
	if len(b) < len(TransferMagic)+RecordCRCSize {
		return TransferEnvelope{}, NewError(KindInvalidInput, "vformat.DecodeTransferEnvelope", errTruncated)
	}
	body := b[:len(b)-RecordCRCSize]
	wantCRC := binary.LittleEndian.Uint32(b[len(b)-RecordCRCSize:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return TransferEnvelope{}, NewError(KindCorruptVault, "vformat.DecodeTransferEnvelope", errBadCRC)
	}

	c := NewCursor(body)
	magic, err := c.ReadExact(len(TransferMagic))
	if err != nil {
		return TransferEnvelope{}, err
	}
	if string(magic) != TransferMagic {
		return TransferEnvelope{}, NewError(KindInvalidInput, "vformat.DecodeTransferEnvelope", errBadMagic)
	}
	version, err := c.ReadU8()
	if err != nil {
		return TransferEnvelope{}, err
	}
	accountIDBytes, err := c.ReadExact(AccountIDSize)
	if err != nil {
		return TransferEnvelope{}, err
	}
	credIDBytes, err := c.ReadExact(CredentialIDSize)
	if err != nil {
		return TransferEnvelope{}, err
	}
	schemaLen, err := c.ReadU16LE()
	if err != nil {
		return TransferEnvelope{}, err
	}
	schemaBytes, err := c.ReadExact(int(schemaLen))
	if err != nil {
		return TransferEnvelope{}, err
	}
	genesisIssuedAt, err := c.ReadU64LE()
	if err != nil {
		return TransferEnvelope{}, err
	}
	expiresAt, err := c.ReadU64LE()
	if err != nil {
		return TransferEnvelope{}, err
	}
	blobLen, err := c.ReadU32LE()
	if err != nil {
		return TransferEnvelope{}, err
	}
	blob, err := c.ReadExact(int(blobLen))
	if err != nil {
		return TransferEnvelope{}, err
	}
	adLen, err := c.ReadU32LE()
	if err != nil {
		return TransferEnvelope{}, err
	}
	ad, err := c.ReadExact(int(adLen))
	if err != nil {
		return TransferEnvelope{}, err
	}
	createdAt, err := c.ReadU64LE()
	if err != nil {
		return TransferEnvelope{}, err
	}

	var t TransferEnvelope
	t.FormatVersion = version
	copy(t.OriginAccountID[:], accountIDBytes)
	copy(t.CredentialID[:], credIDBytes)
	t.IssuerSchemaID = string(schemaBytes)
	t.GenesisIssuedAt = int64(genesisIssuedAt)
	t.ExpiresAt = int64(expiresAt)
	t.CredentialBlob = append([]byte(nil), blob...)
	t.AssociatedData = append([]byte(nil), ad...)
	t.CreatedAt = int64(createdAt)
	return t, nil
}
