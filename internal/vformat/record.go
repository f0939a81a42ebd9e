package vformat

import (
	"hash/crc32"
)

// RecordEnvelope is every record written to the append-only data region:
// magic, type, version, reserved, length-prefixed body, and a trailing
// CRC32 computed over (header || body).
type RecordEnvelope struct {
	Type RecordType
	Body []byte
}

// Encode serializes the envelope: header, then body, then a CRC32 over
// (header || body).
func (r RecordEnvelope) Encode() []byte {
	e := NewEncoder(RecordEnvelopeHeaderSize + len(r.Body) + RecordCRCSize)
	e.WriteRaw([]byte(RecordMagic))
	e.WriteU8(uint8(r.Type))
	e.WriteU8(RecordVersion)
	e.WriteU16LE(0) // reserved
	e.WriteU32LE(uint32(len(r.Body)))
	e.WriteRaw(r.Body)
	crc := crc32.ChecksumIEEE(e.Bytes())
	e.WriteU32LE(crc)
	return e.Bytes()
}

// DecodeRecord reads a single record envelope from b, validating magic,
// known type, current version, length fit, and CRC. It returns the number
// of bytes consumed on success.
//
// Any failure here must be interpreted by the caller
// according to position: at or below last_commit_offset it is CorruptVault
// (fatal); beyond it, it means "end of committed region" (not fatal).
func DecodeRecord(b []byte) (RecordEnvelope, int, error) {
	c := NewCursor(b)
	magic, err := c.ReadExact(4)
	if err != nil {
		return RecordEnvelope{}, 0, err
	}
	if string(magic) != RecordMagic {
		return RecordEnvelope{}, 0, NewError(KindCorruptVault, "vformat.DecodeRecord", errBadMagic)
	}
	typ, err := c.ReadU8()
	if err != nil {
		return RecordEnvelope{}, 0, err
	}
	if !RecordType(typ).Valid() {
		return RecordEnvelope{}, 0, NewError(KindCorruptVault, "vformat.DecodeRecord", errUnknownType)
	}
	ver, err := c.ReadU8()
	if err != nil {
		return RecordEnvelope{}, 0, err
	}
	if ver != RecordVersion {
		return RecordEnvelope{}, 0, NewError(KindCorruptVault, "vformat.DecodeRecord", errBadVersion)
	}
	if _, err := c.ReadU16LE(); err != nil { // reserved
		return RecordEnvelope{}, 0, err
	}
	length, err := c.ReadU32LE()
	if err != nil {
		return RecordEnvelope{}, 0, err
	}
	body, err := c.ReadExact(int(length))
	if err != nil {
		return RecordEnvelope{}, 0, err
	}
	headerAndBody := b[:RecordEnvelopeHeaderSize+int(length)]
	wantCRC, err := c.ReadU32LE()
	if err != nil {
		return RecordEnvelope{}, 0, err
	}
	gotCRC := crc32.ChecksumIEEE(headerAndBody)
	if gotCRC != wantCRC {
		return RecordEnvelope{}, 0, NewError(KindCorruptVault, "vformat.DecodeRecord", errBadCRC)
	}
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	return RecordEnvelope{Type: RecordType(typ), Body: bodyCopy}, c.Pos(), nil
}

type sentinel string

func (s sentinel) Error() string { return string(s) }

const (
	errBadMagic    = sentinel("vformat: bad record magic")
	errUnknownType = sentinel("vformat: unknown record type")
	errBadVersion  = sentinel("vformat: unsupported record version")
	errBadCRC      = sentinel("vformat: record crc mismatch")
)
