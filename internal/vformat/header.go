package vformat

import "hash/crc32"

// FileHeaderFlagEmpty marks a freshly created vault that has never been
// committed to. vaultfile.Create does not set it: it writes the header with
// Flags 0.
const FileHeaderFlagEmpty uint8 = 1 << 0

// FileHeader is the fixed first block of a vault file.
type FileHeader struct {
	AccountID AccountID
	Flags     uint8
}

// Encode serializes the file header to its fixed on-disk size.
func (h FileHeader) Encode() []byte {
	e := NewEncoder(FileHeaderSize)
	e.WriteRaw([]byte(FileMagic))
	e.WriteU8(FormatVersion)
	e.WriteRaw(h.AccountID[:])
	e.WriteU8(h.Flags)
	e.WriteRaw(make([]byte, FileHeaderSize-4-1-AccountIDSize-1)) // reserved
	return e.Bytes()
}

// DecodeFileHeader parses and validates a file header. A short buffer or a
// magic mismatch is KindInvalidInput; a format version mismatch is
// KindUnsupportedVersion.
func DecodeFileHeader(b []byte) (FileHeader, error) {
	if len(b) < FileHeaderSize {
		return FileHeader{}, NewError(KindInvalidInput, "vformat.DecodeFileHeader", errTruncated)
	}
	c := NewCursor(b[:FileHeaderSize])
	magic, err := c.ReadExact(4)
	if err != nil {
		return FileHeader{}, err
	}
	if string(magic) != FileMagic {
		return FileHeader{}, NewError(KindInvalidInput, "vformat.DecodeFileHeader", errBadMagic)
	}
	ver, err := c.ReadU8()
	if err != nil {
		return FileHeader{}, err
	}
	if ver != FormatVersion {
		return FileHeader{}, NewError(KindUnsupportedVersion, "vformat.DecodeFileHeader", errBadVersion)
	}
	var h FileHeader
	acc, err := c.ReadExact(AccountIDSize)
	if err != nil {
		return FileHeader{}, err
	}
	copy(h.AccountID[:], acc)
	flags, err := c.ReadU8()
	if err != nil {
		return FileHeader{}, err
	}
	h.Flags = flags
	return h, nil
}

// Superblock is one of the two fixed-size commit-pointer slots. The slot
// with the greatest SequenceNumber among valid slots is authoritative.
type Superblock struct {
	SequenceNumber     uint64
	LastCommitOffset   uint64
	LastIndexContentID ContentID
	BodyHash           [HashSize]byte
}

// Encode serializes the superblock including its own trailing CRC32.
func (s Superblock) Encode() []byte {
	e := NewEncoder(SuperblockSize)
	e.WriteRaw([]byte(SuperblockMagic))
	e.WriteU8(FormatVersion)
	e.WriteRaw(make([]byte, 3)) // reserved
	e.WriteU64LE(s.SequenceNumber)
	e.WriteU64LE(s.LastCommitOffset)
	e.WriteRaw(s.LastIndexContentID[:])
	e.WriteRaw(s.BodyHash[:])
	crc := crc32.ChecksumIEEE(e.Bytes())
	e.WriteU32LE(crc)
	return e.Bytes()
}

// DecodeSuperblock parses and validates a superblock slot: magic, version,
// and its own CRC must all check out for the slot to be considered valid.
// An invalid slot is reported via the returned bool, not an error, since a
// torn slot from a crashed commit mid-write is an
// expected, non-fatal outcome — the engine falls back to the other slot.
func DecodeSuperblock(b []byte) (Superblock, bool) {
	if len(b) < SuperblockSize {
		return Superblock{}, false
	}
	b = b[:SuperblockSize]
	payload := b[:SuperblockSize-4]
	wantCRC := littleEndianU32(b[SuperblockSize-4:])
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return Superblock{}, false
	}
	c := NewCursor(b)
	magic, _ := c.ReadExact(4)
	if string(magic) != SuperblockMagic {
		return Superblock{}, false
	}
	ver, _ := c.ReadU8()
	if ver != FormatVersion {
		return Superblock{}, false
	}
	_, _ = c.ReadExact(3) // reserved
	var s Superblock
	s.SequenceNumber, _ = c.ReadU64LE()
	s.LastCommitOffset, _ = c.ReadU64LE()
	cid, _ := c.ReadExact(ContentIDSize)
	copy(s.LastIndexContentID[:], cid)
	bh, _ := c.ReadExact(HashSize)
	copy(s.BodyHash[:], bh)
	return s, true
}

func littleEndianU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
