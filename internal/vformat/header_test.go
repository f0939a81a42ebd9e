package vformat

import "testing"

func TestFileHeader_RoundTrip(t *testing.T) {
	var accountID AccountID
	copy(accountID[:], []byte("0123456789abcdef"))
	h := FileHeader{AccountID: accountID, Flags: FileHeaderFlagEmpty}
	encoded := h.Encode()
	if len(encoded) != FileHeaderSize {
		t.Fatalf("encoded length = %d, want %d", len(encoded), FileHeaderSize)
	}
	got, err := DecodeFileHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeFileHeader: %v", err)
	}
	if got.AccountID != h.AccountID || got.Flags != h.Flags {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestDecodeFileHeader_BadMagic(t *testing.T) {
	h := FileHeader{}
	encoded := h.Encode()
	encoded[0] ^= 0xFF
	if _, err := DecodeFileHeader(encoded); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeFileHeader_Truncated(t *testing.T) {
	if _, err := DecodeFileHeader(make([]byte, FileHeaderSize-1)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSuperblock_RoundTrip(t *testing.T) {
	sb := Superblock{
		SequenceNumber:   7,
		LastCommitOffset: 12345,
	}
	sb.LastIndexContentID[0] = 0xAB
	sb.BodyHash[0] = 0xCD
	encoded := sb.Encode()
	if len(encoded) != SuperblockSize {
		t.Fatalf("encoded length = %d, want %d", len(encoded), SuperblockSize)
	}
	got, ok := DecodeSuperblock(encoded)
	if !ok {
		t.Fatalf("DecodeSuperblock reported invalid")
	}
	if got != sb {
		t.Fatalf("got %+v, want %+v", got, sb)
	}
}

func TestDecodeSuperblock_ZeroedIsInvalid(t *testing.T) {
	if _, ok := DecodeSuperblock(make([]byte, SuperblockSize)); ok {
		t.Fatalf("expected zeroed superblock to be invalid")
	}
}

func TestDecodeSuperblock_CRCTamper(t *testing.T) {
	sb := Superblock{SequenceNumber: 1, LastCommitOffset: 1}
	encoded := sb.Encode()
	for i := range encoded {
		tampered := make([]byte, len(encoded))
		copy(tampered, encoded)
		tampered[i] ^= 0x01
		if _, ok := DecodeSuperblock(tampered); ok {
			t.Fatalf("byte %d: expected tamper to be detected", i)
		}
	}
}

func TestDecodeSuperblock_TooShort(t *testing.T) {
	if _, ok := DecodeSuperblock(make([]byte, SuperblockSize-1)); ok {
		t.Fatalf("expected short buffer to be invalid")
	}
}
