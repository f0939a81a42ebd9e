package vformat

import "testing"

func TestRecordEnvelope_RoundTrip(t *testing.T) {
	rec := RecordEnvelope{Type: RecordTypeEncryptedBlob, Body: []byte("hello world")}
	encoded := rec.Encode()

	got, consumed, err := DecodeRecord(encoded)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed = %d, want %d", consumed, len(encoded))
	}
	if got.Type != rec.Type {
		t.Fatalf("Type = %v, want %v", got.Type, rec.Type)
	}
	if string(got.Body) != string(rec.Body) {
		t.Fatalf("Body = %q, want %q", got.Body, rec.Body)
	}
}

func TestRecordEnvelope_EmptyBody(t *testing.T) {
	rec := RecordEnvelope{Type: RecordTypeTxnBegin, Body: nil}
	encoded := rec.Encode()
	got, _, err := DecodeRecord(encoded)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if len(got.Body) != 0 {
		t.Fatalf("Body = %v, want empty", got.Body)
	}
}

func TestDecodeRecord_BadMagic(t *testing.T) {
	rec := RecordEnvelope{Type: RecordTypeEncryptedBlob, Body: []byte("x")}
	encoded := rec.Encode()
	encoded[0] ^= 0xFF
	if _, _, err := DecodeRecord(encoded); err == nil {
		t.Fatalf("expected error for corrupted magic")
	} else if kind, ok := KindOf(err); !ok || kind != KindCorruptVault {
		t.Fatalf("kind = %v, ok=%v, want CorruptVault", kind, ok)
	}
}

func TestDecodeRecord_UnknownType(t *testing.T) {
	rec := RecordEnvelope{Type: RecordType(99), Body: []byte("x")}
	encoded := rec.Encode()
	if _, _, err := DecodeRecord(encoded); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestDecodeRecord_CRCTamper(t *testing.T) {
	rec := RecordEnvelope{Type: RecordTypeEncryptedBlob, Body: []byte("sensitive payload")}
	encoded := rec.Encode()

	for i := range encoded {
		tampered := make([]byte, len(encoded))
		copy(tampered, encoded)
		tampered[i] ^= 0x01
		if _, _, err := DecodeRecord(tampered); err == nil {
			t.Fatalf("byte %d: expected tamper to be detected", i)
		}
	}
}

func TestDecodeRecord_Truncated(t *testing.T) {
	rec := RecordEnvelope{Type: RecordTypeEncryptedBlob, Body: []byte("123456789")}
	encoded := rec.Encode()
	for n := 0; n < len(encoded); n++ {
		if _, _, err := DecodeRecord(encoded[:n]); err == nil {
			t.Fatalf("prefix length %d: expected truncation error", n)
		}
	}
}
