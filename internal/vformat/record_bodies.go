package vformat

import "time"

// TxnBegin marks the start of a transaction's scratch region.
type TxnBegin struct {
	TxnID     [TxnIDSize]byte
	Timestamp int64 // unix nanos
}

func (t TxnBegin) Encode() []byte {
	e := NewEncoder(TxnIDSize + 8)
	e.WriteRaw(t.TxnID[:])
	e.WriteU64LE(uint64(t.Timestamp))
	return e.Bytes()
}

func DecodeTxnBegin(body []byte) (TxnBegin, error) {
	c := NewCursor(body)
	var t TxnBegin
	id, err := c.ReadExact(TxnIDSize)
	if err != nil {
		return t, err
	}
	copy(t.TxnID[:], id)
	ts, err := c.ReadU64LE()
	if err != nil {
		return t, err
	}
	t.Timestamp = int64(ts)
	return t, nil
}

// EncryptedBlob carries a sealed credential or associated-data blob.
type EncryptedBlob struct {
	Kind       BlobKind
	Nonce      [NonceSize]byte
	Ciphertext []byte // includes the trailing AEAD tag
}

func (b EncryptedBlob) Encode() []byte {
	e := NewEncoder(1 + NonceSize + 4 + len(b.Ciphertext))
	e.WriteU8(uint8(b.Kind))
	e.WriteRaw(b.Nonce[:])
	e.WriteU32LE(uint32(len(b.Ciphertext)))
	e.WriteRaw(b.Ciphertext)
	return e.Bytes()
}

func DecodeEncryptedBlob(body []byte) (EncryptedBlob, error) {
	c := NewCursor(body)
	var b EncryptedBlob
	kind, err := c.ReadU8()
	if err != nil {
		return b, err
	}
	if !BlobKind(kind).Valid() {
		return b, NewError(KindCorruptVault, "vformat.DecodeEncryptedBlob", sentinel("unknown blob kind"))
	}
	b.Kind = BlobKind(kind)
	nonce, err := c.ReadExact(NonceSize)
	if err != nil {
		return b, err
	}
	copy(b.Nonce[:], nonce)
	n, err := c.ReadU32LE()
	if err != nil {
		return b, err
	}
	ct, err := c.ReadExact(int(n))
	if err != nil {
		return b, err
	}
	b.Ciphertext = append([]byte(nil), ct...)
	return b, nil
}

// EncryptedIndexSnapshot carries the sealed, fully re-serialized VaultIndex
// written on every commit.
type EncryptedIndexSnapshot struct {
	Nonce            [NonceSize]byte
	Ciphertext       []byte
	PrevCommitOffset uint64
}

func (s EncryptedIndexSnapshot) Encode() []byte {
	e := NewEncoder(NonceSize + 4 + len(s.Ciphertext) + 8)
	e.WriteRaw(s.Nonce[:])
	e.WriteU32LE(uint32(len(s.Ciphertext)))
	e.WriteRaw(s.Ciphertext)
	e.WriteU64LE(s.PrevCommitOffset)
	return e.Bytes()
}

func DecodeEncryptedIndexSnapshot(body []byte) (EncryptedIndexSnapshot, error) {
	c := NewCursor(body)
	var s EncryptedIndexSnapshot
	nonce, err := c.ReadExact(NonceSize)
	if err != nil {
		return s, err
	}
	copy(s.Nonce[:], nonce)
	n, err := c.ReadU32LE()
	if err != nil {
		return s, err
	}
	ct, err := c.ReadExact(int(n))
	if err != nil {
		return s, err
	}
	s.Ciphertext = append([]byte(nil), ct...)
	prev, err := c.ReadU64LE()
	if err != nil {
		return s, err
	}
	s.PrevCommitOffset = prev
	return s, nil
}

// TxnCommit finalizes a transaction: it names the committed index snapshot
// and a rolling hash over every record body written since TxnBegin.
type TxnCommit struct {
	TxnID         [TxnIDSize]byte
	IndexContentID ContentID
	BodyHash      [HashSize]byte
}

func (c TxnCommit) Encode() []byte {
	e := NewEncoder(TxnIDSize + ContentIDSize + HashSize)
	e.WriteRaw(c.TxnID[:])
	e.WriteRaw(c.IndexContentID[:])
	e.WriteRaw(c.BodyHash[:])
	return e.Bytes()
}

func DecodeTxnCommit(body []byte) (TxnCommit, error) {
	c := NewCursor(body)
	var t TxnCommit
	id, err := c.ReadExact(TxnIDSize)
	if err != nil {
		return t, err
	}
	copy(t.TxnID[:], id)
	cid, err := c.ReadExact(ContentIDSize)
	if err != nil {
		return t, err
	}
	copy(t.IndexContentID[:], cid)
	bh, err := c.ReadExact(HashSize)
	if err != nil {
		return t, err
	}
	copy(t.BodyHash[:], bh)
	return t, nil
}

// NowNanos returns the current wall-clock time as unix nanoseconds, the
// timestamp representation used throughout the vault file format.
func NowNanos() int64 { return time.Now().UnixNano() }
