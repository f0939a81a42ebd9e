package vformat

import "encoding/binary"

// Cursor is a forward-only reader over a byte slice: every multi-byte
// field is little-endian, and truncation surfaces as a single sentinel
// error rather than a panic.
type Cursor struct {
	b   []byte
	pos int
}

// NewCursor creates a Cursor reading from b starting at offset 0.
func NewCursor(b []byte) *Cursor {
	return &Cursor{b: b, pos: 0}
}

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *Cursor) ReadExact(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, NewError(KindCorruptVault, "cursor.read", errTruncated)
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.ReadExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadU16LE() (uint16, error) {
	b, err := c.ReadExact(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32LE() (uint32, error) {
	b, err := c.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadU64LE() (uint64, error) {
	b, err := c.ReadExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

const errTruncated = sentinel("vformat: truncated")

// Encoder is an append-only little-endian byte builder.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an Encoder with the given capacity hint.
func NewEncoder(capHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capHint)}
}

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteRaw(b []byte) { e.buf = append(e.buf, b...) }

func (e *Encoder) WriteU8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) WriteU16LE(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) WriteU32LE(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) WriteU64LE(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}
