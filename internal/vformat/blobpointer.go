package vformat

// BlobPointer locates a sealed blob within the append-only data region.
type BlobPointer struct {
	Kind     BlobKind
	ContentID ContentID
	Offset   uint64
	Length   uint32
}

func (p BlobPointer) encode(e *Encoder) {
	e.WriteU8(uint8(p.Kind))
	e.WriteRaw(p.ContentID[:])
	e.WriteU64LE(p.Offset)
	e.WriteU32LE(p.Length)
}

func decodeBlobPointer(c *Cursor) (BlobPointer, error) {
	var p BlobPointer
	kind, err := c.ReadU8()
	if err != nil {
		return p, err
	}
	if !BlobKind(kind).Valid() {
		return p, NewError(KindCorruptVault, "vformat.decodeBlobPointer", sentinel("unknown blob kind"))
	}
	p.Kind = BlobKind(kind)
	cid, err := c.ReadExact(ContentIDSize)
	if err != nil {
		return p, err
	}
	copy(p.ContentID[:], cid)
	off, err := c.ReadU64LE()
	if err != nil {
		return p, err
	}
	p.Offset = off
	length, err := c.ReadU32LE()
	if err != nil {
		return p, err
	}
	p.Length = length
	return p, nil
}

// EncodeBlobPointer/DecodeBlobPointer expose the pointer codec to vindex
// without leaking the Encoder/Cursor machinery's internals.
func EncodeBlobPointer(e *Encoder, p BlobPointer) { p.encode(e) }

func DecodeBlobPointer(c *Cursor) (BlobPointer, error) { return decodeBlobPointer(c) }

// BlobPointerEncodedSize is the fixed size of an encoded BlobPointer.
const BlobPointerEncodedSize = 1 + ContentIDSize + 8 + 4
