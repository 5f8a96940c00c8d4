package protocol

import (
	"encoding/binary"
	"math"
)

// Encoder builds a payload. Puts never fail; the buffer grows as needed.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

// Reset empties the encoder and keeps its buffer.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

// Bytes returns the encoded bytes. They alias the buffer until the next put
// or Reset.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the encoded length.
func (e *Encoder) Len() int { return len(e.buf) }

// PutByte writes b.
func (e *Encoder) PutByte(b byte) { e.buf = append(e.buf, b) }

func (e *Encoder) PutUvarint(v uint64) { e.buf = binary.AppendUvarint(e.buf, v) }

// PutVarint writes v zigzag-encoded.
func (e *Encoder) PutVarint(v int64) { e.buf = binary.AppendVarint(e.buf, v) }

// PutString writes a uvarint length followed by the bytes of s.
func (e *Encoder) PutString(s string) {
	e.PutUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// PutBlob writes a uvarint length followed by b.
func (e *Encoder) PutBlob(b []byte) {
	e.PutUvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// PutBool writes 0x01 for true and 0x00 for false.
func (e *Encoder) PutBool(b bool) {
	var v byte
	if b {
		v = 1
	}
	e.buf = append(e.buf, v)
}

// PutUint16 writes v big-endian.
func (e *Encoder) PutUint16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }

// PutUint64 writes v big-endian.
func (e *Encoder) PutUint64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

// PutFloat64 writes the IEEE 754 bits of v big-endian.
func (e *Encoder) PutFloat64(v float64) { e.PutUint64(math.Float64bits(v)) }
