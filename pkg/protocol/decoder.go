package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	// DefaultMaxAllocation bounds one decoded string or blob (1MB).
	DefaultMaxAllocation = 1 << 20

	// HardMaxAllocation caps any configured limit (16MB).
	HardMaxAllocation = 16 << 20

	// MaxCollectionCount bounds the item count of one collection.
	MaxCollectionCount = 100_000
)

var (
	ErrVarintOverflow     = errors.New("protocol: varint overflow")
	ErrInvalidBool        = errors.New("protocol: invalid boolean value")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("protocol: collection count exceeds limit")
)

// Decoder consumes a payload from the front. Decoded strings and blobs are
// copies; the input may be reused once decoding is done.
type Decoder struct {
	rest  []byte
	limit uint64
}

// NewDecoder returns a decoder over data limited to DefaultMaxAllocation.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{rest: data, limit: DefaultMaxAllocation}
}

// NewDecoderWithLimit returns a decoder whose strings and blobs may be at
// most limit bytes, clamped to HardMaxAllocation. A non-positive limit keeps
// the default.
func NewDecoderWithLimit(data []byte, limit int) *Decoder {
	d := NewDecoder(data)
	if limit > 0 {
		d.limit = uint64(min(limit, HardMaxAllocation))
	}
	return d
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.rest) }

// EOF reports whether the input is exhausted.
func (d *Decoder) EOF() bool { return len(d.rest) == 0 }

// take consumes n bytes.
func (d *Decoder) take(n int) ([]byte, error) {
	if n > len(d.rest) {
		return nil, io.ErrUnexpectedEOF
	}
	b := d.rest[:n:n]
	d.rest = d.rest[n:]
	return b, nil
}

func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(d.rest)
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0:
		return 0, ErrVarintOverflow
	}
	d.rest = d.rest[n:]
	return v, nil
}

// ReadVarint reads a zigzag-encoded signed varint.
func (d *Decoder) ReadVarint() (int64, error) {
	v, n := binary.Varint(d.rest)
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0:
		return 0, ErrVarintOverflow
	}
	d.rest = d.rest[n:]
	return v, nil
}

// prefixed reads a length prefix and the bytes it covers. The limit is
// checked before the remaining input so oversized prefixes are reported as
// such even when truncated.
func (d *Decoder) prefixed() ([]byte, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if n > d.limit {
		return nil, ErrAllocationTooLarge
	}
	return d.take(int(n))
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.prefixed()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) ReadBlob() ([]byte, error) {
	b, err := d.prefixed()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// ReadBool accepts only 0x00 and 0x01.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	if b > 1 {
		return false, ErrInvalidBool
	}
	return b == 1, nil
}

func (d *Decoder) ReadUint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Decoder) ReadFloat64() (float64, error) {
	v, err := d.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadCount reads a collection length. Every item takes at least one byte,
// so a count larger than the remaining input is truncation.
func (d *Decoder) ReadCount() (int, error) {
	n, err := d.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > MaxCollectionCount {
		return 0, ErrCollectionTooLarge
	}
	if n > uint64(len(d.rest)) {
		return 0, io.ErrUnexpectedEOF
	}
	return int(n), nil
}
