package protocol

import (
	"errors"
	"fmt"

	"github.com/frel-dev/frel/pkg/ident"
)

// ValueTag identifies the type of a tagged value.
type ValueTag uint8

const (
	TagNil    ValueTag = 0x00
	TagBool   ValueTag = 0x01
	TagInt    ValueTag = 0x02 // zigzag varint
	TagFloat  ValueTag = 0x03 // IEEE 754, big-endian
	TagString ValueTag = 0x04
	TagBytes  ValueTag = 0x05
	TagKey    ValueTag = 0x06 // fragment key, packed uvarint
)

// ErrInvalidValueTag is returned when a tag byte is not a known ValueTag.
var ErrInvalidValueTag = errors.New("protocol: invalid value tag")

// UnsupportedValueError is returned when a value has no wire representation.
type UnsupportedValueError struct {
	Value any
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("protocol: unsupported value type %T", e.Value)
}

// PutValue appends v as a tagged value. Integers of every width are sent
// as int64 and float32 as float64; values that do not fit (uint64 above
// MaxInt64) and other types are rejected.
func (e *Encoder) PutValue(v any) error {
	switch x := v.(type) {
	case nil:
		e.PutByte(byte(TagNil))
	case bool:
		e.PutByte(byte(TagBool))
		e.PutBool(x)
	case int:
		e.putInt(int64(x))
	case int8:
		e.putInt(int64(x))
	case int16:
		e.putInt(int64(x))
	case int32:
		e.putInt(int64(x))
	case int64:
		e.putInt(x)
	case uint:
		return e.putUint(uint64(x), v)
	case uint8:
		e.putInt(int64(x))
	case uint16:
		e.putInt(int64(x))
	case uint32:
		e.putInt(int64(x))
	case uint64:
		return e.putUint(x, v)
	case float32:
		e.PutByte(byte(TagFloat))
		e.PutFloat64(float64(x))
	case float64:
		e.PutByte(byte(TagFloat))
		e.PutFloat64(x)
	case string:
		e.PutByte(byte(TagString))
		e.PutString(x)
	case []byte:
		e.PutByte(byte(TagBytes))
		e.PutBlob(x)
	case ident.FragmentKey:
		e.PutByte(byte(TagKey))
		e.PutUvarint(x.Uint64())
	default:
		return &UnsupportedValueError{Value: v}
	}
	return nil
}

func (e *Encoder) putInt(v int64) {
	e.PutByte(byte(TagInt))
	e.PutVarint(v)
}

func (e *Encoder) putUint(v uint64, orig any) error {
	if v > 1<<63-1 {
		return &UnsupportedValueError{Value: orig}
	}
	e.putInt(int64(v))
	return nil
}

// ReadValue reads a tagged value. Integers decode as int64, floats as
// float64 and keys as ident.FragmentKey.
func (d *Decoder) ReadValue() (any, error) {
	tag, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	switch ValueTag(tag) {
	case TagNil:
		return nil, nil
	case TagBool:
		return d.ReadBool()
	case TagInt:
		return d.ReadVarint()
	case TagFloat:
		return d.ReadFloat64()
	case TagString:
		return d.ReadString()
	case TagBytes:
		return d.ReadBlob()
	case TagKey:
		v, err := d.ReadUvarint()
		if err != nil {
			return nil, err
		}
		return ident.KeyFromUint64(v), nil
	default:
		return nil, ErrInvalidValueTag
	}
}
