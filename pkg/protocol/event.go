package protocol

import (
	"errors"

	"github.com/frel-dev/frel/pkg/ident"
)

// MaxEventTypeLen bounds the length of an event type name.
const MaxEventTypeLen = 256

// ErrInvalidEventType is returned for an empty or oversized event type.
var ErrInvalidEventType = errors.New("protocol: invalid event type")

// EventFrame is one client event.
//
// Wire format:
//
//	[Seq: uvarint][Type: string][Target: uvarint][Payload: tagged value]
//
// Seq is the client's own counter. The runtime assigns its own sequence on
// acceptance, and patch batches carry the sequence of the frame that
// produced them.
type EventFrame struct {
	Seq     uint64
	Type    string
	Target  ident.FragmentKey
	Payload any
}

// EncodeEvent encodes an EventFrame payload.
func EncodeEvent(ev *EventFrame) ([]byte, error) {
	e := NewEncoder()
	if err := EncodeEventTo(e, ev); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeEventTo encodes an EventFrame using the provided encoder.
func EncodeEventTo(e *Encoder, ev *EventFrame) error {
	if ev.Type == "" || len(ev.Type) > MaxEventTypeLen {
		return ErrInvalidEventType
	}
	e.PutUvarint(ev.Seq)
	e.PutString(ev.Type)
	e.PutUvarint(ev.Target.Uint64())
	return e.PutValue(ev.Payload)
}

// DecodeEvent decodes an EventFrame payload. The whole payload must be
// consumed.
func DecodeEvent(data []byte) (*EventFrame, error) {
	d := NewDecoder(data)
	ev, err := DecodeEventFrom(d)
	if err != nil {
		return nil, err
	}
	if !d.EOF() {
		return nil, ErrTrailingBytes
	}
	return ev, nil
}

// DecodeEventFrom decodes an EventFrame from a decoder.
func DecodeEventFrom(d *Decoder) (*EventFrame, error) {
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	typ, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	if typ == "" || len(typ) > MaxEventTypeLen {
		return nil, ErrInvalidEventType
	}
	target, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	payload, err := d.ReadValue()
	if err != nil {
		return nil, err
	}
	return &EventFrame{
		Seq:     seq,
		Type:    typ,
		Target:  ident.KeyFromUint64(target),
		Payload: payload,
	}, nil
}
