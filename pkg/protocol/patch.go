package protocol

import (
	"errors"

	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/render"
)

// ErrInvalidPatchKind is returned for an unknown patch kind byte.
var ErrInvalidPatchKind = errors.New("protocol: invalid patch kind")

// PatchesFrame is one committed patch batch.
//
// Wire format:
//
//	[Seq: uvarint][Count: uvarint][Patch]...
//
// Each patch:
//
//	[Fragment: uvarint][Kind: byte][Name: string][Index: svarint][Value: tagged value]
type PatchesFrame struct {
	Seq     uint64
	Patches []render.Patch
}

// EncodePatches encodes a PatchesFrame payload.
func EncodePatches(pf *PatchesFrame) ([]byte, error) {
	e := NewEncoder()
	if err := EncodePatchesTo(e, pf); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodePatchesTo encodes a PatchesFrame using the provided encoder.
func EncodePatchesTo(e *Encoder, pf *PatchesFrame) error {
	if len(pf.Patches) > MaxCollectionCount {
		return ErrCollectionTooLarge
	}
	e.PutUvarint(pf.Seq)
	e.PutUvarint(uint64(len(pf.Patches)))
	for i := range pf.Patches {
		if err := encodePatch(e, &pf.Patches[i]); err != nil {
			return err
		}
	}
	return nil
}

func encodePatch(e *Encoder, p *render.Patch) error {
	e.PutUvarint(p.Fragment.Uint64())
	e.PutByte(byte(p.Kind))
	e.PutString(p.Name)
	e.PutVarint(int64(p.Index))
	return e.PutValue(p.Value)
}

// DecodePatches decodes a PatchesFrame payload. The whole payload must be
// consumed.
func DecodePatches(data []byte) (*PatchesFrame, error) {
	d := NewDecoder(data)
	pf, err := DecodePatchesFrom(d)
	if err != nil {
		return nil, err
	}
	if !d.EOF() {
		return nil, ErrTrailingBytes
	}
	return pf, nil
}

// DecodePatchesFrom decodes a PatchesFrame from a decoder.
func DecodePatchesFrom(d *Decoder) (*PatchesFrame, error) {
	seq, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	count, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	pf := &PatchesFrame{Seq: seq, Patches: make([]render.Patch, count)}
	for i := range pf.Patches {
		if err := decodePatch(d, &pf.Patches[i]); err != nil {
			return nil, err
		}
	}
	return pf, nil
}

func decodePatch(d *Decoder, p *render.Patch) error {
	key, err := d.ReadUvarint()
	if err != nil {
		return err
	}
	kind, err := d.ReadByte()
	if err != nil {
		return err
	}
	switch render.PatchKind(kind) {
	case render.PatchContent, render.PatchStructure, render.PatchInstruction:
	default:
		return ErrInvalidPatchKind
	}
	name, err := d.ReadString()
	if err != nil {
		return err
	}
	index, err := d.ReadVarint()
	if err != nil {
		return err
	}
	value, err := d.ReadValue()
	if err != nil {
		return err
	}
	*p = render.Patch{
		Fragment: ident.KeyFromUint64(key),
		Kind:     render.PatchKind(kind),
		Name:     name,
		Value:    value,
		Index:    int(index),
	}
	return nil
}
