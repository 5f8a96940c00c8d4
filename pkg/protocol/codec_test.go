package protocol

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/frel-dev/frel/pkg/ident"
	"github.com/frel-dev/frel/pkg/render"
)

func TestVarintBoundaries(t *testing.T) {
	tests := []struct {
		name string
		u    uint64
		s    int64
	}{
		{"zero", 0, 0},
		{"one byte", 127, -64},
		{"two bytes", 128, 64},
		{"max", math.MaxUint64, math.MinInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEncoder()
			e.PutUvarint(tt.u)
			e.PutVarint(tt.s)
			d := NewDecoder(e.Bytes())
			u, err := d.ReadUvarint()
			if err != nil || u != tt.u {
				t.Fatalf("ReadUvarint() = %d, %v; want %d", u, err, tt.u)
			}
			s, err := d.ReadVarint()
			if err != nil || s != tt.s {
				t.Fatalf("ReadVarint() = %d, %v; want %d", s, err, tt.s)
			}
			if !d.EOF() {
				t.Errorf("%d bytes left over", d.Remaining())
			}
		})
	}
}

func TestVarintOverflow(t *testing.T) {
	d := NewDecoder(bytes.Repeat([]byte{0xFF}, 11))
	if _, err := d.ReadUvarint(); !errors.Is(err, ErrVarintOverflow) {
		t.Fatalf("err = %v, want ErrVarintOverflow", err)
	}
}

func TestPutValueNormalizes(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{int(-3), int64(-3)},
		{uint8(200), int64(200)},
		{uint64(math.MaxInt64), int64(math.MaxInt64)},
		{float32(1.5), float64(1.5)},
		{"héllo", "héllo"},
		{ident.FragmentKey{Index: 3, Generation: 9}, ident.FragmentKey{Index: 3, Generation: 9}},
	}
	for _, tt := range tests {
		e := NewEncoder()
		if err := e.PutValue(tt.in); err != nil {
			t.Fatalf("PutValue(%v): %v", tt.in, err)
		}
		got, err := NewDecoder(e.Bytes()).ReadValue()
		if err != nil {
			t.Fatalf("ReadValue(%v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("value %#v decoded as %#v, want %#v", tt.in, got, tt.want)
		}
	}

	e := NewEncoder()
	if err := e.PutValue([]byte{1, 2}); err != nil {
		t.Fatalf("PutValue(bytes): %v", err)
	}
	got, err := NewDecoder(e.Bytes()).ReadValue()
	if err != nil || !bytes.Equal(got.([]byte), []byte{1, 2}) {
		t.Fatalf("bytes decoded as %v, %v", got, err)
	}
}

func TestPutValueRejects(t *testing.T) {
	for _, v := range []any{uint64(math.MaxUint64), struct{}{}, []int{1}, map[string]any{}} {
		e := NewEncoder()
		err := e.PutValue(v)
		var uv *UnsupportedValueError
		if !errors.As(err, &uv) {
			t.Errorf("PutValue(%T) = %v, want UnsupportedValueError", v, err)
		}
	}
}

func TestReadValueErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"unknown tag", []byte{0x7F}, ErrInvalidValueTag},
		{"bad bool", []byte{byte(TagBool), 0x02}, ErrInvalidBool},
		{"short float", []byte{byte(TagFloat), 0x00}, io.ErrUnexpectedEOF},
		{"short string", []byte{byte(TagString), 0x05, 'a'}, io.ErrUnexpectedEOF},
		{"empty", nil, io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDecoder(tt.data).ReadValue(); !errors.Is(err, tt.want) {
				t.Errorf("ReadValue() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAllocationLimit(t *testing.T) {
	e := NewEncoder()
	e.PutUvarint(1 << 30)
	if _, err := NewDecoder(e.Bytes()).ReadString(); !errors.Is(err, ErrAllocationTooLarge) {
		t.Fatalf("ReadString() error = %v, want ErrAllocationTooLarge", err)
	}

	e.Reset()
	e.PutString("abcdef")
	if _, err := NewDecoderWithLimit(e.Bytes(), 4).ReadString(); !errors.Is(err, ErrAllocationTooLarge) {
		t.Fatalf("limited ReadString() error = %v, want ErrAllocationTooLarge", err)
	}
	if s, err := NewDecoderWithLimit(e.Bytes(), 6).ReadString(); err != nil || s != "abcdef" {
		t.Fatalf("ReadString() = %q, %v", s, err)
	}

	e.Reset()
	e.PutUvarint(MaxCollectionCount + 1)
	if _, err := NewDecoder(e.Bytes()).ReadCount(); !errors.Is(err, ErrCollectionTooLarge) {
		t.Fatalf("ReadCount() error = %v, want ErrCollectionTooLarge", err)
	}
}

func TestEventFrame(t *testing.T) {
	ev := &EventFrame{
		Seq:     42,
		Type:    "click",
		Target:  ident.FragmentKey{Index: 1, Generation: 2},
		Payload: "go",
	}
	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if *got != *ev {
		t.Fatalf("decoded %+v, want %+v", got, ev)
	}

	if _, err := DecodeEvent(append(data, 0x00)); !errors.Is(err, ErrTrailingBytes) {
		t.Errorf("trailing byte error = %v, want ErrTrailingBytes", err)
	}
	if _, err := EncodeEvent(&EventFrame{}); !errors.Is(err, ErrInvalidEventType) {
		t.Errorf("empty type error = %v, want ErrInvalidEventType", err)
	}
	if _, err := EncodeEvent(&EventFrame{Type: strings.Repeat("x", MaxEventTypeLen+1)}); !errors.Is(err, ErrInvalidEventType) {
		t.Errorf("long type error = %v, want ErrInvalidEventType", err)
	}
}

func TestPatchesFrame(t *testing.T) {
	key := ident.FragmentKey{Index: 0, Generation: 1}
	child := ident.FragmentKey{Index: 5, Generation: 3}
	pf := &PatchesFrame{Seq: 7, Patches: []render.Patch{
		{Fragment: key, Kind: render.PatchContent, Name: "text", Value: "10"},
		{Fragment: key, Kind: render.PatchStructure, Name: render.OpInsert, Index: 2, Value: child},
		{Fragment: key, Kind: render.PatchInstruction, Name: "disabled", Value: true},
	}}
	data, err := EncodePatches(pf)
	if err != nil {
		t.Fatalf("EncodePatches: %v", err)
	}
	got, err := DecodePatches(data)
	if err != nil {
		t.Fatalf("DecodePatches: %v", err)
	}
	if got.Seq != 7 || len(got.Patches) != 3 {
		t.Fatalf("decoded %+v", got)
	}
	for i := range pf.Patches {
		if got.Patches[i] != pf.Patches[i] {
			t.Errorf("patch %d = %s, want %s", i, got.Patches[i], pf.Patches[i])
		}
	}

	bad := append([]byte(nil), data...)
	// One byte each for seq, count and fragment key, then the kind byte.
	bad[3] = 0x09
	if _, err := DecodePatches(bad); !errors.Is(err, ErrInvalidPatchKind) {
		t.Errorf("bad kind error = %v, want ErrInvalidPatchKind", err)
	}

	unsupported := &PatchesFrame{Patches: []render.Patch{{Kind: render.PatchContent, Value: struct{}{}}}}
	if _, err := EncodePatches(unsupported); err == nil {
		t.Error("EncodePatches accepted an unsupported value")
	}
}

func TestErrorFrame(t *testing.T) {
	ef := NewFatalError(ErrRateLimited, "slow down")
	got, err := DecodeError(EncodeError(ef))
	if err != nil {
		t.Fatalf("DecodeError: %v", err)
	}
	if *got != *ef {
		t.Fatalf("decoded %+v, want %+v", got, ef)
	}
	if got.Error() != "protocol: RateLimited: slow down" {
		t.Errorf("Error() = %q", got.Error())
	}
}
