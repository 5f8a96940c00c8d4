package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// Every frame is a 4-byte header followed by the payload:
//
//	byte 0    frame type
//	byte 1    flags
//	byte 2-3  payload length, big-endian
const (
	FrameHeaderSize = 4
	MaxPayloadSize  = 1<<16 - 1
)

// FrameType identifies the payload of a frame.
type FrameType uint8

const (
	FrameEvent   FrameType = 0x01 // client to server
	FramePatches FrameType = 0x02 // server to client
	FrameError   FrameType = 0x03 // server to client
)

func (ft FrameType) valid() bool {
	return ft >= FrameEvent && ft <= FrameError
}

func (ft FrameType) String() string {
	switch ft {
	case FrameEvent:
		return "Event"
	case FramePatches:
		return "Patches"
	case FrameError:
		return "Error"
	}
	return "Unknown"
}

// FrameFlags is the flag byte of the header.
type FrameFlags uint8

// FlagFinal marks the last frame of a patch batch. A batch that fits one
// frame carries it too.
const FlagFinal FrameFlags = 0x01

// Has reports whether flag is set.
func (ff FrameFlags) Has(flag FrameFlags) bool {
	return ff&flag != 0
}

var (
	ErrFrameTooLarge    = errors.New("protocol: frame payload too large")
	ErrInvalidFrameType = errors.New("protocol: invalid frame type")
	ErrTrailingBytes    = errors.New("protocol: trailing bytes after frame")
)

// Frame is one framed message.
type Frame struct {
	Type    FrameType
	Flags   FrameFlags
	Payload []byte
}

// NewFrame returns a frame without flags.
func NewFrame(ft FrameType, payload []byte) *Frame {
	return &Frame{Type: ft, Payload: payload}
}

// AppendTo appends the encoded frame to dst.
func (f *Frame) AppendTo(dst []byte) ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return dst, ErrFrameTooLarge
	}
	dst = append(dst, byte(f.Type), byte(f.Flags))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(f.Payload)))
	return append(dst, f.Payload...), nil
}

// Encode returns the encoded frame.
func (f *Frame) Encode() ([]byte, error) {
	return f.AppendTo(make([]byte, 0, FrameHeaderSize+len(f.Payload)))
}

// header parses the fixed header.
func header(b []byte) (FrameType, FrameFlags, int) {
	return FrameType(b[0]), FrameFlags(b[1]), int(binary.BigEndian.Uint16(b[2:4]))
}

// DecodeFrame decodes data, which must hold exactly one frame of a known
// type. The payload is copied.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize {
		return nil, io.ErrUnexpectedEOF
	}
	ft, flags, n := header(data)
	if !ft.valid() {
		return nil, ErrInvalidFrameType
	}
	body := data[FrameHeaderSize:]
	if len(body) < n {
		return nil, io.ErrUnexpectedEOF
	}
	if len(body) > n {
		return nil, ErrTrailingBytes
	}
	return &Frame{Type: ft, Flags: flags, Payload: append([]byte(nil), body...)}, nil
}

// ReadFrame reads the next frame from a byte stream. A clean end of stream
// before the header is io.EOF.
func ReadFrame(r io.Reader) (*Frame, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	ft, flags, n := header(hdr[:])
	if !ft.valid() {
		return nil, ErrInvalidFrameType
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return &Frame{Type: ft, Flags: flags, Payload: payload}, nil
}

// WriteFrame writes f to a byte stream.
func WriteFrame(w io.Writer, f *Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
