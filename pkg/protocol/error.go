package protocol

import "fmt"

// ErrorCode identifies the type of error.
type ErrorCode uint16

const (
	ErrUnknown      ErrorCode = 0x0000 // Unknown error
	ErrInvalidFrame ErrorCode = 0x0001 // Malformed frame
	ErrInvalidEvent ErrorCode = 0x0002 // Malformed event
	ErrRateLimited  ErrorCode = 0x0003 // Too many events
	ErrQueueFull    ErrorCode = 0x0004 // Pending queue full, event refused
	ErrFrameAborted ErrorCode = 0x0005 // The frame running the event aborted
	ErrServerError  ErrorCode = 0x0100 // Internal server error
)

// String returns the string representation of the error code.
func (ec ErrorCode) String() string {
	switch ec {
	case ErrInvalidFrame:
		return "InvalidFrame"
	case ErrInvalidEvent:
		return "InvalidEvent"
	case ErrRateLimited:
		return "RateLimited"
	case ErrQueueFull:
		return "QueueFull"
	case ErrFrameAborted:
		return "FrameAborted"
	case ErrServerError:
		return "ServerError"
	default:
		return "Unknown"
	}
}

// ErrorFrame reports an error to the client.
//
// Wire format:
//
//	[Code: uint16][Message: string][Fatal: bool]
type ErrorFrame struct {
	Code    ErrorCode
	Message string
	Fatal   bool // The connection is closed after this frame
}

// NewError creates a non-fatal ErrorFrame.
func NewError(code ErrorCode, message string) *ErrorFrame {
	return &ErrorFrame{Code: code, Message: message}
}

// NewFatalError creates a fatal ErrorFrame.
func NewFatalError(code ErrorCode, message string) *ErrorFrame {
	return &ErrorFrame{Code: code, Message: message, Fatal: true}
}

// Error implements the error interface.
func (ef *ErrorFrame) Error() string {
	return fmt.Sprintf("protocol: %s: %s", ef.Code, ef.Message)
}

// EncodeError encodes an ErrorFrame payload.
func EncodeError(ef *ErrorFrame) []byte {
	e := NewEncoder()
	e.PutUint16(uint16(ef.Code))
	e.PutString(ef.Message)
	e.PutBool(ef.Fatal)
	return e.Bytes()
}

// DecodeError decodes an ErrorFrame payload.
func DecodeError(data []byte) (*ErrorFrame, error) {
	d := NewDecoder(data)
	code, err := d.ReadUint16()
	if err != nil {
		return nil, err
	}
	message, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	fatal, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	if !d.EOF() {
		return nil, ErrTrailingBytes
	}
	return &ErrorFrame{Code: ErrorCode(code), Message: message, Fatal: fatal}, nil
}
