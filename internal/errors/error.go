package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the layer an error originates from.
type Category string

const (
	CategoryRuntime  Category = "runtime"
	CategoryProtocol Category = "protocol"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// Kind identifies a class of failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidIdentity
	KindInvalidKey
	KindUseAfterFree
	KindCycleDetected
	KindResourceExhausted
	KindFrameAlreadyRunning
	KindFrameAborted
	KindFrameClosed
	KindQueueFull
	KindConfig
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidIdentity:
		return "InvalidIdentity"
	case KindInvalidKey:
		return "InvalidKey"
	case KindUseAfterFree:
		return "UseAfterFree"
	case KindCycleDetected:
		return "CycleDetected"
	case KindResourceExhausted:
		return "ResourceExhausted"
	case KindFrameAlreadyRunning:
		return "FrameAlreadyRunning"
	case KindFrameAborted:
		return "FrameAborted"
	case KindFrameClosed:
		return "FrameClosed"
	case KindQueueFull:
		return "QueueFull"
	case KindConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// Sentinel errors, one per kind. Structured errors match them with errors.Is.
var (
	ErrInvalidIdentity     = stderrors.New("frel: invalid identity")
	ErrInvalidKey          = stderrors.New("frel: invalid fragment key")
	ErrUseAfterFree        = stderrors.New("frel: use after free")
	ErrCycleDetected       = stderrors.New("frel: cycle detected")
	ErrResourceExhausted   = stderrors.New("frel: resource exhausted")
	ErrFrameAlreadyRunning = stderrors.New("frel: frame already running")
	ErrFrameAborted        = stderrors.New("frel: runtime aborted, acknowledge the error first")
	ErrFrameClosed         = stderrors.New("frel: frame is closed")
	ErrQueueFull           = stderrors.New("frel: pending event queue full")
	ErrConfig              = stderrors.New("frel: invalid configuration")
)

var sentinels = map[Kind]error{
	KindInvalidIdentity:     ErrInvalidIdentity,
	KindInvalidKey:          ErrInvalidKey,
	KindUseAfterFree:        ErrUseAfterFree,
	KindCycleDetected:       ErrCycleDetected,
	KindResourceExhausted:   ErrResourceExhausted,
	KindFrameAlreadyRunning: ErrFrameAlreadyRunning,
	KindFrameAborted:        ErrFrameAborted,
	KindFrameClosed:         ErrFrameClosed,
	KindQueueFull:           ErrQueueFull,
	KindConfig:              ErrConfig,
}

// Error is a structured runtime error.
type Error struct {
	// Code is the stable error identifier (e.g., "R003").
	Code string

	// Kind is the failure class.
	Kind Kind

	// Category is the originating layer.
	Category Category

	// Message is the short description from the code table.
	Message string

	// Op names the failing operation (e.g., "reactive.Write").
	Op string

	// Subject is the identity, key, or name the operation was applied to.
	Subject string

	// Detail is an optional longer explanation.
	Detail string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + " " + msg
	}
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Subject != "" {
		msg += " " + e.Subject
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is the sentinel of this error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an error of the given kind for an operation on a subject.
// The subject is formatted with %v; nil means no subject.
func New(kind Kind, op string, subject any) *Error {
	tmpl := lookup(kind)
	e := &Error{
		Code:     tmpl.Code,
		Kind:     kind,
		Category: tmpl.Category,
		Message:  tmpl.Message,
		Op:       op,
	}
	if subject != nil {
		e.Subject = fmt.Sprint(subject)
	}
	return e
}

// KindOf returns the kind of err, looking through wrapping.
// Plain sentinel errors are recognised too.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if stderrors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}

// CodeOf returns the stable code of err, or "" when err is not a runtime error.
func CodeOf(err error) string {
	k := KindOf(err)
	if k == KindUnknown {
		return ""
	}
	return lookup(k).Code
}

// Is is errors.Is from the standard library, re-exported so callers that
// import this package under its own name don't need both.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
