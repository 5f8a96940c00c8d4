package reactive

import (
	"log/slog"
	"math"
)

const (
	// DefaultMaxRounds bounds the number of drain rounds in one frame.
	// Rounds beyond the first only happen when subscription callbacks write.
	DefaultMaxRounds = 64

	// DefaultMaxIdentities is the size of the identity space.
	DefaultMaxIdentities = math.MaxUint64 - 1
)

// Option configures a Stores table.
type Option func(*Stores)

// WithMaxIdentities caps the identity space. Identities are never reused, so
// this bounds the total number of stores ever created.
func WithMaxIdentities(n uint64) Option {
	return func(s *Stores) {
		if n > 0 {
			s.maxIDs = n
		}
	}
}

// WithMaxRounds bounds the number of drain rounds per Drain call.
func WithMaxRounds(n int) Option {
	return func(s *Stores) {
		if n > 0 {
			s.maxRounds = n
		}
	}
}

// WithLogger sets the logger used for drain diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stores) {
		if l != nil {
			s.logger = l
		}
	}
}

// StoreOption configures a single store at creation.
type StoreOption func(*entry)

// WithEquals sets the equality function used to suppress no-op changes.
func WithEquals(fn EqualFunc) StoreOption {
	return func(e *entry) {
		e.equal = fn
	}
}

// WithName attaches a debug name to the store, used in logs and errors.
func WithName(name string) StoreOption {
	return func(e *entry) {
		e.name = name
	}
}
