package render

import (
	"fmt"
	"log/slog"

	"github.com/frel-dev/frel/internal/errors"
	"github.com/frel-dev/frel/pkg/ident"
)

// Reader reads committed store values.
type Reader interface {
	Read(id ident.ID) (any, error)
}

// DiffContext is passed to a descriptor when its fragment is diffed.
type DiffContext struct {
	Key     ident.FragmentKey
	Initial bool // First render of this fragment
	Reader  Reader
}

// Read reads a committed store value.
func (dc *DiffContext) Read(id ident.ID) (any, error) {
	if dc.Reader == nil {
		return nil, errors.New(errors.KindInvalidIdentity, "render.Read", id).WithDetail("no reader")
	}
	return dc.Reader.Read(id)
}

// Descriptor is the immutable, compiled description of a fragment. The
// runtime never interprets it beyond asking for a diff.
type Descriptor interface {
	Diff(dc *DiffContext) ([]Patch, error)
}

// DescriptorFunc adapts a function to a Descriptor.
type DescriptorFunc func(dc *DiffContext) ([]Patch, error)

// Diff calls f(dc).
func (f DescriptorFunc) Diff(dc *DiffContext) ([]Patch, error) {
	return f(dc)
}

// Source resolves queued keys to descriptors. The fragment arena implements
// it.
type Source interface {
	Descriptor(key ident.FragmentKey) (Descriptor, error)
	MarkRendered(key ident.FragmentKey) (first bool, err error)
}

// Generator turns a queue into a patch batch.
type Generator struct {
	logger *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the generator's logger.
func WithLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a generator.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Flush diffs every queued fragment in enqueue order and returns the
// concatenated patches. Fragments destroyed after they were queued are
// skipped. The queue is empty when Flush returns.
func (g *Generator) Flush(q *Queue, src Source, r Reader) ([]Patch, error) {
	defer q.Reset()

	var out []Patch
	for _, key := range q.keys {
		desc, err := src.Descriptor(key)
		if err != nil {
			if errors.KindOf(err) == errors.KindUseAfterFree {
				g.logger.Debug("skip destroyed fragment", slog.String("fragment", key.String()))
				continue
			}
			return nil, err
		}
		first, err := src.MarkRendered(key)
		if err != nil {
			return nil, err
		}
		if desc == nil {
			continue
		}
		patches, err := desc.Diff(&DiffContext{Key: key, Initial: first, Reader: r})
		if err != nil {
			return nil, fmt.Errorf("render: diff %s: %w", key, err)
		}
		for _, p := range patches {
			p.Fragment = key
			out = append(out, p)
		}
	}
	return out, nil
}
