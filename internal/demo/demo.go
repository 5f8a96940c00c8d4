// Package demo holds small applications used by the frel CLI and the server
// tests. Each one is an App: it registers its event handlers on a runtime
// and returns the builder that mounts its fragments.
package demo

import (
	"fmt"
	"sort"

	"github.com/frel-dev/frel/pkg/runtime"
)

// App installs an application into rt and returns its mount builder.
type App func(rt *runtime.Runtime) func(f *runtime.Frame) error

var apps = map[string]App{
	"counter": Counter,
	"todo":    Todo,
}

// Lookup returns the demo application called name.
func Lookup(name string) (App, error) {
	app, ok := apps[name]
	if !ok {
		return nil, fmt.Errorf("demo: unknown app %q (have %v)", name, Names())
	}
	return app, nil
}

// Names lists the demo applications in sorted order.
func Names() []string {
	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// frameLocal carries a working copy of committed state across the events of
// one frame. Reads return committed values, so handlers that build on an
// earlier event's write in the same frame go through it.
type frameLocal[T any] struct {
	seq uint64
	v   T
}

func (l *frameLocal[T]) get(f *runtime.Frame, load func() (T, error)) (T, error) {
	if l.seq == f.Seq() {
		return l.v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	l.seq, l.v = f.Seq(), v
	return v, nil
}

func (l *frameLocal[T]) set(f *runtime.Frame, v T) {
	l.seq, l.v = f.Seq(), v
}

// toInt accepts the integer shapes a payload can arrive in.
func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("demo: %v is not an integer", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("demo: payload %T is not an integer", v)
	}
}
